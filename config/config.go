package config

import (
	"os"
)

// Config holds the application configuration
type Config struct {
	// Input parameter catalog (Postgres)
	CatalogURL string

	// Survey observation database (sqlite)
	OpsimDB string

	// Output store (sqlite)
	OutputDB string

	// Optional status API port; empty disables the server
	StatusPort string

	// Optional YAML run spec path; empty uses the defaults
	RunSpec string
}

// Load loads configuration from environment variables
func Load() *Config {
	return &Config{
		CatalogURL: getEnv("CATALOG_URL", "postgres://localhost/extragal_params?sslmode=disable"),
		OpsimDB:    getEnv("OPSIM_DB", "opsim.db"),
		OutputDB:   getEnv("OUTPUT_DB", "truth.db"),
		StatusPort: getEnv("STATUS_PORT", ""),
		RunSpec:    getEnv("RUN_SPEC", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
