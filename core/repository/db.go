// Package repository is the output store: an indexed sqlite database
// holding the truth table, per-epoch light curves, static object
// attributes and pointing metadata. Only the single-threaded writer
// goroutine touches the store; workers never do.
package repository

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DB wraps the output database connection.
type DB struct {
	*sql.DB
}

// NewDB opens (or creates) the output database and ensures the schema
// exists. Indexes are NOT created here; they are built after bulk load
// by BuildIndexes to avoid write amplification during insertion.
func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("output store: %w", err)
	}
	d := &DB{DB: db}
	if err := d.createSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}

func (d *DB) createSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS truth (
			region INTEGER, object_id INTEGER, star INTEGER,
			agn INTEGER, sprinkled INTEGER, ra REAL, dec REAL,
			redshift REAL,
			u REAL, g REAL, r REAL, i REAL, z REAL, y REAL,
			dmw_u REAL, dmw_g REAL, dmw_r REAL, dmw_i REAL, dmw_z REAL, dmw_y REAL,
			dint_u REAL, dint_g REAL, dint_r REAL, dint_i REAL, dint_z REAL, dint_y REAL
		)`,
		`CREATE TABLE IF NOT EXISTS light_curve (
			object_id INTEGER NOT NULL,
			visit_id INTEGER NOT NULL,
			mag REAL NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS objects (
			object_id INTEGER PRIMARY KEY,
			region INTEGER NOT NULL,
			ra REAL NOT NULL, dec REAL NOT NULL,
			redshift REAL NOT NULL,
			agn INTEGER NOT NULL, sprinkled INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS pointings (
			visit_id INTEGER PRIMARY KEY,
			mjd REAL NOT NULL, filter INTEGER NOT NULL,
			ra REAL NOT NULL, dec REAL NOT NULL, rot REAL NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS completed_regions (
			region INTEGER PRIMARY KEY,
			run_id TEXT NOT NULL,
			completed_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS column_descriptions (
			name TEXT, description TEXT
		)`,
	}
	for _, stmt := range stmts {
		if _, err := d.Exec(stmt); err != nil {
			return fmt.Errorf("output schema: %w", err)
		}
	}
	return d.writeColumnDescriptions()
}

func (d *DB) writeColumnDescriptions() error {
	var n int
	if err := d.QueryRow(`SELECT COUNT(*) FROM column_descriptions`).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	descriptions := [][2]string{
		{"region", "sky grid cell containing the object (nested grid, fixed depth)"},
		{"object_id", "int uniquely identifying objects (can collide between stars and galaxies)"},
		{"star", "==1 if a star; ==0 if not"},
		{"agn", "==1 if galaxy has an AGN; ==0 if not"},
		{"sprinkled", "==1 if object added by the sprinkler; ==0 if not"},
		{"ra", "in degrees"},
		{"dec", "in degrees"},
		{"redshift", "cosmological only"},
		{"u", "observed u magnitude, all dust applied"},
		{"g", "observed g magnitude, all dust applied"},
		{"r", "observed r magnitude, all dust applied"},
		{"i", "observed i magnitude, all dust applied"},
		{"z", "observed z magnitude, all dust applied"},
		{"y", "observed y magnitude, all dust applied"},
		{"dmw_*", "magnitude dimming attributable to Milky Way dust"},
		{"dint_*", "magnitude dimming attributable to internal dust"},
	}
	tx, err := d.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, dd := range descriptions {
		if _, err := tx.Exec(`INSERT INTO column_descriptions VALUES (?, ?)`, dd[0], dd[1]); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// BuildIndexes creates the lookup indexes after bulk load. The
// light-curve uniqueness index doubles as the duplicate-insertion
// detector: a (object_id, visit_id) collision fails index creation.
func (d *DB) BuildIndexes() error {
	stmts := []string{
		`CREATE INDEX IF NOT EXISTS truth_obj_id ON truth (object_id)`,
		`CREATE INDEX IF NOT EXISTS truth_region ON truth (region)`,
		`CREATE INDEX IF NOT EXISTS truth_agn ON truth (agn)`,
		`CREATE INDEX IF NOT EXISTS truth_sprinkled ON truth (sprinkled)`,
		`CREATE INDEX IF NOT EXISTS lc_obj_id ON light_curve (object_id)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS lc_obj_visit ON light_curve (object_id, visit_id)`,
	}
	for _, stmt := range stmts {
		if _, err := d.Exec(stmt); err != nil {
			return fmt.Errorf("index build: %w", err)
		}
	}
	return nil
}
