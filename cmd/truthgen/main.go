package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"truth-pipeline/api/rest/routes"
	"truth-pipeline/config"
	"truth-pipeline/core/monitoring"
	"truth-pipeline/core/partition"
	"truth-pipeline/core/pipeline"
	"truth-pipeline/core/repository"
	"truth-pipeline/core/source"
	"truth-pipeline/core/spec"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

func main() {
	cfg := config.Load()

	runSpec, err := spec.ParseFile(cfg.RunSpec)
	if err != nil {
		log.Fatalf("Failed to load run spec: %v", err)
	}

	// Initialize output store
	db, err := repository.NewDB(cfg.OutputDB)
	if err != nil {
		log.Fatalf("Failed to open output store: %v", err)
	}
	defer db.Close()

	// Initialize input catalog cursor
	galaxies, err := source.OpenGalaxySource(cfg.CatalogURL)
	if err != nil {
		log.Fatalf("Failed to connect to parameter catalog: %v", err)
	}
	defer galaxies.Close()

	log.Println("Databases connected successfully")

	runID := uuid.NewString()
	tracker := monitoring.NewProgressTracker(runID, 0)
	startStatusServer(cfg.StatusPort, tracker)

	grid := partition.New(runSpec.Run.GridDepth)
	p := pipeline.NewTruthPipeline(galaxies, grid, db, tracker, runSpec.Run)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("Starting truth run %s", runID)
	if err := p.Run(ctx); err != nil {
		log.Fatalf("Truth run failed: %v", err)
	}

	log.Println("Building indexes...")
	if err := db.BuildIndexes(); err != nil {
		log.Fatalf("Index build failed: %v", err)
	}
	log.Println("Truth run complete")
}

// startStatusServer serves the progress API when a port is configured.
func startStatusServer(port string, tracker *monitoring.ProgressTracker) {
	if port == "" {
		return
	}
	r := mux.NewRouter()
	routes.SetupRoutes(r, tracker)
	go func() {
		log.Printf("Starting status server on port %s", port)
		if err := http.ListenAndServe(":"+port, r); err != nil && err != http.ErrServerClosed {
			log.Printf("Status server stopped: %v", err)
		}
	}()
}
