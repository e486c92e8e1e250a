package main

import (
	"context"
	"log"
	"math"
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
	"truth-pipeline/storage"

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

	// Initialize input catalogs
	agn, err := source.OpenAGNSource(cfg.CatalogURL)
	if err != nil {
		log.Fatalf("Failed to connect to parameter catalog: %v", err)
	}
	defer agn.Close()

	obs, err := source.OpenPointingSource(cfg.OpsimDB)
	if err != nil {
		log.Fatalf("Failed to open observation database: %v", err)
	}
	defer obs.Close()

	log.Println("Databases connected successfully")

	grid := partition.New(runSpec.Run.GridDepth)
	fieldRadius := runSpec.Run.FieldRadiusDeg * math.Pi / 180.0
	pointings, err := obs.LoadAll(grid, fieldRadius)
	if err != nil {
		log.Fatalf("Failed to load pointings: %v", err)
	}
	log.Printf("Loaded %d pointings", len(pointings))
	if err := repository.InsertPointings(db, pointings); err != nil {
		log.Fatalf("Failed to persist pointings: %v", err)
	}
	byRegion := source.IndexByRegion(pointings)

	resume := storage.NewResumeLog(db)
	all, err := agn.Regions()
	if err != nil {
		log.Fatalf("Failed to list regions: %v", err)
	}
	todo, err := resume.Remaining(all)
	if err != nil {
		log.Fatalf("Failed to load resume log: %v", err)
	}
	log.Printf("%d of %d regions remaining", len(todo), len(all))

	tracker := monitoring.NewProgressTracker(resume.RunID(), len(todo))
	startStatusServer(cfg.StatusPort, tracker)

	p := pipeline.NewLightCurvePipeline(agn, byRegion, db, resume, tracker, runSpec.Run)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("Starting light-curve run %s", resume.RunID())
	if err := p.Run(ctx); err != nil {
		log.Fatalf("Light-curve run failed: %v", err)
	}

	log.Println("Building indexes...")
	if err := db.BuildIndexes(); err != nil {
		log.Fatalf("Index build failed: %v", err)
	}
	log.Println("Light-curve run complete")
}

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
