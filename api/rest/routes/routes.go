package routes

import (
	"net/http"

	"github.com/gorilla/mux"

	"truth-pipeline/api/rest/handlers"
	"truth-pipeline/core/monitoring"
)

// SetupRoutes configures the status API routes.
func SetupRoutes(r *mux.Router, tracker *monitoring.ProgressTracker) {
	statusHandler := handlers.NewStatusHandler(tracker)

	r.HandleFunc("/status", statusHandler.GetStatus).Methods("GET")
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")
}
