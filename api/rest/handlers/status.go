package handlers

import (
	"encoding/json"
	"net/http"

	"truth-pipeline/core/monitoring"
)

// StatusHandler serves a JSON snapshot of the running pipeline.
type StatusHandler struct {
	tracker *monitoring.ProgressTracker
}

// NewStatusHandler creates a status handler over the run's tracker.
func NewStatusHandler(tracker *monitoring.ProgressTracker) *StatusHandler {
	return &StatusHandler{tracker: tracker}
}

// GetStatus returns the current progress counters.
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.tracker.Snapshot()); err != nil {
		http.Error(w, "Failed to encode status: "+err.Error(), http.StatusInternalServerError)
	}
}
