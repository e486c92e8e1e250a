// Package monitoring tracks pipeline progress so an operator can judge
// whether a long-running batch job is on track.
package monitoring

import (
	"log"
	"sync"
	"time"
)

// ProgressTracker accumulates run counters. It is safe for concurrent
// use; the writer goroutine updates it and the status API reads it.
type ProgressTracker struct {
	mu sync.RWMutex

	runID        string
	started      time.Time
	totalRegions int

	regionsDone int
	rowsWritten int64
	nanCells    int64
	excluded    int64
}

// Snapshot is a point-in-time view of a run's progress.
type Snapshot struct {
	RunID          string  `json:"run_id"`
	ElapsedHours   float64 `json:"elapsed_hours"`
	TotalRegions   int     `json:"total_regions"`
	RegionsDone    int     `json:"regions_done"`
	RowsWritten    int64   `json:"rows_written"`
	NaNCells       int64   `json:"nan_cells"`
	ExcludedPairs  int64   `json:"excluded_pairs"`
	ProjectedHours float64 `json:"projected_hours"`
}

// NewProgressTracker starts the clock for a run over totalRegions
// regions.
func NewProgressTracker(runID string, totalRegions int) *ProgressTracker {
	return &ProgressTracker{
		runID:        runID,
		started:      time.Now(),
		totalRegions: totalRegions,
	}
}

// AddRows adds written rows and NaN/excluded counts from one region.
func (t *ProgressTracker) AddRows(rows, nanCells, excluded int64) {
	t.mu.Lock()
	t.rowsWritten += rows
	t.nanCells += nanCells
	t.excluded += excluded
	t.mu.Unlock()
}

// RegionDone marks one region complete and logs a progress line with a
// projected total duration, so an operator can tell whether the run is
// on track.
func (t *ProgressTracker) RegionDone() {
	t.mu.Lock()
	t.regionsDone++
	done, total, rows := t.regionsDone, t.totalRegions, t.rowsWritten
	elapsed := time.Since(t.started).Hours()
	t.mu.Unlock()

	if total > 0 {
		projected := 0.0
		if done > 0 {
			projected = elapsed * float64(total) / float64(done)
		}
		log.Printf("wrote %d rows (%d/%d regions) in %.2e hrs; whole run projected %.2e hrs",
			rows, done, total, elapsed, projected)
		return
	}
	// Open-ended run: project against a nominal ten million rows.
	projected := 0.0
	if rows > 0 {
		projected = elapsed * 1.0e7 / float64(rows)
	}
	log.Printf("wrote %d rows in %.2e hrs; 10 million projected in %.2e hrs", rows, elapsed, projected)
}

// Snapshot returns the current counters.
func (t *ProgressTracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	elapsed := time.Since(t.started).Hours()
	projected := 0.0
	if t.regionsDone > 0 && t.totalRegions > 0 {
		projected = elapsed * float64(t.totalRegions) / float64(t.regionsDone)
	}
	return Snapshot{
		RunID:          t.runID,
		ElapsedHours:   elapsed,
		TotalRegions:   t.totalRegions,
		RegionsDone:    t.regionsDone,
		RowsWritten:    t.rowsWritten,
		NaNCells:       t.nanCells,
		ExcludedPairs:  t.excluded,
		ProjectedHours: projected,
	}
}
