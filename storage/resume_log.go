// Package storage tracks run progress across restarts. The resume log
// is an explicit set of completed region keys kept in the output store,
// loaded at startup and subtracted from the full work set.
package storage

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"truth-pipeline/core/models"
	"truth-pipeline/core/repository"
)

// ResumeLog records which regions a run has fully committed.
type ResumeLog struct {
	db    *repository.DB
	runID string
}

// NewResumeLog returns a resume log writing entries under a fresh run
// identifier.
func NewResumeLog(db *repository.DB) *ResumeLog {
	return &ResumeLog{db: db, runID: uuid.NewString()}
}

// RunID returns the identifier recorded with this run's entries.
func (l *ResumeLog) RunID() string { return l.runID }

// Completed loads the set of region keys already finished by any prior
// run against this store.
func (l *ResumeLog) Completed() (map[models.RegionKey]bool, error) {
	rows, err := l.db.Query(`SELECT region FROM completed_regions`)
	if err != nil {
		return nil, fmt.Errorf("resume log: %w", err)
	}
	defer rows.Close()

	done := make(map[models.RegionKey]bool)
	for rows.Next() {
		var r int64
		if err := rows.Scan(&r); err != nil {
			return nil, fmt.Errorf("resume log scan: %w", err)
		}
		done[models.RegionKey(r)] = true
	}
	return done, rows.Err()
}

// MarkCompleted records one region as fully committed. Call it only
// after the region's last batch has been flushed.
func (l *ResumeLog) MarkCompleted(region models.RegionKey) error {
	_, err := l.db.Exec(
		`INSERT OR REPLACE INTO completed_regions (region, run_id, completed_at) VALUES (?,?,?)`,
		int64(region), l.runID, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("resume log mark %d: %w", region, err)
	}
	return nil
}

// Remaining subtracts completed regions from the full task set,
// preserving order.
func (l *ResumeLog) Remaining(all []models.RegionKey) ([]models.RegionKey, error) {
	done, err := l.Completed()
	if err != nil {
		return nil, err
	}
	var todo []models.RegionKey
	for _, r := range all {
		if !done[r] {
			todo = append(todo, r)
		}
	}
	return todo, nil
}
