package repository

import (
	"database/sql"
	"fmt"

	"truth-pipeline/core/models"
)

// LightCurveRepository stages per-epoch photometry rows in batched
// transactions, one region at a time.
type LightCurveRepository struct {
	db          *DB
	commitBatch int

	tx      *sql.Tx
	pending int
}

// NewLightCurveRepository returns a repository committing every
// commitBatch rows (minimum 1).
func NewLightCurveRepository(db *DB, commitBatch int) *LightCurveRepository {
	if commitBatch < 1 {
		commitBatch = 1
	}
	return &LightCurveRepository{db: db, commitBatch: commitBatch}
}

// InsertRow stages one (object, visit, magnitude) row.
func (r *LightCurveRepository) InsertRow(row models.LightCurveRow) error {
	if r.tx == nil {
		tx, err := r.db.Begin()
		if err != nil {
			return fmt.Errorf("light curve insert: %w", err)
		}
		r.tx = tx
	}
	_, err := r.tx.Exec(`INSERT INTO light_curve (object_id, visit_id, mag) VALUES (?,?,?)`,
		row.ObjectID, row.VisitID, row.Mag)
	if err != nil {
		r.tx.Rollback()
		r.tx = nil
		return fmt.Errorf("light curve insert (%d,%d): %w", row.ObjectID, row.VisitID, err)
	}
	r.pending++
	if r.pending >= r.commitBatch {
		return r.Flush()
	}
	return nil
}

// Flush commits the open transaction, if any.
func (r *LightCurveRepository) Flush() error {
	if r.tx == nil {
		return nil
	}
	err := r.tx.Commit()
	r.tx = nil
	r.pending = 0
	if err != nil {
		return fmt.Errorf("light curve commit: %w", err)
	}
	return nil
}

// DeleteRegionRows removes every light-curve row belonging to objects
// of one region. Used at startup to clear a region that was started but
// never marked complete, which makes re-runs idempotent.
func DeleteRegionRows(db *DB, region models.RegionKey) error {
	_, err := db.Exec(`
		DELETE FROM light_curve WHERE object_id IN
			(SELECT object_id FROM objects WHERE region = ?)`, int64(region))
	if err != nil {
		return fmt.Errorf("clearing region %d: %w", region, err)
	}
	_, err = db.Exec(`DELETE FROM truth WHERE region = ?`, int64(region))
	if err != nil {
		return fmt.Errorf("clearing region %d truth rows: %w", region, err)
	}
	return nil
}
