package repository

import (
	"database/sql"
	"fmt"
	"math"

	"truth-pipeline/core/models"
)

const degPerRad = 180.0 / math.Pi

// TruthRepository stages truth rows into batched transactions. Commits
// happen every commitBatch rows, so a crash loses at most one batch and
// never leaves half-written rows.
type TruthRepository struct {
	db          *DB
	commitBatch int

	tx      *sql.Tx
	pending int
}

// NewTruthRepository returns a repository committing every commitBatch
// rows (minimum 1).
func NewTruthRepository(db *DB, commitBatch int) *TruthRepository {
	if commitBatch < 1 {
		commitBatch = 1
	}
	return &TruthRepository{db: db, commitBatch: commitBatch}
}

// InsertRow stages one truth row, committing the open transaction when
// the batch is full.
func (r *TruthRepository) InsertRow(row *models.TruthRow) error {
	if r.tx == nil {
		tx, err := r.db.Begin()
		if err != nil {
			return fmt.Errorf("truth insert: %w", err)
		}
		r.tx = tx
	}

	_, err := r.tx.Exec(`INSERT INTO truth VALUES
		(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		int64(row.Region), row.ObjectID, boolInt(row.Star),
		boolInt(row.AGN), boolInt(row.Sprinkled),
		row.RA, row.Dec, row.Redshift,
		row.Mags[0], row.Mags[1], row.Mags[2], row.Mags[3], row.Mags[4], row.Mags[5],
		row.DMagMW[0], row.DMagMW[1], row.DMagMW[2], row.DMagMW[3], row.DMagMW[4], row.DMagMW[5],
		row.DMagInt[0], row.DMagInt[1], row.DMagInt[2], row.DMagInt[3], row.DMagInt[4], row.DMagInt[5],
	)
	if err != nil {
		r.tx.Rollback()
		r.tx = nil
		return fmt.Errorf("truth insert object %d: %w", row.ObjectID, err)
	}

	r.pending++
	if r.pending >= r.commitBatch {
		return r.Flush()
	}
	return nil
}

// InsertObjects records the static per-object attribute rows for a
// batch in one transaction. Catalog positions arrive in radians and are
// stored in degrees, matching the column descriptions.
func InsertObjects(db *DB, records []models.ObjectRecord) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("object insert: %w", err)
	}
	defer tx.Rollback()
	for i := range records {
		rec := &records[i]
		_, err := tx.Exec(`INSERT OR REPLACE INTO objects VALUES (?,?,?,?,?,?,?)`,
			rec.UniqueID, int64(rec.Region),
			rec.RA*degPerRad, rec.Dec*degPerRad, rec.Redshift,
			boolInt(rec.IsAGN), boolInt(rec.IsSprinkled))
		if err != nil {
			return fmt.Errorf("object insert %d: %w", rec.UniqueID, err)
		}
	}
	return tx.Commit()
}

// Flush commits the open transaction, if any.
func (r *TruthRepository) Flush() error {
	if r.tx == nil {
		return nil
	}
	err := r.tx.Commit()
	r.tx = nil
	r.pending = 0
	if err != nil {
		return fmt.Errorf("truth commit: %w", err)
	}
	return nil
}

// InsertPointings records the pointing metadata table in one
// transaction; it is small compared to the photometry tables.
func InsertPointings(db *DB, pointings []models.Pointing) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("pointing insert: %w", err)
	}
	defer tx.Rollback()
	for _, p := range pointings {
		_, err := tx.Exec(`INSERT OR REPLACE INTO pointings VALUES (?,?,?,?,?,?)`,
			p.VisitID, p.MJD, p.FilterIndex, p.RA, p.Dec, p.RotSkyPos)
		if err != nil {
			return fmt.Errorf("pointing insert %d: %w", p.VisitID, err)
		}
	}
	return tx.Commit()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
