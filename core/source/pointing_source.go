package source

import (
	"database/sql"
	"fmt"
	"sort"

	_ "modernc.org/sqlite"

	"truth-pipeline/core/models"
	"truth-pipeline/core/partition"
)

var filterIndex = map[string]int{"u": 0, "g": 1, "r": 2, "i": 3, "z": 4, "y": 5}

// PointingSource loads visit metadata from the survey's observation
// database (sqlite). Pointings are loaded once per run and annotated
// with the region keys their field of view overlaps.
type PointingSource struct {
	db *sql.DB
}

// OpenPointingSource opens the observation database.
func OpenPointingSource(path string) (*PointingSource, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("pointing source: %w", err)
	}
	return &PointingSource{db: db}, nil
}

// Close releases the connection.
func (s *PointingSource) Close() error { return s.db.Close() }

// LoadAll reads every visit, maps its filter to the fixed band set, and
// attaches the conservatively overlapped region keys for the given
// field radius.
func (s *PointingSource) LoadAll(grid *partition.Grid, fieldRadius float64) ([]models.Pointing, error) {
	rows, err := s.db.Query(`
		SELECT obs_hist_id, exp_mjd, filter,
		       dithered_ra, dithered_dec, rot_tel_pos
		FROM summary
		ORDER BY obs_hist_id`)
	if err != nil {
		return nil, fmt.Errorf("pointing query: %w", err)
	}
	defer rows.Close()

	var pointings []models.Pointing
	for rows.Next() {
		var p models.Pointing
		var filter string
		if err := rows.Scan(&p.VisitID, &p.MJD, &filter, &p.RA, &p.Dec, &p.RotSkyPos); err != nil {
			return nil, fmt.Errorf("pointing scan: %w", err)
		}
		idx, ok := filterIndex[filter]
		if !ok {
			return nil, fmt.Errorf("pointing %d: unknown filter %q", p.VisitID, filter)
		}
		p.FilterIndex = idx
		p.Regions = grid.ConeOverlap(p.RA, p.Dec, fieldRadius)
		pointings = append(pointings, p)
	}
	return pointings, rows.Err()
}

// IndexByRegion builds the "which pointings intersect region X" lookup,
// with each region's pointings sorted ascending by MJD as the
// evaluator's ordering invariant requires.
func IndexByRegion(pointings []models.Pointing) map[models.RegionKey][]models.Pointing {
	byRegion := make(map[models.RegionKey][]models.Pointing)
	for _, p := range pointings {
		for _, r := range p.Regions {
			byRegion[r] = append(byRegion[r], p)
		}
	}
	for r := range byRegion {
		list := byRegion[r]
		sort.Slice(list, func(i, j int) bool { return list[i].MJD < list[j].MJD })
		byRegion[r] = list
	}
	return byRegion
}
