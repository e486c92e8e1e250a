// Package source provides paged cursors over the input catalogs: the
// extragalactic parameter database (Postgres) and the survey pointing
// database (sqlite).
package source

import (
	"database/sql"
	"fmt"
	"math"

	_ "github.com/lib/pq"

	"truth-pipeline/core/models"
)

// The galaxy query stitches the bulge, disk and AGN point-source
// component tables back into one row per galaxy, matching rows by
// galaxy id. Galaxies with no bulge are picked up by the second arm of
// the union.
const galaxyQuery = `
	SELECT b.sed_file, b.mag_norm,
	       d.sed_file, d.mag_norm,
	       a.sed_filepath, a.mag_norm, a.var_param_str,
	       b.redshift, b.galaxy_id, b.unique_id,
	       b.ra_j2000, b.dec_j2000,
	       b.is_sprinkled, a.is_agn,
	       b.shear1, b.shear2, b.kappa,
	       b.internal_rv, b.internal_av,
	       d.internal_rv, d.internal_av,
	       b.galactic_rv, b.galactic_av
	FROM bulge AS b
	LEFT JOIN disk AS d ON b.galaxy_id = d.galaxy_id
	LEFT JOIN zpoint AS a ON b.galaxy_id = a.galaxy_id
	WHERE a.is_agn = 1 OR a.galaxy_id IS NULL
	UNION ALL
	SELECT b.sed_file, b.mag_norm,
	       d.sed_file, d.mag_norm,
	       a.sed_filepath, a.mag_norm, a.var_param_str,
	       d.redshift, d.galaxy_id, d.unique_id,
	       d.ra_j2000, d.dec_j2000,
	       d.is_sprinkled, a.is_agn,
	       d.shear1, d.shear2, d.kappa,
	       b.internal_rv, b.internal_av,
	       d.internal_rv, d.internal_av,
	       d.galactic_rv, d.galactic_av
	FROM disk AS d
	LEFT JOIN bulge AS b ON d.galaxy_id = b.galaxy_id
	LEFT JOIN zpoint AS a ON d.galaxy_id = a.galaxy_id
	WHERE b.galaxy_id IS NULL
	  AND (a.is_agn = 1 OR a.galaxy_id IS NULL)`

// GalaxySource streams galaxy records out of the parameter database.
// The query runs once; FetchChunk pages the result set until a call
// returns zero records.
type GalaxySource struct {
	db   *sql.DB
	rows *sql.Rows
}

// OpenGalaxySource connects to the parameter database and starts the
// galaxy query.
func OpenGalaxySource(databaseURL string) (*GalaxySource, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("galaxy source: %w", err)
	}
	rows, err := db.Query(galaxyQuery)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("galaxy source query: %w", err)
	}
	return &GalaxySource{db: db, rows: rows}, nil
}

// Close releases the cursor and the connection.
func (s *GalaxySource) Close() error {
	if s.rows != nil {
		s.rows.Close()
	}
	return s.db.Close()
}

// FetchChunk returns up to limit records. An empty slice with a nil
// error means the source is exhausted.
func (s *GalaxySource) FetchChunk(limit int) ([]models.ObjectRecord, error) {
	records := make([]models.ObjectRecord, 0, limit)
	for len(records) < limit && s.rows.Next() {
		rec, err := scanGalaxyRow(s.rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := s.rows.Err(); err != nil {
		return nil, fmt.Errorf("galaxy source: %w", err)
	}
	return records, nil
}

func scanGalaxyRow(rows *sql.Rows) (models.ObjectRecord, error) {
	var rec models.ObjectRecord
	var bulgeSED, diskSED, agnSED, varParams sql.NullString
	var bulgeNorm, diskNorm, agnNorm sql.NullFloat64
	var bulgeRv, bulgeAv, diskRv, diskAv sql.NullFloat64
	var isSprinkled, isAGN sql.NullInt64

	err := rows.Scan(
		&bulgeSED, &bulgeNorm,
		&diskSED, &diskNorm,
		&agnSED, &agnNorm, &varParams,
		&rec.Redshift, &rec.GalaxyID, &rec.UniqueID,
		&rec.RA, &rec.Dec,
		&isSprinkled, &isAGN,
		&rec.Shear1, &rec.Shear2, &rec.Kappa,
		&bulgeRv, &bulgeAv,
		&diskRv, &diskAv,
		&rec.GalacticRv, &rec.GalacticAv,
	)
	if err != nil {
		return rec, fmt.Errorf("galaxy source scan: %w", err)
	}

	rec.Bulge = component(bulgeSED, bulgeNorm, bulgeAv, bulgeRv)
	rec.Disk = component(diskSED, diskNorm, diskAv, diskRv)
	rec.AGN = component(agnSED, agnNorm, sql.NullFloat64{}, sql.NullFloat64{})
	if varParams.Valid {
		rec.VarParamStr = varParams.String
	}
	rec.IsSprinkled = isSprinkled.Valid && isSprinkled.Int64 == 1
	rec.IsAGN = isAGN.Valid && isAGN.Int64 == 1
	return rec, nil
}

func component(sed sql.NullString, norm, av, rv sql.NullFloat64) models.SEDComponent {
	c := models.SEDComponent{MagNorm: math.NaN()}
	if !sed.Valid || !norm.Valid {
		return c
	}
	c.SEDName = sed.String
	c.MagNorm = norm.Float64
	if av.Valid {
		c.InternalAv = av.Float64
	}
	if rv.Valid {
		c.InternalRv = rv.Float64
	}
	return c
}

// AGNSource pages active galactic nuclei for the light-curve pipeline,
// one region at a time. The region column is written at catalog build
// time with the same grid depth the pipeline runs at.
type AGNSource struct {
	db *sql.DB
}

// OpenAGNSource connects to the parameter database.
func OpenAGNSource(databaseURL string) (*AGNSource, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("agn source: %w", err)
	}
	return &AGNSource{db: db}, nil
}

// Close releases the connection.
func (s *AGNSource) Close() error { return s.db.Close() }

// Regions returns every region key containing at least one AGN.
func (s *AGNSource) Regions() ([]models.RegionKey, error) {
	rows, err := s.db.Query(`SELECT DISTINCT region FROM zpoint WHERE is_agn = 1 ORDER BY region`)
	if err != nil {
		return nil, fmt.Errorf("agn regions: %w", err)
	}
	defer rows.Close()

	var regions []models.RegionKey
	for rows.Next() {
		var r int64
		if err := rows.Scan(&r); err != nil {
			return nil, fmt.Errorf("agn regions scan: %w", err)
		}
		regions = append(regions, models.RegionKey(r))
	}
	return regions, rows.Err()
}

// InRegion returns every AGN record in one region.
func (s *AGNSource) InRegion(region models.RegionKey) ([]models.ObjectRecord, error) {
	rows, err := s.db.Query(`
		SELECT unique_id, galaxy_id, ra_j2000, dec_j2000, redshift,
		       sed_filepath, mag_norm, var_param_str, is_sprinkled
		FROM zpoint
		WHERE region = $1 AND is_agn = 1
		ORDER BY unique_id`, int64(region))
	if err != nil {
		return nil, fmt.Errorf("agn region %d: %w", region, err)
	}
	defer rows.Close()

	var records []models.ObjectRecord
	for rows.Next() {
		var rec models.ObjectRecord
		var sprinkled sql.NullInt64
		err := rows.Scan(&rec.UniqueID, &rec.GalaxyID, &rec.RA, &rec.Dec,
			&rec.Redshift, &rec.AGN.SEDName, &rec.AGN.MagNorm,
			&rec.VarParamStr, &sprinkled)
		if err != nil {
			return nil, fmt.Errorf("agn region %d scan: %w", region, err)
		}
		rec.Region = region
		rec.IsAGN = true
		rec.IsSprinkled = sprinkled.Valid && sprinkled.Int64 == 1
		records = append(records, rec)
	}
	return records, rows.Err()
}
