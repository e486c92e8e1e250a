package source

import (
	"database/sql"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"truth-pipeline/core/partition"
)

func writeOpsimDB(t *testing.T, visits [][4]interface{}) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "opsim.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE summary (
		obs_hist_id INTEGER PRIMARY KEY,
		exp_mjd REAL, filter TEXT,
		dithered_ra REAL, dithered_dec REAL, rot_tel_pos REAL
	)`)
	require.NoError(t, err)
	for _, v := range visits {
		_, err = db.Exec(`INSERT INTO summary VALUES (?,?,?,?,?,0.0)`,
			v[0], v[1], v[2], v[3], -0.48)
		require.NoError(t, err)
	}
	return path
}

func TestLoadAllMapsFiltersAndRegions(t *testing.T) {
	path := writeOpsimDB(t, [][4]interface{}{
		{1001, 59600.5, "r", 0.91},
		{1002, 59590.1, "u", 0.91},
		{1003, 59610.9, "y", 2.50},
	})

	src, err := OpenPointingSource(path)
	require.NoError(t, err)
	defer src.Close()

	grid := partition.New(6)
	radius := 2.0 * math.Pi / 180.0
	pointings, err := src.LoadAll(grid, radius)
	require.NoError(t, err)
	require.Len(t, pointings, 3)

	assert.Equal(t, 2, pointings[0].FilterIndex)
	assert.Equal(t, 0, pointings[1].FilterIndex)
	assert.Equal(t, 5, pointings[2].FilterIndex)
	for _, p := range pointings {
		assert.NotEmpty(t, p.Regions)
		assert.Contains(t, p.Regions, grid.PixelOf(p.RA, p.Dec))
	}
}

func TestLoadAllRejectsUnknownFilter(t *testing.T) {
	path := writeOpsimDB(t, [][4]interface{}{
		{2001, 59600.5, "q", 0.91},
	})
	src, err := OpenPointingSource(path)
	require.NoError(t, err)
	defer src.Close()

	_, err = src.LoadAll(partition.New(6), 0.03)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown filter "q"`)
}

func TestIndexByRegionSortsByMJD(t *testing.T) {
	path := writeOpsimDB(t, [][4]interface{}{
		{1001, 59600.5, "r", 0.91},
		{1002, 59590.1, "u", 0.91},
		{1003, 59610.9, "g", 0.91},
	})
	src, err := OpenPointingSource(path)
	require.NoError(t, err)
	defer src.Close()

	pointings, err := src.LoadAll(partition.New(6), 0.03)
	require.NoError(t, err)

	byRegion := IndexByRegion(pointings)
	require.NotEmpty(t, byRegion)
	for region, list := range byRegion {
		for i := 1; i < len(list); i++ {
			assert.LessOrEqual(t, list[i-1].MJD, list[i].MJD, "region %d", region)
		}
	}

	// All three visits share a field center, so some region sees all of
	// them in time order.
	grid := partition.New(6)
	key := grid.PixelOf(pointings[0].RA, pointings[0].Dec)
	require.Len(t, byRegion[key], 3)
	assert.Equal(t, int64(1002), byRegion[key][0].VisitID)
	assert.Equal(t, int64(1003), byRegion[key][2].VisitID)
}
