package pipeline

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"truth-pipeline/core/aggregate"
	"truth-pipeline/core/dispatch"
	"truth-pipeline/core/models"
	"truth-pipeline/core/monitoring"
	"truth-pipeline/core/partition"
	"truth-pipeline/core/photometry"
	"truth-pipeline/core/repository"
	"truth-pipeline/core/spec"
	"truth-pipeline/storage"
)

func testRun() spec.RunSpecRun {
	return spec.RunSpecRun{
		GridDepth:      4,
		ChunkSize:      10,
		SubBatchSize:   3,
		Workers:        2,
		CommitBatch:    4,
		FieldRadiusDeg: 2.0,
		DetectorDeg:    1.75,
	}
}

func openTestDB(t *testing.T) *repository.DB {
	t.Helper()
	db, err := repository.NewDB(filepath.Join(t.TempDir(), "truth.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func galaxyRecord(id int64, ra, dec float64) models.ObjectRecord {
	return models.ObjectRecord{
		UniqueID: id,
		GalaxyID: id,
		RA:       ra,
		Dec:      dec,
		Redshift: 0.6,
		Bulge: models.SEDComponent{
			SEDName: "Burst.10E10.002Z.spec", MagNorm: 23.8,
			InternalAv: 0.2, InternalRv: 3.1,
		},
		GalacticAv: 0.1,
		GalacticRv: 3.1,
	}
}

// fakeCursor pages a fixed record list like the production source does.
type fakeCursor struct {
	records []models.ObjectRecord
	off     int
}

func (c *fakeCursor) FetchChunk(limit int) ([]models.ObjectRecord, error) {
	if c.off >= len(c.records) {
		return nil, nil
	}
	end := c.off + limit
	if end > len(c.records) {
		end = len(c.records)
	}
	chunk := c.records[c.off:end]
	c.off = end
	return chunk, nil
}

func countRows(t *testing.T, db *repository.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func TestTruthPipelineWritesAllDefinedRows(t *testing.T) {
	var records []models.ObjectRecord
	for i := int64(0); i < 23; i++ {
		records = append(records, galaxyRecord(i, 0.9+float64(i)*1e-4, -0.5))
	}
	// One record with no recoverable flux: counted, not written.
	records[7].Bulge.MagNorm = 500

	db := openTestDB(t)
	tracker := monitoring.NewProgressTracker("test", 0)
	p := NewTruthPipeline(&fakeCursor{records: records}, partition.New(4), db, tracker, testRun())

	require.NoError(t, p.Run(context.Background()))

	assert.Equal(t, 22, countRows(t, db, "truth"))
	assert.Equal(t, 23, countRows(t, db, "objects"))

	s := tracker.Snapshot()
	assert.Equal(t, int64(22), s.RowsWritten)
	assert.Equal(t, int64(models.NumBands), s.NaNCells)

	// Every written row carries the region of its position.
	grid := partition.New(4)
	var region int64
	var objID int64
	rows, err := db.Query(`SELECT region, object_id FROM truth`)
	require.NoError(t, err)
	defer rows.Close()
	for rows.Next() {
		require.NoError(t, rows.Scan(&region, &objID))
		want := grid.PixelOf(records[objID].RA, records[objID].Dec)
		assert.Equal(t, int64(want), region)
	}
	require.NoError(t, rows.Err())
}

func TestTruthPipelineStopsOnBadRecord(t *testing.T) {
	rec := galaxyRecord(5, 1.0, 0.2)
	rec.Kappa = 1.0 // divergent magnification

	db := openTestDB(t)
	p := NewTruthPipeline(&fakeCursor{records: []models.ObjectRecord{rec}},
		partition.New(4), db, monitoring.NewProgressTracker("test", 0), testRun())

	err := p.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "object 5")
	assert.Equal(t, 0, countRows(t, db, "truth"))
}

// A run spec that skipped validation must not divide by zero when the
// pipeline maps sub-batch tags to result slots.
func TestTruthPipelineToleratesZeroSubBatchSize(t *testing.T) {
	run := testRun()
	run.SubBatchSize = 0

	var records []models.ObjectRecord
	for i := int64(0); i < 4; i++ {
		records = append(records, galaxyRecord(i, 0.9, -0.5))
	}
	db := openTestDB(t)
	p := NewTruthPipeline(&fakeCursor{records: records}, partition.New(4), db,
		monitoring.NewProgressTracker("test", 0), run)

	require.NoError(t, p.Run(context.Background()))
	assert.Equal(t, 4, countRows(t, db, "truth"))
}

// fakeAGNCatalog serves fixed per-region record sets.
type fakeAGNCatalog struct {
	regions map[models.RegionKey][]models.ObjectRecord
	order   []models.RegionKey
}

func (c *fakeAGNCatalog) Regions() ([]models.RegionKey, error) { return c.order, nil }

func (c *fakeAGNCatalog) InRegion(region models.RegionKey) ([]models.ObjectRecord, error) {
	return c.regions[region], nil
}

func agnRecord(id int64, ra, dec float64, seed int64) models.ObjectRecord {
	blob := fmt.Sprintf(`{"m":"applyAgn","p":{"agn_sf_u":0.3,"agn_sf_g":0.25,"agn_sf_r":0.2,"agn_sf_i":0.18,"agn_sf_z":0.15,"agn_sf_y":0.12,"agn_tau":25.0,"t0_mjd":59500,"seed":%d}}`, seed)
	rec := galaxyRecord(id, ra, dec)
	rec.AGN = models.SEDComponent{SEDName: "agn.spec", MagNorm: 21.5}
	rec.VarParamStr = blob
	rec.IsAGN = true
	return rec
}

func pointingAt(visit int64, mjd float64, filter int, ra, dec float64) models.Pointing {
	return models.Pointing{VisitID: visit, MJD: mjd, FilterIndex: filter, RA: ra, Dec: dec}
}

func TestLightCurvePipelineWritesPerVisitRows(t *testing.T) {
	const region = models.RegionKey(5)
	ra, dec := 0.9, -0.4

	objects := []models.ObjectRecord{
		agnRecord(100, ra, dec, 1),
		agnRecord(101, ra+1e-4, dec, 2),
	}
	far := 10.0 * math.Pi / 180.0
	pointings := []models.Pointing{
		pointingAt(9001, 59600.0, 2, ra, dec),
		pointingAt(9002, 59610.0, 1, ra, dec),
		// Overlaps the region conservatively but misses the detector.
		pointingAt(9003, 59620.0, 2, ra+far, dec),
	}

	db := openTestDB(t)
	resume := storage.NewResumeLog(db)
	tracker := monitoring.NewProgressTracker(resume.RunID(), 1)
	agn := &fakeAGNCatalog{
		regions: map[models.RegionKey][]models.ObjectRecord{region: objects},
		order:   []models.RegionKey{region},
	}
	byRegion := map[models.RegionKey][]models.Pointing{region: pointings}

	p := NewLightCurvePipeline(agn, byRegion, db, resume, tracker, testRun())
	require.NoError(t, p.Run(context.Background()))

	// Two objects times the two on-detector visits.
	assert.Equal(t, 4, countRows(t, db, "light_curve"))
	assert.Equal(t, 2, countRows(t, db, "objects"))

	s := tracker.Snapshot()
	assert.Equal(t, int64(4), s.RowsWritten)
	assert.Equal(t, int64(2), s.ExcludedPairs)

	done, err := resume.Completed()
	require.NoError(t, err)
	assert.True(t, done[region])
}

func TestLightCurvePipelineRerunIsIdempotent(t *testing.T) {
	const region = models.RegionKey(8)
	ra, dec := 1.2, 0.3
	objects := []models.ObjectRecord{agnRecord(200, ra, dec, 11)}
	pointings := []models.Pointing{
		pointingAt(8001, 59600.0, 0, ra, dec),
		pointingAt(8002, 59605.0, 3, ra, dec),
	}

	db := openTestDB(t)
	agn := &fakeAGNCatalog{
		regions: map[models.RegionKey][]models.ObjectRecord{region: objects},
		order:   []models.RegionKey{region},
	}
	byRegion := map[models.RegionKey][]models.Pointing{region: pointings}

	run := func() {
		resume := storage.NewResumeLog(db)
		tracker := monitoring.NewProgressTracker(resume.RunID(), 1)
		p := NewLightCurvePipeline(agn, byRegion, db, resume, tracker, testRun())
		require.NoError(t, p.Run(context.Background()))
	}

	run()
	require.NoError(t, db.BuildIndexes())
	assert.Equal(t, 2, countRows(t, db, "light_curve"))

	// A completed region is skipped entirely on the next run.
	run()
	assert.Equal(t, 2, countRows(t, db, "light_curve"))

	// Simulate a crash after partial writes: region no longer marked
	// complete, stale rows present. The re-run clears and recomputes
	// without tripping the unique index.
	_, err := db.Exec(`DELETE FROM completed_regions`)
	require.NoError(t, err)
	run()
	assert.Equal(t, 2, countRows(t, db, "light_curve"))
}

func TestLightCurvePipelineToleratesZeroSubBatchSize(t *testing.T) {
	const region = models.RegionKey(4)
	ra, dec := 1.0, 0.1
	run := testRun()
	run.SubBatchSize = 0

	db := openTestDB(t)
	resume := storage.NewResumeLog(db)
	agn := &fakeAGNCatalog{
		regions: map[models.RegionKey][]models.ObjectRecord{region: {agnRecord(300, ra, dec, 5)}},
		order:   []models.RegionKey{region},
	}
	byRegion := map[models.RegionKey][]models.Pointing{
		region: {pointingAt(7001, 59600.0, 1, ra, dec)},
	}
	p := NewLightCurvePipeline(agn, byRegion, db, resume,
		monitoring.NewProgressTracker(resume.RunID(), 1), run)

	require.NoError(t, p.Run(context.Background()))
	assert.Equal(t, 1, countRows(t, db, "light_curve"))
}

// A full region-sized wave: 10,000 AGN over 50 epochs split into
// 2,500-object sub-batches across 4 workers must reproduce the serial
// result exactly, row for row.
func TestLightCurveWaveMatchesSerialEvaluation(t *testing.T) {
	if testing.Short() {
		t.Skip("full-wave evaluation")
	}

	objects := make([]models.ObjectRecord, 10000)
	for i := range objects {
		objects[i] = agnRecord(int64(i), 0.9, -0.4, int64(i)*31+7)
	}
	mjds := make([]float64, 50)
	filters := make([]int, 50)
	for j := range mjds {
		mjds[j] = 59600 + float64(j)*3.5
		filters[j] = j % models.NumBands
	}

	batches := dispatch.Split(objects, 2500)
	require.Len(t, batches, 4)
	results := make([]models.PartialResult, len(batches))
	d := dispatch.New(4)
	err := d.RunWave(context.Background(), batches, func(ctx context.Context, b dispatch.SubBatch) error {
		ev := photometry.NewEvaluator()
		res, err := ev.LightCurves(b.Records, mjds, filters)
		if err != nil {
			return err
		}
		res.Tag = b.Tag
		results[b.Tag/2500] = res
		return nil
	})
	require.NoError(t, err)

	sizes := map[int]int{0: 2500, 2500: 2500, 5000: 2500, 7500: 2500}
	merged, stats, err := aggregate.Assemble(results, sizes, len(objects))
	require.NoError(t, err)
	require.Len(t, merged, 10000)
	assert.Equal(t, 500000, stats.Cells)
	assert.Equal(t, 0, stats.NaNCells)

	// Spot-check rows from each sub-batch against a serial evaluator.
	serial := photometry.NewEvaluator()
	for _, i := range []int{0, 2499, 2500, 6001, 9999} {
		res, err := serial.LightCurves(objects[i:i+1], mjds, filters)
		require.NoError(t, err)
		for j := range mjds {
			assert.Equal(t, math.Float64bits(res.Mags[0][j]), math.Float64bits(merged[i][j]),
				"object %d epoch %d", i, j)
		}
	}
}

func TestLightCurvePipelineSkipsEmptyRegions(t *testing.T) {
	db := openTestDB(t)
	resume := storage.NewResumeLog(db)
	agn := &fakeAGNCatalog{
		regions: map[models.RegionKey][]models.ObjectRecord{3: nil},
		order:   []models.RegionKey{3},
	}
	p := NewLightCurvePipeline(agn, map[models.RegionKey][]models.Pointing{}, db, resume,
		monitoring.NewProgressTracker(resume.RunID(), 1), testRun())
	require.NoError(t, p.Run(context.Background()))
	assert.Equal(t, 0, countRows(t, db, "light_curve"))

	done, err := resume.Completed()
	require.NoError(t, err)
	assert.True(t, done[3])
}
