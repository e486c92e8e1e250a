// Package pipeline wires the record sources, spatial partitioner,
// dispatcher, evaluator, aggregator and output writer into the two
// photometry pipelines.
package pipeline

import (
	"context"
	"fmt"
	"math"

	"truth-pipeline/core/aggregate"
	"truth-pipeline/core/dispatch"
	"truth-pipeline/core/models"
	"truth-pipeline/core/monitoring"
	"truth-pipeline/core/partition"
	"truth-pipeline/core/photometry"
	"truth-pipeline/core/repository"
	"truth-pipeline/core/spec"
)

const degPerRad = 180.0 / math.Pi

// GalaxyCursor is the paged-fetch contract of the input record source:
// up to limit rows per call, exhausted when a call returns zero rows.
type GalaxyCursor interface {
	FetchChunk(limit int) ([]models.ObjectRecord, error)
}

// TruthPipeline computes static 6-band truth magnitudes for every
// galaxy in the parameter catalog.
type TruthPipeline struct {
	cursor     GalaxyCursor
	grid       *partition.Grid
	dispatcher *dispatch.Dispatcher
	db         *repository.DB
	repo       *repository.TruthRepository
	tracker    *monitoring.ProgressTracker
	run        spec.RunSpecRun
}

// NewTruthPipeline creates a truth pipeline.
func NewTruthPipeline(
	cursor GalaxyCursor,
	grid *partition.Grid,
	db *repository.DB,
	tracker *monitoring.ProgressTracker,
	run spec.RunSpecRun,
) *TruthPipeline {
	// Same floor dispatch.Split applies; the tag-to-slot division
	// below depends on the two agreeing.
	if run.SubBatchSize < 1 {
		run.SubBatchSize = 1
	}
	return &TruthPipeline{
		cursor:     cursor,
		grid:       grid,
		dispatcher: dispatch.New(run.Workers),
		db:         db,
		repo:       repository.NewTruthRepository(db, run.CommitBatch),
		tracker:    tracker,
		run:        run,
	}
}

// Run drains the cursor: each chunk is partitioned by region, split
// into sub-batches, evaluated in one synchronous wave, reassembled in
// tag order and written. Any wave failure aborts the run.
func (p *TruthPipeline) Run(ctx context.Context) error {
	for {
		chunk, err := p.cursor.FetchChunk(p.run.ChunkSize)
		if err != nil {
			return err
		}
		if len(chunk) == 0 {
			break
		}
		if err := p.processChunk(ctx, chunk); err != nil {
			return err
		}
		p.tracker.RegionDone()
	}
	return p.repo.Flush()
}

func (p *TruthPipeline) processChunk(ctx context.Context, chunk []models.ObjectRecord) error {
	for i := range chunk {
		chunk[i].Region = p.grid.PixelOf(chunk[i].RA, chunk[i].Dec)
	}

	batches := dispatch.Split(chunk, p.run.SubBatchSize)
	results := make([]models.GalaxyMags, len(batches))
	err := p.dispatcher.RunWave(ctx, batches, func(ctx context.Context, b dispatch.SubBatch) error {
		// One evaluator per invocation: template caches stay
		// worker-local and are rebuilt lazily.
		ev := photometry.NewEvaluator()
		out, err := ev.GalaxyMags(b.Records)
		if err != nil {
			return err
		}
		out.Tag = b.Tag
		results[b.Tag/p.run.SubBatchSize] = out
		return nil
	})
	if err != nil {
		return fmt.Errorf("truth wave: %w", err)
	}

	mags, dmagMW, dmagInt, stats, err := assembleGalaxyWave(results, batches, len(chunk))
	if err != nil {
		return fmt.Errorf("truth wave: %w", err)
	}

	if err := repository.InsertObjects(p.db, chunk); err != nil {
		return err
	}

	written := int64(0)
	for i := range chunk {
		// Rows with no defined flux are counted, not inserted.
		if math.IsNaN(mags[i][0]) {
			continue
		}
		row := models.TruthRow{
			Region:    chunk[i].Region,
			ObjectID:  chunk[i].UniqueID,
			AGN:       chunk[i].IsAGN,
			Sprinkled: chunk[i].IsSprinkled,
			RA:        chunk[i].RA * degPerRad,
			Dec:       chunk[i].Dec * degPerRad,
			Redshift:  chunk[i].Redshift,
		}
		copy(row.Mags[:], mags[i])
		copy(row.DMagMW[:], dmagMW[i])
		copy(row.DMagInt[:], dmagInt[i])
		if err := p.repo.InsertRow(&row); err != nil {
			return err
		}
		written++
	}
	// Close the staged transaction before the next chunk's object
	// insert; the store allows one writer at a time.
	if err := p.repo.Flush(); err != nil {
		return err
	}
	p.tracker.AddRows(written, int64(stats.NaNCells), 0)
	return nil
}

// assembleGalaxyWave runs the aggregator's cardinality validation over
// all three dust treatments of a wave.
func assembleGalaxyWave(results []models.GalaxyMags, batches []dispatch.SubBatch, total int) (mags, dmagMW, dmagInt [][]float64, stats aggregate.Stats, err error) {
	sizes := make(map[int]int, len(batches))
	for _, b := range batches {
		sizes[b.Tag] = len(b.Records)
	}

	pick := func(f func(models.GalaxyMags) [][]float64) []models.PartialResult {
		partial := make([]models.PartialResult, len(results))
		for i, r := range results {
			partial[i] = models.PartialResult{Tag: r.Tag, Mags: f(r)}
		}
		return partial
	}

	mags, stats, err = aggregate.Assemble(pick(func(r models.GalaxyMags) [][]float64 { return r.Mags }), sizes, total)
	if err != nil {
		return
	}
	dmagMW, _, err = aggregate.Assemble(pick(func(r models.GalaxyMags) [][]float64 { return r.DMagMW }), sizes, total)
	if err != nil {
		return
	}
	dmagInt, _, err = aggregate.Assemble(pick(func(r models.GalaxyMags) [][]float64 { return r.DMagInternal }), sizes, total)
	return
}
