package pipeline

import (
	"context"
	"fmt"
	"math"

	"truth-pipeline/core/aggregate"
	"truth-pipeline/core/dispatch"
	"truth-pipeline/core/models"
	"truth-pipeline/core/monitoring"
	"truth-pipeline/core/photometry"
	"truth-pipeline/core/repository"
	"truth-pipeline/core/spec"
	"truth-pipeline/storage"
)

// AGNCatalog is the light-curve pipeline's record source: region keys
// containing AGN, and the records of one region.
type AGNCatalog interface {
	Regions() ([]models.RegionKey, error)
	InRegion(region models.RegionKey) ([]models.ObjectRecord, error)
}

// LightCurvePipeline computes per-epoch AGN magnitudes region by
// region and persists them as (object, visit, magnitude) rows.
type LightCurvePipeline struct {
	agn        AGNCatalog
	byRegion   map[models.RegionKey][]models.Pointing
	dispatcher *dispatch.Dispatcher
	db         *repository.DB
	repo       *repository.LightCurveRepository
	resume     *storage.ResumeLog
	tracker    *monitoring.ProgressTracker
	run        spec.RunSpecRun
}

// NewLightCurvePipeline creates a light-curve pipeline over the
// region-indexed pointing set.
func NewLightCurvePipeline(
	agn AGNCatalog,
	byRegion map[models.RegionKey][]models.Pointing,
	db *repository.DB,
	resume *storage.ResumeLog,
	tracker *monitoring.ProgressTracker,
	run spec.RunSpecRun,
) *LightCurvePipeline {
	// Same floor dispatch.Split applies; the tag-to-slot division
	// below depends on the two agreeing.
	if run.SubBatchSize < 1 {
		run.SubBatchSize = 1
	}
	return &LightCurvePipeline{
		agn:        agn,
		byRegion:   byRegion,
		dispatcher: dispatch.New(run.Workers),
		db:         db,
		repo:       repository.NewLightCurveRepository(db, run.CommitBatch),
		resume:     resume,
		tracker:    tracker,
		run:        run,
	}
}

// Run processes every region not already marked complete. A region that
// was started but never marked complete is cleared before recomputation,
// so re-running after a crash is idempotent.
func (p *LightCurvePipeline) Run(ctx context.Context) error {
	all, err := p.agn.Regions()
	if err != nil {
		return err
	}
	todo, err := p.resume.Remaining(all)
	if err != nil {
		return err
	}

	for _, region := range todo {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := repository.DeleteRegionRows(p.db, region); err != nil {
			return err
		}
		if err := p.processRegion(ctx, region); err != nil {
			return fmt.Errorf("region %d: %w", region, err)
		}
		if err := p.resume.MarkCompleted(region); err != nil {
			return err
		}
		p.tracker.RegionDone()
	}
	return nil
}

func (p *LightCurvePipeline) processRegion(ctx context.Context, region models.RegionKey) error {
	objects, err := p.agn.InRegion(region)
	if err != nil {
		return err
	}
	pointings := p.byRegion[region]
	if len(objects) == 0 || len(pointings) == 0 {
		return nil
	}

	unit := models.RegionWorkUnit{Region: region, Objects: objects, Pointings: pointings}
	mjds := unit.Epochs()
	filters := unit.Filters()

	batches := dispatch.Split(objects, p.run.SubBatchSize)
	results := make([]models.PartialResult, len(batches))
	err = p.dispatcher.RunWave(ctx, batches, func(ctx context.Context, b dispatch.SubBatch) error {
		ev := photometry.NewEvaluator()
		res, err := ev.LightCurves(b.Records, mjds, filters)
		if err != nil {
			return err
		}
		res.Tag = b.Tag
		results[b.Tag/p.run.SubBatchSize] = res
		return nil
	})
	if err != nil {
		return err
	}

	sizes := make(map[int]int, len(batches))
	for _, b := range batches {
		sizes[b.Tag] = len(b.Records)
	}
	merged, stats, err := aggregate.Assemble(results, sizes, len(objects))
	if err != nil {
		return err
	}

	if err := repository.InsertObjects(p.db, objects); err != nil {
		return err
	}

	detectorRadius := p.run.DetectorDeg / degPerRad
	written, excluded := int64(0), int64(0)
	for i := range objects {
		for j, pt := range pointings {
			mag := merged[i][j]
			if math.IsNaN(mag) {
				continue // counted in stats, never persisted
			}
			if !aggregate.OnDetector(objects[i].RA, objects[i].Dec, pt, detectorRadius) {
				excluded++
				continue
			}
			err := p.repo.InsertRow(models.LightCurveRow{
				ObjectID: objects[i].UniqueID,
				VisitID:  pt.VisitID,
				Mag:      mag,
			})
			if err != nil {
				return err
			}
			written++
		}
	}
	if err := p.repo.Flush(); err != nil {
		return err
	}
	p.tracker.AddRows(written, int64(stats.NaNCells), excluded)
	return nil
}
