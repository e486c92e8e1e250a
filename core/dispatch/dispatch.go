// Package dispatch splits batches of records into bounded sub-batches
// and runs evaluator invocations in synchronous waves.
package dispatch

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"truth-pipeline/core/models"
)

// SubBatch is a contiguous slice of a parent batch. Tag is the
// sub-batch's starting offset within the parent, and doubles as the
// identifier used to recombine results in original order.
type SubBatch struct {
	Tag     int
	Records []models.ObjectRecord
}

// Split partitions a batch into contiguous sub-batches of at most
// maxSize records. The union of the sub-batches is exactly the input,
// in order.
func Split(batch []models.ObjectRecord, maxSize int) []SubBatch {
	if maxSize < 1 {
		maxSize = 1
	}
	var out []SubBatch
	for off := 0; off < len(batch); off += maxSize {
		end := off + maxSize
		if end > len(batch) {
			end = len(batch)
		}
		out = append(out, SubBatch{Tag: off, Records: batch[off:end]})
	}
	return out
}

// Dispatcher runs one wave of evaluator invocations at a time, bounded
// by a worker-count ceiling. A wave does not complete until every
// invocation in it has finished; the next wave never starts early.
type Dispatcher struct {
	workers int
}

// New returns a dispatcher with the given worker ceiling (minimum 1).
func New(workers int) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	return &Dispatcher{workers: workers}
}

// Workers returns the configured worker ceiling.
func (d *Dispatcher) Workers() int { return d.workers }

// RunWave runs fn over every sub-batch with at most the configured
// number of concurrent invocations and blocks until all of them have
// returned. Any invocation failure cancels the remainder of the wave
// and is returned: photometry must be complete for every object, so a
// failed worker is fatal to the run, never skipped.
func (d *Dispatcher) RunWave(ctx context.Context, batches []SubBatch, fn func(ctx context.Context, b SubBatch) error) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workers)
	for _, b := range batches {
		b := b
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(ctx, b); err != nil {
				return fmt.Errorf("sub-batch at offset %d (%d objects): %w", b.Tag, len(b.Records), err)
			}
			return nil
		})
	}
	return g.Wait()
}
