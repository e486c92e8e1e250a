// Package aggregate recombines per-worker partial results into ordered
// matrices and applies the precise on-detector filter.
package aggregate

import (
	"fmt"
	"math"
	"sort"

	"truth-pipeline/core/models"
	"truth-pipeline/core/partition"
)

// Stats counts what happened to the cells of one aggregation. NaN
// magnitudes are recorded and counted here rather than dropped.
type Stats struct {
	Objects  int
	Cells    int
	NaNCells int
}

// Assemble validates and merges the partial results of one wave into a
// single matrix ordered by batch tag. The cardinality checks are the
// run's primary correctness gate: every sub-batch must have produced
// exactly one result with exactly one row per object, and the total
// must equal the originating batch size. Any mismatch is an error the
// caller treats as fatal.
func Assemble(results []models.PartialResult, batchSizes map[int]int, total int) ([][]float64, Stats, error) {
	var stats Stats
	if len(results) != len(batchSizes) {
		return nil, stats, fmt.Errorf("aggregate: %d results for %d sub-batches", len(results), len(batchSizes))
	}

	sum := 0
	for _, n := range batchSizes {
		sum += n
	}
	if sum != total {
		return nil, stats, fmt.Errorf("aggregate: sub-batch sizes sum to %d, batch has %d objects", sum, total)
	}

	byTag := make(map[int]models.PartialResult, len(results))
	for _, r := range results {
		if _, dup := byTag[r.Tag]; dup {
			return nil, stats, fmt.Errorf("aggregate: duplicate result for tag %d", r.Tag)
		}
		want, ok := batchSizes[r.Tag]
		if !ok {
			return nil, stats, fmt.Errorf("aggregate: result for unknown tag %d", r.Tag)
		}
		if len(r.Mags) != want {
			return nil, stats, fmt.Errorf("aggregate: tag %d produced %d rows, sub-batch has %d objects", r.Tag, len(r.Mags), want)
		}
		byTag[r.Tag] = r
	}

	tags := make([]int, 0, len(byTag))
	for tag := range byTag {
		tags = append(tags, tag)
	}
	sort.Ints(tags)

	merged := make([][]float64, 0, total)
	for _, tag := range tags {
		for _, row := range byTag[tag].Mags {
			merged = append(merged, row)
			stats.Cells += len(row)
			for _, v := range row {
				if math.IsNaN(v) {
					stats.NaNCells++
				}
			}
		}
	}
	stats.Objects = len(merged)
	return merged, stats, nil
}

// OnDetector is the precise geometric test: whether the object actually
// falls within the active detector footprint of a pointing. It is
// stricter than the conservative region-overlap test used to build work
// units; (object, pointing) pairs failing it are excluded from output
// entirely, not recorded as NaN.
func OnDetector(objRA, objDec float64, p models.Pointing, detectorRadius float64) bool {
	return partition.AngularSeparation(objRA, objDec, p.RA, p.Dec) <= detectorRadius
}
