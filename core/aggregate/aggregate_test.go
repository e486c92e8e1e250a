package aggregate

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"truth-pipeline/core/models"
)

// result rows carry the originating global index so ordering is
// checkable after the merge.
func makePartials(total, subSize, cols int) ([]models.PartialResult, map[int]int) {
	var results []models.PartialResult
	sizes := make(map[int]int)
	for off := 0; off < total; off += subSize {
		end := off + subSize
		if end > total {
			end = total
		}
		mags := make([][]float64, 0, end-off)
		for i := off; i < end; i++ {
			row := make([]float64, cols)
			for c := range row {
				row[c] = float64(i)
			}
			mags = append(mags, row)
		}
		results = append(results, models.PartialResult{Tag: off, Mags: mags})
		sizes[off] = end - off
	}
	return results, sizes
}

func TestAssembleRestoresOriginalOrder(t *testing.T) {
	results, sizes := makePartials(10000, 2500, 3)

	// Completion order is arbitrary; shuffle to prove it does not
	// matter.
	rng := rand.New(rand.NewSource(42))
	rng.Shuffle(len(results), func(i, j int) { results[i], results[j] = results[j], results[i] })

	merged, stats, err := Assemble(results, sizes, 10000)
	require.NoError(t, err)
	require.Len(t, merged, 10000)
	for i, row := range merged {
		require.Equal(t, float64(i), row[0], "row %d out of order", i)
	}
	assert.Equal(t, 10000, stats.Objects)
	assert.Equal(t, 30000, stats.Cells)
	assert.Equal(t, 0, stats.NaNCells)
}

func TestAssembleCountsNaNCells(t *testing.T) {
	results, sizes := makePartials(100, 30, 2)
	results[1].Mags[3][0] = math.NaN()
	results[2].Mags[0][1] = math.NaN()

	_, stats, err := Assemble(results, sizes, 100)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.NaNCells)
}

func TestAssembleRejectsSizeSumMismatch(t *testing.T) {
	results, sizes := makePartials(100, 25, 1)
	_, _, err := Assemble(results, sizes, 101)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sum to 100")
}

func TestAssembleRejectsMissingResult(t *testing.T) {
	results, sizes := makePartials(100, 25, 1)
	_, _, err := Assemble(results[:3], sizes, 100)
	require.Error(t, err)
}

func TestAssembleRejectsDuplicateTag(t *testing.T) {
	results, sizes := makePartials(100, 25, 1)
	results[3].Tag = results[0].Tag
	_, _, err := Assemble(results, sizes, 100)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestAssembleRejectsUnknownTag(t *testing.T) {
	results, sizes := makePartials(100, 25, 1)
	results[3].Tag = 9999
	_, _, err := Assemble(results, sizes, 100)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown tag")
}

func TestAssembleRejectsShortRowCount(t *testing.T) {
	results, sizes := makePartials(100, 25, 1)
	results[2].Mags = results[2].Mags[:10]
	_, _, err := Assemble(results, sizes, 100)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "produced 10 rows")
}

func TestOnDetector(t *testing.T) {
	p := models.Pointing{RA: 1.0, Dec: 0.2}
	radius := 1.75 * math.Pi / 180.0

	assert.True(t, OnDetector(1.0, 0.2, p, radius))
	assert.True(t, OnDetector(1.0, 0.2+radius*0.99, p, radius))
	assert.False(t, OnDetector(1.0, 0.2+radius*1.01, p, radius))
	// Wider than the detector but inside a 2 degree field of view:
	// excluded by the precise test.
	fov := 2.0 * math.Pi / 180.0
	assert.False(t, OnDetector(1.0, 0.2+fov*0.95, p, radius))
}
