package photometry

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"truth-pipeline/core/models"
)

func galaxyRecord(id int64) models.ObjectRecord {
	return models.ObjectRecord{
		UniqueID: id,
		Redshift: 0.5,
		Bulge: models.SEDComponent{
			SEDName: "Burst.10E10.002Z.spec", MagNorm: 24.1,
			InternalAv: 0.3, InternalRv: 3.1,
		},
		Disk: models.SEDComponent{
			SEDName: "Exp.40E09.02Z.spec", MagNorm: 23.4,
			InternalAv: 0.2, InternalRv: 2.9,
		},
		GalacticAv: 0.1,
		GalacticRv: 3.1,
	}
}

func TestGalaxyMagsAreDeterministic(t *testing.T) {
	batch := []models.ObjectRecord{galaxyRecord(1), galaxyRecord(2)}

	a, err := NewEvaluator().GalaxyMags(batch)
	require.NoError(t, err)
	b, err := NewEvaluator().GalaxyMags(batch)
	require.NoError(t, err)

	// Identical inputs give bit-identical outputs, independent of
	// evaluator instance and cache warmth.
	for i := range batch {
		for band := 0; band < models.NumBands; band++ {
			assert.Equal(t, math.Float64bits(a.Mags[i][band]), math.Float64bits(b.Mags[i][band]))
			assert.Equal(t, math.Float64bits(a.DMagMW[i][band]), math.Float64bits(b.DMagMW[i][band]))
		}
	}
}

func TestGalaxyMagsDustOnlyDims(t *testing.T) {
	out, err := NewEvaluator().GalaxyMags([]models.ObjectRecord{galaxyRecord(3)})
	require.NoError(t, err)

	for band := 0; band < models.NumBands; band++ {
		require.False(t, math.IsNaN(out.Mags[0][band]))
		// Dust removes flux, so both dimming terms are non-negative.
		assert.GreaterOrEqual(t, out.DMagMW[0][band], 0.0, "band %d", band)
		assert.GreaterOrEqual(t, out.DMagInternal[0][band], 0.0, "band %d", band)
	}
}

func TestGalaxyMagsAbsentComponentsSkipped(t *testing.T) {
	withDisk := galaxyRecord(4)
	noDisk := galaxyRecord(4)
	noDisk.Disk = models.SEDComponent{MagNorm: math.NaN()}

	a, err := NewEvaluator().GalaxyMags([]models.ObjectRecord{withDisk})
	require.NoError(t, err)
	b, err := NewEvaluator().GalaxyMags([]models.ObjectRecord{noDisk})
	require.NoError(t, err)

	// Dropping a component removes flux, so the total gets fainter.
	for band := 0; band < models.NumBands; band++ {
		assert.Greater(t, b.Mags[0][band], a.Mags[0][band])
	}
}

func TestGalaxyMagsNaNRowBelowFluxFloor(t *testing.T) {
	rec := galaxyRecord(5)
	rec.Bulge.MagNorm = 500
	rec.Disk.MagNorm = 500

	out, err := NewEvaluator().GalaxyMags([]models.ObjectRecord{rec})
	require.NoError(t, err)
	for band := 0; band < models.NumBands; band++ {
		assert.True(t, math.IsNaN(out.Mags[0][band]))
		assert.True(t, math.IsNaN(out.DMagMW[0][band]))
		assert.True(t, math.IsNaN(out.DMagInternal[0][band]))
	}
}

func TestGalaxyMagsInvalidMagnificationIsFatal(t *testing.T) {
	rec := galaxyRecord(6)
	rec.Kappa = 1.0 // magnification diverges
	rec.Shear1 = 0
	rec.Shear2 = 0

	_, err := NewEvaluator().GalaxyMags([]models.ObjectRecord{rec})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "object 6")
}

func TestMagnificationBrightens(t *testing.T) {
	plain := galaxyRecord(7)
	lensed := galaxyRecord(7)
	lensed.Kappa = 0.1

	a, err := NewEvaluator().GalaxyMags([]models.ObjectRecord{plain})
	require.NoError(t, err)
	b, err := NewEvaluator().GalaxyMags([]models.ObjectRecord{lensed})
	require.NoError(t, err)
	for band := 0; band < models.NumBands; band++ {
		assert.Less(t, b.Mags[0][band], a.Mags[0][band])
	}
}

func TestDustAttenuationRange(t *testing.T) {
	for _, wl := range bandWavelengthNm {
		att := dustAttenuation(wl, 0.5, 3.1)
		assert.Greater(t, att, 0.0)
		assert.Less(t, att, 1.0)
	}
	assert.Equal(t, 1.0, dustAttenuation(500, 0, 3.1))
	assert.Equal(t, 1.0, dustAttenuation(500, 0.5, 0))
}

func TestMagFromFluxFloor(t *testing.T) {
	assert.True(t, math.IsNaN(magFromFlux(0)))
	assert.True(t, math.IsNaN(magFromFlux(-1)))
	assert.True(t, math.IsNaN(magFromFlux(fluxFloor)))
	assert.False(t, math.IsNaN(magFromFlux(1e-20)))
}
