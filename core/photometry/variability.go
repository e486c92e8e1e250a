package photometry

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"

	"truth-pipeline/core/models"
)

// VarParams is the decoded variability parameter blob carried on AGN
// records. Only the damped-random-walk model ("applyAgn") is known.
type VarParams struct {
	Model  string `json:"m"`
	Params struct {
		SFu   float64 `json:"agn_sf_u"`
		SFg   float64 `json:"agn_sf_g"`
		SFr   float64 `json:"agn_sf_r"`
		SFi   float64 `json:"agn_sf_i"`
		SFz   float64 `json:"agn_sf_z"`
		SFy   float64 `json:"agn_sf_y"`
		Tau   float64 `json:"agn_tau"`
		T0MJD float64 `json:"t0_mjd"`
		Seed  int64   `json:"seed"`
	} `json:"p"`
}

// ParseVarParams decodes a variability blob.
func ParseVarParams(blob string) (VarParams, error) {
	var vp VarParams
	if err := json.Unmarshal([]byte(blob), &vp); err != nil {
		return vp, fmt.Errorf("variability params: %w", err)
	}
	if vp.Model != "applyAgn" {
		return vp, fmt.Errorf("variability params: unknown model %q", vp.Model)
	}
	if vp.Params.Tau <= 0 {
		return vp, fmt.Errorf("variability params: non-positive tau %v", vp.Params.Tau)
	}
	return vp, nil
}

func (vp *VarParams) structureFunction(band int) float64 {
	switch band {
	case 0:
		return vp.Params.SFu
	case 1:
		return vp.Params.SFg
	case 2:
		return vp.Params.SFr
	case 3:
		return vp.Params.SFi
	case 4:
		return vp.Params.SFz
	case 5:
		return vp.Params.SFy
	}
	return math.NaN()
}

// ApplyVariability evaluates the damped-random-walk magnitude offsets
// of one object at the given epochs. Epochs must be sorted ascending;
// the walk is advanced once per epoch in the object's rest frame
// (observer time divided by 1+z), so ordering is a correctness
// requirement, not a convention. Epochs earlier than the model's start
// time yield NaN.
//
// The walk is seeded from the parameter blob, so identical inputs give
// bit-identical light curves.
func ApplyVariability(blob string, redshift float64, mjds []float64, filters []int) ([]float64, error) {
	vp, err := ParseVarParams(blob)
	if err != nil {
		return nil, err
	}
	if len(filters) != len(mjds) {
		return nil, fmt.Errorf("variability: %d epochs but %d filter assignments", len(mjds), len(filters))
	}
	for i := 1; i < len(mjds); i++ {
		if mjds[i] < mjds[i-1] {
			return nil, fmt.Errorf("variability: epochs not sorted at index %d (%f < %f)", i, mjds[i], mjds[i-1])
		}
	}

	rng := rand.New(rand.NewSource(vp.Params.Seed))
	tau := vp.Params.Tau

	dmags := make([]float64, len(mjds))
	walk := 0.0
	tPrev := vp.Params.T0MJD
	for i, mjd := range mjds {
		if mjd < vp.Params.T0MJD {
			dmags[i] = math.NaN()
			continue
		}
		dt := (mjd - tPrev) / (1.0 + redshift)
		decay := math.Exp(-dt / tau)
		walk = walk*decay + math.Sqrt(1.0-decay*decay)*rng.NormFloat64()
		tPrev = mjd

		sf := vp.structureFunction(filters[i])
		dmags[i] = walk * sf
	}
	return dmags, nil
}

// LightCurves evaluates the variability model for a batch of AGN
// records over the shared epoch list of a region. The result matrix
// has one row per record and one column per epoch; the row magnitude
// is the component's quiescent magnitude in the epoch's band plus the
// walk offset. NaN cells mark epochs outside the model's valid window.
func (e *Evaluator) LightCurves(batch []models.ObjectRecord, mjds []float64, filters []int) (models.PartialResult, error) {
	res := models.PartialResult{Mags: make([][]float64, len(batch))}
	for i := range batch {
		rec := &batch[i]
		dmags, err := ApplyVariability(rec.VarParamStr, rec.Redshift, mjds, filters)
		if err != nil {
			return res, fmt.Errorf("object %d: %w", rec.UniqueID, err)
		}
		row := make([]float64, len(mjds))
		for j := range mjds {
			if math.IsNaN(dmags[j]) {
				row[j] = math.NaN()
				continue
			}
			base := e.QuiescentMag(rec.AGN, rec.Redshift, rec.GalacticAv, rec.GalacticRv, filters[j])
			row[j] = base + dmags[j]
		}
		res.Mags[i] = row
	}
	return res, nil
}
