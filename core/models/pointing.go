package models

// NumBands is the size of the fixed band set (ugrizy).
const NumBands = 6

// BandNames maps filter index 0..5 to its band letter.
var BandNames = [NumBands]string{"u", "g", "r", "i", "z", "y"}

// Pointing is one visit of the survey: a single observation time plus
// filter and field geometry. Pointings are loaded once per run and are
// read-only afterwards.
type Pointing struct {
	VisitID     int64
	MJD         float64
	FilterIndex int     // 0..5, ugrizy
	RA          float64 // field center, radians
	Dec         float64 // field center, radians
	RotSkyPos   float64 // radians

	// Regions overlapped by the field of view, as computed by the
	// conservative cone-overlap test. May contain false positives;
	// the aggregator applies the precise on-detector filter later.
	Regions []RegionKey
}

// RegionWorkUnit groups the objects of one sky region with the pointings
// whose fields overlap it. Pointings must be sorted ascending by MJD
// before the unit is handed to the evaluator; variability models assume
// non-decreasing time.
type RegionWorkUnit struct {
	Region    RegionKey
	Objects   []ObjectRecord
	Pointings []Pointing
}

// Epochs returns the MJD of every pointing in order.
func (u *RegionWorkUnit) Epochs() []float64 {
	mjds := make([]float64, len(u.Pointings))
	for i, p := range u.Pointings {
		mjds[i] = p.MJD
	}
	return mjds
}

// Filters returns the filter index of every pointing in order.
func (u *RegionWorkUnit) Filters() []int {
	f := make([]int, len(u.Pointings))
	for i, p := range u.Pointings {
		f[i] = p.FilterIndex
	}
	return f
}
