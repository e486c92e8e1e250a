package models

// PartialResult is the output of one evaluator invocation over one
// sub-batch. Tag is the sub-batch's starting offset within the parent
// batch; the aggregator uses it to restore the original row order
// regardless of worker completion order.
//
// Mags is dense: one row per object, one column per epoch (light-curve
// pipeline) or per band (static pipeline). NaN marks an undefined
// magnitude (epoch outside the model's valid window, or non-positive
// flux); NaN cells are counted, never silently dropped.
type PartialResult struct {
	Tag  int
	Mags [][]float64
}

// GalaxyMags carries the three dust treatments computed for one
// sub-batch of the static truth pipeline.
type GalaxyMags struct {
	Tag          int
	Mags         [][]float64 // observed, all dust applied
	DMagMW       [][]float64 // dimming attributable to Milky Way dust
	DMagInternal [][]float64 // dimming attributable to internal dust
}

// TruthRow is one persisted row of the static truth table.
type TruthRow struct {
	Region      RegionKey
	ObjectID    int64
	Star        bool
	AGN         bool
	Sprinkled   bool
	RA          float64 // degrees
	Dec         float64 // degrees
	Redshift    float64
	Mags        [NumBands]float64
	DMagMW      [NumBands]float64
	DMagInt     [NumBands]float64
}

// LightCurveRow is one persisted per-epoch photometry row. The
// (ObjectID, VisitID) pair is unique; duplicate insertion is a
// correctness bug and is rejected by the store's unique index.
type LightCurveRow struct {
	ObjectID int64
	VisitID  int64
	Mag      float64
}
