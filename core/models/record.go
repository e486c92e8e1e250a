package models

import "math"

// RegionKey is a discrete spatial bucket in the nested sky grid.
// Objects and pointings are correlated through it.
type RegionKey int64

// ObjectRecord is one row of the input parameter catalog: a galaxy with
// up to three components (bulge, disk, AGN point source). Records are
// immutable once built; a record is consumed by exactly one evaluator
// invocation per run.
type ObjectRecord struct {
	UniqueID int64
	GalaxyID int64
	RA       float64 // radians, J2000
	Dec      float64 // radians, J2000
	Redshift float64

	Bulge SEDComponent
	Disk  SEDComponent
	AGN   SEDComponent

	// Milky Way (galactic) dust along the line of sight.
	GalacticAv float64
	GalacticRv float64

	// Weak lensing parameters.
	Shear1 float64
	Shear2 float64
	Kappa  float64

	// Opaque variability parameter blob, consumed only by the
	// photometry evaluator.
	VarParamStr string

	Region      RegionKey
	IsAGN       bool
	IsSN        bool
	IsSprinkled bool
}

// SEDComponent describes one spectral component of an object. A component
// is absent when SEDName is empty or MagNorm is NaN.
type SEDComponent struct {
	SEDName    string
	MagNorm    float64
	InternalAv float64
	InternalRv float64
}

// Present reports whether this component contributes flux.
func (c SEDComponent) Present() bool {
	return c.SEDName != "" && !math.IsNaN(c.MagNorm)
}

// Magnification returns the weak-lensing flux magnification for the
// record: 1/((1-kappa)^2 - shear1^2 - shear2^2).
func (r *ObjectRecord) Magnification() float64 {
	return 1.0 / ((1.0-r.Kappa)*(1.0-r.Kappa) - r.Shear1*r.Shear1 - r.Shear2*r.Shear2)
}
