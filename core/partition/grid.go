// Package partition maps sky positions and fields of view onto a
// hierarchical grid of region keys. All computations are pure geometry;
// the package does no I/O.
package partition

import (
	"math"

	"truth-pipeline/core/models"
)

// Grid is a nested equirectangular sky grid at a fixed subdivision
// depth. Depth 0 splits the sphere into 4x2 cells; each depth level
// quarters every cell, so depth d has (4<<d) x (2<<d) cells. Cells are
// half-open in both coordinates, which makes boundary resolution
// deterministic: a position on a cell edge belongs to exactly one cell.
type Grid struct {
	depth int
	nx    int
	ny    int
	dra   float64
	ddec  float64
}

// New returns a grid at the given subdivision depth. Depth must be
// non-negative; values above 12 are clamped to keep keys well inside
// int64 range.
func New(depth int) *Grid {
	if depth < 0 {
		depth = 0
	}
	if depth > 12 {
		depth = 12
	}
	nx := 4 << depth
	ny := 2 << depth
	return &Grid{
		depth: depth,
		nx:    nx,
		ny:    ny,
		dra:   2 * math.Pi / float64(nx),
		ddec:  math.Pi / float64(ny),
	}
}

// Depth returns the grid's subdivision depth.
func (g *Grid) Depth() int { return g.depth }

// NumCells returns the total number of cells at this depth.
func (g *Grid) NumCells() int { return g.nx * g.ny }

// PixelOf returns the single region key containing (ra, dec), both in
// radians. RA is normalized into [0, 2pi); dec is clamped to the poles.
func (g *Grid) PixelOf(ra, dec float64) models.RegionKey {
	ix := g.raIndex(ra)
	iy := g.decIndex(dec)
	return models.RegionKey(int64(iy)*int64(g.nx) + int64(ix))
}

func (g *Grid) raIndex(ra float64) int {
	ra = math.Mod(ra, 2*math.Pi)
	if ra < 0 {
		ra += 2 * math.Pi
	}
	ix := int(ra / g.dra)
	if ix >= g.nx {
		ix = g.nx - 1
	}
	return ix
}

func (g *Grid) decIndex(dec float64) int {
	iy := int((dec + math.Pi/2) / g.ddec)
	if iy < 0 {
		iy = 0
	}
	if iy >= g.ny {
		iy = g.ny - 1
	}
	return iy
}

// CellCenter returns the (ra, dec) center of a region key in radians.
func (g *Grid) CellCenter(key models.RegionKey) (float64, float64) {
	ix := int(int64(key) % int64(g.nx))
	iy := int(int64(key) / int64(g.nx))
	ra := (float64(ix) + 0.5) * g.dra
	dec := (float64(iy)+0.5)*g.ddec - math.Pi/2
	return ra, dec
}

// ConeOverlap returns every region key whose cell could intersect the
// cone of the given angular radius around (ra, dec), all in radians.
// The test is conservative: it may return cells that only marginally
// intersect the field, but it never omits a cell containing a position
// within the radius. The precise on-detector filter downstream removes
// the false positives.
func (g *Grid) ConeOverlap(ra, dec, radius float64) []models.RegionKey {
	if radius < 0 {
		radius = 0
	}

	decLo := dec - radius
	decHi := dec + radius
	iyLo := g.decIndex(decLo)
	iyHi := g.decIndex(decHi)

	// RA half-width of the bounding box. Near the poles the box wraps
	// the full RA range.
	maxAbsDec := math.Max(math.Abs(decLo), math.Abs(decHi))
	fullRA := false
	var halfWidth float64
	if maxAbsDec >= math.Pi/2-1e-9 {
		fullRA = true
	} else {
		s := math.Sin(radius) / math.Cos(maxAbsDec)
		if s >= 1 {
			fullRA = true
		} else {
			halfWidth = math.Asin(s)
		}
	}

	keys := make([]models.RegionKey, 0, 16)
	for iy := iyLo; iy <= iyHi; iy++ {
		if fullRA {
			for ix := 0; ix < g.nx; ix++ {
				keys = append(keys, models.RegionKey(int64(iy)*int64(g.nx)+int64(ix)))
			}
			continue
		}
		// Pad by one cell on each side so edge-grazing fields are
		// never excluded.
		ixLo := g.raIndex(ra-halfWidth) - 1
		ixHi := g.raIndex(ra+halfWidth) + 1
		span := ixHi - ixLo
		if span < 0 {
			span += g.nx
		}
		if span >= g.nx-1 {
			ixLo, span = 0, g.nx-1
		}
		for k := 0; k <= span; k++ {
			ix := (ixLo + k + g.nx) % g.nx
			keys = append(keys, models.RegionKey(int64(iy)*int64(g.nx)+int64(ix)))
		}
	}
	return keys
}

// AngularSeparation returns the angle in radians between two sky
// positions, computed with the haversine form for numerical stability
// at small separations.
func AngularSeparation(ra1, dec1, ra2, dec2 float64) float64 {
	sd := math.Sin((dec2 - dec1) / 2)
	sr := math.Sin((ra2 - ra1) / 2)
	h := sd*sd + math.Cos(dec1)*math.Cos(dec2)*sr*sr
	if h > 1 {
		h = 1
	}
	return 2 * math.Asin(math.Sqrt(h))
}
