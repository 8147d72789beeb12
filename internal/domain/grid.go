package domain

import (
	"errors"
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"
	"github.com/ctessum/geom"
)

// Grid is the affine geometry shared by a cube and any raster aggregated
// against it. Cell (r, c) spans [OriginX+c*DX, OriginX+(c+1)*DX] horizontally
// and [OriginY+r*DY, OriginY+(r+1)*DY] vertically; DY is negative for
// north-up rasters.
type Grid struct {
	Rows    int     `json:"rows"`
	Cols    int     `json:"cols"`
	OriginX float64 `json:"origin_x"`
	OriginY float64 `json:"origin_y"`
	DX      float64 `json:"dx"`
	DY      float64 `json:"dy"`
	CRS     string  `json:"crs,omitempty"`
}

// gridTolerance is the relative spacing tolerance when deriving a grid from
// coordinate centers stored as float32.
const gridTolerance = 1e-4

// GridFromCenters derives a Grid from ascending or descending latitude and
// longitude cell centers. Spacing must be regular.
func GridFromCenters(lats, lons []float64) (Grid, error) {
	dy, err := regularStep(lats)
	if err != nil {
		return Grid{}, fmt.Errorf("latitude: %w", err)
	}
	dx, err := regularStep(lons)
	if err != nil {
		return Grid{}, fmt.Errorf("longitude: %w", err)
	}
	return Grid{
		Rows:    len(lats),
		Cols:    len(lons),
		OriginX: lons[0] - dx/2,
		OriginY: lats[0] - dy/2,
		DX:      dx,
		DY:      dy,
		CRS:     "+proj=longlat +datum=WGS84",
	}, nil
}

func regularStep(v []float64) (float64, error) {
	if len(v) < 2 {
		return 0, errors.New("need at least two coordinates")
	}
	step := v[1] - v[0]
	if step == 0 {
		return 0, errors.New("zero coordinate spacing")
	}
	for i := 2; i < len(v); i++ {
		if d := v[i] - v[i-1]; math.Abs(d-step) > gridTolerance*math.Abs(step) {
			return 0, fmt.Errorf("irregular spacing at index %d: %g vs %g", i, d, step)
		}
	}
	return step, nil
}

// Cells returns the number of cells in one time step.
func (g Grid) Cells() int { return g.Rows * g.Cols }

// Index returns the flat row-major index of cell (r, c).
func (g Grid) Index(r, c int) int { return r*g.Cols + c }

// CellBounds returns the closed extent of cell (r, c).
func (g Grid) CellBounds(r, c int) *geom.Bounds {
	x0 := g.OriginX + float64(c)*g.DX
	y0 := g.OriginY + float64(r)*g.DY
	x1, y1 := x0+g.DX, y0+g.DY
	return &geom.Bounds{
		Min: geom.Point{X: math.Min(x0, x1), Y: math.Min(y0, y1)},
		Max: geom.Point{X: math.Max(x0, x1), Y: math.Max(y0, y1)},
	}
}

// CellCenter returns the center of cell (r, c).
func (g Grid) CellCenter(r, c int) geom.Point {
	return geom.Point{
		X: g.OriginX + (float64(c)+0.5)*g.DX,
		Y: g.OriginY + (float64(r)+0.5)*g.DY,
	}
}

// CellArea returns the planar area of one cell in CRS units.
func (g Grid) CellArea() float64 { return math.Abs(g.DX * g.DY) }

// Extent returns the bounds of the whole grid.
func (g Grid) Extent() *geom.Bounds {
	a := g.CellBounds(0, 0)
	b := g.CellBounds(g.Rows-1, g.Cols-1)
	return &geom.Bounds{
		Min: geom.Point{X: math.Min(a.Min.X, b.Min.X), Y: math.Min(a.Min.Y, b.Min.Y)},
		Max: geom.Point{X: math.Max(a.Max.X, b.Max.X), Y: math.Max(a.Max.Y, b.Max.Y)},
	}
}

// IndexRange returns the inclusive row and column ranges of cells whose
// extent intersects b. ok is false when b lies outside the grid.
func (g Grid) IndexRange(b *geom.Bounds) (r0, r1, c0, c1 int, ok bool) {
	c0, c1, ok = axisRange(b.Min.X, b.Max.X, g.OriginX, g.DX, g.Cols)
	if !ok {
		return 0, 0, 0, 0, false
	}
	r0, r1, ok = axisRange(b.Min.Y, b.Max.Y, g.OriginY, g.DY, g.Rows)
	if !ok {
		return 0, 0, 0, 0, false
	}
	return r0, r1, c0, c1, true
}

func axisRange(lo, hi, origin, step float64, n int) (int, int, bool) {
	a := (lo - origin) / step
	b := (hi - origin) / step
	if a > b {
		a, b = b, a
	}
	i0 := int(math.Floor(a))
	i1 := int(math.Floor(b))
	if i1 < 0 || i0 >= n {
		return 0, 0, false
	}
	return max(i0, 0), min(i1, n-1), true
}

// SameGeometry reports whether two grids describe the same cells.
func (g Grid) SameGeometry(o Grid) bool {
	if g.Rows != o.Rows || g.Cols != o.Cols {
		return false
	}
	tol := gridTolerance * math.Max(math.Abs(g.DX), math.Abs(g.DY))
	return math.Abs(g.OriginX-o.OriginX) <= tol &&
		math.Abs(g.OriginY-o.OriginY) <= tol &&
		math.Abs(g.DX-o.DX) <= tol &&
		math.Abs(g.DY-o.DY) <= tol
}

// Fingerprint identifies the grid geometry for cache keys.
func (g Grid) Fingerprint() uint64 {
	return xxhash.Sum64String(fmt.Sprintf("%d|%d|%.9f|%.9f|%.9f|%.9f|%s",
		g.Rows, g.Cols, g.OriginX, g.OriginY, g.DX, g.DY, g.CRS))
}

func (g Grid) String() string {
	return fmt.Sprintf("%dx%d@(%g,%g) step (%g,%g)", g.Rows, g.Cols, g.OriginX, g.OriginY, g.DX, g.DY)
}
