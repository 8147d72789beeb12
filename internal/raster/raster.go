// Package raster assigns grid cells to regions.
//
// A cell is claimed by every region overlapping it with positive area, which
// includes regions smaller than one cell. Cells claimed by several regions go
// to the region whose boundary is nearest the cell center (zero when the
// center is inside), then to the lower region identifier. A region left
// without cells takes back its largest claimed cell when the current owner
// has another one.
package raster

import (
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"

	"github.com/couchcryptid/climate-region-stats/internal/cache"
	"github.com/couchcryptid/climate-region-stats/internal/domain"
)

// minOverlap is the fraction of a cell an overlap must exceed to count.
// Shared edges produce slivers below it.
const minOverlap = 1e-9

// Rasterizer builds membership rasters and caches them per region set and
// grid geometry.
type Rasterizer struct {
	logger *slog.Logger
	cache  *cache.LRU[key, *domain.MembershipRaster]
}

type key struct {
	regions uint64
	grid    uint64
}

// New creates a Rasterizer caching up to cacheSize rasters.
func New(cacheSize int, logger *slog.Logger) *Rasterizer {
	return &Rasterizer{
		logger: logger,
		cache: cache.New[key, *domain.MembershipRaster](cacheSize, func(k key) string {
			return fmt.Sprintf("%016x:%016x", k.regions, k.grid)
		}),
	}
}

// Rasterize returns the membership raster of set on g. hit reports whether
// it came from the cache. Rasters are shared and must not be modified.
func (r *Rasterizer) Rasterize(set domain.RegionSet, g domain.Grid) (m *domain.MembershipRaster, hit bool, err error) {
	k := key{regions: set.Fingerprint(), grid: g.Fingerprint()}
	m, hit, err = r.cache.GetOrLoad(k, func() (*domain.MembershipRaster, error) {
		return Rasterize(set, g)
	})
	if err != nil {
		return nil, false, err
	}
	r.logger.Debug("region raster ready", "region_set", set.Name, "grid", g.String(),
		"regions", set.Len(), "assigned_cells", m.Assigned(), "cache_hit", hit)
	return m, hit, nil
}

// item is a region in the spatial index.
type item struct {
	geom.Polygonal
	idx  int
	area float64
}

// loss is a claim a region lost to another region.
type loss struct {
	cell   int
	region int
}

// Rasterize computes the membership raster of set on g without caching. It
// fails with a *domain.NoCoverageError naming every region left without a
// cell.
func Rasterize(set domain.RegionSet, g domain.Grid) (*domain.MembershipRaster, error) {
	m := domain.NewMembershipRaster(g, set.IDs())
	if set.Len() == 0 {
		return m, nil
	}

	extent := g.Extent()
	tree := rtree.NewTree(25, 50)
	var union *geom.Bounds
	for i, reg := range set.Regions {
		poly := alignLongitudes(reg.Geometry, extent)
		it := &item{Polygonal: poly, idx: i, area: poly.Area()}
		tree.Insert(it)
		b := poly.Bounds()
		if union == nil {
			union = &geom.Bounds{Min: b.Min, Max: b.Max}
		} else {
			union.Min.X, union.Min.Y = math.Min(union.Min.X, b.Min.X), math.Min(union.Min.Y, b.Min.Y)
			union.Max.X, union.Max.Y = math.Max(union.Max.X, b.Max.X), math.Max(union.Max.Y, b.Max.Y)
		}
	}

	var lost []loss
	if r0, r1, c0, c1, ok := g.IndexRange(union); ok {
		cellArea := g.CellArea()
		for row := r0; row <= r1; row++ {
			for col := c0; col <= c1; col++ {
				cell := g.CellBounds(row, col)
				center := g.CellCenter(row, col)
				owner, ownerDist := -1, math.Inf(1)
				var claimants []int
				for _, x := range tree.SearchIntersect(cell) {
					it := x.(*item)
					dist, ok := claim(it, cell, center, cellArea)
					if !ok {
						continue
					}
					claimants = append(claimants, it.idx)
					if dist < ownerDist || (dist == ownerDist && it.idx < owner) {
						owner, ownerDist = it.idx, dist
					}
				}
				if owner < 0 {
					continue
				}
				flat := g.Index(row, col)
				m.Cells[flat] = int32(owner)
				m.Counts[owner]++
				for _, c := range claimants {
					if c != owner {
						lost = append(lost, loss{cell: flat, region: c})
					}
				}
			}
		}
	}

	repairStarved(m, set, g, lost)

	var empty []string
	for i, n := range m.Counts {
		if n == 0 {
			empty = append(empty, set.Regions[i].ID)
		}
	}
	if len(empty) > 0 {
		return nil, &domain.NoCoverageError{RegionSet: set.Name, RegionIDs: empty}
	}
	return m, nil
}

// claim reports whether the region claims the cell and the distance from
// the cell center to the region.
func claim(it *item, cell *geom.Bounds, center geom.Point, cellArea float64) (float64, bool) {
	if it.area == 0 {
		if !touches(it.Polygonal, cell) {
			return 0, false
		}
		return boundaryDistance(it.Polygonal, center), true
	}
	if center.Within(it.Polygonal) == geom.Inside {
		return 0, true
	}
	if overlap(it.Polygonal, cell) <= minOverlap*cellArea {
		return 0, false
	}
	return boundaryDistance(it.Polygonal, center), true
}

// repairStarved hands each empty region the lost claim of largest overlap
// whose owner keeps at least one other cell.
func repairStarved(m *domain.MembershipRaster, set domain.RegionSet, g domain.Grid, lost []loss) {
	byRegion := make(map[int][]int)
	for _, l := range lost {
		if m.Counts[l.region] == 0 {
			byRegion[l.region] = append(byRegion[l.region], l.cell)
		}
	}
	regions := make([]int, 0, len(byRegion))
	for idx := range byRegion {
		regions = append(regions, idx)
	}
	sort.Ints(regions)

	extent := g.Extent()
	for _, idx := range regions {
		poly := alignLongitudes(set.Regions[idx].Geometry, extent)
		best, bestArea := -1, -1.0
		for _, cell := range byRegion[idx] {
			owner := m.Cells[cell]
			if owner == domain.Unassigned || m.Counts[owner] < 2 {
				continue
			}
			a := overlap(poly, g.CellBounds(cell/g.Cols, cell%g.Cols))
			if a > bestArea || (a == bestArea && cell < best) {
				best, bestArea = cell, a
			}
		}
		if best < 0 {
			continue
		}
		m.Counts[m.Cells[best]]--
		m.Cells[best] = int32(idx)
		m.Counts[idx]++
	}
}

func overlap(p geom.Polygonal, cell *geom.Bounds) float64 {
	isect := p.Intersection(cell)
	if isect == nil {
		return 0
	}
	return isect.Area()
}

// touches is the closed intersection test used for zero-area regions.
func touches(p geom.Polygonal, cell *geom.Bounds) bool {
	for _, poly := range p.Polygons() {
		for _, ring := range poly {
			for i, a := range ring {
				if inClosed(a, cell) {
					return true
				}
				if i > 0 && segmentHitsBox(ring[i-1], a, cell) {
					return true
				}
			}
		}
	}
	return false
}

func inClosed(p geom.Point, b *geom.Bounds) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X && p.Y >= b.Min.Y && p.Y <= b.Max.Y
}

// segmentHitsBox clips segment ab against the closed box (Liang-Barsky).
func segmentHitsBox(a, b geom.Point, box *geom.Bounds) bool {
	t0, t1 := 0.0, 1.0
	dx, dy := b.X-a.X, b.Y-a.Y
	edges := [4][2]float64{
		{-dx, a.X - box.Min.X},
		{dx, box.Max.X - a.X},
		{-dy, a.Y - box.Min.Y},
		{dy, box.Max.Y - a.Y},
	}
	for _, e := range edges {
		p, q := e[0], e[1]
		if p == 0 {
			if q < 0 {
				return false
			}
			continue
		}
		t := q / p
		if p < 0 {
			t0 = math.Max(t0, t)
		} else {
			t1 = math.Min(t1, t)
		}
		if t0 > t1 {
			return false
		}
	}
	return true
}

// boundaryDistance is the distance from pt to the nearest ring segment.
func boundaryDistance(p geom.Polygonal, pt geom.Point) float64 {
	best := math.Inf(1)
	for _, poly := range p.Polygons() {
		for _, ring := range poly {
			for i := range ring {
				a := ring[i]
				b := ring[(i+1)%len(ring)]
				best = math.Min(best, segmentDistance(pt, a, b))
			}
		}
	}
	return best
}

func segmentDistance(p, a, b geom.Point) float64 {
	dx, dy := b.X-a.X, b.Y-a.Y
	l2 := dx*dx + dy*dy
	if l2 == 0 {
		return math.Hypot(p.X-a.X, p.Y-a.Y)
	}
	t := ((p.X-a.X)*dx + (p.Y-a.Y)*dy) / l2
	t = math.Max(0, math.Min(1, t))
	return math.Hypot(p.X-(a.X+t*dx), p.Y-(a.Y+t*dy))
}

// alignLongitudes shifts a region by +360 degrees when the grid uses 0-360
// longitudes and the region lies in the western hemisphere.
func alignLongitudes(p geom.Polygonal, extent *geom.Bounds) geom.Polygonal {
	b := p.Bounds()
	if extent.Min.X < 0 || b.Max.X > 0 || b.Max.X+360 < extent.Min.X {
		return p
	}
	polys := p.Polygons()
	out := make(geom.MultiPolygon, len(polys))
	for i, poly := range polys {
		np := make(geom.Polygon, len(poly))
		for j, ring := range poly {
			nr := make([]geom.Point, len(ring))
			for k, pt := range ring {
				nr[k] = geom.Point{X: pt.X + 360, Y: pt.Y}
			}
			np[j] = nr
		}
		out[i] = np
	}
	if len(out) == 1 {
		return out[0]
	}
	return out
}
