package raster_test

import (
	"log/slog"
	"testing"

	"github.com/ctessum/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/climate-region-stats/internal/domain"
	"github.com/couchcryptid/climate-region-stats/internal/raster"
)

func rect(x0, y0, x1, y1 float64) geom.Polygon {
	return geom.Polygon{{
		{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1}, {X: x0, Y: y0},
	}}
}

// grid returns a north-up unit grid whose lower-left corner is the origin.
func grid(rows, cols int) domain.Grid {
	return domain.Grid{Rows: rows, Cols: cols, OriginX: 0, OriginY: float64(rows), DX: 1, DY: -1}
}

func regionSet(t *testing.T, regions ...domain.Region) domain.RegionSet {
	t.Helper()
	set, err := domain.NewRegionSet("test", regions)
	require.NoError(t, err)
	return set
}

func assertDisjointAndTotal(t *testing.T, m *domain.MembershipRaster) {
	t.Helper()
	counts := make([]int, len(m.RegionIDs))
	for _, v := range m.Cells {
		if v != domain.Unassigned {
			counts[v]++
		}
	}
	assert.Equal(t, counts, m.Counts)
	for i, n := range counts {
		assert.Positive(t, n, "region %s", m.RegionIDs[i])
	}
}

func TestRasterize_PolygonEqualToOneCell(t *testing.T) {
	set := regionSet(t, domain.Region{ID: "01", Name: "A", Geometry: rect(0, 1, 1, 2)})

	m, err := raster.Rasterize(set, grid(2, 2))
	require.NoError(t, err)
	assert.Equal(t, []int32{0, domain.Unassigned, domain.Unassigned, domain.Unassigned}, m.Cells)
	assert.Equal(t, []int{0}, m.Members(0))
}

func TestRasterize_PolygonInsideOneCell(t *testing.T) {
	// The polygon misses the cell center; strict center containment would drop it.
	set := regionSet(t, domain.Region{ID: "01", Name: "Tiny", Geometry: rect(1.1, 0.1, 1.3, 0.3)})

	m, err := raster.Rasterize(set, grid(2, 2))
	require.NoError(t, err)
	assert.Equal(t, []int{3}, m.Members(0))
	assert.Equal(t, 1, m.Assigned())
}

func TestRasterize_NearestCenterWins(t *testing.T) {
	set := regionSet(t,
		domain.Region{ID: "01", Name: "A", Geometry: rect(0, 0, 1.1, 1)},
		domain.Region{ID: "02", Name: "B", Geometry: rect(1.1, 0, 2, 1)},
	)

	m, err := raster.Rasterize(set, grid(1, 2))
	require.NoError(t, err)
	assert.Equal(t, []int32{0, 1}, m.Cells)
	assertDisjointAndTotal(t, m)
}

func TestRasterize_TieGoesToLowerIDThenRepairs(t *testing.T) {
	// Both regions pass through the centers of column 1.
	set := regionSet(t,
		domain.Region{ID: "02", Name: "B", Geometry: rect(1.5, 0, 2, 2)},
		domain.Region{ID: "01", Name: "A", Geometry: rect(0, 0, 1.5, 2)},
	)

	m, err := raster.Rasterize(set, grid(2, 2))
	require.NoError(t, err)
	assertDisjointAndTotal(t, m)
	// A wins every tie; B reclaims one of its lost cells in column 1.
	assert.Equal(t, int32(0), m.At(0, 0))
	assert.Equal(t, int32(0), m.At(1, 0))
	assert.Equal(t, []int{3, 1}, m.Counts)
	assert.Contains(t, []int32{m.At(0, 1), m.At(1, 1)}, int32(1))
}

func TestRasterize_NoCoverage(t *testing.T) {
	set := regionSet(t,
		domain.Region{ID: "01", Name: "Inside", Geometry: rect(0, 0, 1, 1)},
		domain.Region{ID: "99", Name: "Far", Geometry: rect(50, 50, 51, 51)},
		domain.Region{ID: "98", Name: "Farther", Geometry: rect(60, 60, 61, 61)},
	)

	_, err := raster.Rasterize(set, grid(2, 2))
	var nc *domain.NoCoverageError
	require.ErrorAs(t, err, &nc)
	assert.Equal(t, []string{"98", "99"}, nc.RegionIDs)
	assert.Equal(t, "test", nc.RegionSet)
}

func TestRasterize_StarvedRegionWithoutSpareCell(t *testing.T) {
	// Two halves of a single cell: the loser cannot be repaired.
	set := regionSet(t,
		domain.Region{ID: "01", Name: "West", Geometry: rect(0, 0, 0.5, 1)},
		domain.Region{ID: "02", Name: "East", Geometry: rect(0.5, 0, 1, 1)},
	)

	_, err := raster.Rasterize(set, grid(1, 1))
	var nc *domain.NoCoverageError
	require.ErrorAs(t, err, &nc)
	assert.Equal(t, []string{"02"}, nc.RegionIDs)
}

func TestRasterize_DisjointOnLargerGrid(t *testing.T) {
	var regions []domain.Region
	for i := 0; i < 4; i++ {
		for j := 0; j < 3; j++ {
			x0, y0 := float64(i)*2.5, float64(j)*3.3
			regions = append(regions, domain.Region{
				ID:       string(rune('a'+i)) + string(rune('0'+j)),
				Name:     "r",
				Geometry: rect(x0, y0, x0+2.5, y0+3.3),
			})
		}
	}
	m, err := raster.Rasterize(regionSet(t, regions...), grid(10, 10))
	require.NoError(t, err)
	assertDisjointAndTotal(t, m)
	assert.Equal(t, 100, m.Assigned())
}

func TestRasterize_ShiftsWesternLongitudesOnto360Grid(t *testing.T) {
	g := domain.Grid{Rows: 2, Cols: 2, OriginX: 260, OriginY: 36, DX: 1, DY: -1}
	set := regionSet(t, domain.Region{ID: "01", Name: "A", Geometry: rect(-99.9, 34.1, -99.1, 34.9)})

	m, err := raster.Rasterize(set, g)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, m.Members(0))
}

func TestRasterize_DegenerateRegionTouchesCell(t *testing.T) {
	line := geom.Polygon{{{X: 0.2, Y: 0.2}, {X: 0.4, Y: 0.4}, {X: 0.2, Y: 0.2}}}
	set := regionSet(t, domain.Region{ID: "01", Name: "Line", Geometry: line})

	m, err := raster.Rasterize(set, grid(2, 2))
	require.NoError(t, err)
	assert.Equal(t, []int{2}, m.Members(0))
}

func TestRasterizer_CachesByGeometry(t *testing.T) {
	r := raster.New(4, slog.Default())
	set := regionSet(t, domain.Region{ID: "01", Name: "A", Geometry: rect(0, 0, 2, 2)})

	first, hit, err := r.Rasterize(set, grid(2, 2))
	require.NoError(t, err)
	assert.False(t, hit)

	second, hit, err := r.Rasterize(set, grid(2, 2))
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Same(t, first, second)

	_, hit, err = r.Rasterize(set, grid(3, 3))
	require.NoError(t, err)
	assert.False(t, hit)
}
