package domain

import (
	"testing"

	"github.com/ctessum/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGridFromCenters(t *testing.T) {
	g, err := GridFromCenters([]float64{0.5, 1.5, 2.5}, []float64{10.5, 11.5})
	require.NoError(t, err)

	assert.Equal(t, 3, g.Rows)
	assert.Equal(t, 2, g.Cols)
	assert.InDelta(t, 10.0, g.OriginX, 1e-12)
	assert.InDelta(t, 0.0, g.OriginY, 1e-12)
	assert.Equal(t, 6, g.Cells())

	b := g.CellBounds(1, 1)
	assert.Equal(t, geom.Point{X: 11, Y: 1}, b.Min)
	assert.Equal(t, geom.Point{X: 12, Y: 2}, b.Max)
	assert.Equal(t, geom.Point{X: 11.5, Y: 1.5}, g.CellCenter(1, 1))
}

func TestGridFromCentersDescendingLatitude(t *testing.T) {
	g, err := GridFromCenters([]float64{2.5, 1.5}, []float64{0.5, 1.5})
	require.NoError(t, err)
	assert.InDelta(t, -1.0, g.DY, 1e-12)

	b := g.CellBounds(0, 0)
	assert.InDelta(t, 2.0, b.Min.Y, 1e-12)
	assert.InDelta(t, 3.0, b.Max.Y, 1e-12)
}

func TestGridFromCentersRejectsIrregular(t *testing.T) {
	_, err := GridFromCenters([]float64{0, 1, 3}, []float64{0, 1})
	assert.Error(t, err)

	_, err = GridFromCenters([]float64{0}, []float64{0, 1})
	assert.Error(t, err)
}

func TestGridIndexRange(t *testing.T) {
	g := Grid{Rows: 4, Cols: 4, DX: 1, DY: 1}

	r0, r1, c0, c1, ok := g.IndexRange(&geom.Bounds{Min: geom.Point{X: 1.2, Y: 0.5}, Max: geom.Point{X: 2.7, Y: 0.9}})
	require.True(t, ok)
	assert.Equal(t, [4]int{0, 0, 1, 2}, [4]int{r0, r1, c0, c1})

	r0, r1, c0, c1, ok = g.IndexRange(&geom.Bounds{Min: geom.Point{X: -5, Y: -5}, Max: geom.Point{X: 50, Y: 50}})
	require.True(t, ok)
	assert.Equal(t, [4]int{0, 3, 0, 3}, [4]int{r0, r1, c0, c1})

	_, _, _, _, ok = g.IndexRange(&geom.Bounds{Min: geom.Point{X: 10, Y: 10}, Max: geom.Point{X: 11, Y: 11}})
	assert.False(t, ok)
}

func TestGridFingerprint(t *testing.T) {
	a := Grid{Rows: 2, Cols: 2, DX: 1, DY: 1}
	b := a
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.True(t, a.SameGeometry(b))

	b.OriginX = 0.5
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
	assert.False(t, a.SameGeometry(b))
}

func square(x0, y0, size float64) geom.Polygon {
	return geom.Polygon{{
		{X: x0, Y: y0}, {X: x0 + size, Y: y0}, {X: x0 + size, Y: y0 + size}, {X: x0, Y: y0 + size}, {X: x0, Y: y0},
	}}
}

func TestNewRegionSet(t *testing.T) {
	set, err := NewRegionSet("counties", []Region{
		{ID: "02", Name: "B", Geometry: square(1, 0, 1)},
		{ID: "01", Name: "A", State: "TX", Geometry: square(0, 0, 1)},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"01", "02"}, set.IDs())
	assert.Equal(t, "A, TX", set.Regions[0].DisplayName())
	assert.Equal(t, "B", set.Regions[1].DisplayName())

	i, ok := set.Index("02")
	require.True(t, ok)
	assert.Equal(t, 1, i)
	_, ok = set.Index("03")
	assert.False(t, ok)
}

func TestNewRegionSetRejectsDuplicates(t *testing.T) {
	_, err := NewRegionSet("x", []Region{
		{ID: "01", Geometry: square(0, 0, 1)},
		{ID: "01", Geometry: square(1, 0, 1)},
	})
	assert.Error(t, err)

	_, err = NewRegionSet("x", []Region{{ID: "", Geometry: square(0, 0, 1)}})
	assert.Error(t, err)

	_, err = NewRegionSet("x", []Region{{ID: "01"}})
	assert.Error(t, err)
}

func TestRegionSetFingerprint(t *testing.T) {
	mk := func(size float64) RegionSet {
		s, err := NewRegionSet("x", []Region{{ID: "01", Geometry: square(0, 0, size)}})
		require.NoError(t, err)
		return s
	}
	assert.Equal(t, mk(1).Fingerprint(), mk(1).Fingerprint())
	assert.NotEqual(t, mk(1).Fingerprint(), mk(2).Fingerprint())
}

func TestMembershipRasterWindow(t *testing.T) {
	g := Grid{Rows: 3, Cols: 4, DX: 1, DY: 1}
	m := NewMembershipRaster(g, []string{"a", "b"})
	for _, i := range []int{5, 6, 10} {
		m.Cells[i] = 0
		m.Counts[0]++
	}
	m.Cells[0] = 1
	m.Counts[1]++

	assert.Equal(t, []int{5, 6, 10}, m.Members(0))
	assert.Equal(t, [][]int{{5, 6, 10}, {0}}, m.MemberLists())
	assert.Equal(t, Window{R0: 1, R1: 3, C0: 1, C1: 3}, m.BoundingWindow(m.Members(0)))
	assert.Equal(t, 4, m.Assigned())
	assert.Equal(t, Unassigned, m.At(2, 3))
}
