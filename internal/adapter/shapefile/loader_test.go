package shapefile_test

import (
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/ctessum/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/climate-region-stats/internal/adapter/shapefile"
	"github.com/couchcryptid/climate-region-stats/internal/domain"
)

func square(x0, y0, size float64) geom.Polygon {
	return geom.Polygon{{
		{X: x0, Y: y0},
		{X: x0 + size, Y: y0},
		{X: x0 + size, Y: y0 + size},
		{X: x0, Y: y0 + size},
		{X: x0, Y: y0},
	}}
}

func writeCounties(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "counties.shp")
	require.NoError(t, shapefile.Write(path, []domain.Region{
		{ID: "48453", Name: "Travis", State: "TX", Geometry: square(-98, 30, 1)},
		{ID: "06037", Name: "Los Angeles", State: "CA", Geometry: square(-119, 34, 1)},
		{ID: "48201", Name: "Harris", State: "TX", Geometry: square(-96, 29.5, 0.5)},
	}))
	return path
}

func TestLoad_StandardizesColumns(t *testing.T) {
	set, err := shapefile.NewLoader(slog.Default()).Load(writeCounties(t), shapefile.Options{})
	require.NoError(t, err)

	assert.Equal(t, "counties", set.Name)
	assert.Equal(t, []string{"06037", "48201", "48453"}, set.IDs())
	la := set.Regions[0]
	assert.Equal(t, "Los Angeles", la.Name)
	assert.Equal(t, "CA", la.State)
	assert.Equal(t, "Los Angeles, CA", la.DisplayName())
	assert.InDelta(t, 1.0, la.Geometry.Area(), 1e-9)
}

func TestLoad_StateFilter(t *testing.T) {
	set, err := shapefile.NewLoader(slog.Default()).Load(writeCounties(t), shapefile.Options{States: []string{"tx"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"48201", "48453"}, set.IDs())

	_, err = shapefile.NewLoader(slog.Default()).Load(writeCounties(t), shapefile.Options{States: []string{"NY"}})
	assert.Error(t, err)
}

func TestLoad_FieldOverride(t *testing.T) {
	set, err := shapefile.NewLoader(slog.Default()).Load(writeCounties(t), shapefile.Options{IDField: "NAME"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Harris", "Los Angeles", "Travis"}, set.IDs())
}

func TestLoad_ReadsEveryRowWhenCandidateColumnsAreAbsent(t *testing.T) {
	// The file carries GEOID, NAME and STUSPS only; FIPS, NAMELSAD and the
	// other candidates are absent.
	set, err := shapefile.NewLoader(slog.Default()).Load(writeCounties(t), shapefile.Options{})
	require.NoError(t, err)
	require.Equal(t, 3, set.Len())
	for _, r := range set.Regions {
		assert.NotEmpty(t, r.ID)
		assert.NotEqual(t, r.ID, r.Name)
		assert.NotEmpty(t, r.State)
	}
}

func TestLoad_AbsentOverrideField(t *testing.T) {
	_, err := shapefile.NewLoader(slog.Default()).Load(writeCounties(t), shapefile.Options{IDField: "COUNTYNS"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COUNTYNS")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := shapefile.NewLoader(slog.Default()).Load(filepath.Join(t.TempDir(), "nope.shp"), shapefile.Options{})
	assert.Error(t, err)
}

func TestStateAbbrev(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"48", "TX"},
		{"6", "CA"},
		{"Texas", "TX"},
		{"district of columbia", "DC"},
		{"tx", "TX"},
		{"", ""},
		{"Atlantis", "Atlantis"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, shapefile.StateAbbrev(tt.in))
		})
	}
}
