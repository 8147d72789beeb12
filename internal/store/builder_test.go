package store_test

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/climate-region-stats/internal/discovery"
	"github.com/couchcryptid/climate-region-stats/internal/domain"
	"github.com/couchcryptid/climate-region-stats/internal/store"
	"github.com/couchcryptid/climate-region-stats/internal/store/storetest"
)

func kelvin(year, day, row, col int) float32 {
	return float32(250 + float64(year-1950) + float64(day)*0.1 + float64(row) + float64(col)*0.01)
}

func testOptions(t *testing.T, codec string, level int) store.Options {
	t.Helper()
	c, err := store.NewCodec(codec, level)
	require.NoError(t, err)
	return store.Options{
		Variable:  "tas",
		Scenario:  "historical",
		Codec:     c,
		ChunkTime: 100,
		ChunkTile: 2,
		Strict:    true,
		Workers:   4,
	}
}

// threeYears registers 1950-1952 (365/365/366 days) on a 3x3 grid.
func threeYears(o *storetest.Opener, g domain.Grid) []discovery.File {
	var files []discovery.File
	for y := 1950; y <= 1952; y++ {
		path := fmt.Sprintf("/in/tas_day_historical_%d.nc", y)
		files = append(files, o.Add(path, y, storetest.Year("tas", "K", y, domain.CalendarStandard, g, kelvin)))
	}
	return files
}

func TestBuild_RoundTripPerYear(t *testing.T) {
	g := storetest.Grid(3, 3, -100, 40)
	o := storetest.NewOpener()
	files := threeYears(o, g)
	dest := filepath.Join(t.TempDir(), "tas_historical")

	m, err := store.NewBuilder(o, slog.Default()).Build(context.Background(), files, dest, testOptions(t, store.CodecZstd, 3))
	require.NoError(t, err)
	assert.Equal(t, 3, m.Summary().Ingested)
	assert.Empty(t, m.FilledYears)

	cube, err := store.Open(dest, 8)
	require.NoError(t, err)
	assert.Equal(t, 365+365+366, cube.Times())
	assert.True(t, cube.Grid().SameGeometry(g))
	assert.Equal(t, domain.UnitCelsius, cube.Attrs().Units)

	conv, err := domain.NormalizeUnits("tas", "K")
	require.NoError(t, err)
	for _, y := range []int{1950, 1951, 1952} {
		vals, span, err := cube.ReadYear(context.Background(), y)
		require.NoError(t, err)
		want := storetest.Year("tas", "K", y, domain.CalendarStandard, g, kelvin).Values
		conv.ApplyAll(want)
		require.Len(t, vals, span.Days*g.Cells())
		assert.Equal(t, want, vals, "year %d", y)
	}
}

func TestBuild_IdempotentRebuild(t *testing.T) {
	g := storetest.Grid(3, 5, 0, 10)
	o := storetest.NewOpener()
	files := threeYears(o, g)
	root := t.TempDir()
	b := store.NewBuilder(o, slog.Default())

	a := filepath.Join(root, "a", "tas_historical")
	c := filepath.Join(root, "b", "tas_historical")
	_, err := b.Build(context.Background(), files, a, testOptions(t, store.CodecZstd, 5))
	require.NoError(t, err)
	_, err = b.Build(context.Background(), files, c, testOptions(t, store.CodecZstd, 5))
	require.NoError(t, err)

	got := readTree(t, a)
	want := readTree(t, c)
	require.NotEmpty(t, got)
	assert.Equal(t, want, got)
}

func TestBuild_RebuildReplacesStore(t *testing.T) {
	g := storetest.Grid(2, 2, 0, 0)
	o := storetest.NewOpener()
	files := threeYears(o, g)
	dest := filepath.Join(t.TempDir(), "tas_historical")
	b := store.NewBuilder(o, slog.Default())

	_, err := b.Build(context.Background(), files, dest, testOptions(t, store.CodecLZ4, 0))
	require.NoError(t, err)
	_, err = b.Build(context.Background(), files[:2], dest, testOptions(t, store.CodecS2, 1))
	require.NoError(t, err)

	cube, err := store.Open(dest, 4)
	require.NoError(t, err)
	assert.Len(t, cube.Years(), 2)
	assertNoTempDirs(t, filepath.Dir(dest))
}

func TestBuild_SkipsCorruptFile(t *testing.T) {
	g := storetest.Grid(2, 2, 0, 0)
	o := storetest.NewOpener()
	files := threeYears(o, g)
	files[1] = o.Fail("/in/tas_day_historical_1951.nc", 1951, errors.New("not a netCDF file"))
	dest := filepath.Join(t.TempDir(), "tas_historical")

	m, err := store.NewBuilder(o, slog.Default()).Build(context.Background(), files, dest, testOptions(t, store.CodecZstd, 1))
	require.NoError(t, err)

	skipped := m.ByStatus(store.StatusSkipped)
	require.Len(t, skipped, 1)
	assert.Equal(t, 1951, skipped[0].FilenameYear)
	assert.Contains(t, skipped[0].Reason, "not a netCDF file")
	assert.Equal(t, []int{1951}, m.FilledYears)
	assert.Equal(t, 2, m.Summary().Ingested)

	cube, err := store.Open(dest, 4)
	require.NoError(t, err)
	vals, span, err := cube.ReadYear(context.Background(), 1951)
	require.NoError(t, err)
	assert.True(t, span.Filled)
	assert.Equal(t, 365, span.Days)
	for _, v := range vals {
		require.True(t, math.IsNaN(float64(v)))
	}
}

func TestBuild_LeadingCorruptYearIsFilled(t *testing.T) {
	g := storetest.Grid(2, 2, 0, 0)
	o := storetest.NewOpener()
	files := threeYears(o, g)
	files[0] = o.Fail("/in/tas_day_historical_1950.nc", 1950, errors.New("truncated"))
	dest := filepath.Join(t.TempDir(), "tas_historical")

	m, err := store.NewBuilder(o, slog.Default()).Build(context.Background(), files, dest, testOptions(t, store.CodecZstd, 1))
	require.NoError(t, err)
	assert.Equal(t, []int{1950}, m.FilledYears)

	cube, err := store.Open(dest, 4)
	require.NoError(t, err)
	years := cube.Years()
	require.Len(t, years, 3)
	assert.Equal(t, domain.YearSpan{Year: 1950, Start: 0, Days: 365, Filled: true}, years[0])
	assert.Equal(t, 365, years[1].Start)
}

func TestBuild_MissingVariableIsCorrupt(t *testing.T) {
	g := storetest.Grid(2, 2, 0, 0)
	o := storetest.NewOpener()
	files := threeYears(o, g)
	files[2] = o.Add("/in/tas_day_historical_1952.nc", 1952,
		storetest.Year("pr", "kg m-2 s-1", 1952, domain.CalendarStandard, g, kelvin))

	m, err := store.NewBuilder(o, slog.Default()).Build(context.Background(), files, filepath.Join(t.TempDir(), "s"), testOptions(t, store.CodecNone, 0))
	require.NoError(t, err)
	require.Len(t, m.ByStatus(store.StatusSkipped), 1)
	assert.Equal(t, []int{1952}, m.FilledYears)
}

func TestBuild_TemporalGapIsFatal(t *testing.T) {
	g := storetest.Grid(2, 2, 0, 0)
	o := storetest.NewOpener()
	files := threeYears(o, g)
	files[1] = o.Add("/in/tas_day_historical_1951.nc", 1951,
		storetest.Days("tas", "K", 1951, 364, domain.CalendarStandard, g, kelvin))
	root := t.TempDir()
	dest := filepath.Join(root, "tas_historical")

	_, err := store.NewBuilder(o, slog.Default()).Build(context.Background(), files, dest, testOptions(t, store.CodecZstd, 1))
	var gap *domain.TemporalGapError
	require.ErrorAs(t, err, &gap)
	assert.Equal(t, 1951, gap.Year)
	assert.Equal(t, 365, gap.Expected)
	assert.Equal(t, 364, gap.Got)
	assert.NoDirExists(t, dest)
	assertNoTempDirs(t, root)
}

func TestBuild_ProvenanceMismatchStrict(t *testing.T) {
	g := storetest.Grid(2, 2, 0, 0)
	o := storetest.NewOpener()
	files := threeYears(o, g)
	// The 1951 file actually holds 1952.
	files[1] = o.Add("/in/tas_day_historical_1951.nc", 1951,
		storetest.Year("tas", "K", 1952, domain.CalendarStandard, g, kelvin))
	other := storetest.Grid(3, 3, 0, 0)
	files[2] = o.Add("/in/tas_day_historical_1952.nc", 1952,
		storetest.Year("tas", "K", 1952, domain.CalendarStandard, other, kelvin))
	root := t.TempDir()
	dest := filepath.Join(root, "tas_historical")

	_, err := store.NewBuilder(o, slog.Default()).Build(context.Background(), files, dest, testOptions(t, store.CodecZstd, 1))
	require.Error(t, err)
	var pm *domain.ProvenanceMismatchError
	require.ErrorAs(t, err, &pm)
	assert.Equal(t, 1951, pm.FilenameYear)
	assert.Equal(t, 1952, pm.MetadataYear)
	assert.Contains(t, err.Error(), "grid")
	assert.NoDirExists(t, dest)
	assertNoTempDirs(t, root)
}

func TestBuild_ProvenanceMismatchLenient(t *testing.T) {
	g := storetest.Grid(2, 2, 0, 0)
	o := storetest.NewOpener()
	files := threeYears(o, g)
	files[1] = o.Add("/in/tas_day_historical_1951.nc", 1951,
		storetest.Year("tas", "K", 1952, domain.CalendarStandard, g, kelvin))
	opts := testOptions(t, store.CodecZstd, 1)
	opts.Strict = false

	m, err := store.NewBuilder(o, slog.Default()).Build(context.Background(), files, filepath.Join(t.TempDir(), "s"), opts)
	require.NoError(t, err)
	flagged := m.ByStatus(store.StatusFlagged)
	require.Len(t, flagged, 1)
	assert.Equal(t, 1952, flagged[0].MetadataYear)
	assert.Equal(t, []int{1951}, m.FilledYears)
}

func TestBuild_AllFilesCorrupt(t *testing.T) {
	o := storetest.NewOpener()
	files := []discovery.File{
		o.Fail("/in/a_1950.nc", 1950, errors.New("bad")),
		o.Fail("/in/a_1951.nc", 1951, errors.New("bad")),
	}
	root := t.TempDir()
	_, err := store.NewBuilder(o, slog.Default()).Build(context.Background(), files, filepath.Join(root, "s"), testOptions(t, store.CodecZstd, 1))
	require.Error(t, err)
	assertNoTempDirs(t, root)
}

func TestBuild_Cancelled(t *testing.T) {
	g := storetest.Grid(2, 2, 0, 0)
	o := storetest.NewOpener()
	files := threeYears(o, g)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	root := t.TempDir()
	_, err := store.NewBuilder(o, slog.Default()).Build(ctx, files, filepath.Join(root, "s"), testOptions(t, store.CodecZstd, 1))
	require.ErrorIs(t, err, context.Canceled)
	assertNoTempDirs(t, root)
}

func TestReadWindow_CrossesChunks(t *testing.T) {
	g := storetest.Grid(5, 4, 0, 0)
	o := storetest.NewOpener()
	files := threeYears(o, g)
	dest := filepath.Join(t.TempDir(), "tas_historical")
	opts := testOptions(t, store.CodecS2, 2)
	opts.ChunkTime = 7
	opts.ChunkTile = 3
	_, err := store.NewBuilder(o, slog.Default()).Build(context.Background(), files, dest, opts)
	require.NoError(t, err)

	cube, err := store.Open(dest, 2)
	require.NoError(t, err)
	w := domain.Window{T0: 360, T1: 372, R0: 1, R1: 5, C0: 2, C1: 4}
	vals, err := cube.ReadWindow(context.Background(), w)
	require.NoError(t, err)
	require.Len(t, vals, w.Len())

	conv, _ := domain.NormalizeUnits("tas", "K")
	i := 0
	for tt := w.T0; tt < w.T1; tt++ {
		year, day, ok := cube.Index().Lookup(tt)
		require.True(t, ok)
		for r := w.R0; r < w.R1; r++ {
			for c := w.C0; c < w.C1; c++ {
				assert.Equal(t, conv.Apply(kelvin(year, day, r, c)), vals[i], "t=%d r=%d c=%d", tt, r, c)
				i++
			}
		}
	}

	_, err = cube.ReadWindow(context.Background(), domain.Window{T0: 0, T1: 1, R0: 0, R1: 6, C0: 0, C1: 1})
	assert.Error(t, err)
}

func TestReadWindow_MissingChunkIsAnError(t *testing.T) {
	g := storetest.Grid(3, 3, 0, 0)
	o := storetest.NewOpener()
	files := threeYears(o, g)
	dest := filepath.Join(t.TempDir(), "tas_historical")
	_, err := store.NewBuilder(o, slog.Default()).Build(context.Background(), files, dest, testOptions(t, store.CodecZstd, 3))
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(dest, "tas", "0.0.0")))

	cube, err := store.Open(dest, 2)
	require.NoError(t, err)
	_, err = cube.ReadWindow(context.Background(), domain.Window{T0: 0, T1: 1, R0: 0, R1: 1, C0: 0, C1: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "0.0.0")
}

func TestVerify(t *testing.T) {
	g := storetest.Grid(3, 3, 0, 0)
	o := storetest.NewOpener()
	files := threeYears(o, g)
	dest := filepath.Join(t.TempDir(), "tas_historical")
	_, err := store.NewBuilder(o, slog.Default()).Build(context.Background(), files, dest, testOptions(t, store.CodecZstd, 3))
	require.NoError(t, err)

	rep, err := store.Verify(context.Background(), dest)
	require.NoError(t, err)
	assert.True(t, rep.OK(), rep.Problems)
	assert.Equal(t, 1096, rep.Steps)
	// 11 time chunks x 2x2 tiles.
	assert.Equal(t, 44, rep.Chunks)

	require.NoError(t, os.WriteFile(filepath.Join(dest, "tas", "0.0.0"), []byte("garbage"), 0o644))
	rep, err = store.Verify(context.Background(), dest)
	require.NoError(t, err)
	assert.False(t, rep.OK())
	assert.Contains(t, rep.Problems[0], "0.0.0")
}

func TestNewCodec(t *testing.T) {
	payload := make([]byte, 4096)
	for i := range payload {
		payload[i] = byte(i % 17)
	}
	for _, id := range []string{store.CodecZstd, store.CodecLZ4, store.CodecS2, store.CodecNone} {
		t.Run(id, func(t *testing.T) {
			c, err := store.NewCodec(id, 3)
			require.NoError(t, err)
			comp, err := c.Compress(payload)
			require.NoError(t, err)
			out, err := c.Decompress(comp, len(payload))
			require.NoError(t, err)
			assert.Equal(t, payload, out)
		})
	}

	_, err := store.NewCodec("blosc", 1)
	assert.Error(t, err)
	_, err = store.NewCodec(store.CodecZstd, 30)
	assert.Error(t, err)
}

func readTree(t *testing.T, root string) map[string][]byte {
	t.Helper()
	files := make(map[string][]byte)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, _ := filepath.Rel(root, path)
		data, err := os.ReadFile(path)
		files[rel] = data
		return err
	})
	require.NoError(t, err)
	return files
}

func assertNoTempDirs(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp-")
	}
}
