package pipeline_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/ctessum/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/climate-region-stats/internal/adapter/csvfile"
	"github.com/couchcryptid/climate-region-stats/internal/adapter/netcdf"
	"github.com/couchcryptid/climate-region-stats/internal/adapter/shapefile"
	"github.com/couchcryptid/climate-region-stats/internal/aggregate"
	"github.com/couchcryptid/climate-region-stats/internal/discovery"
	"github.com/couchcryptid/climate-region-stats/internal/domain"
	"github.com/couchcryptid/climate-region-stats/internal/observability"
	"github.com/couchcryptid/climate-region-stats/internal/pipeline"
	"github.com/couchcryptid/climate-region-stats/internal/raster"
	"github.com/couchcryptid/climate-region-stats/internal/store"
)

// writeTasmaxYear writes one noleap year on a 2x3 grid whose first column
// holds west and the others east.
func writeTasmaxYear(t *testing.T, dir string, year int, west, east float32) {
	t.Helper()
	offset := (year - 1950) * 365
	times := make([]float64, 365)
	values := make([][][]float32, 365)
	for d := range values {
		times[d] = float64(offset + d)
		values[d] = [][]float32{{west, east, east}, {west, east, east}}
	}
	name := fmt.Sprintf("tasmax_day_MOCK_historical_r1i1p1f1_gn_%d.nc", year)
	require.NoError(t, netcdf.Write(filepath.Join(dir, name), netcdf.YearFile{
		Variable:  "tasmax",
		Units:     "K",
		Calendar:  "noleap",
		TimeUnits: "days since 1950-01-01 00:00:00",
		Times:     times,
		Lats:      []float64{35.5, 34.5},
		Lons:      []float64{260.5, 261.5, 262.5},
		Values:    values,
		FillValue: 1e20,
		Global:    map[string]string{"scenario": "historical"},
	}))
}

func TestPipeline_Run_RealFiles(t *testing.T) {
	root := t.TempDir()
	dataDir := filepath.Join(root, "data")
	require.NoError(t, os.MkdirAll(dataDir, 0o755))
	writeTasmaxYear(t, dataDir, 1950, 300, 310)
	writeTasmaxYear(t, dataDir, 1952, 300, 310)
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "tasmax_day_MOCK_historical_r1i1p1f1_gn_1951.nc"), []byte("CDF\x01junk"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "._tasmax_day_MOCK_historical_r1i1p1f1_gn_1950.nc"), []byte{0, 5, 22, 7}, 0o600))

	regionsPath := filepath.Join(root, "counties.shp")
	box := func(x0, x1 float64) geom.Polygon {
		return geom.Polygon{{{X: x0, Y: 34}, {X: x0, Y: 36}, {X: x1, Y: 36}, {X: x1, Y: 34}, {X: x0, Y: 34}}}
	}
	require.NoError(t, shapefile.Write(regionsPath, []domain.Region{
		{ID: "08001", Name: "West", State: "CO", Geometry: box(-100, -99)},
		{ID: "08003", Name: "East", State: "CO", Geometry: box(-99, -97)},
	}))

	cfg := domain.RunConfig{
		RunID:            "run-files",
		DataDir:          dataDir,
		FilePattern:      "*.nc",
		StoreDir:         filepath.Join(root, "store"),
		OutputDir:        filepath.Join(root, "output"),
		Variables:        []string{"tasmax"},
		Scenario:         "historical",
		Codec:            store.CodecZstd,
		CodecLevel:       3,
		ChunkTime:        365,
		ChunkTile:        2,
		StrictProvenance: true,
		Workers:          2,
		Strategy:         domain.StrategyAuto,
		ChunkCacheSize:   4,
		BatchSize:        4,
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	shp := shapefile.NewLoader(logger)
	sink := &mockLoader{}
	p := pipeline.New(cfg, pipeline.Stages{
		Discoverer: discovery.New(logger),
		Builder:    store.NewBuilder(netcdf.NewReader(logger), logger),
		Cubes: pipeline.CubeOpenerFunc(func(dir string, n int) (aggregate.Source, error) {
			c, err := store.Open(dir, n)
			if err != nil {
				return nil, err
			}
			return c, nil
		}),
		Regions: pipeline.RegionSourceFunc(func() (domain.RegionSet, error) {
			return shp.Load(regionsPath, shapefile.Options{})
		}),
		Rasterizer: raster.New(2, logger),
		Aggregator: aggregate.NewEngine(logger),
		Tables:     csvfile.NewWriter(cfg.OutputDir, logger),
		Loaders:    map[string]pipeline.BatchLoader{"memory": sink},
	}, logger, observability.NewMetricsForTesting())

	require.NoError(t, p.Run(context.Background()))

	report, ok := p.LatestRun()
	require.True(t, ok)
	require.True(t, report.OK())
	require.Len(t, report.Variables, 1)
	vr := report.Variables[0]
	assert.Equal(t, 6, vr.Rows)
	assert.Equal(t, 2, vr.Missing)
	require.NotNil(t, vr.Manifest)
	assert.EqualValues(t, 2, vr.Manifest.Ingested)
	assert.Equal(t, []int{1951}, vr.Manifest.FilledYears)

	check, err := csvfile.CheckFile(csvfile.TablePath(cfg.OutputDir, "tasmax", "historical"))
	require.NoError(t, err)
	assert.Equal(t, 6, check.Rows)
	assert.Empty(t, check.Duplicates)

	got := map[string]domain.Row{}
	for _, b := range sink.batches {
		for _, r := range b {
			got[fmt.Sprintf("%s|%d", r.RegionID, r.Year)] = r
		}
	}
	require.Len(t, got, 6)
	for _, year := range []int{1950, 1952} {
		west := got[fmt.Sprintf("08001|%d", year)]
		east := got[fmt.Sprintf("08003|%d", year)]
		require.False(t, west.Missing)
		require.False(t, east.Missing)
		assert.InDelta(t, 300-273.15, west.Stats["mean_annual_tasmax_c"], 1e-3)
		assert.InDelta(t, 310-273.15, east.Stats["mean_annual_tasmax_c"], 1e-3)
		assert.Equal(t, "West", west.RegionName)
		assert.Equal(t, "CO", east.State)
	}
	for _, id := range []string{"08001", "08003"} {
		r := got[id+"|1951"]
		assert.True(t, r.Missing)
		assert.Nil(t, r.Stats)
	}
}
