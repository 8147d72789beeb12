// Command genmock writes a small synthetic climate archive for local runs and
// integration tests: yearly NetCDF files per variable with realistic units,
// the filesystem artifacts discovery must ignore, an optional corrupt year,
// and a county-style shapefile tiling the grid.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -data-dir data/mock/loca \
//	  -regions data/mock/regions/counties.shp \
//	  -start 1950 -end 1954 -corrupt 1952
package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"

	"github.com/ctessum/geom"

	"github.com/couchcryptid/climate-region-stats/internal/adapter/netcdf"
	"github.com/couchcryptid/climate-region-stats/internal/adapter/shapefile"
	"github.com/couchcryptid/climate-region-stats/internal/domain"
)

const (
	baseYear = 1950
	model    = "MOCK-ESM"
)

type gridSpec struct {
	rows, cols int
	lat0, lon0 float64 // south-west cell corner, lon in 0..360
	res        float64
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	dataDir := flag.String("data-dir", "", "output directory for yearly NetCDF files")
	regionsPath := flag.String("regions", "", "output path for the county shapefile (.shp)")
	variables := flag.String("variables", "pr,tas,tasmax,tasmin", "comma-separated variables")
	scenario := flag.String("scenario", "historical", "scenario token written into file names")
	start := flag.Int("start", baseYear, "first year")
	end := flag.Int("end", baseYear+4, "last year")
	calendar := flag.String("calendar", string(domain.CalendarNoLeap), "CF calendar of the time axis")
	rows := flag.Int("rows", 8, "grid rows")
	cols := flag.Int("cols", 12, "grid columns")
	res := flag.Float64("res", 0.0625, "grid resolution in degrees")
	countyRows := flag.Int("county-rows", 2, "county tiles per grid column")
	countyCols := flag.Int("county-cols", 3, "county tiles per grid row")
	corrupt := flag.Int("corrupt", 0, "year whose files are written truncated; 0 disables")
	seed := flag.Uint64("seed", 42, "random seed")
	flag.Parse()

	if *dataDir == "" || *regionsPath == "" {
		flag.Usage()
		return fmt.Errorf("missing required flags: -data-dir, -regions")
	}
	if *end < *start || *start < baseYear {
		return fmt.Errorf("invalid year range %d-%d (first year must be >= %d)", *start, *end, baseYear)
	}
	cal, err := domain.ParseCalendar(*calendar)
	if err != nil {
		return err
	}
	g := gridSpec{rows: *rows, cols: *cols, lat0: 39.0, lon0: 255.0, res: *res}

	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		return err
	}
	rng := rand.New(rand.NewPCG(*seed, *seed^0x9e3779b97f4a7c15))
	for _, v := range strings.Split(*variables, ",") {
		v = strings.TrimSpace(v)
		for y := *start; y <= *end; y++ {
			name := fmt.Sprintf("%s_day_%s_%s_r1i1p1f1_gn_%d.nc", v, model, *scenario, y)
			path := filepath.Join(*dataDir, name)
			if y == *corrupt {
				if err := os.WriteFile(path, []byte("CDF\x01truncated"), 0o600); err != nil {
					return err
				}
				log.Printf("%s: corrupt", name)
				continue
			}
			if err := netcdf.Write(path, yearFile(v, *scenario, y, cal, g, rng)); err != nil {
				return fmt.Errorf("write %s: %w", name, err)
			}
			// macOS resource fork companions look like data to a naive glob.
			if err := os.WriteFile(filepath.Join(*dataDir, "._"+name), []byte{0, 5, 22, 7}, 0o600); err != nil {
				return err
			}
		}
		log.Printf("%s: wrote %d years", v, *end-*start+1)
	}
	if err := os.WriteFile(filepath.Join(*dataDir, ".DS_Store"), []byte{0, 0, 0, 1}, 0o600); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(*regionsPath), 0o755); err != nil {
		return err
	}
	counties := tileCounties(g, *countyRows, *countyCols)
	if err := shapefile.Write(*regionsPath, counties); err != nil {
		return err
	}
	log.Printf("wrote %d counties to %s", len(counties), *regionsPath)
	return nil
}

// yearFile synthesizes one year of daily data in the units climate archives
// publish: kelvin for temperatures and kg m-2 s-1 for precipitation.
func yearFile(variable, scenario string, year int, cal domain.Calendar, g gridSpec, rng *rand.Rand) netcdf.YearFile {
	days := cal.DaysInYear(year)
	offset := 0
	for y := baseYear; y < year; y++ {
		offset += cal.DaysInYear(y)
	}

	lats := make([]float64, g.rows)
	for r := range lats {
		lats[r] = g.lat0 + (float64(g.rows-1-r)+0.5)*g.res
	}
	lons := make([]float64, g.cols)
	for c := range lons {
		lons[c] = g.lon0 + (float64(c)+0.5)*g.res
	}

	times := make([]float64, days)
	values := make([][][]float32, days)
	for d := range days {
		times[d] = float64(offset+d) + 0.5
		season := math.Cos(2 * math.Pi * (float64(d) - 200) / float64(days))
		plane := make([][]float32, g.rows)
		for r := range plane {
			plane[r] = make([]float32, g.cols)
			for c := range plane[r] {
				plane[r][c] = sample(variable, season, float64(r)/float64(g.rows), rng)
			}
		}
		values[d] = plane
	}

	units := "K"
	if variable == "pr" {
		units = "kg m-2 s-1"
	}
	return netcdf.YearFile{
		Variable:  variable,
		Units:     units,
		Calendar:  string(cal),
		TimeUnits: fmt.Sprintf("days since %d-01-01 00:00:00", baseYear),
		Times:     times,
		Lats:      lats,
		Lons:      lons,
		Values:    values,
		FillValue: 1e20,
		Global: map[string]string{
			"scenario":      scenario,
			"source_id":     model,
			"variable_id":   variable,
			"frequency":     "day",
			"creation_date": fmt.Sprintf("%d-12-31", year),
		},
	}
}

func sample(variable string, season, northness float64, rng *rand.Rand) float32 {
	const kelvin = 273.15
	switch variable {
	case "pr":
		if rng.Float64() < 0.6 {
			return 0
		}
		mm := rng.ExpFloat64() * 6
		return float32(mm / 86400)
	case "tasmax":
		return float32(kelvin + 18 + 14*season - 4*northness + rng.NormFloat64()*3)
	case "tasmin":
		return float32(kelvin + 2 + 12*season - 4*northness + rng.NormFloat64()*3)
	}
	return float32(kelvin + 10 + 13*season - 4*northness + rng.NormFloat64()*2)
}

// tileCounties splits the grid extent into ny by nx rectangles with western
// longitudes, the way county boundaries are usually distributed.
func tileCounties(g gridSpec, ny, nx int) []domain.Region {
	west := g.lon0 - 360
	width := float64(g.cols) * g.res / float64(nx)
	height := float64(g.rows) * g.res / float64(ny)

	regions := make([]domain.Region, 0, ny*nx)
	for i := range ny {
		for j := range nx {
			x0, y0 := west+float64(j)*width, g.lat0+float64(i)*height
			x1, y1 := x0+width, y0+height
			n := i*nx + j
			regions = append(regions, domain.Region{
				ID:    fmt.Sprintf("08%03d", 2*n+1),
				Name:  fmt.Sprintf("Mock %d", n+1),
				State: "CO",
				Geometry: geom.Polygon{{
					{X: x0, Y: y0}, {X: x0, Y: y1}, {X: x1, Y: y1}, {X: x1, Y: y0}, {X: x0, Y: y0},
				}},
			})
		}
	}
	return regions
}
