// Package storetest provides in-memory inputs for building stores in tests.
package storetest

import (
	"fmt"
	"sync"

	"github.com/couchcryptid/climate-region-stats/internal/discovery"
	"github.com/couchcryptid/climate-region-stats/internal/domain"
	"github.com/couchcryptid/climate-region-stats/internal/store"
)

// BaseYear is the reference year of generated time coordinates.
const BaseYear = 1950

// ValueFunc returns the sample at (day of year, row, col) of a year.
type ValueFunc func(year, day, row, col int) float32

// Opener serves YearData by path. Paths mapped to an error fail to open.
type Opener struct {
	mu     sync.Mutex
	data   map[string]*store.YearData
	errs   map[string]error
	opened []string
}

// NewOpener creates an empty Opener.
func NewOpener() *Opener {
	return &Opener{data: make(map[string]*store.YearData), errs: make(map[string]error)}
}

// Add registers data under path and returns the matching discovery entry.
func (o *Opener) Add(path string, year int, d *store.YearData) discovery.File {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.data[path] = d
	return discovery.File{Path: path, Year: year, Size: int64(4 * len(d.Values))}
}

// Fail registers path as unreadable.
func (o *Opener) Fail(path string, year int, err error) discovery.File {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errs[path] = err
	return discovery.File{Path: path, Year: year, Size: 1}
}

// Opened returns the paths opened so far.
func (o *Opener) Opened() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.opened...)
}

// Open implements store.Opener. The returned data is a copy.
func (o *Opener) Open(path, variable string) (*store.YearData, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opened = append(o.opened, path)
	if err, ok := o.errs[path]; ok {
		return nil, err
	}
	d, ok := o.data[path]
	if !ok {
		return nil, fmt.Errorf("open %s: no such file", path)
	}
	if d.Variable != variable {
		return nil, fmt.Errorf("variable %q not found in %s", variable, path)
	}
	cp := *d
	cp.Values = append([]float32(nil), d.Values...)
	cp.Times = append([]float64(nil), d.Times...)
	return &cp, nil
}

// Grid returns a north-up grid of rows x cols one-degree cells whose
// top-left corner is (x0, y0).
func Grid(rows, cols int, x0, y0 float64) domain.Grid {
	return domain.Grid{Rows: rows, Cols: cols, OriginX: x0, OriginY: y0, DX: 1, DY: -1, CRS: "+proj=longlat +datum=WGS84"}
}

// TimeUnits returns "days since BaseYear-01-01" under cal.
func TimeUnits(cal domain.Calendar) domain.TimeUnits {
	return domain.TimeUnits{Calendar: cal, StepDays: 1, BaseYear: BaseYear}
}

// DaysBefore returns the day offset of January 1 of year from BaseYear,
// negative for earlier years.
func DaysBefore(year int, cal domain.Calendar) int {
	n := 0
	for y := BaseYear; y < year; y++ {
		n += cal.DaysInYear(y)
	}
	for y := year; y < BaseYear; y++ {
		n -= cal.DaysInYear(y)
	}
	return n
}

// Year generates one complete year of daily data.
func Year(variable, units string, year int, cal domain.Calendar, g domain.Grid, f ValueFunc) *store.YearData {
	return Days(variable, units, year, cal.DaysInYear(year), cal, g, f)
}

// Days generates n consecutive days starting on January 1 of year.
func Days(variable, units string, year, n int, cal domain.Calendar, g domain.Grid, f ValueFunc) *store.YearData {
	base := DaysBefore(year, cal)
	times := make([]float64, n)
	values := make([]float32, 0, n*g.Cells())
	for d := 0; d < n; d++ {
		times[d] = float64(base + d)
		for r := 0; r < g.Rows; r++ {
			for c := 0; c < g.Cols; c++ {
				values = append(values, f(year, d, r, c))
			}
		}
	}
	return &store.YearData{
		Variable:  variable,
		Units:     units,
		Calendar:  cal,
		TimeUnits: TimeUnits(cal),
		Times:     times,
		Grid:      g,
		Values:    values,
	}
}
