// Package netcdf reads and writes the yearly CF-convention NetCDF files the
// store is built from.
package netcdf

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"

	"github.com/couchcryptid/climate-region-stats/internal/domain"
	"github.com/couchcryptid/climate-region-stats/internal/store"
)

// Reader decodes one (time, lat, lon) variable per file.
type Reader struct {
	logger *slog.Logger
}

// NewReader creates a Reader.
func NewReader(logger *slog.Logger) *Reader {
	return &Reader{logger: logger}
}

var _ store.Opener = (*Reader)(nil)

// Open implements store.Opener.
func (r *Reader) Open(path, variable string) (*store.YearData, error) {
	nc, err := netcdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open netcdf: %w", err)
	}
	defer nc.Close()

	vg, err := nc.GetVarGetter(variable)
	if err != nil {
		return nil, fmt.Errorf("variable %q not in %v: %w", variable, nc.ListVariables(), err)
	}
	dims := vg.Dimensions()
	if len(dims) != 3 {
		return nil, fmt.Errorf("variable %q has dimensions %v, want (time, lat, lon)", variable, dims)
	}

	times, timeAttrs, err := coordinate(nc, dims[0])
	if err != nil {
		return nil, err
	}
	lats, _, err := coordinate(nc, dims[1])
	if err != nil {
		return nil, err
	}
	lons, _, err := coordinate(nc, dims[2])
	if err != nil {
		return nil, err
	}

	cal, err := domain.ParseCalendar(stringAttr(timeAttrs, "calendar"))
	if err != nil {
		return nil, err
	}
	tu, err := domain.ParseTimeUnits(stringAttr(timeAttrs, "units"), cal)
	if err != nil {
		return nil, err
	}
	grid, err := domain.GridFromCenters(lats, lons)
	if err != nil {
		return nil, fmt.Errorf("grid: %w", err)
	}

	raw, err := vg.Values()
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", variable, err)
	}
	attrs := vg.Attributes()
	values, err := flatten(raw, decodingFor(attrs))
	if err != nil {
		return nil, fmt.Errorf("variable %q: %w", variable, err)
	}
	if len(values) != len(times)*grid.Cells() {
		return nil, fmt.Errorf("variable %q holds %d values, want %d", variable, len(values), len(times)*grid.Cells())
	}

	r.logger.Debug("read netcdf", "path", path, "variable", variable,
		"steps", len(times), "rows", grid.Rows, "cols", grid.Cols, "calendar", cal)
	return &store.YearData{
		Variable:  variable,
		Units:     stringAttr(attrs, "units"),
		Calendar:  cal,
		TimeUnits: tu,
		Times:     times,
		Grid:      grid,
		Values:    values,
	}, nil
}

func coordinate(nc api.Group, name string) ([]float64, api.AttributeMap, error) {
	v, err := nc.GetVariable(name)
	if err != nil {
		return nil, nil, fmt.Errorf("coordinate %q: %w", name, err)
	}
	vals, err := toFloat64s(v.Values)
	if err != nil {
		return nil, nil, fmt.Errorf("coordinate %q: %w", name, err)
	}
	return vals, v.Attributes, nil
}

// decoding describes CF packing and missing-value attributes.
type decoding struct {
	scale, offset float64
	missing       []float64
}

func decodingFor(attrs api.AttributeMap) decoding {
	d := decoding{scale: 1}
	if v, ok := numberAttr(attrs, "scale_factor"); ok {
		d.scale = v
	}
	if v, ok := numberAttr(attrs, "add_offset"); ok {
		d.offset = v
	}
	for _, k := range []string{"_FillValue", "missing_value"} {
		if v, ok := numberAttr(attrs, k); ok {
			d.missing = append(d.missing, v)
		}
	}
	return d
}

func (d decoding) apply(raw float64) float32 {
	for _, m := range d.missing {
		if raw == m || (math.IsNaN(m) && math.IsNaN(raw)) {
			return float32(math.NaN())
		}
	}
	return float32(raw*d.scale + d.offset)
}

// flatten turns the nested slices returned for a 3-D variable into C order.
func flatten(raw any, d decoding) ([]float32, error) {
	switch v := raw.(type) {
	case [][][]float32:
		return flattenAs(v, func(x float32) float64 { return float64(x) }, d), nil
	case [][][]float64:
		return flattenAs(v, func(x float64) float64 { return x }, d), nil
	case [][][]int16:
		return flattenAs(v, func(x int16) float64 { return float64(x) }, d), nil
	case [][][]int32:
		return flattenAs(v, func(x int32) float64 { return float64(x) }, d), nil
	}
	return nil, fmt.Errorf("unsupported value type %T", raw)
}

func flattenAs[T any](v [][][]T, conv func(T) float64, d decoding) []float32 {
	n := 0
	if len(v) > 0 && len(v[0]) > 0 {
		n = len(v) * len(v[0]) * len(v[0][0])
	}
	out := make([]float32, 0, n)
	for _, plane := range v {
		for _, row := range plane {
			for _, x := range row {
				out = append(out, d.apply(conv(x)))
			}
		}
	}
	return out
}

func toFloat64s(raw any) ([]float64, error) {
	switch v := raw.(type) {
	case []float64:
		return v, nil
	case []float32:
		out := make([]float64, len(v))
		for i, x := range v {
			out[i] = float64(x)
		}
		return out, nil
	case []int32:
		out := make([]float64, len(v))
		for i, x := range v {
			out[i] = float64(x)
		}
		return out, nil
	case []int64:
		out := make([]float64, len(v))
		for i, x := range v {
			out[i] = float64(x)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported coordinate type %T", raw)
}

func stringAttr(attrs api.AttributeMap, key string) string {
	if attrs == nil {
		return ""
	}
	v, ok := attrs.Get(key)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

func numberAttr(attrs api.AttributeMap, key string) (float64, bool) {
	if attrs == nil {
		return 0, false
	}
	v, ok := attrs.Get(key)
	if !ok {
		return 0, false
	}
	switch x := v.(type) {
	case float32:
		return float64(x), true
	case float64:
		return x, true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case []float32:
		if len(x) > 0 {
			return float64(x[0]), true
		}
	case []float64:
		if len(x) > 0 {
			return x[0], true
		}
	}
	return 0, false
}
