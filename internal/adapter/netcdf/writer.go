package netcdf

import (
	"fmt"
	"maps"
	"math"
	"slices"

	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/batchatco/go-native-netcdf/netcdf/cdf"
	"github.com/batchatco/go-native-netcdf/netcdf/util"
)

// YearFile is the content of one synthetic yearly file.
type YearFile struct {
	Variable  string
	Units     string
	Calendar  string
	TimeUnits string
	Times     []float64
	Lats      []float64
	Lons      []float64
	// Values is indexed [time][lat][lon]; NaN samples are written as FillValue,
	// declared through the missing_value attribute.
	Values    [][][]float32
	FillValue float32
	Global    map[string]string
}

// Write encodes f as a classic NetCDF file at path.
func Write(path string, f YearFile) error {
	cw, err := cdf.OpenWriter(path)
	if err != nil {
		return fmt.Errorf("create netcdf: %w", err)
	}

	if len(f.Global) > 0 {
		vals := make(map[string]any, len(f.Global))
		for k, v := range f.Global {
			vals[k] = v
		}
		global, err := util.NewOrderedMap(slices.Sorted(maps.Keys(f.Global)), vals)
		if err != nil {
			_ = cw.Close()
			return err
		}
		if err := cw.AddAttributes(global); err != nil {
			_ = cw.Close()
			return fmt.Errorf("global attributes: %w", err)
		}
	}

	values := make([][][]float32, len(f.Values))
	for t, plane := range f.Values {
		values[t] = make([][]float32, len(plane))
		for r, row := range plane {
			values[t][r] = make([]float32, len(row))
			for c, v := range row {
				if math.IsNaN(float64(v)) {
					v = f.FillValue
				}
				values[t][r][c] = v
			}
		}
	}

	vars := []struct {
		name string
		v    api.Variable
	}{
		{"time", api.Variable{Values: f.Times, Dimensions: []string{"time"},
			Attributes: attrs([]string{"units", "calendar"}, map[string]any{"units": f.TimeUnits, "calendar": f.Calendar})}},
		{"lat", api.Variable{Values: f.Lats, Dimensions: []string{"lat"},
			Attributes: attrs([]string{"units"}, map[string]any{"units": "degrees_north"})}},
		{"lon", api.Variable{Values: f.Lons, Dimensions: []string{"lon"},
			Attributes: attrs([]string{"units"}, map[string]any{"units": "degrees_east"})}},
		{f.Variable, api.Variable{Values: values, Dimensions: []string{"time", "lat", "lon"},
			Attributes: attrs([]string{"units", "missing_value"}, map[string]any{"units": f.Units, "missing_value": f.FillValue})}},
	}
	for _, v := range vars {
		if err := cw.AddVar(v.name, v.v); err != nil {
			_ = cw.Close()
			return fmt.Errorf("variable %q: %w", v.name, err)
		}
	}
	if err := cw.Close(); err != nil {
		return fmt.Errorf("close netcdf: %w", err)
	}
	return nil
}

func attrs(keys []string, vals map[string]any) api.AttributeMap {
	m, err := util.NewOrderedMap(keys, vals)
	if err != nil {
		panic(fmt.Sprintf("netcdf attributes: %v", err))
	}
	return m
}
