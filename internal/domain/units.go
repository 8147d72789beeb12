package domain

import (
	"fmt"
	"math"
	"strings"
)

// Analysis units.
const (
	UnitCelsius  = "degC"
	UnitMMPerDay = "mm/day"
)

const (
	kelvinOffset   = 273.15
	secondsPerDay  = 86400
	fahrenheitBase = 32.0
)

// Conversion is an affine unit transform v*Scale + Offset.
type Conversion struct {
	From   string
	To     string
	Scale  float64
	Offset float64
}

// Identity reports whether the conversion leaves values unchanged.
func (c Conversion) Identity() bool { return c.Scale == 1 && c.Offset == 0 }

// Apply converts one value. NaN stays NaN.
func (c Conversion) Apply(v float32) float32 {
	if math.IsNaN(float64(v)) {
		return v
	}
	return float32(float64(v)*c.Scale + c.Offset)
}

// ApplyAll converts values in place.
func (c Conversion) ApplyAll(values []float32) {
	if c.Identity() {
		return
	}
	for i, v := range values {
		values[i] = c.Apply(v)
	}
}

// IsTemperature reports whether the variable is one of the temperature fields.
func IsTemperature(variable string) bool {
	switch variable {
	case "tas", "tasmax", "tasmin":
		return true
	}
	return false
}

// NormalizeUnits returns the conversion from a file's declared units into
// the analysis unit for the variable.
func NormalizeUnits(variable, units string) (Conversion, error) {
	u := canonicalUnits(units)
	switch {
	case IsTemperature(variable):
		switch u {
		case "k", "kelvin", "degk", "degreesk":
			return Conversion{From: units, To: UnitCelsius, Scale: 1, Offset: -kelvinOffset}, nil
		case "c", "degc", "celsius", "degreesc", "degreec":
			return Conversion{From: units, To: UnitCelsius, Scale: 1}, nil
		case "f", "degf", "fahrenheit", "degreesf":
			return Conversion{From: units, To: UnitCelsius, Scale: 5.0 / 9.0, Offset: -fahrenheitBase * 5.0 / 9.0}, nil
		}
	case variable == "pr":
		switch u {
		case "kgm-2s-1", "kg/m2/s", "kgm^-2s^-1", "kg/m^2/s", "kgm-2.s-1":
			return Conversion{From: units, To: UnitMMPerDay, Scale: secondsPerDay}, nil
		case "mm/day", "mmd-1", "mm/d", "mmday-1":
			return Conversion{From: units, To: UnitMMPerDay, Scale: 1}, nil
		}
	default:
		return Conversion{From: units, To: units, Scale: 1}, nil
	}
	return Conversion{}, fmt.Errorf("unsupported units %q for variable %s", units, variable)
}

// AnalysisUnits returns the unit a variable is stored in.
func AnalysisUnits(variable string) string {
	switch {
	case IsTemperature(variable):
		return UnitCelsius
	case variable == "pr":
		return UnitMMPerDay
	}
	return ""
}

func canonicalUnits(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "_", "")
	s = strings.ReplaceAll(s, "°", "deg")
	return s
}
