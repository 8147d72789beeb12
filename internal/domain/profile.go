package domain

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// StatProfile computes the yearly statistic schema of one variable from a
// region's valid daily values. Profiles are chosen once per run.
type StatProfile interface {
	Variable() string
	Columns() []string
	Threshold() float64
	// Compute summarizes a non-empty series of daily values.
	Compute(daily []float64) map[string]float64
}

// DefaultThresholds holds the per-variable threshold defaults: one inch of
// rain, freezing for tas and tasmin, 90°F for tasmax.
var DefaultThresholds = map[string]float64{
	"pr":     25.4,
	"tas":    0,
	"tasmax": 32.2,
	"tasmin": 0,
}

// ProfileFor selects the statistic profile of a variable. Thresholds missing
// from overrides fall back to DefaultThresholds.
func ProfileFor(variable string, overrides map[string]float64) (StatProfile, error) {
	t, ok := overrides[variable]
	if !ok {
		t = DefaultThresholds[variable]
	}
	switch variable {
	case "pr":
		return precipProfile{threshold: t}, nil
	case "tas":
		return meanTempProfile{threshold: t}, nil
	case "tasmax":
		return maxTempProfile{threshold: t}, nil
	case "tasmin":
		return minTempProfile{threshold: t}, nil
	}
	return nil, fmt.Errorf("no statistic profile for variable %q", variable)
}

type precipProfile struct{ threshold float64 }

func (precipProfile) Variable() string     { return "pr" }
func (p precipProfile) Threshold() float64 { return p.threshold }

func (precipProfile) Columns() []string {
	return []string{
		"total_annual_precip_mm", "days_above_threshold", "mean_daily_precip_mm",
		"max_daily_precip_mm", "precip_std_mm", "dry_days", "wet_days",
		"precip_percentile_95", "precip_percentile_99",
	}
}

func (p precipProfile) Compute(daily []float64) map[string]float64 {
	s := summarize(daily)
	return map[string]float64{
		"total_annual_precip_mm": s.sum,
		"days_above_threshold":   countIf(daily, func(v float64) bool { return v > p.threshold }),
		"mean_daily_precip_mm":   s.mean,
		"max_daily_precip_mm":    s.max,
		"precip_std_mm":          s.std,
		"dry_days":               countIf(daily, func(v float64) bool { return v < 0.1 }),
		"wet_days":               countIf(daily, func(v float64) bool { return v >= 0.1 }),
		"precip_percentile_95":   percentile(daily, 95),
		"precip_percentile_99":   percentile(daily, 99),
	}
}

type meanTempProfile struct{ threshold float64 }

func (meanTempProfile) Variable() string     { return "tas" }
func (p meanTempProfile) Threshold() float64 { return p.threshold }

func (meanTempProfile) Columns() []string {
	return []string{
		"mean_annual_temp_c", "min_temp_c", "max_temp_c", "temp_range_c", "temp_std_c",
		"days_below_freezing", "days_above_30c", "growing_degree_days",
		"cooling_degree_days", "heating_degree_days",
	}
}

func (p meanTempProfile) Compute(daily []float64) map[string]float64 {
	s := summarize(daily)
	return map[string]float64{
		"mean_annual_temp_c":  s.mean,
		"min_temp_c":          s.min,
		"max_temp_c":          s.max,
		"temp_range_c":        s.max - s.min,
		"temp_std_c":          s.std,
		"days_below_freezing": countIf(daily, func(v float64) bool { return v < p.threshold }),
		"days_above_30c":      countIf(daily, func(v float64) bool { return v > 30 }),
		"growing_degree_days": degreeDaysAbove(daily, 10),
		"cooling_degree_days": degreeDaysAbove(daily, 18),
		"heating_degree_days": degreeDaysBelow(daily, 18),
	}
}

type maxTempProfile struct{ threshold float64 }

func (maxTempProfile) Variable() string     { return "tasmax" }
func (p maxTempProfile) Threshold() float64 { return p.threshold }

func (maxTempProfile) Columns() []string {
	return []string{
		"mean_annual_tasmax_c", "min_tasmax_c", "max_tasmax_c", "tasmax_range_c", "tasmax_std_c",
		"days_above_threshold_c", "threshold_temp_c", "days_above_30c", "days_above_35c",
		"days_above_40c", "growing_degree_days_max", "heat_index_days",
	}
}

func (p maxTempProfile) Compute(daily []float64) map[string]float64 {
	s := summarize(daily)
	return map[string]float64{
		"mean_annual_tasmax_c":    s.mean,
		"min_tasmax_c":            s.min,
		"max_tasmax_c":            s.max,
		"tasmax_range_c":          s.max - s.min,
		"tasmax_std_c":            s.std,
		"days_above_threshold_c":  countIf(daily, func(v float64) bool { return v > p.threshold }),
		"threshold_temp_c":        p.threshold,
		"days_above_30c":          countIf(daily, func(v float64) bool { return v > 30 }),
		"days_above_35c":          countIf(daily, func(v float64) bool { return v > 35 }),
		"days_above_40c":          countIf(daily, func(v float64) bool { return v > 40 }),
		"growing_degree_days_max": degreeDaysAbove(daily, 10),
		"heat_index_days":         countIf(daily, func(v float64) bool { return v > 32 }),
	}
}

type minTempProfile struct{ threshold float64 }

func (minTempProfile) Variable() string     { return "tasmin" }
func (p minTempProfile) Threshold() float64 { return p.threshold }

func (minTempProfile) Columns() []string {
	return []string{
		"mean_annual_tasmin_c", "min_tasmin_c", "max_tasmin_c", "tasmin_range_c", "tasmin_std_c",
		"cold_days", "extreme_cold_days", "very_extreme_cold_days", "days_above_freezing",
		"frost_free_days", "growing_degree_days_min", "heating_degree_days",
	}
}

func (p minTempProfile) Compute(daily []float64) map[string]float64 {
	s := summarize(daily)
	return map[string]float64{
		"mean_annual_tasmin_c":    s.mean,
		"min_tasmin_c":            s.min,
		"max_tasmin_c":            s.max,
		"tasmin_range_c":          s.max - s.min,
		"tasmin_std_c":            s.std,
		"cold_days":               countIf(daily, func(v float64) bool { return v < p.threshold }),
		"extreme_cold_days":       countIf(daily, func(v float64) bool { return v < -10 }),
		"very_extreme_cold_days":  countIf(daily, func(v float64) bool { return v < -20 }),
		"days_above_freezing":     countIf(daily, func(v float64) bool { return v >= 0 }),
		"frost_free_days":         countIf(daily, func(v float64) bool { return v > 0 }),
		"growing_degree_days_min": degreeDaysAbove(daily, 0),
		"heating_degree_days":     degreeDaysBelow(daily, 18),
	}
}

type summary struct {
	sum, mean, min, max, std float64
}

func summarize(xs []float64) summary {
	mean, variance := stat.PopMeanVariance(xs, nil)
	return summary{
		sum:  floats.Sum(xs),
		mean: mean,
		min:  floats.Min(xs),
		max:  floats.Max(xs),
		std:  math.Sqrt(variance),
	}
}

// CountAbove counts values strictly greater than threshold.
func CountAbove(xs []float64, threshold float64) float64 {
	return countIf(xs, func(v float64) bool { return v > threshold })
}

func countIf(xs []float64, keep func(float64) bool) float64 {
	n := 0
	for _, v := range xs {
		if keep(v) {
			n++
		}
	}
	return float64(n)
}

func degreeDaysAbove(xs []float64, base float64) float64 {
	total := 0.0
	for _, v := range xs {
		total += math.Max(v-base, 0)
	}
	return total
}

func degreeDaysBelow(xs []float64, base float64) float64 {
	total := 0.0
	for _, v := range xs {
		total += math.Max(base-v, 0)
	}
	return total
}

// percentile interpolates linearly between closest ranks, matching the
// default method of common array libraries.
func percentile(xs []float64, p float64) float64 {
	sorted := make([]float64, len(xs))
	copy(sorted, xs)
	sort.Float64s(sorted)
	if len(sorted) == 1 {
		return sorted[0]
	}
	h := float64(len(sorted)-1) * p / 100
	lo := int(math.Floor(h))
	if lo >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	return sorted[lo] + (h-float64(lo))*(sorted[lo+1]-sorted[lo])
}
