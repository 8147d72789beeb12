package domain

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Calendar is a CF-conventions calendar name.
type Calendar string

const (
	CalendarStandard Calendar = "standard"
	CalendarNoLeap   Calendar = "noleap"
	CalendarAllLeap  Calendar = "all_leap"
	Calendar360Day   Calendar = "360_day"
	CalendarJulian   Calendar = "julian"
)

// ParseCalendar maps CF aliases onto a Calendar. An empty name is standard.
func ParseCalendar(name string) (Calendar, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "standard", "gregorian", "proleptic_gregorian":
		return CalendarStandard, nil
	case "noleap", "365_day":
		return CalendarNoLeap, nil
	case "all_leap", "366_day":
		return CalendarAllLeap, nil
	case "360_day":
		return Calendar360Day, nil
	case "julian":
		return CalendarJulian, nil
	}
	return "", fmt.Errorf("unsupported calendar %q", name)
}

// IsLeap reports whether year y has a leap day under the calendar.
func (c Calendar) IsLeap(y int) bool {
	switch c {
	case CalendarNoLeap, Calendar360Day:
		return false
	case CalendarAllLeap:
		return true
	case CalendarJulian:
		return y%4 == 0
	}
	return (y%4 == 0 && y%100 != 0) || y%400 == 0
}

// DaysInYear returns the expected number of daily steps in year y.
func (c Calendar) DaysInYear(y int) int {
	if c == Calendar360Day {
		return 360
	}
	if c.IsLeap(y) {
		return 366
	}
	return 365
}

// DayOfYear returns the zero-based ordinal of (y, m, d).
func (c Calendar) DayOfYear(y, m, d int) int {
	if c == Calendar360Day {
		return (m-1)*30 + d - 1
	}
	lengths := [12]int{31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}
	if c.IsLeap(y) {
		lengths[1] = 29
	}
	doy := d - 1
	for i := 0; i < m-1; i++ {
		doy += lengths[i]
	}
	return doy
}

// TimeUnits decodes a CF "<unit> since <date>" time coordinate.
type TimeUnits struct {
	Calendar Calendar
	// StepDays is the length of one coordinate unit in days.
	StepDays float64
	BaseYear int
	// BaseDay is the zero-based day of year of the reference date, with the
	// reference time of day as a fraction.
	BaseDay float64
}

var timeUnitsRe = regexp.MustCompile(`^\s*(\w+)\s+since\s+(-?\d{1,4})-(\d{1,2})-(\d{1,2})(?:[ T](\d{1,2}):(\d{1,2})(?::(\d{1,2}(?:\.\d*)?))?)?`)

// ParseTimeUnits parses units such as "days since 1850-01-01 00:00:00".
func ParseTimeUnits(units string, cal Calendar) (TimeUnits, error) {
	m := timeUnitsRe.FindStringSubmatch(units)
	if m == nil {
		return TimeUnits{}, fmt.Errorf("unrecognized time units %q", units)
	}
	var step float64
	switch strings.ToLower(m[1]) {
	case "days", "day", "d":
		step = 1
	case "hours", "hour", "h":
		step = 1.0 / 24
	case "minutes", "minute":
		step = 1.0 / 1440
	case "seconds", "second", "s":
		step = 1.0 / secondsPerDay
	default:
		return TimeUnits{}, fmt.Errorf("unsupported time step %q", m[1])
	}
	year, _ := strconv.Atoi(m[2])
	month, _ := strconv.Atoi(m[3])
	day, _ := strconv.Atoi(m[4])
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return TimeUnits{}, fmt.Errorf("invalid reference date in %q", units)
	}
	frac := 0.0
	if m[5] != "" {
		h, _ := strconv.Atoi(m[5])
		mi, _ := strconv.Atoi(m[6])
		sec := 0.0
		if m[7] != "" {
			sec, _ = strconv.ParseFloat(m[7], 64)
		}
		frac = (float64(h)*3600 + float64(mi)*60 + sec) / secondsPerDay
	}
	return TimeUnits{
		Calendar: cal,
		StepDays: step,
		BaseYear: year,
		BaseDay:  float64(cal.DayOfYear(year, month, day)) + frac,
	}, nil
}

// ordinal returns the whole-day count from January 1 of BaseYear.
func (u TimeUnits) ordinal(v float64) int {
	return int(math.Floor(u.BaseDay + v*u.StepDays + 1e-9))
}

// Date returns the year and zero-based day of year of a coordinate value.
func (u TimeUnits) Date(v float64) (year, doy int) {
	days := u.ordinal(v)
	year = u.BaseYear
	for days < 0 {
		year--
		days += u.Calendar.DaysInYear(year)
	}
	for days >= u.Calendar.DaysInYear(year) {
		days -= u.Calendar.DaysInYear(year)
		year++
	}
	return year, days
}

// SplitYears groups consecutive time coordinate values by calendar year.
// Spans index into values; Days counts the values in each year.
func (u TimeUnits) SplitYears(values []float64) []YearSpan {
	var spans []YearSpan
	for i, v := range values {
		y, _ := u.Date(v)
		if n := len(spans); n > 0 && spans[n-1].Year == y {
			spans[n-1].Days++
			continue
		}
		spans = append(spans, YearSpan{Year: y, Start: i, Days: 1})
	}
	return spans
}

// CheckDaily verifies that values form one complete, strictly consecutive
// daily series for year. It returns the number of steps found.
func (u TimeUnits) CheckDaily(values []float64, year int) (int, error) {
	want := u.Calendar.DaysInYear(year)
	if len(values) == 0 {
		return 0, errors.New("empty time coordinate")
	}
	y, doy := u.Date(values[0])
	if y != year || doy != 0 {
		return len(values), fmt.Errorf("series starts at day %d of %d", doy+1, y)
	}
	prev := u.ordinal(values[0])
	for i := 1; i < len(values); i++ {
		cur := u.ordinal(values[i])
		if cur != prev+1 {
			return len(values), fmt.Errorf("step %d jumps %d day(s)", i, cur-prev)
		}
		prev = cur
	}
	if len(values) != want {
		return len(values), fmt.Errorf("expected %d daily steps", want)
	}
	return len(values), nil
}

// TemporalIndex maps absolute time indices of a cube onto (year, offset).
type TemporalIndex struct {
	spans []YearSpan
}

// NewTemporalIndex validates that spans are ordered by year and contiguous
// from index zero.
func NewTemporalIndex(spans []YearSpan) (*TemporalIndex, error) {
	next := 0
	for i, s := range spans {
		if s.Start != next {
			return nil, fmt.Errorf("year %d starts at %d, expected %d", s.Year, s.Start, next)
		}
		if s.Days <= 0 {
			return nil, fmt.Errorf("year %d has no days", s.Year)
		}
		if i > 0 && s.Year != spans[i-1].Year+1 {
			return nil, fmt.Errorf("year %d follows %d", s.Year, spans[i-1].Year)
		}
		next = s.End()
	}
	cp := make([]YearSpan, len(spans))
	copy(cp, spans)
	return &TemporalIndex{spans: cp}, nil
}

// ConsecutiveSpans lays out years first..last back to back under cal.
func ConsecutiveSpans(first, last int, cal Calendar) []YearSpan {
	spans := make([]YearSpan, 0, last-first+1)
	start := 0
	for y := first; y <= last; y++ {
		d := cal.DaysInYear(y)
		spans = append(spans, YearSpan{Year: y, Start: start, Days: d})
		start += d
	}
	return spans
}

// Len returns the total number of time steps.
func (ix *TemporalIndex) Len() int {
	if len(ix.spans) == 0 {
		return 0
	}
	return ix.spans[len(ix.spans)-1].End()
}

// Spans returns a copy of the year spans.
func (ix *TemporalIndex) Spans() []YearSpan {
	cp := make([]YearSpan, len(ix.spans))
	copy(cp, ix.spans)
	return cp
}

// Lookup returns the year and within-year offset of absolute index t.
func (ix *TemporalIndex) Lookup(t int) (year, offset int, ok bool) {
	i := sort.Search(len(ix.spans), func(i int) bool { return ix.spans[i].End() > t })
	if t < 0 || i == len(ix.spans) {
		return 0, 0, false
	}
	return ix.spans[i].Year, t - ix.spans[i].Start, true
}

// Span returns the span of a year.
func (ix *TemporalIndex) Span(year int) (YearSpan, bool) {
	if len(ix.spans) == 0 {
		return YearSpan{}, false
	}
	i := year - ix.spans[0].Year
	if i < 0 || i >= len(ix.spans) {
		return YearSpan{}, false
	}
	return ix.spans[i], true
}
