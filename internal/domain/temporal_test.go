package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalendarDaysInYear(t *testing.T) {
	tests := []struct {
		cal  Calendar
		year int
		want int
	}{
		{CalendarStandard, 2000, 366},
		{CalendarStandard, 1900, 365},
		{CalendarStandard, 2024, 366},
		{CalendarStandard, 2023, 365},
		{CalendarJulian, 1900, 366},
		{CalendarNoLeap, 2000, 365},
		{CalendarAllLeap, 2001, 366},
		{Calendar360Day, 2000, 360},
	}
	for _, tt := range tests {
		t.Run(string(tt.cal), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cal.DaysInYear(tt.year))
		})
	}
}

func TestParseCalendar(t *testing.T) {
	for name, want := range map[string]Calendar{
		"":                    CalendarStandard,
		"gregorian":           CalendarStandard,
		"proleptic_gregorian": CalendarStandard,
		"365_day":             CalendarNoLeap,
		"NOLEAP":              CalendarNoLeap,
		"366_day":             CalendarAllLeap,
		"360_day":             Calendar360Day,
	} {
		got, err := ParseCalendar(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	_, err := ParseCalendar("lunar")
	assert.Error(t, err)
}

func TestParseTimeUnits(t *testing.T) {
	t.Run("days since midnight", func(t *testing.T) {
		u, err := ParseTimeUnits("days since 1850-01-01 00:00:00", CalendarStandard)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, u.StepDays, 0)

		y, doy := u.Date(0)
		assert.Equal(t, 1850, y)
		assert.Equal(t, 0, doy)

		y, doy = u.Date(365)
		assert.Equal(t, 1851, y)
		assert.Equal(t, 0, doy)
	})

	t.Run("noon offsets stay in the same day", func(t *testing.T) {
		u, err := ParseTimeUnits("days since 2015-01-01", CalendarNoLeap)
		require.NoError(t, err)
		y, doy := u.Date(364.5)
		assert.Equal(t, 2015, y)
		assert.Equal(t, 364, doy)
	})

	t.Run("hours", func(t *testing.T) {
		u, err := ParseTimeUnits("hours since 2000-03-01T06:00:00", CalendarStandard)
		require.NoError(t, err)
		y, doy := u.Date(24 * 306)
		assert.Equal(t, 2001, y)
		assert.Equal(t, 0, doy)
	})

	t.Run("noleap spans centuries", func(t *testing.T) {
		u, err := ParseTimeUnits("days since 1850-01-01", CalendarNoLeap)
		require.NoError(t, err)
		y, doy := u.Date(365*150 + 0.5)
		assert.Equal(t, 2000, y)
		assert.Equal(t, 0, doy)
	})

	t.Run("before reference date", func(t *testing.T) {
		u, err := ParseTimeUnits("days since 2001-01-01", CalendarStandard)
		require.NoError(t, err)
		y, doy := u.Date(-1)
		assert.Equal(t, 2000, y)
		assert.Equal(t, 365, doy)
	})

	t.Run("rejects garbage", func(t *testing.T) {
		_, err := ParseTimeUnits("fortnights after the flood", CalendarStandard)
		assert.Error(t, err)
	})
}

func dailyValues(start float64, n int) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = start + float64(i) + 0.5
	}
	return v
}

func TestCheckDaily(t *testing.T) {
	u, err := ParseTimeUnits("days since 2000-01-01", CalendarStandard)
	require.NoError(t, err)

	t.Run("complete leap year", func(t *testing.T) {
		n, err := u.CheckDaily(dailyValues(0, 366), 2000)
		require.NoError(t, err)
		assert.Equal(t, 366, n)
	})

	t.Run("short year", func(t *testing.T) {
		n, err := u.CheckDaily(dailyValues(0, 365), 2000)
		require.Error(t, err)
		assert.Equal(t, 365, n)
	})

	t.Run("missing day inside the year", func(t *testing.T) {
		v := dailyValues(0, 366)
		v = append(v[:100], v[101:]...)
		v = append(v, 366.5)
		_, err := u.CheckDaily(v, 2000)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "jumps 2 day(s)")
	})

	t.Run("series starting late", func(t *testing.T) {
		_, err := u.CheckDaily(dailyValues(1, 365), 2000)
		assert.Error(t, err)
	})
}

func TestSplitYears(t *testing.T) {
	u, err := ParseTimeUnits("days since 2001-01-01", CalendarStandard)
	require.NoError(t, err)

	spans := u.SplitYears(dailyValues(360, 10))
	require.Len(t, spans, 2)
	assert.Equal(t, YearSpan{Year: 2001, Start: 0, Days: 5}, spans[0])
	assert.Equal(t, YearSpan{Year: 2002, Start: 5, Days: 5}, spans[1])
}

func TestTemporalIndex(t *testing.T) {
	ix, err := NewTemporalIndex(ConsecutiveSpans(2001, 2004, CalendarStandard))
	require.NoError(t, err)
	assert.Equal(t, 365*3+366, ix.Len())

	tests := []struct {
		t          int
		year, offs int
	}{
		{0, 2001, 0},
		{364, 2001, 364},
		{365, 2002, 0},
		{730, 2003, 0},
		{1095, 2004, 0},
		{1460, 2004, 365},
	}
	for _, tt := range tests {
		year, off, ok := ix.Lookup(tt.t)
		require.True(t, ok, "index %d", tt.t)
		assert.Equal(t, tt.year, year, "index %d", tt.t)
		assert.Equal(t, tt.offs, off, "index %d", tt.t)
	}

	_, _, ok := ix.Lookup(ix.Len())
	assert.False(t, ok)
	_, _, ok = ix.Lookup(-1)
	assert.False(t, ok)

	span, ok := ix.Span(2004)
	require.True(t, ok)
	assert.Equal(t, 1095, span.Start)
	assert.Equal(t, 366, span.Days)
	_, ok = ix.Span(2005)
	assert.False(t, ok)
}

func TestNewTemporalIndexRejectsGaps(t *testing.T) {
	_, err := NewTemporalIndex([]YearSpan{{Year: 2001, Start: 0, Days: 365}, {Year: 2002, Start: 366, Days: 365}})
	assert.Error(t, err)

	_, err = NewTemporalIndex([]YearSpan{{Year: 2001, Start: 0, Days: 365}, {Year: 2003, Start: 365, Days: 365}})
	assert.Error(t, err)
}
