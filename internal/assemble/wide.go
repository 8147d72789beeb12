package assemble

import (
	"fmt"
	"sort"

	"github.com/couchcryptid/climate-region-stats/internal/domain"
)

// WideColumns is the column order of the merged cross-variable table.
var WideColumns = []string{
	"cid2", "year", "scenario", "name",
	"daysabove1in", "daysabove90F", "tmaxavg", "annual_mean_temp", "annual_total_precip",
}

// WideRow joins the headline statistics of every variable for one region,
// year and scenario. Nil values were not computed or are missing.
type WideRow struct {
	CID2              string
	Year              int
	Scenario          string
	Name              string
	DaysAbove1in      *float64
	DaysAbove90F      *float64
	TmaxAvg           *float64
	AnnualMeanTemp    *float64
	AnnualTotalPrecip *float64
}

// wideSource maps one variable's statistic onto a wide column.
var wideSource = map[string][]struct {
	stat string
	set  func(*WideRow, *float64)
}{
	"pr": {
		{"days_above_threshold", func(w *WideRow, v *float64) { w.DaysAbove1in = v }},
		{"total_annual_precip_mm", func(w *WideRow, v *float64) { w.AnnualTotalPrecip = v }},
	},
	"tasmax": {
		{"days_above_threshold_c", func(w *WideRow, v *float64) { w.DaysAbove90F = v }},
		{"mean_annual_tasmax_c", func(w *WideRow, v *float64) { w.TmaxAvg = v }},
	},
	"tas": {
		{"mean_annual_temp_c", func(w *WideRow, v *float64) { w.AnnualMeanTemp = v }},
	},
}

type wideKey struct {
	id       string
	year     int
	scenario string
}

// Merge joins tables of different variables into wide rows ordered by
// (region id, year, scenario). Two tables of the same variable and scenario
// are rejected.
func Merge(tables ...*Table) ([]WideRow, error) {
	type vs struct{ variable, scenario string }
	seenTables := make(map[vs]struct{}, len(tables))
	rows := make(map[wideKey]*WideRow)

	for _, t := range tables {
		id := vs{t.Meta.Variable, t.Meta.Scenario}
		if _, dup := seenTables[id]; dup {
			return nil, fmt.Errorf("merge: two tables for %s/%s", id.variable, id.scenario)
		}
		seenTables[id] = struct{}{}

		for _, r := range t.Rows {
			k := wideKey{r.RegionID, r.Year, r.Scenario}
			w, ok := rows[k]
			if !ok {
				name := domain.Region{Name: r.RegionName, State: r.State}.DisplayName()
				w = &WideRow{CID2: r.RegionID, Year: r.Year, Scenario: r.Scenario, Name: name}
				rows[k] = w
			}
			if r.Missing {
				continue
			}
			for _, src := range wideSource[t.Meta.Variable] {
				if v, ok := r.Stats[src.stat]; ok {
					src.set(w, &v)
				}
			}
		}
	}

	out := make([]WideRow, 0, len(rows))
	for _, w := range rows {
		out = append(out, *w)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.CID2 != b.CID2 {
			return a.CID2 < b.CID2
		}
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		return a.Scenario < b.Scenario
	})
	return out, nil
}
