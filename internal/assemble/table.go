// Package assemble turns aggregation records into ordered, provenance-stamped
// result tables.
package assemble

import (
	"fmt"
	"sort"

	"github.com/couchcryptid/climate-region-stats/internal/domain"
)

// DuplicateRowError reports a (region, year) pair produced more than once.
type DuplicateRowError struct {
	RegionID string
	Year     int
	Variable string
	Scenario string
}

func (e *DuplicateRowError) Error() string {
	return fmt.Sprintf("duplicate row for region %s year %d (%s/%s)", e.RegionID, e.Year, e.Variable, e.Scenario)
}

// Table is the consolidated result of one variable and scenario.
type Table struct {
	Meta    domain.RunMeta
	Columns []string
	Rows    []domain.Row
	// Absent lists regions of the region set without any row. A region with
	// only missing markers is present.
	Absent []string
}

// Assemble stamps records with meta and orders them by (region id, year).
func Assemble(meta domain.RunMeta, profile domain.StatProfile, set domain.RegionSet, records []domain.Record) (*Table, error) {
	if profile.Variable() != meta.Variable {
		return nil, fmt.Errorf("profile %s does not match run variable %s", profile.Variable(), meta.Variable)
	}

	seen := make(map[domain.Key]struct{}, len(records))
	rows := make([]domain.Row, 0, len(records))
	for _, rec := range records {
		if rec.Variable != meta.Variable || rec.Scenario != meta.Scenario {
			return nil, fmt.Errorf("record %s/%d is %s/%s, run is %s/%s",
				rec.RegionID, rec.Year, rec.Variable, rec.Scenario, meta.Variable, meta.Scenario)
		}
		k := rec.Key()
		if _, dup := seen[k]; dup {
			return nil, &DuplicateRowError{RegionID: k.RegionID, Year: k.Year, Variable: meta.Variable, Scenario: meta.Scenario}
		}
		seen[k] = struct{}{}
		rows = append(rows, domain.Row{
			Record:    rec,
			RunID:     meta.RunID,
			RegionSet: meta.RegionSet,
			Processed: meta.Processed,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].RegionID != rows[j].RegionID {
			return rows[i].RegionID < rows[j].RegionID
		}
		return rows[i].Year < rows[j].Year
	})

	present := make(map[string]struct{}, set.Len())
	for _, r := range rows {
		present[r.RegionID] = struct{}{}
	}
	var absent []string
	for _, id := range set.IDs() {
		if _, ok := present[id]; !ok {
			absent = append(absent, id)
		}
	}

	return &Table{Meta: meta, Columns: profile.Columns(), Rows: rows, Absent: absent}, nil
}

// Header returns the flat column order of the table.
func (t *Table) Header() []string {
	h := []string{"region_id", "region_name", "state", "year", "scenario", "variable"}
	h = append(h, t.Columns...)
	return append(h, "missing", "run_id", "processed_at")
}

// Missing returns the number of missing-marker rows.
func (t *Table) Missing() int {
	n := 0
	for _, r := range t.Rows {
		if r.Missing {
			n++
		}
	}
	return n
}
