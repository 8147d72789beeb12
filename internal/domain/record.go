package domain

import "time"

// Record is one region-year summary. A record with Missing set is the
// missing-data marker: the region had no valid cell-day that year and Stats
// is nil.
type Record struct {
	RegionID   string             `json:"region_id"`
	RegionName string             `json:"region_name"`
	State      string             `json:"state,omitempty"`
	Year       int                `json:"year"`
	Variable   string             `json:"variable"`
	Scenario   string             `json:"scenario"`
	ValidDays  int                `json:"valid_days"`
	Stats      map[string]float64 `json:"stats,omitempty"`
	Missing    bool               `json:"missing"`
}

// Key identifies a record within one variable and scenario.
type Key struct {
	RegionID string
	Year     int
}

// Key returns the (region, year) identity of the record.
func (r Record) Key() Key { return Key{RegionID: r.RegionID, Year: r.Year} }

// RunMeta carries provenance merged into every result row.
type RunMeta struct {
	RunID     string    `json:"run_id"`
	Variable  string    `json:"variable"`
	Scenario  string    `json:"scenario"`
	RegionSet string    `json:"region_set"`
	Processed time.Time `json:"processed_at"`
}

// Row is a record with its run provenance attached.
type Row struct {
	Record
	RunID     string    `json:"run_id"`
	RegionSet string    `json:"region_set"`
	Processed time.Time `json:"processed_at"`
}
