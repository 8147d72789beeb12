package pipeline

import (
	"errors"
	"slices"
	"time"

	"github.com/couchcryptid/climate-region-stats/internal/aggregate"
	"github.com/couchcryptid/climate-region-stats/internal/domain"
	"github.com/couchcryptid/climate-region-stats/internal/store"
)

// Report describes one run for diagnostics.
type Report struct {
	RunID     string            `json:"run_id"`
	Scenario  string            `json:"scenario"`
	RegionSet string            `json:"region_set"`
	Started   time.Time         `json:"started_at"`
	Finished  time.Time         `json:"finished_at"`
	Variables []*VariableReport `json:"variables"`
	Merged    string            `json:"merged_output,omitempty"`
	Stage     string            `json:"failed_stage,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// VariableReport describes the processing of one variable.
type VariableReport struct {
	Variable  string               `json:"variable"`
	Store     string               `json:"store"`
	Manifest  *store.Summary       `json:"manifest,omitempty"`
	Selection *aggregate.Selection `json:"selection,omitempty"`
	Rows      int                  `json:"rows"`
	Missing   int                  `json:"missing"`
	Absent    []string             `json:"absent_regions,omitempty"`
	Outputs   []string             `json:"outputs,omitempty"`
	Error     string               `json:"error,omitempty"`
}

// OK reports whether the run finished without error.
func (r Report) OK() bool { return r.Error == "" }

func (r *Report) fail(err error) {
	r.Error = err.Error()
	var se *domain.StageError
	if errors.As(err, &se) {
		r.Stage = se.Stage
	}
}

func (r *Report) clone() Report {
	cp := *r
	cp.Variables = make([]*VariableReport, len(r.Variables))
	for i, v := range r.Variables {
		vc := *v
		vc.Absent = slices.Clone(v.Absent)
		vc.Outputs = slices.Clone(v.Outputs)
		cp.Variables[i] = &vc
	}
	return cp
}
