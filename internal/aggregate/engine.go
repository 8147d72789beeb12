// Package aggregate reduces a cube to per-region, per-year statistic records.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/climate-region-stats/internal/domain"
)

// Source is the read side of a cube.
type Source interface {
	Grid() domain.Grid
	Years() []domain.YearSpan
	ReadWindow(ctx context.Context, w domain.Window) ([]float32, error)
}

// Request describes one aggregation of a cube over a region set.
type Request struct {
	Source   Source
	Raster   *domain.MembershipRaster
	Regions  domain.RegionSet
	Profile  domain.StatProfile
	Scenario string
	Workers  int
	// Ratio is the bulk-mask selection threshold; zero means DefaultRatio.
	Ratio    float64
	Strategy domain.Strategy
}

// Result holds records in (region, year) order.
type Result struct {
	Selection Selection
	Records   []domain.Record
	Units     int
	Duration  time.Duration
}

// strategy computes every region-year of a plan in independent units.
type strategy interface {
	units(p *plan) int
	run(ctx context.Context, p *plan, unit int) error
}

// plan is the shared read-only input of a run plus its output slots.
type plan struct {
	src      Source
	raster   *domain.MembershipRaster
	regions  domain.RegionSet
	profile  domain.StatProfile
	scenario string
	spans    []domain.YearSpan
	members  [][]int
	// out[region][year] is written by exactly one unit.
	out [][]domain.Record
}

// Engine runs aggregations.
type Engine struct {
	logger *slog.Logger
}

// NewEngine creates an Engine.
func NewEngine(logger *slog.Logger) *Engine {
	return &Engine{logger: logger}
}

// Run aggregates the request. On error or cancellation no records are
// returned.
func (e *Engine) Run(ctx context.Context, req Request) (*Result, error) {
	if req.Raster == nil || req.Profile == nil || req.Source == nil {
		return nil, errors.New("aggregation request needs a source, raster and profile")
	}
	g := req.Source.Grid()
	if !g.SameGeometry(req.Raster.Grid) {
		return nil, fmt.Errorf("raster grid %s does not match cube grid %s", req.Raster.Grid, g)
	}
	if len(req.Raster.RegionIDs) != req.Regions.Len() {
		return nil, fmt.Errorf("raster has %d regions, region set %d", len(req.Raster.RegionIDs), req.Regions.Len())
	}

	sel := Select(req.Regions.Len(), g.Cells(), req.Ratio, req.Strategy)
	var s strategy = geometryClip{}
	if sel.Strategy == domain.StrategyBulkMask {
		s = bulkMask{}
	}

	p := &plan{
		src:      req.Source,
		raster:   req.Raster,
		regions:  req.Regions,
		profile:  req.Profile,
		scenario: req.Scenario,
		spans:    req.Source.Years(),
		members:  req.Raster.MemberLists(),
		out:      make([][]domain.Record, req.Regions.Len()),
	}
	for i := range p.out {
		p.out[i] = make([]domain.Record, len(p.spans))
	}

	logger := e.logger.With("variable", req.Profile.Variable(), "scenario", req.Scenario, "strategy", sel.Strategy)
	logger.Info("aggregation started", "regions", sel.Regions, "cells", sel.Cells,
		"years", len(p.spans), "ratio", sel.Ratio, "reason", sel.Reason)

	start := time.Now()
	units := s.units(p)
	eg, egctx := errgroup.WithContext(ctx)
	eg.SetLimit(max(req.Workers, 1))
	for u := 0; u < units; u++ {
		eg.Go(func() error {
			if err := egctx.Err(); err != nil {
				return err
			}
			return s.run(egctx, p, u)
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	records := make([]domain.Record, 0, len(p.out)*len(p.spans))
	for _, row := range p.out {
		records = append(records, row...)
	}
	res := &Result{Selection: sel, Records: records, Units: units, Duration: time.Since(start)}
	logger.Info("aggregation finished", "records", len(records), "units", units, "duration", res.Duration)
	return res, nil
}

// record reduces the daily means of one region-year. Days without a valid
// cell are NaN and are left out; a year without valid days is the missing
// marker.
func (p *plan) record(region, year int, daily []float64) domain.Record {
	reg := p.regions.Regions[region]
	rec := domain.Record{
		RegionID:   reg.ID,
		RegionName: reg.Name,
		State:      reg.State,
		Year:       p.spans[year].Year,
		Variable:   p.profile.Variable(),
		Scenario:   p.scenario,
	}
	valid := daily[:0]
	for _, v := range daily {
		if !math.IsNaN(v) {
			valid = append(valid, v)
		}
	}
	if len(valid) == 0 {
		rec.Missing = true
		return rec
	}
	rec.ValidDays = len(valid)
	rec.Stats = p.profile.Compute(valid)
	return rec
}

// accumulator sums valid cell values per day in member order.
type accumulator struct {
	sum []float64
	n   []int
}

func newAccumulator(days int) *accumulator {
	return &accumulator{sum: make([]float64, days), n: make([]int, days)}
}

func (a *accumulator) add(day int, v float32) {
	if math.IsNaN(float64(v)) {
		return
	}
	a.sum[day] += float64(v)
	a.n[day]++
}

// means returns the daily spatial means, NaN for days without a valid cell.
func (a *accumulator) means() []float64 {
	out := make([]float64, len(a.sum))
	for d := range out {
		if a.n[d] == 0 {
			out[d] = math.NaN()
			continue
		}
		out[d] = a.sum[d] / float64(a.n[d])
	}
	return out
}
