// Package pipeline runs discovery, store builds, rasterization, aggregation,
// assembly and sinks for every configured variable.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/couchcryptid/climate-region-stats/internal/aggregate"
	"github.com/couchcryptid/climate-region-stats/internal/assemble"
	"github.com/couchcryptid/climate-region-stats/internal/discovery"
	"github.com/couchcryptid/climate-region-stats/internal/domain"
	"github.com/couchcryptid/climate-region-stats/internal/observability"
	"github.com/couchcryptid/climate-region-stats/internal/store"
)

// Stage names reported in domain.StageError.
const (
	StageRegions   = "regions"
	StageDiscover  = "discover"
	StageBuild     = "build"
	StageRasterize = "rasterize"
	StageAggregate = "aggregate"
	StageAssemble  = "assemble"
	StageSink      = "sink"
)

// Discoverer lists candidate input files.
type Discoverer interface {
	Discover(dir string, f discovery.Filter) (discovery.Result, error)
}

// StoreBuilder builds a cube store from discovered files.
type StoreBuilder interface {
	Build(ctx context.Context, files []discovery.File, dest string, opts store.Options) (*store.Manifest, error)
}

// CubeOpener opens a built store for reading.
type CubeOpener interface {
	OpenCube(dir string, cacheSize int) (aggregate.Source, error)
}

// CubeOpenerFunc adapts a function to CubeOpener.
type CubeOpenerFunc func(dir string, cacheSize int) (aggregate.Source, error)

func (f CubeOpenerFunc) OpenCube(dir string, cacheSize int) (aggregate.Source, error) {
	return f(dir, cacheSize)
}

// RegionSource supplies the region set of a run.
type RegionSource interface {
	Regions() (domain.RegionSet, error)
}

// RegionSourceFunc adapts a function to RegionSource.
type RegionSourceFunc func() (domain.RegionSet, error)

func (f RegionSourceFunc) Regions() (domain.RegionSet, error) { return f() }

// Rasterizer maps a region set onto a grid, reporting cache hits.
type Rasterizer interface {
	Rasterize(set domain.RegionSet, g domain.Grid) (*domain.MembershipRaster, bool, error)
}

// Aggregator reduces a cube to region-year records.
type Aggregator interface {
	Run(ctx context.Context, req aggregate.Request) (*aggregate.Result, error)
}

// TableWriter persists whole tables.
type TableWriter interface {
	WriteTable(t *assemble.Table) (string, error)
	WriteWide(scenario string, rows []assemble.WideRow) (string, error)
}

// BatchLoader writes result rows to a destination.
type BatchLoader interface {
	LoadBatch(ctx context.Context, rows []domain.Row) error
}

// Stages bundles the collaborators of a pipeline. Loaders are keyed by sink
// name and may be empty.
type Stages struct {
	Discoverer Discoverer
	Builder    StoreBuilder
	Cubes      CubeOpener
	Regions    RegionSource
	Rasterizer Rasterizer
	Aggregator Aggregator
	Tables     TableWriter
	Loaders    map[string]BatchLoader
}

// Pipeline orchestrates one run per call to Run.
type Pipeline struct {
	cfg     domain.RunConfig
	stages  Stages
	logger  *slog.Logger
	metrics *observability.Metrics
	ready   atomic.Bool

	// Retry policy of batch loaders.
	backoff     time.Duration
	maxBackoff  time.Duration
	maxAttempts int

	mu        sync.RWMutex
	latest    *Report
	manifests map[string]*store.Manifest
}

// Option adjusts a Pipeline.
type Option func(*Pipeline)

// WithRetry sets the batch loader retry policy. The default is five attempts
// with backoff doubling from 200ms up to 5s.
func WithRetry(attempts int, initial, maxBackoff time.Duration) Option {
	return func(p *Pipeline) {
		p.maxAttempts = max(attempts, 1)
		p.backoff = initial
		p.maxBackoff = maxBackoff
	}
}

// New creates a Pipeline with the given stages and observability.
func New(cfg domain.RunConfig, stages Stages, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:         cfg,
		stages:      stages,
		logger:      logger,
		metrics:     metrics,
		backoff:     200 * time.Millisecond,
		maxBackoff:  5 * time.Second,
		maxAttempts: 5,
		manifests:   make(map[string]*store.Manifest),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CheckReadiness returns nil once a run has completed successfully.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("no run has completed yet")
	}
	return nil
}

// LatestRun returns a copy of the most recent run report.
func (p *Pipeline) LatestRun() (Report, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.latest == nil {
		return Report{}, false
	}
	return p.latest.clone(), true
}

// LatestManifest returns the manifest of the most recent build of variable.
func (p *Pipeline) LatestManifest(variable string) (*store.Manifest, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	m, ok := p.manifests[variable]
	return m, ok
}

// Run processes every configured variable in order and stops at the first
// failing stage, returning a *domain.StageError.
func (p *Pipeline) Run(ctx context.Context) error {
	runID := p.cfg.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	logger := p.logger.With("run_id", runID, "scenario", p.cfg.Scenario)
	logger.Info("pipeline started", "variables", p.cfg.Variables, "workers", p.cfg.Workers)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	start := time.Now()
	report := &Report{RunID: runID, Scenario: p.cfg.Scenario, Started: domain.Now()}
	defer func() {
		report.Finished = domain.Now()
		p.metrics.RunDuration.Observe(time.Since(start).Seconds())
		p.publish(report)
	}()

	err := p.run(ctx, runID, report, logger)
	if err != nil {
		report.fail(err)
		logger.Error("pipeline failed", "error", err)
		return err
	}
	p.ready.Store(true)
	logger.Info("pipeline finished", "duration", time.Since(start))
	return nil
}

func (p *Pipeline) run(ctx context.Context, runID string, report *Report, logger *slog.Logger) error {
	set, err := p.stages.Regions.Regions()
	if err != nil {
		return &domain.StageError{Stage: StageRegions, Err: err}
	}
	report.RegionSet = set.Name
	logger.Info("regions loaded", "region_set", set.Name, "regions", set.Len())

	tables := make([]*assemble.Table, 0, len(p.cfg.Variables))
	for _, variable := range p.cfg.Variables {
		if err := ctx.Err(); err != nil {
			return err
		}
		vr := &VariableReport{Variable: variable}
		report.Variables = append(report.Variables, vr)

		table, err := p.runVariable(ctx, runID, set, vr, logger.With("variable", variable))
		if err != nil {
			vr.Error = err.Error()
			return err
		}
		tables = append(tables, table)
	}

	wide, err := assemble.Merge(tables...)
	if err != nil {
		return &domain.StageError{Stage: StageAssemble, Err: err}
	}
	path, err := p.stages.Tables.WriteWide(p.cfg.Scenario, wide)
	if err != nil {
		return &domain.StageError{Stage: StageSink, Err: fmt.Errorf("merged table: %w", err)}
	}
	report.Merged = path
	return nil
}

func (p *Pipeline) publish(r *Report) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.latest = r
}

func (p *Pipeline) recordManifest(variable string, m *store.Manifest) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.manifests[variable] = m
}
