package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/climate-region-stats/internal/aggregate"
	"github.com/couchcryptid/climate-region-stats/internal/assemble"
	"github.com/couchcryptid/climate-region-stats/internal/discovery"
	"github.com/couchcryptid/climate-region-stats/internal/domain"
	"github.com/couchcryptid/climate-region-stats/internal/store"
)

// runVariable takes one variable from input files to written results.
func (p *Pipeline) runVariable(ctx context.Context, runID string, set domain.RegionSet, vr *VariableReport, logger *slog.Logger) (*assemble.Table, error) {
	variable := vr.Variable
	fail := func(stage string, err error) error {
		return &domain.StageError{Stage: stage, Variable: variable, Err: err}
	}

	found, err := p.stages.Discoverer.Discover(p.cfg.DataDir, discovery.Filter{
		Variable: variable,
		Scenario: p.cfg.Scenario,
		Pattern:  p.cfg.FilePattern,
	})
	p.metrics.FilesExcluded.Add(float64(len(found.Excluded)))
	if err != nil {
		return nil, fail(StageDiscover, err)
	}
	p.metrics.FilesDiscovered.Add(float64(len(found.Files)))

	opts, err := store.OptionsFor(p.cfg, variable, found.Excluded)
	if err != nil {
		return nil, fail(StageBuild, err)
	}
	dest := store.Path(p.cfg.StoreDir, variable, p.cfg.Scenario)
	vr.Store = dest
	buildStart := time.Now()
	manifest, err := p.stages.Builder.Build(ctx, found.Files, dest, opts)
	if err != nil {
		return nil, fail(StageBuild, err)
	}
	p.metrics.StoreBuildDuration.Observe(time.Since(buildStart).Seconds())
	p.recordManifest(variable, manifest)
	summary := manifest.Summary()
	vr.Manifest = &summary
	p.observeManifest(summary)
	if summary.Skipped+summary.Flagged+len(summary.FilledYears) > 0 {
		logger.Warn("store built with omissions", "skipped", summary.Skipped,
			"flagged", summary.Flagged, "filled_years", summary.FilledYears)
	}

	cube, err := p.stages.Cubes.OpenCube(dest, p.cfg.ChunkCacheSize)
	if err != nil {
		return nil, fail(StageBuild, fmt.Errorf("open built store: %w", err))
	}

	raster, hit, err := p.stages.Rasterizer.Rasterize(set, cube.Grid())
	if err != nil {
		return nil, fail(StageRasterize, err)
	}
	if hit {
		p.metrics.RasterCache.WithLabelValues("hit").Inc()
	} else {
		p.metrics.RasterCache.WithLabelValues("miss").Inc()
		p.metrics.RegionsRasterized.Add(float64(set.Len()))
	}

	profile, err := domain.ProfileFor(variable, p.cfg.Thresholds())
	if err != nil {
		return nil, fail(StageAggregate, err)
	}
	res, err := p.stages.Aggregator.Run(ctx, aggregate.Request{
		Source:   cube,
		Raster:   raster,
		Regions:  set,
		Profile:  profile,
		Scenario: p.cfg.Scenario,
		Workers:  p.cfg.Workers,
		Ratio:    p.cfg.StrategyRatio,
		Strategy: p.cfg.Strategy,
	})
	if err != nil {
		return nil, fail(StageAggregate, err)
	}
	vr.Selection = &res.Selection
	strategy := string(res.Selection.Strategy)
	p.metrics.AggregationUnits.WithLabelValues(strategy).Add(float64(res.Units))
	p.metrics.AggregationDuration.WithLabelValues(strategy).Observe(res.Duration.Seconds())

	table, err := assemble.Assemble(domain.RunMeta{
		RunID:     runID,
		Variable:  variable,
		Scenario:  p.cfg.Scenario,
		RegionSet: set.Name,
		Processed: domain.Now(),
	}, profile, set, res.Records)
	if err != nil {
		return nil, fail(StageAssemble, err)
	}
	missing := table.Missing()
	vr.Rows, vr.Missing, vr.Absent = len(table.Rows), missing, table.Absent
	p.metrics.RecordsEmitted.WithLabelValues("record").Add(float64(len(table.Rows) - missing))
	p.metrics.RecordsEmitted.WithLabelValues("missing").Add(float64(missing))
	if len(table.Absent) > 0 {
		logger.Warn("regions absent from results", "count", len(table.Absent), "region_ids", table.Absent)
	}

	path, err := p.stages.Tables.WriteTable(table)
	if err != nil {
		p.metrics.SinkWrites.WithLabelValues("csv", "error").Inc()
		return nil, fail(StageSink, err)
	}
	p.metrics.SinkWrites.WithLabelValues("csv", "success").Inc()
	vr.Outputs = append(vr.Outputs, path)

	if err := p.load(ctx, table.Rows, logger); err != nil {
		return nil, fail(StageSink, err)
	}
	logger.Info("variable finished", "rows", len(table.Rows), "missing", missing, "strategy", strategy)
	return table, nil
}

func (p *Pipeline) observeManifest(s store.Summary) {
	p.metrics.StoreFiles.WithLabelValues(string(store.StatusIngested)).Add(float64(s.Ingested))
	p.metrics.StoreFiles.WithLabelValues(string(store.StatusSkipped)).Add(float64(s.Skipped))
	p.metrics.StoreFiles.WithLabelValues(string(store.StatusFlagged)).Add(float64(s.Flagged))
	p.metrics.ChunksWritten.Add(float64(s.Chunks))
	p.metrics.ChunkBytes.Add(float64(s.ChunkBytes))
}
