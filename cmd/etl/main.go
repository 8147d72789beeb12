package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"

	"github.com/couchcryptid/climate-region-stats/internal/adapter/csvfile"
	httpadapter "github.com/couchcryptid/climate-region-stats/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/climate-region-stats/internal/adapter/kafka"
	"github.com/couchcryptid/climate-region-stats/internal/adapter/netcdf"
	"github.com/couchcryptid/climate-region-stats/internal/adapter/postgres"
	"github.com/couchcryptid/climate-region-stats/internal/adapter/shapefile"
	"github.com/couchcryptid/climate-region-stats/internal/aggregate"
	"github.com/couchcryptid/climate-region-stats/internal/config"
	"github.com/couchcryptid/climate-region-stats/internal/discovery"
	"github.com/couchcryptid/climate-region-stats/internal/domain"
	"github.com/couchcryptid/climate-region-stats/internal/observability"
	"github.com/couchcryptid/climate-region-stats/internal/pipeline"
	"github.com/couchcryptid/climate-region-stats/internal/raster"
	"github.com/couchcryptid/climate-region-stats/internal/store"
)

func main() {
	if err := config.LoadEnvFile(".env"); err != nil {
		slog.Error("failed to load .env", "error", err)
		os.Exit(1)
	}
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := run(cfg); err != nil {
		os.Exit(1)
	}
}

// run wires the service and performs one pipeline run. The returned error
// has already been logged.
func run(cfg *config.Config) error {
	var err error

	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat).With("service", "climate-region-stats")
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loaders := make(map[string]pipeline.BatchLoader)
	var db *postgres.Store
	if cfg.DatabaseURL != "" {
		db, err = postgres.Open(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			logger.Error("failed to connect to postgres", "error", err)
			return err
		}
		if err := db.EnsureSchema(ctx); err != nil {
			logger.Error("failed to create schema", "error", err)
			_ = db.Close()
			return err
		}
		loaders["postgres"] = db
		logger.Info("postgres sink enabled")
	}
	var publisher *kafkaadapter.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		publisher = kafkaadapter.NewPublisher(cfg.KafkaBrokers, cfg.KafkaResultsTopic, logger)
		loaders["kafka"] = publisher
		logger.Info("kafka sink enabled", "topic", cfg.KafkaResultsTopic)
	}

	regions := shapefile.NewLoader(logger)
	stages := pipeline.Stages{
		Discoverer: discovery.New(logger),
		Builder:    store.NewBuilder(netcdf.NewReader(logger), logger),
		Cubes: pipeline.CubeOpenerFunc(func(dir string, cacheSize int) (aggregate.Source, error) {
			cube, err := store.Open(dir, cacheSize)
			if err != nil {
				return nil, err
			}
			return cube, nil
		}),
		Regions: pipeline.RegionSourceFunc(func() (domain.RegionSet, error) {
			return regions.Load(cfg.RegionsFile, shapefile.Options{
				IDField:    cfg.RegionIDField,
				NameField:  cfg.RegionNameField,
				StateField: cfg.RegionStateField,
				States:     cfg.RegionStates,
				TargetCRS:  cfg.RegionCRS,
			})
		}),
		Rasterizer: raster.New(cfg.RasterCacheSize, logger),
		Aggregator: aggregate.NewEngine(logger),
		Tables:     csvfile.NewWriter(cfg.OutputDir, logger),
		Loaders:    loaders,
	}
	p := pipeline.New(cfg.RunConfig(""), stages, logger, metrics)

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, p, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	runErr := p.Run(ctx)
	if runErr != nil {
		logger.Error("pipeline run failed", "error", runErr)
	}

	if !cfg.RunOnce && ctx.Err() == nil {
		logger.Info("run finished, serving results until signalled")
		<-ctx.Done()
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Error("kafka publisher close error", "error", err)
		}
	}
	if db != nil {
		if err := db.Close(); err != nil {
			logger.Error("postgres close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
	return runErr
}
