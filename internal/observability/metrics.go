package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "climate_etl"

// Metrics holds the Prometheus counters, histograms, and gauges for the pipeline.
type Metrics struct {
	PipelineRunning prometheus.Gauge
	RunDuration     prometheus.Histogram

	// Input and store metrics.
	FilesDiscovered    prometheus.Counter
	FilesExcluded      prometheus.Counter
	StoreFiles         *prometheus.CounterVec // labels: outcome={ingested,skipped,flagged}
	ChunksWritten      prometheus.Counter
	ChunkBytes         prometheus.Counter
	StoreBuildDuration prometheus.Histogram

	// Rasterization metrics.
	RasterCache       *prometheus.CounterVec // labels: result={hit,miss}
	RegionsRasterized prometheus.Counter

	// Aggregation metrics.
	AggregationUnits    *prometheus.CounterVec   // labels: strategy
	AggregationDuration *prometheus.HistogramVec // labels: strategy
	RecordsEmitted      *prometheus.CounterVec   // labels: outcome={record,missing}

	// Sink metrics.
	SinkWrites *prometheus.CounterVec // labels: sink, outcome={success,error}
}

func newMetrics() *Metrics {
	return &Metrics{
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while a run is in progress, 0 otherwise.",
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete run across all variables.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),
		FilesDiscovered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_discovered_total",
			Help:      "Candidate input files that survived name filtering.",
		}),
		FilesExcluded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_excluded_total",
			Help:      "Input names dropped as artifacts before opening.",
		}),
		StoreFiles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_files_total",
			Help:      "Input files handled by the store builder by outcome.",
		}, []string{"outcome"}),
		ChunksWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_written_total",
			Help:      "Compressed chunks persisted.",
		}),
		ChunkBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunk_bytes_total",
			Help:      "Compressed bytes persisted.",
		}),
		StoreBuildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_build_duration_seconds",
			Help:      "Duration of one store build.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 4, 8),
		}),
		RasterCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "raster_cache_total",
			Help:      "Region raster cache lookups by result.",
		}, []string{"result"}),
		RegionsRasterized: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "regions_rasterized_total",
			Help:      "Regions burned into membership rasters.",
		}),
		AggregationUnits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "aggregation_units_total",
			Help:      "Completed aggregation work units by strategy.",
		}, []string{"strategy"}),
		AggregationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "aggregation_duration_seconds",
			Help:      "Duration of a full aggregation by strategy.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 4, 8),
		}, []string{"strategy"}),
		RecordsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_emitted_total",
			Help:      "Region-year outputs by outcome.",
		}, []string{"outcome"}),
		SinkWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_writes_total",
			Help:      "Result batches written by sink and outcome.",
		}, []string{"sink", "outcome"}),
	}
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.PipelineRunning,
		m.RunDuration,
		m.FilesDiscovered,
		m.FilesExcluded,
		m.StoreFiles,
		m.ChunksWritten,
		m.ChunkBytes,
		m.StoreBuildDuration,
		m.RasterCache,
		m.RegionsRasterized,
		m.AggregationUnits,
		m.AggregationDuration,
		m.RecordsEmitted,
		m.SinkWrites,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}
