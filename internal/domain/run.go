package domain

import "maps"

// Strategy names an aggregation algorithm.
type Strategy string

const (
	StrategyAuto         Strategy = "auto"
	StrategyGeometryClip Strategy = "geometry-clip"
	StrategyBulkMask     Strategy = "bulk-mask"
)

// RunConfig is the immutable configuration handed to every stage of a run.
type RunConfig struct {
	RunID       string
	DataDir     string
	FilePattern string
	StoreDir    string
	OutputDir   string
	Variables   []string
	Scenario    string

	Codec      string
	CodecLevel int
	ChunkTime  int
	ChunkTile  int
	// StrictProvenance makes any provenance mismatch fail the build.
	StrictProvenance bool

	Workers       int
	StrategyRatio float64
	Strategy      Strategy

	// ChunkCacheSize bounds decompressed chunks held per opened cube.
	ChunkCacheSize int
	BatchSize      int

	thresholds map[string]float64
}

// WithThresholds returns a copy of c using the given threshold overrides.
func (c RunConfig) WithThresholds(t map[string]float64) RunConfig {
	c.thresholds = maps.Clone(t)
	return c
}

// Thresholds returns a copy of the threshold overrides.
func (c RunConfig) Thresholds() map[string]float64 { return maps.Clone(c.thresholds) }
