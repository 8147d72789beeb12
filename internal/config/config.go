package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"

	"github.com/couchcryptid/climate-region-stats/internal/domain"
	"github.com/couchcryptid/climate-region-stats/internal/store"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	DataDir     string
	Variables   []string
	Scenario    string
	FilePattern string

	StoreDir         string
	Compression      string
	CompressionLevel int
	ChunkTime        int
	ChunkTile        int
	StrictProvenance bool

	RegionsFile      string
	RegionIDField    string
	RegionNameField  string
	RegionStateField string
	RegionStates     []string
	RegionCRS        string

	Workers        int
	StrategyRatio  float64
	Strategy       domain.Strategy
	ThresholdsFile string
	Thresholds     map[string]float64

	OutputDir         string
	DatabaseURL       string
	KafkaBrokers      []string
	KafkaResultsTopic string
	BatchSize         int

	RasterCacheSize int
	ChunkCacheSize  int

	HTTPAddr        string
	RunOnce         bool
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
}

// LoadEnvFile loads variables from a .env file without overriding the
// environment. A missing file is not an error.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}
	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DataDir:     sharedcfg.EnvOrDefault("DATA_DIR", "./data"),
		Variables:   parseList(sharedcfg.EnvOrDefault("VARIABLES", "pr,tas,tasmax,tasmin")),
		Scenario:    sharedcfg.EnvOrDefault("SCENARIO", "historical"),
		FilePattern: sharedcfg.EnvOrDefault("FILE_PATTERN", "*.nc"),

		StoreDir:    sharedcfg.EnvOrDefault("STORE_DIR", "./store"),
		Compression: strings.ToLower(sharedcfg.EnvOrDefault("CLIMATE_COMPRESSION", store.CodecZstd)),

		RegionsFile:      sharedcfg.EnvOrDefault("REGIONS_FILE", "./regions/counties.shp"),
		RegionIDField:    os.Getenv("REGION_ID_FIELD"),
		RegionNameField:  os.Getenv("REGION_NAME_FIELD"),
		RegionStateField: os.Getenv("REGION_STATE_FIELD"),
		RegionStates:     parseList(strings.ToUpper(os.Getenv("REGION_STATES"))),
		RegionCRS:        sharedcfg.EnvOrDefault("REGION_CRS", "+proj=longlat +datum=WGS84 +no_defs"),

		Strategy:       domain.Strategy(sharedcfg.EnvOrDefault("STRATEGY", string(domain.StrategyAuto))),
		ThresholdsFile: os.Getenv("THRESHOLDS_FILE"),

		OutputDir:         sharedcfg.EnvOrDefault("OUTPUT_DIR", "./output"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		KafkaBrokers:      sharedcfg.ParseBrokers(os.Getenv("KAFKA_BROKERS")),
		KafkaResultsTopic: sharedcfg.EnvOrDefault("KAFKA_RESULTS_TOPIC", "climate-region-stats"),
		BatchSize:         batchSize,

		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
	}

	ints := []struct {
		key  string
		def  int
		min  int
		dest *int
	}{
		{"CLIMATE_COMPRESSION_LEVEL", 5, 0, &cfg.CompressionLevel},
		{"CHUNK_TIME", 365, 1, &cfg.ChunkTime},
		{"CHUNK_TILE", 512, 1, &cfg.ChunkTile},
		{"WORKERS", runtime.NumCPU(), 1, &cfg.Workers},
		{"RASTER_CACHE_SIZE", 8, 1, &cfg.RasterCacheSize},
		{"CHUNK_CACHE_SIZE", 16, 1, &cfg.ChunkCacheSize},
	}
	for _, p := range ints {
		if *p.dest, err = parseInt(p.key, p.def, p.min); err != nil {
			return nil, err
		}
	}
	if cfg.StrictProvenance, err = parseBool("STRICT_PROVENANCE", true); err != nil {
		return nil, err
	}
	if cfg.RunOnce, err = parseBool("RUN_ONCE", true); err != nil {
		return nil, err
	}
	if cfg.StrategyRatio, err = parseRatio(); err != nil {
		return nil, err
	}
	if cfg.ThresholdsFile != "" {
		if cfg.Thresholds, err = LoadThresholds(cfg.ThresholdsFile); err != nil {
			return nil, err
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if len(c.Variables) == 0 {
		return errors.New("VARIABLES is required")
	}
	for _, v := range c.Variables {
		if _, err := domain.ProfileFor(v, nil); err != nil {
			return fmt.Errorf("invalid VARIABLES: %w", err)
		}
	}
	if c.Scenario == "" {
		return errors.New("SCENARIO is required")
	}
	if _, err := store.NewCodec(c.Compression, c.CompressionLevel); err != nil {
		return fmt.Errorf("invalid CLIMATE_COMPRESSION or CLIMATE_COMPRESSION_LEVEL: %w", err)
	}
	switch c.Strategy {
	case domain.StrategyAuto, domain.StrategyGeometryClip, domain.StrategyBulkMask:
	default:
		return fmt.Errorf("invalid STRATEGY %q: must be auto, geometry-clip or bulk-mask", c.Strategy)
	}
	if c.KafkaResultsTopic == "" && len(c.KafkaBrokers) > 0 {
		return errors.New("KAFKA_RESULTS_TOPIC is required when KAFKA_BROKERS is set")
	}
	return nil
}

// RunConfig returns the immutable per-run configuration. runID may be empty.
func (c *Config) RunConfig(runID string) domain.RunConfig {
	rc := domain.RunConfig{
		RunID:            runID,
		DataDir:          c.DataDir,
		FilePattern:      c.FilePattern,
		StoreDir:         c.StoreDir,
		OutputDir:        c.OutputDir,
		Variables:        append([]string(nil), c.Variables...),
		Scenario:         c.Scenario,
		Codec:            c.Compression,
		CodecLevel:       c.CompressionLevel,
		ChunkTime:        c.ChunkTime,
		ChunkTile:        c.ChunkTile,
		StrictProvenance: c.StrictProvenance,
		Workers:          c.Workers,
		StrategyRatio:    c.StrategyRatio,
		Strategy:         c.Strategy,
		ChunkCacheSize:   c.ChunkCacheSize,
		BatchSize:        c.BatchSize,
	}
	return rc.WithThresholds(c.Thresholds)
}

// LoadThresholds reads a YAML mapping of variable name to threshold.
func LoadThresholds(path string) (map[string]float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read THRESHOLDS_FILE: %w", err)
	}
	var t map[string]float64
	if err := yaml.UnmarshalStrict(data, &t); err != nil {
		return nil, fmt.Errorf("parse THRESHOLDS_FILE %s: %w", path, err)
	}
	for v := range t {
		if _, err := domain.ProfileFor(v, nil); err != nil {
			return nil, fmt.Errorf("THRESHOLDS_FILE %s: %w", path, err)
		}
	}
	return t, nil
}

func parseList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseInt(key string, def, minValue int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < minValue {
		return 0, fmt.Errorf("invalid %s: must be an integer >= %d", key, minValue)
	}
	return n, nil
}

func parseBool(key string, def bool) (bool, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s: must be true or false", key)
	}
	return b, nil
}

func parseRatio() (float64, error) {
	s := sharedcfg.EnvOrDefault("STRATEGY_RATIO", "0.002")
	r, err := strconv.ParseFloat(s, 64)
	if err != nil || r <= 0 {
		return 0, errors.New("invalid STRATEGY_RATIO: must be a positive number")
	}
	return r, nil
}
