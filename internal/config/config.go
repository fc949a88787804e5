// Package config loads pipeline configuration from viper.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Veraticus/rfm-flow/internal/common"
	"github.com/Veraticus/rfm-flow/internal/model"
	"github.com/spf13/viper"
)

// Default locations, relative to the working directory.
const (
	DefaultInputPath    = "data/raw/Online_Retail.xlsx"
	DefaultDatabasePath = "data/customer_data.db"
	DefaultExportPath   = "data/processed/customer_segments_clv.csv"
)

// Config is the typed view of every pipeline setting.
type Config struct {
	Input    InputConfig
	Database DatabaseConfig
	Export   ExportConfig
	Segment  SegmentConfig
	CLV      CLVConfig
	Pipeline PipelineConfig
}

// InputConfig locates the raw transaction extract.
type InputConfig struct {
	Path  string
	Sheet string
}

// DatabaseConfig locates the shared SQLite store.
type DatabaseConfig struct {
	Path string
}

// ExportConfig controls the flat-file export.
type ExportConfig struct {
	Path     string
	Manifest bool
	Sheets   bool
}

// SegmentConfig controls standardization and clustering.
type SegmentConfig struct {
	Clusters      int
	Seed          uint64
	Restarts      int
	MaxIterations int
	Tolerance     float64
}

// CLVConfig controls the train/test split and the boosted model.
type CLVConfig struct {
	Seed           uint64
	TestSize       float64
	Estimators     int
	MaxDepth       int
	LearningRate   float64
	MinSamplesLeaf int
	Lambda         float64
}

// PipelineConfig controls cross-stage behavior.
type PipelineConfig struct {
	AutoCheckpoint bool
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("input.path", DefaultInputPath)
	v.SetDefault("input.sheet", "")
	v.SetDefault("database.path", DefaultDatabasePath)
	v.SetDefault("export.path", DefaultExportPath)
	v.SetDefault("export.manifest", true)
	v.SetDefault("export.sheets", false)
	v.SetDefault("segment.clusters", model.NumSegments)
	v.SetDefault("segment.seed", 42)
	v.SetDefault("segment.restarts", 10)
	v.SetDefault("segment.max_iterations", 300)
	v.SetDefault("segment.tolerance", 1e-4)
	v.SetDefault("clv.seed", 42)
	v.SetDefault("clv.test_size", 0.2)
	v.SetDefault("clv.estimators", 100)
	v.SetDefault("clv.max_depth", 6)
	v.SetDefault("clv.learning_rate", 0.3)
	v.SetDefault("clv.min_samples_leaf", 1)
	v.SetDefault("clv.lambda", 1.0)
	v.SetDefault("pipeline.auto_checkpoint", false)
}

// Default returns the configuration produced by SetDefaults alone.
func Default() Config {
	v := viper.New()
	SetDefaults(v)
	cfg, _ := Load(v)
	return cfg
}

// Load reads a Config out of v and validates it.
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		Input: InputConfig{
			Path:  ExpandPath(v.GetString("input.path")),
			Sheet: v.GetString("input.sheet"),
		},
		Database: DatabaseConfig{
			Path: ExpandPath(v.GetString("database.path")),
		},
		Export: ExportConfig{
			Path:     ExpandPath(v.GetString("export.path")),
			Manifest: v.GetBool("export.manifest"),
			Sheets:   v.GetBool("export.sheets"),
		},
		Segment: SegmentConfig{
			Clusters:      v.GetInt("segment.clusters"),
			Seed:          v.GetUint64("segment.seed"),
			Restarts:      v.GetInt("segment.restarts"),
			MaxIterations: v.GetInt("segment.max_iterations"),
			Tolerance:     v.GetFloat64("segment.tolerance"),
		},
		CLV: CLVConfig{
			Seed:           v.GetUint64("clv.seed"),
			TestSize:       v.GetFloat64("clv.test_size"),
			Estimators:     v.GetInt("clv.estimators"),
			MaxDepth:       v.GetInt("clv.max_depth"),
			LearningRate:   v.GetFloat64("clv.learning_rate"),
			MinSamplesLeaf: v.GetInt("clv.min_samples_leaf"),
			Lambda:         v.GetFloat64("clv.lambda"),
		},
		Pipeline: PipelineConfig{
			AutoCheckpoint: v.GetBool("pipeline.auto_checkpoint"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks ranges that the stages rely on.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Input.Path) == "":
		return fmt.Errorf("%w: input.path is empty", common.ErrInvalidConfig)
	case strings.TrimSpace(c.Database.Path) == "":
		return fmt.Errorf("%w: database.path is empty", common.ErrInvalidConfig)
	case strings.TrimSpace(c.Export.Path) == "":
		return fmt.Errorf("%w: export.path is empty", common.ErrInvalidConfig)
	case c.Segment.Clusters < 1 || c.Segment.Clusters > model.NumSegments:
		return fmt.Errorf("%w: segment.clusters must be between 1 and %d, got %d",
			common.ErrInvalidConfig, model.NumSegments, c.Segment.Clusters)
	case c.Segment.Restarts < 1:
		return fmt.Errorf("%w: segment.restarts must be positive", common.ErrInvalidConfig)
	case c.Segment.MaxIterations < 1:
		return fmt.Errorf("%w: segment.max_iterations must be positive", common.ErrInvalidConfig)
	case c.Segment.Tolerance < 0:
		return fmt.Errorf("%w: segment.tolerance cannot be negative", common.ErrInvalidConfig)
	case c.CLV.TestSize <= 0 || c.CLV.TestSize >= 1:
		return fmt.Errorf("%w: clv.test_size must be in (0, 1), got %g", common.ErrInvalidConfig, c.CLV.TestSize)
	case c.CLV.Estimators < 1:
		return fmt.Errorf("%w: clv.estimators must be positive", common.ErrInvalidConfig)
	case c.CLV.MaxDepth < 1:
		return fmt.Errorf("%w: clv.max_depth must be positive", common.ErrInvalidConfig)
	case c.CLV.LearningRate <= 0 || c.CLV.LearningRate > 1:
		return fmt.Errorf("%w: clv.learning_rate must be in (0, 1]", common.ErrInvalidConfig)
	case c.CLV.MinSamplesLeaf < 1:
		return fmt.Errorf("%w: clv.min_samples_leaf must be positive", common.ErrInvalidConfig)
	case c.CLV.Lambda < 0:
		return fmt.Errorf("%w: clv.lambda cannot be negative", common.ErrInvalidConfig)
	}
	return nil
}

// ExpandPath expands ~ and environment variables in a file path.
func ExpandPath(path string) string {
	if path == "" {
		return path
	}

	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	} else if path == "~" {
		home, err := os.UserHomeDir()
		if err == nil {
			path = home
		}
	}

	return os.ExpandEnv(path)
}
