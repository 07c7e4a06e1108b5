package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tangyongfeng/article-classifier/pkg/classifier/internalerr"
)

// Environment variables recognized by Load.
const (
	EnvConfigPath  = "ARTICLE_CLASSIFIER_CONFIG"
	EnvDBPath      = "ARTICLE_CLASSIFIER_DB"
	EnvOllamaURL   = "OLLAMA_BASE_URL"
	EnvOllamaModel = "OLLAMA_MODEL"
)

// Config holds all settings consumed by the classification pipeline.
type Config struct {
	Ollama     OllamaConfig     `yaml:"ollama"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Optimizer  OptimizerConfig  `yaml:"optimizer"`
	Storage    StorageConfig    `yaml:"storage"`
	Processing ProcessingConfig `yaml:"processing"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// OllamaConfig describes the inference service endpoint.
type OllamaConfig struct {
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	// TimeoutSec bounds a single generate call; a timeout is a transport
	// failure, not a fatal error.
	TimeoutSec int `yaml:"timeout"`
	MaxRetries int `yaml:"max_retries"`
}

// Timeout returns the per-request timeout as a duration.
func (o OllamaConfig) Timeout() time.Duration {
	return time.Duration(o.TimeoutSec) * time.Second
}

// ClassifierConfig controls category resolution policy.
type ClassifierConfig struct {
	MaxCategoryLevels    int     `yaml:"max_category_levels"`
	MinConfidence        float64 `yaml:"min_confidence"`
	InitialTrainingSize  int     `yaml:"initial_training_size"`
	OptimizationInterval int     `yaml:"optimization_interval"`
	AutoOptimize         bool    `yaml:"auto_optimize"`
	// CategoryLanguage selects the canonical naming language: zh, en or auto.
	CategoryLanguage string `yaml:"category_language"`
	FallbackCategory string `yaml:"fallback_category"`
	// StrictTransport records exhausted transport failures in the failure log
	// instead of falling back to the default classification.
	StrictTransport bool `yaml:"strict_transport"`
}

// OptimizerConfig tunes the split/merge/evolve thresholds.
type OptimizerConfig struct {
	SplitMultiplier     float64 `yaml:"split_multiplier"`
	SplitMin            int     `yaml:"split_min"`
	MergeMaxArticles    int     `yaml:"merge_max_articles"`
	EvolveMinCount      int     `yaml:"evolve_min_count"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	SampleSize          int     `yaml:"sample_size"`
}

// StorageConfig locates the relational database and the JSON document tree.
type StorageConfig struct {
	DatabasePath   string `yaml:"database_path"`
	JSONRoot       string `yaml:"json_root"`
	OrganizeByDate bool   `yaml:"organize_by_date"`
	SaveRawContent bool   `yaml:"save_raw_content"`
}

// ProcessingConfig controls the batch loop.
type ProcessingConfig struct {
	// BatchSize caps how many files one process run takes on. Zero means
	// everything collected.
	BatchSize int `yaml:"batch_size"`
	// ParallelLoaders sizes the content prefetch window. Values above 1 only
	// parallelize file loading; classification and tree mutation stay
	// sequential.
	ParallelLoaders    int `yaml:"parallel_loaders"`
	CheckpointInterval int `yaml:"checkpoint_interval"`
}

// LoggingConfig selects the command-layer log verbosity.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Ollama: OllamaConfig{
			BaseURL:     "http://localhost:11434",
			Model:       "gpt-oss:20b",
			Temperature: 0.3,
			TimeoutSec:  120,
			MaxRetries:  2,
		},
		Classifier: ClassifierConfig{
			MaxCategoryLevels:    3,
			MinConfidence:        0.6,
			InitialTrainingSize:  100,
			OptimizationInterval: 100,
			AutoOptimize:         true,
			CategoryLanguage:     "zh",
			FallbackCategory:     "未分类",
		},
		Optimizer: OptimizerConfig{
			SplitMultiplier:     3,
			SplitMin:            12,
			MergeMaxArticles:    3,
			EvolveMinCount:      5,
			SimilarityThreshold: 0.8,
			SampleSize:          20,
		},
		Storage: StorageConfig{
			DatabasePath:   "data/classifier.db",
			JSONRoot:       "data/json",
			OrganizeByDate: true,
			SaveRawContent: true,
		},
		Processing: ProcessingConfig{
			ParallelLoaders:    1,
			CheckpointInterval: 100,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads the YAML file at path (or $ARTICLE_CLASSIFIER_CONFIG when path
// is empty) on top of the defaults, applies environment overrides and
// validates the result. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(EnvOllamaURL); v != "" {
		c.Ollama.BaseURL = v
	}
	if v := os.Getenv(EnvOllamaModel); v != "" {
		c.Ollama.Model = v
	}
	if v := os.Getenv(EnvDBPath); v != "" {
		c.Storage.DatabasePath = v
	}
}

// Validate checks ranges the pipeline depends on.
func (c *Config) Validate() error {
	if c.Ollama.BaseURL == "" {
		return fmt.Errorf("%w: ollama.base_url is required", internalerr.ErrInvalidConfig)
	}
	if c.Ollama.Model == "" {
		return fmt.Errorf("%w: ollama.model is required", internalerr.ErrInvalidConfig)
	}
	if c.Ollama.Temperature < 0 || c.Ollama.Temperature > 1 {
		return fmt.Errorf("%w: ollama.temperature must be within [0,1]", internalerr.ErrInvalidConfig)
	}
	if c.Ollama.TimeoutSec <= 0 {
		return fmt.Errorf("%w: ollama.timeout must be positive", internalerr.ErrInvalidConfig)
	}
	if c.Classifier.MaxCategoryLevels < 1 || c.Classifier.MaxCategoryLevels > 3 {
		return fmt.Errorf("%w: classifier.max_category_levels must be 1..3", internalerr.ErrInvalidConfig)
	}
	if c.Classifier.MinConfidence < 0 || c.Classifier.MinConfidence > 1 {
		return fmt.Errorf("%w: classifier.min_confidence must be within [0,1]", internalerr.ErrInvalidConfig)
	}
	if c.Classifier.OptimizationInterval <= 0 {
		return fmt.Errorf("%w: classifier.optimization_interval must be positive", internalerr.ErrInvalidConfig)
	}
	if c.Classifier.FallbackCategory == "" {
		return fmt.Errorf("%w: classifier.fallback_category is required", internalerr.ErrInvalidConfig)
	}
	switch strings.ToLower(c.Classifier.CategoryLanguage) {
	case "zh", "en", "auto":
	default:
		return fmt.Errorf("%w: classifier.category_language must be zh, en or auto", internalerr.ErrInvalidConfig)
	}
	if c.Processing.BatchSize < 0 {
		return fmt.Errorf("%w: processing.batch_size cannot be negative", internalerr.ErrInvalidConfig)
	}
	if c.Processing.CheckpointInterval <= 0 {
		return fmt.Errorf("%w: processing.checkpoint_interval must be positive", internalerr.ErrInvalidConfig)
	}
	if c.Processing.ParallelLoaders < 1 {
		return fmt.Errorf("%w: processing.parallel_loaders must be at least 1", internalerr.ErrInvalidConfig)
	}
	return nil
}
