// Package config provides configuration loading and structs for the clipsearch server.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalid is returned when a loaded configuration is inconsistent.
var ErrInvalid = errors.New("invalid configuration")

// Config holds all configuration for the application.
type Config struct {
	Debug    bool           `yaml:"debug"`
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Semantic SemanticConfig `yaml:"semantic"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds the clipboard history database path.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// SemanticConfig holds semantic search settings.
type SemanticConfig struct {
	Enabled                bool       `yaml:"enabled"`
	ModelPath              string     `yaml:"model_path"`
	ModelURL               string     `yaml:"model_url"`
	MinModelSizeBytes      int64      `yaml:"min_model_size_bytes"`
	Dimensions             int        `yaml:"dimensions"`
	NativeDimensions       int        `yaml:"native_dimensions"`
	MaxTokens              int        `yaml:"max_tokens"`
	MaxItemsInMemory       int        `yaml:"max_items_in_memory"`
	MinSimilarity          *float64   `yaml:"min_similarity"`
	BatchSize              int        `yaml:"batch_size"`
	ProgressInterval       int        `yaml:"progress_interval"`
	DownloadChunkSize      int        `yaml:"download_chunk_size"`
	DownloadTimeoutSeconds int        `yaml:"download_timeout_seconds"`
	QueryCacheSize         int        `yaml:"query_cache_size"`
	DefaultLimit           int        `yaml:"default_limit"`
	MaxLimit               int        `yaml:"max_limit"`
	ONNX                   ONNXConfig `yaml:"onnx"`
}

// ONNXConfig holds ONNX Runtime settings for the embedding model.
type ONNXConfig struct {
	SharedLibraryPath string   `yaml:"shared_library_path"`
	InputNames        []string `yaml:"input_names"`
	OutputName        string   `yaml:"output_name"`
}

// MinSimilarityOrDefault returns the search threshold; defaults to 0.2 when unset.
func (s *SemanticConfig) MinSimilarityOrDefault() float32 {
	if s.MinSimilarity != nil {
		return float32(*s.MinSimilarity)
	}
	return DefaultMinSimilarity
}

// DownloadTimeout returns the download connect timeout.
func (s *SemanticConfig) DownloadTimeout() time.Duration {
	return time.Duration(s.DownloadTimeoutSeconds) * time.Second
}

// Load reads and parses the config file at path, expands paths, applies defaults
// and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Semantic.ModelPath = expandPath(cfg.Semantic.ModelPath, configDir)
	if p := cfg.Semantic.ONNX.SharedLibraryPath; p != "" {
		cfg.Semantic.ONNX.SharedLibraryPath = expandPath(p, configDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports settings that cannot work together.
func (c *Config) Validate() error {
	s := &c.Semantic
	if s.Dimensions > s.NativeDimensions {
		return fmt.Errorf("%w: semantic.dimensions (%d) exceeds semantic.native_dimensions (%d)",
			ErrInvalid, s.Dimensions, s.NativeDimensions)
	}
	if s.MaxLimit < s.DefaultLimit {
		return fmt.Errorf("%w: semantic.max_limit (%d) is below semantic.default_limit (%d)",
			ErrInvalid, s.MaxLimit, s.DefaultLimit)
	}
	if sim := s.MinSimilarityOrDefault(); sim < -1 || sim > 1 {
		return fmt.Errorf("%w: semantic.min_similarity (%g) must be within [-1, 1]", ErrInvalid, sim)
	}
	return nil
}

// Save writes the config to path. Used for persisting the semantic enabled toggle.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
