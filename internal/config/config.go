// Package config provides the configuration of a schooldata session.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/usaschooldata/schooldata/internal/partition"
	"github.com/usaschooldata/schooldata/pkg/types"
)

// SourceType selects where partition files are read from.
type SourceType string

const (
	SourceHTTP   SourceType = "http"
	SourceLocal  SourceType = "local"
	SourceMirror SourceType = "mirror"
)

// Config holds the configuration of one session.
type Config struct {
	// DataDir is the base directory for cached partitions
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// Years are the known school years, most recent first. Empty uses the
	// published defaults.
	Years []string `json:"years" yaml:"years"`

	// DiscoverYears lists the years from the mirror's storage at startup
	// instead of using Years.
	DiscoverYears bool `json:"discover_years" yaml:"discover_years"`

	Source  SourceConfig  `json:"source" yaml:"source"`
	Engine  EngineConfig  `json:"engine" yaml:"engine"`
	Remote  RemoteConfig  `json:"remote" yaml:"remote"`
	Search  SearchConfig  `json:"search" yaml:"search"`
	Log     LogConfig     `json:"log" yaml:"log"`
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
}

// SourceConfig holds partition source configuration.
type SourceConfig struct {
	// Type is the source type: http, local, mirror
	Type SourceType `json:"type" yaml:"type"`

	// BaseURL is the dataset host (http type)
	BaseURL string `json:"base_url" yaml:"base_url"`

	// Dir is the dataset root (local type)
	Dir string `json:"dir" yaml:"dir"`

	// CacheDir holds mirrored partitions (mirror type)
	CacheDir string `json:"cache_dir" yaml:"cache_dir"`

	// CacheBytes bounds the mirror cache
	CacheBytes int64 `json:"cache_bytes" yaml:"cache_bytes"`

	// Concurrency is the number of parallel partition downloads
	Concurrency int `json:"concurrency" yaml:"concurrency"`

	// Storage is the object store mirrored from (mirror type)
	Storage StorageConfig `json:"storage" yaml:"storage"`
}

// StorageConfig holds object storage configuration.
type StorageConfig struct {
	// Type is the storage type: local, s3
	Type string `json:"type" yaml:"type"`

	// Path is the local storage path (for local type)
	Path string `json:"path" yaml:"path"`

	// S3 configuration (for s3 type)
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 storage configuration.
type S3Config struct {
	// Bucket is the S3 bucket name
	Bucket string `json:"bucket" yaml:"bucket"`

	// Region is the AWS region
	Region string `json:"region" yaml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// UsePathStyle forces path-style addressing
	UsePathStyle bool `json:"use_path_style" yaml:"use_path_style"`

	// Prefix is the key prefix the partition tree lives under
	Prefix string `json:"prefix" yaml:"prefix"`

	// Anonymous reads a public bucket without credentials
	Anonymous bool `json:"anonymous" yaml:"anonymous"`
}

// EngineConfig holds embedded engine configuration.
type EngineConfig struct {
	// Path is the database file; empty means in-memory
	Path string `json:"path" yaml:"path"`

	// Extensions are installed and loaded at initialization
	Extensions []string `json:"extensions" yaml:"extensions"`

	// MaxExpressionDepth limits expression nesting
	MaxExpressionDepth int `json:"max_expression_depth" yaml:"max_expression_depth"`
}

// RemoteConfig holds remote aggregation service configuration.
type RemoteConfig struct {
	// Address is the gRPC target; empty disables the remote backend
	Address string `json:"address" yaml:"address"`

	// Timeout is the per-call deadline
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// Insecure disables TLS
	Insecure bool `json:"insecure" yaml:"insecure"`
}

// SearchConfig holds directory search configuration.
type SearchConfig struct {
	Debounce       time.Duration `json:"debounce" yaml:"debounce"`
	MinQueryLength int           `json:"min_query_length" yaml:"min_query_length"`
	Limit          int           `json:"limit" yaml:"limit"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string `json:"level" yaml:"level"`
	Human bool   `json:"human" yaml:"human"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// DefaultConfig returns the default configuration: public HTTP dataset,
// in-memory engine, no remote backend.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data/schooldata",
		Source: SourceConfig{
			Type:        SourceHTTP,
			BaseURL:     partition.DefaultBaseURL,
			CacheBytes:  2 << 30,
			Concurrency: 4,
			Storage: StorageConfig{
				Type: "local",
			},
		},
		Engine: EngineConfig{
			Extensions:         []string{"httpfs"},
			MaxExpressionDepth: 20,
		},
		Remote: RemoteConfig{
			Timeout: 10 * time.Second,
		},
		Search: SearchConfig{
			Debounce:       500 * time.Millisecond,
			MinQueryLength: 3,
			Limit:          10,
		},
		Log: LogConfig{
			Level: "info",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Resolve resolves relative paths and sets defaults based on DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/schooldata"
	}
	if c.Source.CacheDir == "" {
		c.Source.CacheDir = filepath.Join(c.DataDir, "partitions")
	}
	if c.Source.Storage.Type == "" {
		c.Source.Storage.Type = "local"
	}
	if c.Source.Type == SourceMirror && c.Source.Storage.Path == "" {
		c.Source.Storage.Path = filepath.Join(c.DataDir, "storage")
	}
}

// SchoolYears returns the configured years, or the published defaults.
func (c *Config) SchoolYears() []types.SchoolYear {
	if len(c.Years) == 0 {
		return types.DefaultAvailableYears()
	}
	return types.Years(c.Years...)
}

var extensionName = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Source.Type {
	case SourceHTTP:
		if c.Source.BaseURL == "" {
			return fmt.Errorf("source.base_url is required when source type is http")
		}
	case SourceLocal:
		if c.Source.Dir == "" {
			return fmt.Errorf("source.dir is required when source type is local")
		}
	case SourceMirror:
		if c.Source.Storage.Type != "local" && c.Source.Storage.Type != "s3" {
			return fmt.Errorf("invalid storage type: %s (must be local or s3)", c.Source.Storage.Type)
		}
		if c.Source.Storage.Type == "s3" && c.Source.Storage.S3.Bucket == "" {
			return fmt.Errorf("s3.bucket is required when storage type is s3")
		}
		if c.Source.Concurrency < 1 {
			return fmt.Errorf("source.concurrency must be positive, got %d", c.Source.Concurrency)
		}
	default:
		return fmt.Errorf("invalid source type: %s (must be http, local, or mirror)", c.Source.Type)
	}
	if c.DiscoverYears && c.Source.Type != SourceMirror {
		return fmt.Errorf("discover_years requires the mirror source")
	}

	for _, y := range c.Years {
		if !types.SchoolYear(y).Valid() {
			return fmt.Errorf("invalid school year %q (must look like 2023-2024)", y)
		}
	}

	for _, ext := range c.Engine.Extensions {
		if !extensionName.MatchString(ext) {
			return fmt.Errorf("invalid engine extension name %q", ext)
		}
	}
	if c.Engine.MaxExpressionDepth < 0 {
		return fmt.Errorf("engine.max_expression_depth must not be negative")
	}

	if c.Remote.Address != "" && c.Remote.Timeout <= 0 {
		return fmt.Errorf("remote.timeout must be positive when remote.address is set")
	}

	if c.Search.MinQueryLength < 1 || c.Search.Limit < 1 {
		return fmt.Errorf("search.min_query_length and search.limit must be positive")
	}

	if c.Log.Level != "" {
		if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
			return fmt.Errorf("invalid log level %q: %w", c.Log.Level, err)
		}
	}

	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the SCHOOLDATA_ prefix.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("SCHOOLDATA_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("SCHOOLDATA_YEARS"); v != "" {
		cfg.Years = splitList(v)
	}

	// Source configuration
	if v := os.Getenv("SCHOOLDATA_SOURCE_TYPE"); v != "" {
		cfg.Source.Type = SourceType(v)
	}
	if v := os.Getenv("SCHOOLDATA_SOURCE_BASE_URL"); v != "" {
		cfg.Source.BaseURL = v
	}
	if v := os.Getenv("SCHOOLDATA_SOURCE_DIR"); v != "" {
		cfg.Source.Dir = v
	}
	if v := os.Getenv("SCHOOLDATA_SOURCE_CONCURRENCY"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Source.Concurrency)
	}
	if v := os.Getenv("SCHOOLDATA_STORAGE_TYPE"); v != "" {
		cfg.Source.Storage.Type = v
	}
	if v := os.Getenv("SCHOOLDATA_STORAGE_PATH"); v != "" {
		cfg.Source.Storage.Path = v
	}
	if v := os.Getenv("SCHOOLDATA_S3_BUCKET"); v != "" {
		cfg.Source.Storage.S3.Bucket = v
	}
	if v := os.Getenv("SCHOOLDATA_S3_REGION"); v != "" {
		cfg.Source.Storage.S3.Region = v
	}
	if v := os.Getenv("SCHOOLDATA_S3_ENDPOINT"); v != "" {
		cfg.Source.Storage.S3.Endpoint = v
	}
	if v := os.Getenv("SCHOOLDATA_S3_PREFIX"); v != "" {
		cfg.Source.Storage.S3.Prefix = v
	}
	if v := os.Getenv("SCHOOLDATA_S3_ANONYMOUS"); v != "" {
		cfg.Source.Storage.S3.Anonymous = v == "true" || v == "1"
	}

	// Engine configuration
	if v := os.Getenv("SCHOOLDATA_ENGINE_PATH"); v != "" {
		cfg.Engine.Path = v
	}
	if v, ok := os.LookupEnv("SCHOOLDATA_ENGINE_EXTENSIONS"); ok {
		cfg.Engine.Extensions = splitList(v)
	}

	// Remote configuration
	if v := os.Getenv("SCHOOLDATA_REMOTE_ADDRESS"); v != "" {
		cfg.Remote.Address = v
	}
	if v := os.Getenv("SCHOOLDATA_REMOTE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Remote.Timeout = d
		}
	}
	if v := os.Getenv("SCHOOLDATA_REMOTE_INSECURE"); v != "" {
		cfg.Remote.Insecure = v == "true" || v == "1"
	}

	// Search configuration
	if v := os.Getenv("SCHOOLDATA_SEARCH_DEBOUNCE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Search.Debounce = d
		}
	}

	// Logging configuration
	if v := os.Getenv("SCHOOLDATA_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("SCHOOLDATA_LOG_HUMAN"); v != "" {
		cfg.Log.Human = v == "true" || v == "1"
	}
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// EnsureDirectories creates the directories the configured source writes to.
func (c *Config) EnsureDirectories() error {
	if c.Source.Type != SourceMirror {
		return nil
	}
	dirs := []string{c.DataDir, c.Source.CacheDir}
	if c.Source.Storage.Type == "local" {
		dirs = append(dirs, c.Source.Storage.Path)
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
