// Package config loads gateway configuration from defaults, an optional YAML
// file and the environment, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPaths are searched when Load is called with an empty path.
var DefaultPaths = []string{"config.yaml", "config/config.yaml"}

// Config holds the application configuration.
type Config struct {
	Server     ServerConfig                 `yaml:"server"`
	Logging    LoggingConfig                `yaml:"logging"`
	HTTP       HTTPConfig                   `yaml:"http"`
	Providers  map[string]RawProviderConfig `yaml:"providers"`
	Resilience ResilienceConfig             `yaml:"resilience"`
	Failover   FailoverConfig               `yaml:"failover"`
	Pricing    PricingConfig                `yaml:"pricing"`
	Cache      CacheConfig                  `yaml:"cache"`
	Storage    StorageConfig                `yaml:"storage"`
	RequestLog RequestLogConfig             `yaml:"request_log"`
	Metrics    MetricsConfig                `yaml:"metrics"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `yaml:"port" env:"PORT"`
	// MasterKey enables Bearer authentication on /v1 routes when set.
	MasterKey     string `yaml:"master_key" env:"CENCORI_MASTER_KEY"`
	BodySizeLimit string `yaml:"body_size_limit" env:"BODY_SIZE_LIMIT"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level string `yaml:"level" env:"LOG_LEVEL"`
	// Format is json, text or pretty. Empty picks pretty on a terminal and json otherwise.
	Format string `yaml:"format" env:"LOG_FORMAT"`
}

// HTTPConfig holds upstream transport timeouts in seconds.
type HTTPConfig struct {
	Timeout               int `yaml:"timeout" env:"HTTP_TIMEOUT"`
	ResponseHeaderTimeout int `yaml:"response_header_timeout" env:"HTTP_RESPONSE_HEADER_TIMEOUT"`
}

// RawProviderConfig is one provider entry as written in YAML.
type RawProviderConfig struct {
	Type    string `yaml:"type"`
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	// Format selects the wire shape of custom providers: openai or anthropic.
	Format string `yaml:"format"`
	// Model overrides the model sent upstream by custom providers.
	Model   string               `yaml:"model"`
	Pricing *ProviderPricing     `yaml:"pricing"`
	Retry   *RetryOverrideConfig `yaml:"retry"`
	Headers map[string]string    `yaml:"headers"`
}

// ProviderPricing is a fixed price attached to a provider entry.
type ProviderPricing struct {
	InputPer1K       float64 `yaml:"input_per_1k"`
	OutputPer1K      float64 `yaml:"output_per_1k"`
	MarkupPercentage float64 `yaml:"markup_percentage"`
}

// RetryOverrideConfig overrides global retry settings for one provider.
// Nil fields inherit the global value.
type RetryOverrideConfig struct {
	MaxRetries       *int     `yaml:"max_retries"`
	InitialBackoffMs *int     `yaml:"initial_backoff_ms"`
	MaxBackoffMs     *int     `yaml:"max_backoff_ms"`
	BackoffFactor    *float64 `yaml:"backoff_factor"`
}

// ResilienceConfig holds request timeout, retry and circuit breaker settings.
type ResilienceConfig struct {
	// RequestTimeout in seconds applies when the caller set no deadline.
	RequestTimeout   int                  `yaml:"request_timeout" env:"REQUEST_TIMEOUT"`
	MaxRetries       int                  `yaml:"max_retries" env:"MAX_RETRIES"`
	InitialBackoffMs int                  `yaml:"initial_backoff_ms" env:"RETRY_INITIAL_BACKOFF_MS"`
	MaxBackoffMs     int                  `yaml:"max_backoff_ms" env:"RETRY_MAX_BACKOFF_MS"`
	BackoffFactor    float64              `yaml:"backoff_factor" env:"RETRY_BACKOFF_FACTOR"`
	CircuitBreaker   CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig holds breaker thresholds.
type CircuitBreakerConfig struct {
	Enabled          bool `yaml:"enabled" env:"CIRCUIT_BREAKER_ENABLED"`
	FailureThreshold int  `yaml:"failure_threshold" env:"CIRCUIT_FAILURE_THRESHOLD"`
	// OpenTimeout in seconds before an open circuit admits a probe.
	OpenTimeout int `yaml:"open_timeout" env:"CIRCUIT_OPEN_TIMEOUT"`
}

// FailoverConfig controls cross-provider fallback.
type FailoverConfig struct {
	Enabled bool `yaml:"enabled" env:"FAILOVER_ENABLED"`
	// Fallback is tried first when set.
	Fallback string `yaml:"fallback" env:"FALLBACK_PROVIDER"`
	// MaxAttempts bounds the providers tried per request, primary included.
	MaxAttempts int `yaml:"max_attempts" env:"FAILOVER_MAX_ATTEMPTS"`
	// Chains replaces the built-in chain for the named primary providers.
	Chains map[string][]string `yaml:"chains"`
}

// PricingConfig selects where model prices come from.
type PricingConfig struct {
	// Source is static or postgresql.
	Source        string         `yaml:"source" env:"PRICING_SOURCE"`
	DefaultMarkup float64        `yaml:"default_markup" env:"PRICING_DEFAULT_MARKUP"`
	CacheTTL      int            `yaml:"cache_ttl" env:"PRICING_CACHE_TTL"`
	Models        []PricingModel `yaml:"models"`
}

// PricingModel is one entry of the static price table.
type PricingModel struct {
	Provider         string   `yaml:"provider"`
	Model            string   `yaml:"model"`
	InputPer1K       float64  `yaml:"input_per_1k"`
	OutputPer1K      float64  `yaml:"output_per_1k"`
	MarkupPercentage *float64 `yaml:"markup_percentage"`
}

// CacheConfig selects the cache backend for pricing and circuit state.
type CacheConfig struct {
	// Type is local or redis.
	Type  string      `yaml:"type" env:"CACHE_TYPE"`
	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	URL    string `yaml:"url" env:"REDIS_URL"`
	Prefix string `yaml:"prefix" env:"REDIS_PREFIX"`
}

// StorageConfig selects the database used by the request log.
type StorageConfig struct {
	Type       string           `yaml:"type" env:"STORAGE_TYPE"`
	SQLite     SQLiteConfig     `yaml:"sqlite"`
	PostgreSQL PostgreSQLConfig `yaml:"postgresql"`
	MongoDB    MongoDBConfig    `yaml:"mongodb"`
}

// SQLiteConfig holds SQLite settings.
type SQLiteConfig struct {
	Path string `yaml:"path" env:"SQLITE_PATH"`
}

// PostgreSQLConfig holds PostgreSQL settings.
type PostgreSQLConfig struct {
	URL      string `yaml:"url" env:"POSTGRES_URL"`
	MaxConns int    `yaml:"max_conns" env:"POSTGRES_MAX_CONNS"`
}

// MongoDBConfig holds MongoDB settings.
type MongoDBConfig struct {
	URL      string `yaml:"url" env:"MONGODB_URL"`
	Database string `yaml:"database" env:"MONGODB_DATABASE"`
}

// RequestLogConfig controls persistence of per-request billing records.
type RequestLogConfig struct {
	Enabled bool `yaml:"enabled" env:"REQUEST_LOG_ENABLED"`
	// BufferSize is the number of entries held before writes are dropped.
	BufferSize int `yaml:"buffer_size" env:"REQUEST_LOG_BUFFER_SIZE"`
	// FlushInterval in seconds.
	FlushInterval int `yaml:"flush_interval" env:"REQUEST_LOG_FLUSH_INTERVAL"`
	// RetentionDays of zero keeps entries forever.
	RetentionDays int `yaml:"retention_days" env:"REQUEST_LOG_RETENTION_DAYS"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled" env:"METRICS_ENABLED"`
	Endpoint string `yaml:"endpoint" env:"METRICS_ENDPOINT"`
}

// buildDefaultConfig returns the configuration used when nothing is set.
func buildDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:          "8080",
			BodySizeLimit: "10M",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		HTTP: HTTPConfig{
			Timeout:               600,
			ResponseHeaderTimeout: 600,
		},
		Providers: map[string]RawProviderConfig{},
		Resilience: ResilienceConfig{
			RequestTimeout:   120,
			MaxRetries:       0,
			InitialBackoffMs: 500,
			MaxBackoffMs:     10000,
			BackoffFactor:    2.0,
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:          true,
				FailureThreshold: 5,
				OpenTimeout:      60,
			},
		},
		Failover: FailoverConfig{
			Enabled:     true,
			MaxAttempts: 3,
		},
		Pricing: PricingConfig{
			Source:   "static",
			CacheTTL: 300,
		},
		Cache: CacheConfig{
			Type: "local",
			Redis: RedisConfig{
				Prefix: "cencori:",
			},
		},
		Storage: StorageConfig{
			Type:       "sqlite",
			SQLite:     SQLiteConfig{Path: "data/cencori.db"},
			PostgreSQL: PostgreSQLConfig{MaxConns: 10},
			MongoDB:    MongoDBConfig{Database: "cencori"},
		},
		RequestLog: RequestLogConfig{
			Enabled:       false,
			BufferSize:    1000,
			FlushInterval: 5,
			RetentionDays: 30,
		},
		Metrics: MetricsConfig{
			Enabled:  false,
			Endpoint: "/metrics",
		},
	}
}

// Load builds the configuration. A .env file in the working directory is loaded
// first without overriding variables that are already set. path may be empty,
// in which case DefaultPaths are tried and a missing file is not an error.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := buildDefaultConfig()

	file, err := findConfigFile(path)
	if err != nil {
		return nil, err
	}
	if file != "" {
		if err := loadYAML(cfg, file); err != nil {
			return nil, err
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func findConfigFile(path string) (string, error) {
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("config file %s: %w", path, err)
		}
		return path, nil
	}
	for _, p := range DefaultPaths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", nil
}

// loadYAML decodes file over cfg and expands ${VAR} placeholders in every string.
func loadYAML(cfg *Config, file string) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", file, err)
	}
	expandConfig(cfg)
	return nil
}

// Validate checks enumerated fields.
func (c *Config) Validate() error {
	var errs []error
	if !oneOf(c.Pricing.Source, "static", "postgresql") {
		errs = append(errs, fmt.Errorf("pricing.source must be static or postgresql, got %q", c.Pricing.Source))
	}
	if !oneOf(c.Cache.Type, "local", "redis") {
		errs = append(errs, fmt.Errorf("cache.type must be local or redis, got %q", c.Cache.Type))
	}
	if c.Cache.Type == "redis" && c.Cache.Redis.URL == "" {
		errs = append(errs, errors.New("cache.redis.url is required when cache.type is redis"))
	}
	if !oneOf(c.Storage.Type, "sqlite", "postgresql", "mongodb") {
		errs = append(errs, fmt.Errorf("storage.type must be sqlite, postgresql or mongodb, got %q", c.Storage.Type))
	}
	if c.Pricing.Source == "postgresql" && c.Storage.PostgreSQL.URL == "" {
		errs = append(errs, errors.New("storage.postgresql.url is required when pricing.source is postgresql"))
	}
	if !oneOf(strings.ToLower(c.Logging.Format), "", "json", "text", "pretty") {
		errs = append(errs, fmt.Errorf("logging.format must be json, text or pretty, got %q", c.Logging.Format))
	}
	if c.Resilience.MaxRetries < 0 {
		errs = append(errs, errors.New("resilience.max_retries must not be negative"))
	}
	if c.Failover.MaxAttempts < 0 {
		errs = append(errs, errors.New("failover.max_attempts must not be negative"))
	}
	for primary, chain := range c.Failover.Chains {
		for _, name := range chain {
			if strings.TrimSpace(name) == "" || name == primary {
				errs = append(errs, fmt.Errorf("failover.chains.%s: invalid fallback %q", primary, name))
			}
		}
	}
	if c.RequestLog.Enabled && (c.RequestLog.BufferSize <= 0 || c.RequestLog.FlushInterval <= 0) {
		errs = append(errs, errors.New("request_log.buffer_size and request_log.flush_interval must be positive"))
	}
	if c.RequestLog.RetentionDays < 0 {
		errs = append(errs, errors.New("request_log.retention_days must not be negative"))
	}
	for name, p := range c.Providers {
		if p.Type == "custom" && p.BaseURL == "" {
			errs = append(errs, fmt.Errorf("providers.%s: base_url is required for custom providers", name))
		}
		if p.Format != "" && !oneOf(p.Format, "openai", "anthropic") {
			errs = append(errs, fmt.Errorf("providers.%s: format must be openai or anthropic, got %q", name, p.Format))
		}
	}
	return errors.Join(errs...)
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
