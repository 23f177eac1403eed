package model

import (
	"fmt"
	"time"
)

// Config holds all runtime settings for an extraction run
type Config struct {
	HTTP         HTTPConfig         `yaml:"http" mapstructure:"http"`
	Registry     RegistryConfig     `yaml:"registry" mapstructure:"registry"`
	Concurrency  ConcurrencyConfig  `yaml:"concurrency" mapstructure:"concurrency"`
	Retry        RetryConfig        `yaml:"retry" mapstructure:"retry"`
	RateLimiting RateLimitingConfig `yaml:"rate_limiting" mapstructure:"rate_limiting"`
	Cache        CacheConfig        `yaml:"cache" mapstructure:"cache"`
	Output       OutputConfig       `yaml:"output" mapstructure:"output"`
	Logging      LoggingConfig      `yaml:"logging" mapstructure:"logging"`
	Metrics      MetricsConfig      `yaml:"metrics" mapstructure:"metrics"`
}

// HTTPConfig configures registry requests
type HTTPConfig struct {
	Timeout       time.Duration `yaml:"timeout" mapstructure:"timeout"` // Per request, not per state walk
	UserAgent     string        `yaml:"user_agent" mapstructure:"user_agent"`
	MaxBodyBytes  int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	HTTPProxy     string        `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy    string        `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	NoProxy       string        `yaml:"no_proxy,omitempty" mapstructure:"no_proxy"`
	InsecureTLS   bool          `yaml:"insecure_tls" mapstructure:"insecure_tls"`
	RespectRobots bool          `yaml:"respect_robots" mapstructure:"respect_robots"`
}

// RegistryConfig describes the registry endpoints and wire parameters.
//
// SessionPath is fetched once per run to obtain session cookies. TokenField names
// the hidden anti-forgery input on that page, echoed with every search. Leaving
// either empty skips it.
type RegistryConfig struct {
	BaseURL        string `yaml:"base_url" mapstructure:"base_url"`
	SessionPath    string `yaml:"session_path" mapstructure:"session_path"`
	TokenField     string `yaml:"token_field,omitempty" mapstructure:"token_field"`
	SearchPath     string `yaml:"search_path" mapstructure:"search_path"`
	StatesPath     string `yaml:"states_path" mapstructure:"states_path"`
	IDField        string `yaml:"id_field" mapstructure:"id_field"`
	StateParam     string `yaml:"state_param" mapstructure:"state_param"`
	CursorParam    string `yaml:"cursor_param" mapstructure:"cursor_param"`
	PageSizeParam  string `yaml:"page_size_param" mapstructure:"page_size_param"`
	PageSize       int    `yaml:"page_size" mapstructure:"page_size"`
	DiscoverStates bool   `yaml:"discover_states" mapstructure:"discover_states"`
	StatesFile     string `yaml:"states_file,omitempty" mapstructure:"states_file"`
}

// ConcurrencyConfig bounds parallel state walks
type ConcurrencyConfig struct {
	Workers int `yaml:"workers" mapstructure:"workers"`
}

// RetryConfig controls transport retries within a state walk
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts" mapstructure:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay" mapstructure:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay" mapstructure:"max_delay"`
}

// RateLimitingConfig throttles requests per registry host
type RateLimitingConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size" mapstructure:"burst_size"`
}

// CacheConfig configures the page cache
type CacheConfig struct {
	Enabled       bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir           string        `yaml:"dir" mapstructure:"dir"`
	MemoryTTL     time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl"`
	MemoryEntries int           `yaml:"memory_entries" mapstructure:"memory_entries"` // Page bodies kept in memory, 0 for no bound
	DiskTTL       time.Duration `yaml:"disk_ttl" mapstructure:"disk_ttl"`
}

// OutputConfig configures persisted artifacts
type OutputConfig struct {
	Path       string `yaml:"path" mapstructure:"path"`
	ReportPath string `yaml:"report_path,omitempty" mapstructure:"report_path"`
	Pretty     bool   `yaml:"pretty" mapstructure:"pretty"`
}

// LoggingConfig configures structured logs
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Pretty bool   `yaml:"pretty" mapstructure:"pretty"`
}

// MetricsConfig configures the metrics textfile
type MetricsConfig struct {
	File string `yaml:"file,omitempty" mapstructure:"file"`
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Timeout:      30 * time.Second,
			UserAgent:    "rnpdno/0.1 (+https://github.com/ppiankov/rnpdno)",
			MaxBodyBytes: 16 << 20,
		},
		Registry: RegistryConfig{
			BaseURL:       "https://versionpublicarnpdno.segob.gob.mx",
			SessionPath:   "/Dashboard/Index",
			TokenField:    "__RequestVerificationToken",
			SearchPath:    "/Dashboard/Registros",
			StatesPath:    "/Catalogo/Estados",
			IDField:       "id",
			StateParam:    "id_estado",
			CursorParam:   "pagina",
			PageSizeParam: "tamano_pagina",
			PageSize:      100,
		},
		Concurrency: ConcurrencyConfig{
			Workers: 4,
		},
		Retry: RetryConfig{
			MaxAttempts: 4,
			BaseDelay:   500 * time.Millisecond,
			MaxDelay:    10 * time.Second,
		},
		RateLimiting: RateLimitingConfig{
			RequestsPerSecond: 4,
			BurstSize:         4,
		},
		Cache: CacheConfig{
			Enabled:       false,
			Dir:           ".rnpdno-cache",
			MemoryTTL:     10 * time.Minute,
			MemoryEntries: 512,
			DiskTTL:       6 * time.Hour,
		},
		Output: OutputConfig{
			Path:   "./salida/datos.json",
			Pretty: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Pretty: true,
		},
	}
}

// Validate checks settings that would otherwise fail deep inside a run
func (c *Config) Validate() error {
	if c.Registry.BaseURL == "" {
		return fmt.Errorf("registry.base_url is required")
	}
	if c.Registry.SearchPath == "" {
		return fmt.Errorf("registry.search_path is required")
	}
	if c.Registry.IDField == "" {
		return fmt.Errorf("registry.id_field is required")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1, got %d", c.Retry.MaxAttempts)
	}
	if c.Concurrency.Workers < 1 {
		return fmt.Errorf("concurrency.workers must be at least 1, got %d", c.Concurrency.Workers)
	}
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("http.timeout must be positive")
	}
	return nil
}
