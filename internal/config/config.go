package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Supported page drivers
const (
	DriverChromedp = "chromedp"
	DriverColly    = "colly"
)

// Supported link filter modes
const (
	FilterKeepOnMatch = "keep_on_match"
	FilterSkipOnMatch = "skip_on_match"
)

// Config holds all runtime configuration parameters
type Config struct {
	InputPath           string  `json:"input_path"`
	OutputPath          string  `json:"output_path"`
	DedupedPath         string  `json:"deduped_path"`
	WriteDeduped        bool    `json:"write_deduped"`
	LogPath             string  `json:"log_path"`
	LogLevel            string  `json:"log_level"`
	Workers             int     `json:"workers"`
	MaxDepth            int     `json:"max_depth"`
	RebalanceThreshold  int     `json:"rebalance_threshold"`
	TargetMarker        string  `json:"target_marker"`
	FilterMode          string  `json:"filter_mode"`
	Driver              string  `json:"driver"`
	NavigationTimeoutMs int     `json:"navigation_timeout_ms"`
	UserAgent           string  `json:"user_agent"`
	DisableHeadless     bool    `json:"disable_headless"`
	HostRequestsPerSec  float64 `json:"host_requests_per_sec"`
	HostBurst           int     `json:"host_burst"`
	DBPath              string  `json:"db_path"`
	MetricsPath         string  `json:"metrics_path"`
}

// LoadConfig reads and validates configuration from a JSON file.
// A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	var cfg Config

	file, err := os.Open(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("failed to open config file: %w", err)
	default:
		defer file.Close()
		decoder := json.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Default returns a configuration with every default applied
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

// applyDefaults sets default values for unspecified fields
func applyDefaults(cfg *Config) {
	if cfg.InputPath == "" {
		cfg.InputPath = "input.txt"
	}
	if cfg.OutputPath == "" {
		cfg.OutputPath = "output.csv"
	}
	if cfg.DedupedPath == "" {
		cfg.DedupedPath = "deduped.csv"
	}
	if cfg.LogPath == "" {
		cfg.LogPath = "log.log"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Workers == 0 {
		cfg.Workers = 8
	}
	if cfg.MaxDepth == 0 {
		cfg.MaxDepth = 10
	}
	if cfg.RebalanceThreshold == 0 {
		cfg.RebalanceThreshold = 100
	}
	if cfg.TargetMarker == "" {
		cfg.TargetMarker = "mogiv.com"
	}
	if cfg.FilterMode == "" {
		cfg.FilterMode = FilterKeepOnMatch
	}
	if cfg.Driver == "" {
		cfg.Driver = DriverChromedp
	}
	if cfg.NavigationTimeoutMs == 0 {
		cfg.NavigationTimeoutMs = 30000
	}
	if cfg.HostBurst == 0 {
		cfg.HostBurst = 1
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "scout.db"
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "metrics.json"
	}
}

// validate checks that required fields are present and values are sensible
func validate(cfg *Config) error {
	if cfg.Workers < 1 {
		return fmt.Errorf("workers must be >= 1")
	}
	if cfg.MaxDepth < 1 {
		return fmt.Errorf("max_depth must be >= 1")
	}
	if cfg.RebalanceThreshold < 1 {
		return fmt.Errorf("rebalance_threshold must be >= 1")
	}
	if cfg.NavigationTimeoutMs < 1000 {
		return fmt.Errorf("navigation_timeout_ms must be >= 1000")
	}
	if cfg.HostRequestsPerSec < 0 {
		return fmt.Errorf("host_requests_per_sec must be >= 0")
	}
	if cfg.HostBurst < 1 {
		return fmt.Errorf("host_burst must be >= 1")
	}
	switch cfg.Driver {
	case DriverChromedp, DriverColly:
	default:
		return fmt.Errorf("unsupported driver %q", cfg.Driver)
	}
	switch cfg.FilterMode {
	case FilterKeepOnMatch, FilterSkipOnMatch:
	default:
		return fmt.Errorf("unsupported filter_mode %q", cfg.FilterMode)
	}
	return nil
}
