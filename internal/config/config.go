// Package config defines the top-level configuration for the cyclescan
// pipeline and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from
// a TOML file and then optionally overridden by CYCLESCAN_* environment
// variables.
type Config struct {
	Dataset  DatasetConfig  `toml:"dataset"`
	Search   SearchConfig   `toml:"search"`
	Pipeline PipelineConfig `toml:"pipeline"`
	Kernel   KernelConfig   `toml:"kernel"`
	Feed     FeedConfig     `toml:"feed"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Duration duration       `toml:"duration"`
	LogLevel string         `toml:"log_level"`
}

// DatasetConfig locates the token/edge universe. Path is a local file
// or an s3://bucket/key URI.
type DatasetConfig struct {
	Path string `toml:"path"`
}

// SearchConfig holds cycle-search parameters.
type SearchConfig struct {
	HopCap   int      `toml:"hop_cap"`
	Interval duration `toml:"interval"`
}

// PipelineConfig holds producer and writer parameters.
type PipelineConfig struct {
	MaxUpdates      int      `toml:"max_updates"`
	MaxCoalesce     int      `toml:"max_coalesce"`
	CoalesceWindow  duration `toml:"coalesce_window"`
	ChannelCapacity int      `toml:"channel_capacity"`
	RateJitter      float64  `toml:"rate_jitter"`
	RateLo          float64  `toml:"rate_lo"`
	RateHi          float64  `toml:"rate_hi"`
}

// KernelConfig holds the numerical kernel knobs applied to every
// accepted update.
type KernelConfig struct {
	Quantum float64 `toml:"quantum"`
	EpsLog  float64 `toml:"eps_log"`
}

// FeedConfig holds the optional live rate feed. An empty URL disables
// it.
type FeedConfig struct {
	URL string `toml:"url"`
}

// RedisConfig holds the optional cycle publisher. An empty Addr
// disables it.
type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	Channel  string `toml:"channel"`
	Stream   string `toml:"stream"`
}

// S3Config holds object-store parameters, used when the dataset path is
// an s3:// URI.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "250ms", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder
// can parse duration strings.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip
// encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Dataset: DatasetConfig{
			Path: "datasets/dataset.json",
		},
		Search: SearchConfig{
			HopCap:   6,
			Interval: duration{250 * time.Millisecond},
		},
		Pipeline: PipelineConfig{
			MaxUpdates:      256,
			MaxCoalesce:     16,
			CoalesceWindow:  duration{5 * time.Millisecond},
			ChannelCapacity: 64,
			RateJitter:      0.02,
			RateLo:          1e-9,
			RateHi:          1e9,
		},
		Kernel: KernelConfig{
			Quantum: 1e-9,
			EpsLog:  0,
		},
		Redis: RedisConfig{
			Channel: "cycles",
			Stream:  "cycles:stream",
		},
		S3: S3Config{
			Region:         "us-east-1",
			ForcePathStyle: true,
		},
		Duration: duration{0},
		LogLevel: "info",
	}
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks the Config for obviously invalid or missing values
// and returns a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Dataset.Path == "" {
		errs = append(errs, "dataset: path must not be empty")
	}
	if strings.HasPrefix(c.Dataset.Path, "s3://") && c.S3.Region == "" {
		errs = append(errs, "s3: region is required for an s3:// dataset path")
	}

	if c.Search.HopCap < 1 {
		errs = append(errs, fmt.Sprintf("search: hop_cap must be >= 1, got %d", c.Search.HopCap))
	}
	if c.Search.Interval.Duration <= 0 {
		errs = append(errs, "search: interval must be positive")
	}

	if c.Pipeline.MaxUpdates < 0 {
		errs = append(errs, "pipeline: max_updates must be >= 0")
	}
	if c.Pipeline.MaxCoalesce < 1 {
		errs = append(errs, "pipeline: max_coalesce must be >= 1")
	}
	if c.Pipeline.CoalesceWindow.Duration < 0 {
		errs = append(errs, "pipeline: coalesce_window must not be negative")
	}
	if c.Pipeline.ChannelCapacity < 1 {
		errs = append(errs, "pipeline: channel_capacity must be >= 1")
	}
	if c.Pipeline.RateJitter < 0 || c.Pipeline.RateJitter >= 1 {
		errs = append(errs, fmt.Sprintf("pipeline: rate_jitter must be in [0, 1), got %v", c.Pipeline.RateJitter))
	}
	if c.Pipeline.RateLo <= 0 {
		errs = append(errs, "pipeline: rate_lo must be > 0")
	}
	if c.Pipeline.RateHi < c.Pipeline.RateLo {
		errs = append(errs, "pipeline: rate_hi must not be below rate_lo")
	}

	if c.Kernel.Quantum < 0 {
		errs = append(errs, "kernel: quantum must not be negative")
	}
	if c.Kernel.EpsLog < 0 {
		errs = append(errs, "kernel: eps_log must not be negative")
	}

	if c.Feed.URL != "" && !strings.HasPrefix(c.Feed.URL, "ws://") && !strings.HasPrefix(c.Feed.URL, "wss://") {
		errs = append(errs, fmt.Sprintf("feed: url must be a ws:// or wss:// endpoint, got %q", c.Feed.URL))
	}

	if c.Duration.Duration < 0 {
		errs = append(errs, "duration must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
