package config

import (
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies CYCLESCAN_* environment variable
// overrides, and returns the final Config. The returned Config has NOT
// been validated; the caller should invoke Config.Validate() after
// Load. A missing file is not an error: defaults plus environment
// overrides still apply.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known CYCLESCAN_* environment variables
// and overwrites the corresponding Config fields when a variable is set
// (i.e. not empty). This lets operators inject secrets at deploy time
// without touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Dataset ──
	setStr(&cfg.Dataset.Path, "CYCLESCAN_DATASET_PATH")

	// ── Search ──
	setInt(&cfg.Search.HopCap, "CYCLESCAN_SEARCH_HOP_CAP")
	setDuration(&cfg.Search.Interval, "CYCLESCAN_SEARCH_INTERVAL")

	// ── Pipeline ──
	setInt(&cfg.Pipeline.MaxUpdates, "CYCLESCAN_PIPELINE_MAX_UPDATES")
	setInt(&cfg.Pipeline.MaxCoalesce, "CYCLESCAN_PIPELINE_MAX_COALESCE")
	setDuration(&cfg.Pipeline.CoalesceWindow, "CYCLESCAN_PIPELINE_COALESCE_WINDOW")
	setInt(&cfg.Pipeline.ChannelCapacity, "CYCLESCAN_PIPELINE_CHANNEL_CAPACITY")
	setFloat64(&cfg.Pipeline.RateJitter, "CYCLESCAN_PIPELINE_RATE_JITTER")
	setFloat64(&cfg.Pipeline.RateLo, "CYCLESCAN_PIPELINE_RATE_LO")
	setFloat64(&cfg.Pipeline.RateHi, "CYCLESCAN_PIPELINE_RATE_HI")

	// ── Kernel ──
	setFloat64(&cfg.Kernel.Quantum, "CYCLESCAN_KERNEL_QUANTUM")
	setFloat64(&cfg.Kernel.EpsLog, "CYCLESCAN_KERNEL_EPS_LOG")

	// ── Feed ──
	setStr(&cfg.Feed.URL, "CYCLESCAN_FEED_URL")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "CYCLESCAN_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "CYCLESCAN_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "CYCLESCAN_REDIS_DB")
	setStr(&cfg.Redis.Channel, "CYCLESCAN_REDIS_CHANNEL")
	setStr(&cfg.Redis.Stream, "CYCLESCAN_REDIS_STREAM")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "CYCLESCAN_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "CYCLESCAN_S3_REGION")
	setStr(&cfg.S3.AccessKey, "CYCLESCAN_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "CYCLESCAN_S3_SECRET_KEY")
	setBool(&cfg.S3.ForcePathStyle, "CYCLESCAN_S3_FORCE_PATH_STYLE")

	// ── Top-level ──
	setDuration(&cfg.Duration, "CYCLESCAN_DURATION")
	setStr(&cfg.LogLevel, "CYCLESCAN_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}
