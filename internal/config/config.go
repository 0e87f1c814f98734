// Package config loads runtime tunables for the latency mitigation core
// from environment variables, applying sane defaults and aggregating
// validation errors.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

const (
	// DefaultStatsWindowSize bounds the rolling statistics window when the
	// environment does not override it. 128 samples gives a stable
	// mean/deviation within a few seconds of action use without holding
	// unbounded history.
	DefaultStatsWindowSize = 128

	// DefaultTelemetryAddr is the address the debug telemetry broadcaster
	// listens on when enabled. Empty disables the broadcaster entirely.
	DefaultTelemetryAddr = ""

	// DefaultLogLevel controls verbosity for structured logs.
	DefaultLogLevel = "info"
	// DefaultLogPath is where structured logs are written.
	DefaultLogPath = "anilock.log"
	// DefaultLogMaxSizeMB caps the size of a single log file before rotation.
	DefaultLogMaxSizeMB = 100
	// DefaultLogMaxBackups limits retained rotated log files.
	DefaultLogMaxBackups = 10
	// DefaultLogMaxAgeDays controls how long rotated log files are kept on disk.
	DefaultLogMaxAgeDays = 7
	// DefaultLogCompress toggles gzip compression for rotated log files.
	DefaultLogCompress = true
)

// LoggingConfig captures structured logging configuration options.
type LoggingConfig struct {
	Level      string
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Config captures every runtime tunable the latency mitigation core
// recognises.
type Config struct {
	// UseHighLatencyMitigationLogging emits a structured log line for every
	// animation-lock duration the handler rewrites.
	UseHighLatencyMitigationLogging bool
	// UseAutoAdjustingExtraDelay enables the RTT/latency-aware delay
	// computation. When false the delay stays pinned at ExtraDelay.
	UseAutoAdjustingExtraDelay bool
	// UseLatencyCorrection enables the statistical correction sub-block.
	// Only takes effect when UseAutoAdjustingExtraDelay is also true.
	UseLatencyCorrection bool
	// StatsWindowSize bounds the rolling statistics window capacity.
	StatsWindowSize int
	// TelemetryAddr, when non-empty, starts the debug telemetry broadcaster
	// on this address so a log-display GUI can observe rewrite decisions.
	TelemetryAddr string

	Logging LoggingConfig
}

// Load reads configuration from environment variables, applying defaults
// and returning descriptive errors for invalid overrides.
func Load() (*Config, error) {
	cfg := &Config{
		UseHighLatencyMitigationLogging: true,
		UseAutoAdjustingExtraDelay:      true,
		UseLatencyCorrection:            true,
		StatsWindowSize:                 DefaultStatsWindowSize,
		TelemetryAddr:                   strings.TrimSpace(os.Getenv("ANILOCK_TELEMETRY_ADDR")),
		Logging: LoggingConfig{
			Level:      strings.TrimSpace(getString("ANILOCK_LOG_LEVEL", DefaultLogLevel)),
			Path:       strings.TrimSpace(getString("ANILOCK_LOG_PATH", DefaultLogPath)),
			MaxSizeMB:  DefaultLogMaxSizeMB,
			MaxBackups: DefaultLogMaxBackups,
			MaxAgeDays: DefaultLogMaxAgeDays,
			Compress:   DefaultLogCompress,
		},
	}

	var problems []string

	if raw := strings.TrimSpace(os.Getenv("ANILOCK_HIGH_LATENCY_MITIGATION_LOGGING")); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("ANILOCK_HIGH_LATENCY_MITIGATION_LOGGING must be a boolean value, got %q", raw))
		} else {
			cfg.UseHighLatencyMitigationLogging = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("ANILOCK_AUTO_ADJUSTING_EXTRA_DELAY")); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("ANILOCK_AUTO_ADJUSTING_EXTRA_DELAY must be a boolean value, got %q", raw))
		} else {
			cfg.UseAutoAdjustingExtraDelay = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("ANILOCK_LATENCY_CORRECTION")); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("ANILOCK_LATENCY_CORRECTION must be a boolean value, got %q", raw))
		} else {
			cfg.UseLatencyCorrection = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("ANILOCK_STATS_WINDOW")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 16 {
			problems = append(problems, fmt.Sprintf("ANILOCK_STATS_WINDOW must be an integer of at least 16, got %q", raw))
		} else {
			cfg.StatsWindowSize = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("ANILOCK_LOG_MAX_SIZE_MB")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("ANILOCK_LOG_MAX_SIZE_MB must be a positive integer, got %q", raw))
		} else {
			cfg.Logging.MaxSizeMB = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("ANILOCK_LOG_MAX_BACKUPS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("ANILOCK_LOG_MAX_BACKUPS must be a non-negative integer, got %q", raw))
		} else {
			cfg.Logging.MaxBackups = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("ANILOCK_LOG_MAX_AGE_DAYS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("ANILOCK_LOG_MAX_AGE_DAYS must be a non-negative integer, got %q", raw))
		} else {
			cfg.Logging.MaxAgeDays = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("ANILOCK_LOG_COMPRESS")); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("ANILOCK_LOG_COMPRESS must be a boolean value, got %q", raw))
		} else {
			cfg.Logging.Compress = value
		}
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf(strings.Join(problems, "; "))
	}

	return cfg, nil
}

func getString(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

