// Package config loads and validates application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/ashita-ai/kiroku/internal/model"
)

// Config holds all application configuration.
type Config struct {
	// Server settings.
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Database settings. Empty disables storage; activity history then comes
	// from the provider.
	DatabaseURL      string
	PersistSnapshots bool // Keep per-activity snapshots in Postgres across runs.

	// Provider settings.
	ProviderURL     string
	ProviderAPIKey  string
	ProviderTimeout time.Duration

	// Detail lookup pacing and retry.
	DetailBatchSize        int
	DetailBatchPause       time.Duration
	DetailMaxAttempts      int // Attempts per activity when rate limited.
	DetailBaseDelay        time.Duration
	DetailMaxDelay         time.Duration
	DetailTransientRetries int // Extra attempts on other failures (0 or 1).

	// Season resolution.
	MaxPreSeasonActivities int
	MaxSeasonActivities    int
	BadgeConcurrency       int
	SeasonStart            time.Time // Zero means derive from the calendar.
	SeasonEnd              time.Time
	SeasonTimezone         *time.Location

	// Inbound rate limiting. RateLimitRPS <= 0 disables it.
	RateLimitRPS   float64
	RateLimitBurst int

	// OTEL settings.
	OTELEndpoint    string
	OTELInsecure    bool
	ServiceName     string
	TraceSampleRate float64
}

// Load reads configuration from environment variables with sensible defaults.
// Every malformed variable is reported, not just the first.
func Load() (Config, error) {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	cfg := Config{
		DatabaseURL:    envStr("DATABASE_URL", ""),
		ProviderURL:    envStr("KIROKU_PROVIDER_URL", "http://localhost:9090"),
		ProviderAPIKey: envStr("KIROKU_PROVIDER_API_KEY", ""),
		OTELEndpoint:   envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		ServiceName:    envStr("OTEL_SERVICE_NAME", "kiroku"),
	}

	var err error
	cfg.Port, err = envInt("KIROKU_PORT", 8080)
	collect(err)
	cfg.ReadTimeout, err = envDuration("KIROKU_READ_TIMEOUT", 30*time.Second)
	collect(err)
	cfg.WriteTimeout, err = envDuration("KIROKU_WRITE_TIMEOUT", 5*time.Minute)
	collect(err)
	cfg.PersistSnapshots, err = envBool("KIROKU_PERSIST_SNAPSHOTS", true)
	collect(err)
	cfg.ProviderTimeout, err = envDuration("KIROKU_PROVIDER_TIMEOUT", 15*time.Second)
	collect(err)

	cfg.DetailBatchSize, err = envInt("KIROKU_DETAIL_BATCH_SIZE", 5)
	collect(err)
	cfg.DetailBatchPause, err = envDuration("KIROKU_DETAIL_BATCH_PAUSE", 250*time.Millisecond)
	collect(err)
	cfg.DetailMaxAttempts, err = envInt("KIROKU_DETAIL_MAX_ATTEMPTS", 4)
	collect(err)
	cfg.DetailBaseDelay, err = envDuration("KIROKU_DETAIL_BASE_DELAY", 500*time.Millisecond)
	collect(err)
	cfg.DetailMaxDelay, err = envDuration("KIROKU_DETAIL_MAX_DELAY", 8*time.Second)
	collect(err)
	cfg.DetailTransientRetries, err = envInt("KIROKU_DETAIL_TRANSIENT_RETRIES", 0)
	collect(err)

	cfg.MaxPreSeasonActivities, err = envInt("KIROKU_MAX_PRESEASON_ACTIVITIES", 150)
	collect(err)
	cfg.MaxSeasonActivities, err = envInt("KIROKU_MAX_SEASON_ACTIVITIES", 150)
	collect(err)
	cfg.BadgeConcurrency, err = envInt("KIROKU_BADGE_CONCURRENCY", 4)
	collect(err)
	cfg.SeasonStart, err = envTime("KIROKU_SEASON_START")
	collect(err)
	cfg.SeasonEnd, err = envTime("KIROKU_SEASON_END")
	collect(err)

	tz := envStr("KIROKU_SEASON_TIMEZONE", "UTC")
	cfg.SeasonTimezone, err = time.LoadLocation(tz)
	if err != nil {
		collect(fmt.Errorf("KIROKU_SEASON_TIMEZONE=%q is not a valid time zone", tz))
		cfg.SeasonTimezone = time.UTC
	}

	cfg.RateLimitRPS, err = envFloat("KIROKU_RATE_LIMIT_RPS", 10)
	collect(err)
	cfg.RateLimitBurst, err = envInt("KIROKU_RATE_LIMIT_BURST", 20)
	collect(err)
	cfg.OTELInsecure, err = envBool("OTEL_INSECURE", false)
	collect(err)
	cfg.TraceSampleRate, err = envFloat("KIROKU_TRACE_SAMPLE_RATE", 1)
	collect(err)

	if len(errs) > 0 {
		return Config{}, fmt.Errorf("config: %w", errors.Join(errs...))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that required configuration is present and consistent.
func (c Config) Validate() error {
	if c.ProviderURL == "" {
		return fmt.Errorf("config: KIROKU_PROVIDER_URL is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: KIROKU_PORT must be between 1 and 65535")
	}
	if c.DetailBatchSize <= 0 {
		return fmt.Errorf("config: KIROKU_DETAIL_BATCH_SIZE must be positive")
	}
	if c.DetailMaxAttempts <= 0 {
		return fmt.Errorf("config: KIROKU_DETAIL_MAX_ATTEMPTS must be positive")
	}
	if c.DetailTransientRetries < 0 || c.DetailTransientRetries > 1 {
		return fmt.Errorf("config: KIROKU_DETAIL_TRANSIENT_RETRIES must be 0 or 1")
	}
	if c.DetailMaxDelay < c.DetailBaseDelay {
		return fmt.Errorf("config: KIROKU_DETAIL_MAX_DELAY must not be shorter than KIROKU_DETAIL_BASE_DELAY")
	}
	if c.MaxPreSeasonActivities <= 0 || c.MaxSeasonActivities <= 0 {
		return fmt.Errorf("config: KIROKU_MAX_PRESEASON_ACTIVITIES and KIROKU_MAX_SEASON_ACTIVITIES must be positive")
	}
	if c.BadgeConcurrency <= 0 {
		return fmt.Errorf("config: KIROKU_BADGE_CONCURRENCY must be positive")
	}
	if c.TraceSampleRate < 0 || c.TraceSampleRate > 1 {
		return fmt.Errorf("config: KIROKU_TRACE_SAMPLE_RATE must be between 0 and 1")
	}
	if c.SeasonStart.IsZero() != c.SeasonEnd.IsZero() {
		return fmt.Errorf("config: KIROKU_SEASON_START and KIROKU_SEASON_END must be set together")
	}
	if w, ok := c.SeasonWindow(); ok && !w.Valid() {
		return fmt.Errorf("config: KIROKU_SEASON_START must be before KIROKU_SEASON_END")
	}
	return nil
}

// SeasonWindow returns the pinned season window, if one is configured.
func (c Config) SeasonWindow() (model.SeasonWindow, bool) {
	if c.SeasonStart.IsZero() {
		return model.SeasonWindow{}, false
	}
	return model.SeasonWindow{Start: c.SeasonStart, End: c.SeasonEnd}, true
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid integer", key, v)
	}
	return n, nil
}

func envFloat(key string, defaultVal float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid number", key, v)
	}
	return f, nil
}

func envBool(key string, defaultVal bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid boolean", key, v)
	}
	return b, nil
}

func envDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid duration", key, v)
	}
	return d, nil
}

// envTime parses an RFC 3339 timestamp; unset yields the zero time.
func envTime(key string) (time.Time, error) {
	v := os.Getenv(key)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s=%q is not a valid RFC 3339 time", key, v)
	}
	return t.UTC(), nil
}
