package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ashita-ai/kiroku/internal/badges"
	"github.com/ashita-ai/kiroku/internal/config"
	"github.com/ashita-ai/kiroku/internal/detail"
	"github.com/ashita-ai/kiroku/internal/mcp"
	"github.com/ashita-ai/kiroku/internal/provider"
	"github.com/ashita-ai/kiroku/internal/ratelimit"
	"github.com/ashita-ai/kiroku/internal/season"
	"github.com/ashita-ai/kiroku/internal/server"
	"github.com/ashita-ai/kiroku/internal/storage"
	"github.com/ashita-ai/kiroku/internal/telemetry"
	"github.com/ashita-ai/kiroku/migrations"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(os.Getenv("KIROKU_LOG_LEVEL")),
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("kiroku starting", "version", version, "port", cfg.Port)

	otelShutdown, err := telemetry.Init(ctx, telemetry.Options{
		Endpoint:    cfg.OTELEndpoint,
		Insecure:    cfg.OTELInsecure,
		ServiceName: cfg.ServiceName,
		Version:     version,
		SampleRatio: cfg.TraceSampleRate,
	})
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	client := provider.New(cfg.ProviderURL, cfg.ProviderAPIKey, cfg.ProviderTimeout)

	var (
		history season.HistorySource = client
		details detail.Fetcher       = client
		db      *storage.DB
	)

	// Postgres is optional: without it every report reads straight from the provider.
	if cfg.DatabaseURL != "" {
		db, err = storage.New(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return fmt.Errorf("storage: %w", err)
		}
		defer db.Close()

		if err := db.RunMigrations(ctx, migrations.FS); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}

		history = season.NewMirroredHistory(client, db, logger)
		if cfg.PersistSnapshots {
			details = detail.Persistent(client, db, logger)
			logger.Info("storage: activity snapshots persisted")
		}
		logger.Info("storage: enabled")
	} else {
		logger.Info("storage: disabled (no DATABASE_URL)")
	}

	window := season.CalendarWindow(cfg.SeasonTimezone)
	if w, ok := cfg.SeasonWindow(); ok {
		window = season.FixedWindow(w)
		logger.Info("season window pinned", "start", w.Start, "end", w.End)
	}

	svc := season.NewService(season.ServiceConfig{
		History:      history,
		Achievements: client,
		Details:      details,
		Catalog:      badges.DefaultCatalog(),
		Window:       window,
		CacheOptions: detail.Options{
			BatchSize:  cfg.DetailBatchSize,
			BatchPause: cfg.DetailBatchPause,
			Retry: detail.RetryPolicy{
				MaxAttempts:      cfg.DetailMaxAttempts,
				BaseDelay:        cfg.DetailBaseDelay,
				MaxDelay:         cfg.DetailMaxDelay,
				Jitter:           detail.DefaultRetryPolicy().Jitter,
				TransientRetries: cfg.DetailTransientRetries,
			},
		},
		ResolverOptions: season.ResolverOptions{
			MaxPreSeasonActivities: cfg.MaxPreSeasonActivities,
			MaxSeasonActivities:    cfg.MaxSeasonActivities,
			ScanChunk:              cfg.DetailBatchSize,
		},
		BadgeConcurrency: cfg.BadgeConcurrency,
		Logger:           logger,
	})

	mcpSrv := mcp.New(svc, logger, version)

	var limiter ratelimit.Limiter
	if cfg.RateLimitRPS > 0 {
		memLimiter := ratelimit.NewMemoryLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
		defer func() { _ = memLimiter.Close() }()
		limiter = memLimiter
		logger.Info("rate limiting: memory (in-process token bucket)",
			"rps", cfg.RateLimitRPS, "burst", cfg.RateLimitBurst)
	} else {
		limiter = ratelimit.NoopLimiter{}
		logger.Info("rate limiting: disabled")
	}

	srvCfg := server.ServerConfig{
		Season:       svc,
		Logger:       logger,
		Limiter:      limiter,
		MCPServer:    mcpSrv.MCPServer(),
		Port:         cfg.Port,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		Version:      version,
	}
	if db != nil {
		srvCfg.DB = db
	}
	srv := server.New(srvCfg)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	slog.Info("kiroku shutting down")

	// In-flight reports may still be waiting on the provider; give them the
	// same budget as a slow report before cutting them off.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}

	slog.Info("kiroku stopped")
	return nil
}
