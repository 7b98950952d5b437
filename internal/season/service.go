package season

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashita-ai/kiroku/internal/badges"
	"github.com/ashita-ai/kiroku/internal/detail"
	"github.com/ashita-ai/kiroku/internal/history"
	"github.com/ashita-ai/kiroku/internal/model"
)

// HistorySource returns a competitor's complete activity list. Supplying
// enough history is the source's job; the engine never pages for more.
type HistorySource interface {
	ListActivities(ctx context.Context, competitorID string) ([]model.ActivityRecord, error)
}

// WindowFunc returns the season window in force at now.
type WindowFunc func(now time.Time) model.SeasonWindow

// FixedWindow always returns w.
func FixedWindow(w model.SeasonWindow) WindowFunc {
	return func(time.Time) model.SeasonWindow { return w }
}

// CalendarWindow derives the window from the October season calendar in loc.
func CalendarWindow(loc *time.Location) WindowFunc {
	return func(now time.Time) model.SeasonWindow { return model.SeasonFor(now, loc) }
}

// ServiceConfig holds the dependencies and tuning for a Service.
type ServiceConfig struct {
	History      HistorySource
	Achievements AchievementSource
	Details      detail.Fetcher
	Catalog      *badges.Catalog
	Window       WindowFunc

	CacheOptions     detail.Options
	ResolverOptions  ResolverOptions
	BadgeConcurrency int

	Logger *slog.Logger
}

// Service produces season reports. Each report is an independent run with
// its own snapshot cache; nothing is carried over between runs.
type Service struct {
	cfg ServiceConfig
	now func() time.Time
}

// NewService creates a Service. Catalog defaults to the builtin badges and
// Window to the calendar season in UTC.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Catalog == nil {
		cfg.Catalog = badges.DefaultCatalog()
	}
	if cfg.Window == nil {
		cfg.Window = CalendarWindow(time.UTC)
	}
	if cfg.CacheOptions == (detail.Options{}) {
		cfg.CacheOptions = detail.DefaultOptions()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{cfg: cfg, now: time.Now}
}

// Catalog returns the badge catalog in use.
func (s *Service) Catalog() *badges.Catalog {
	return s.cfg.Catalog
}

// CurrentWindow returns the season window in force now.
func (s *Service) CurrentWindow() model.SeasonWindow {
	return s.cfg.Window(s.now())
}

// Report builds the current season report for competitorID.
func (s *Service) Report(ctx context.Context, competitorID string) model.SeasonReport {
	return s.ReportWindow(ctx, competitorID, s.CurrentWindow())
}

// ReportWindow builds the report for an explicit season window.
func (s *Service) ReportWindow(ctx context.Context, competitorID string, window model.SeasonWindow) model.SeasonReport {
	records, err := s.cfg.History.ListActivities(ctx, competitorID)
	if err != nil {
		err = upstreamErr(err)
		s.cfg.Logger.Error("season: activity history load failed", "competitor_id", competitorID, "error", err)
		return ErrorReport(competitorID, window, err)
	}
	idx := history.Build(records)

	cache := detail.New(s.cfg.Details, s.cfg.CacheOptions, s.cfg.Logger)
	defer cache.Clear()

	resolver := NewResolver(cache, s.cfg.ResolverOptions, s.cfg.Logger)
	agg := NewAggregator(s.cfg.Achievements, s.cfg.Catalog, resolver, s.cfg.BadgeConcurrency, s.cfg.Logger)
	report := agg.Resolve(ctx, competitorID, idx, window)

	stats := cache.Stats()
	s.cfg.Logger.Info("season: report complete",
		"competitor_id", competitorID,
		"run_id", report.RunID,
		"activities", idx.Len(competitorID),
		"detail_fetches", stats.Fetches,
		"detail_failed_transient", stats.FailedTransient,
		"total_season_points", report.TotalSeasonPoints,
		"error", report.Error)
	return report
}
