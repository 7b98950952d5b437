package season

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ashita-ai/kiroku/internal/badges"
	"github.com/ashita-ai/kiroku/internal/history"
	"github.com/ashita-ai/kiroku/internal/model"
	"github.com/ashita-ai/kiroku/internal/telemetry"
)

// AchievementSource returns a competitor's current, cumulative achievement
// list.
type AchievementSource interface {
	FetchCurrentAchievements(ctx context.Context, competitorID string) ([]model.AchievementRecord, error)
}

// Aggregator runs the Resolver once per badge and builds the season report.
type Aggregator struct {
	source      AchievementSource
	catalog     *badges.Catalog
	resolver    *Resolver
	concurrency int
	logger      *slog.Logger

	resolveDuration metric.Float64Histogram
	badgeResults    metric.Int64Counter
}

// NewAggregator creates an Aggregator. concurrency bounds how many badges
// are resolved at once; they share the resolver's snapshot source, so
// overlapping activity lookups are coalesced there.
func NewAggregator(source AchievementSource, catalog *badges.Catalog, resolver *Resolver, concurrency int, logger *slog.Logger) *Aggregator {
	if concurrency <= 0 {
		concurrency = 1
	}
	if catalog == nil {
		catalog = badges.NewCatalog()
	}
	if logger == nil {
		logger = slog.Default()
	}

	meter := telemetry.Meter("kiroku/season")
	resolveDur, _ := meter.Float64Histogram("kiroku.season.resolve.duration",
		metric.WithDescription("Time to build one competitor's season report (ms)"),
		metric.WithUnit("ms"),
	)
	badgeResults, _ := meter.Int64Counter("kiroku.season.badges",
		metric.WithDescription("Badge results by verification outcome"),
	)

	return &Aggregator{
		source:          source,
		catalog:         catalog,
		resolver:        resolver,
		concurrency:     concurrency,
		logger:          logger,
		resolveDuration: resolveDur,
		badgeResults:    badgeResults,
	}
}

// Resolve builds the season report for competitorID. Per-badge problems are
// surfaced on the individual results; only a failed achievement list fetch
// produces an error report, which carries no results.
func (a *Aggregator) Resolve(ctx context.Context, competitorID string, idx *history.Index, window model.SeasonWindow) model.SeasonReport {
	ctx, span := tracer.Start(ctx, "season.Aggregate", trace.WithAttributes(
		attribute.String("kiroku.competitor_id", competitorID),
	))
	defer span.End()
	start := time.Now()
	defer func() {
		a.resolveDuration.Record(ctx, float64(time.Since(start).Milliseconds()))
	}()

	records, err := a.source.FetchCurrentAchievements(ctx, competitorID)
	if err != nil {
		err = upstreamErr(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "achievement list unavailable")
		a.logger.Error("season: achievement list fetch failed", "competitor_id", competitorID, "error", err)
		return ErrorReport(competitorID, window, err)
	}

	inputs := coalesce(records, a.catalog, a.logger, competitorID)
	results := make([]model.SeasonBadgeResult, len(inputs))

	var g errgroup.Group
	g.SetLimit(a.concurrency)
	for i, in := range inputs {
		g.Go(func() error {
			results[i] = a.resolver.Resolve(ctx, competitorID, in.state, in.def, idx, window)
			return nil
		})
	}
	_ = g.Wait()

	report := newReport(competitorID, window)
	report.Results = results
	for _, res := range results {
		report.TotalSeasonPoints += res.SeasonPoints
		if res.SeasonPoints > 0 {
			report.BadgeTypeCount++
		}
		a.badgeResults.Add(ctx, 1, metric.WithAttributes(attribute.String("verification", string(res.Verification))))
	}

	span.SetAttributes(
		attribute.Int("kiroku.total_season_points", report.TotalSeasonPoints),
		attribute.Int("kiroku.badge_count", len(results)),
	)
	a.logger.Debug("season: report built",
		"competitor_id", competitorID,
		"badges", len(results),
		"total_season_points", report.TotalSeasonPoints,
		"duration_ms", time.Since(start).Milliseconds())
	return report
}

// ErrorReport is the explicit empty report returned when a competitor's
// season cannot be computed at all.
func ErrorReport(competitorID string, window model.SeasonWindow, err error) model.SeasonReport {
	report := newReport(competitorID, window)
	report.Results = []model.SeasonBadgeResult{}
	report.Error = err.Error()
	return report
}

func newReport(competitorID string, window model.SeasonWindow) model.SeasonReport {
	return model.SeasonReport{
		RunID:        uuid.New(),
		CompetitorID: competitorID,
		Window:       window,
		GeneratedAt:  time.Now().UTC(),
	}
}

func upstreamErr(err error) error {
	if errors.Is(err, model.ErrUpstreamUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", model.ErrUpstreamUnavailable, err)
}

// badgeInput is one coalesced badge ready for resolution.
type badgeInput struct {
	state model.AchievementState
	def   model.BadgeDefinition
}

// coalesce merges raw records into one state per badge, keeping the maximum
// value (earliest creation time among ties). Records without a badge id are
// skipped. Output is sorted by badge id.
func coalesce(records []model.AchievementRecord, catalog *badges.Catalog, logger *slog.Logger, competitorID string) []badgeInput {
	type merged struct {
		rec      model.AchievementRecord
		embedded *model.BadgeDefinition
	}
	byBadge := make(map[string]*merged)
	for i, rec := range records {
		if rec.BadgeID == "" {
			logger.Warn("season: skipping achievement record",
				"competitor_id", competitorID, "index", i, "error", model.ErrMalformedRecord)
			continue
		}
		m, ok := byBadge[rec.BadgeID]
		if !ok {
			byBadge[rec.BadgeID] = &merged{rec: rec, embedded: rec.Definition}
			continue
		}
		if m.embedded == nil {
			m.embedded = rec.Definition
		}
		switch {
		case rec.Value > m.rec.Value:
			m.rec = rec
		case rec.Value == m.rec.Value && !rec.CreatedAt.IsZero() &&
			(m.rec.CreatedAt.IsZero() || rec.CreatedAt.Before(m.rec.CreatedAt)):
			m.rec = rec
		}
	}

	out := make([]badgeInput, 0, len(byBadge))
	for id, m := range byBadge {
		def := catalog.Resolve(id, m.embedded)
		level := badges.LevelFor(def, m.rec.Value)
		if m.rec.Points > 0 && def.IsMultiLevel {
			if want := badges.CumulativePoints(def, level); want != m.rec.Points {
				logger.Warn("season: provider points disagree with badge definition",
					"competitor_id", competitorID, "badge_id", id,
					"provider_points", m.rec.Points, "computed_points", want)
			}
		}
		out = append(out, badgeInput{
			state: model.AchievementState{
				BadgeID:             id,
				CurrentValue:        m.rec.Value,
				CurrentLevel:        level,
				LastKnownActivityID: m.rec.ActivityID,
				CreatedAt:           m.rec.CreatedAt,
			},
			def: def,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].state.BadgeID < out[j].state.BadgeID })
	return out
}
