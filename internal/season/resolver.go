// Package season attributes achievement points to the current competition
// season.
//
// The provider only exposes cumulative, all-time achievement values, so the
// value in force at the season boundary is reconstructed by searching the
// competitor's activity history backwards from the season start. The
// Resolver handles one badge; the Aggregator runs it across every badge a
// competitor holds and builds the report; Service wires both to the
// history and achievement sources for a single run.
package season

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ashita-ai/kiroku/internal/badges"
	"github.com/ashita-ai/kiroku/internal/detail"
	"github.com/ashita-ai/kiroku/internal/history"
	"github.com/ashita-ai/kiroku/internal/model"
)

var tracer = otel.Tracer("kiroku/season")

// SnapshotSource resolves activity snapshots in bulk. *detail.Cache
// implements it.
type SnapshotSource interface {
	GetBatch(ctx context.Context, activityIDs []string) map[string]detail.Result
}

// ResolverOptions bounds the history scans.
type ResolverOptions struct {
	// MaxPreSeasonActivities caps the backward scan before the season start.
	MaxPreSeasonActivities int
	// MaxSeasonActivities caps the scan of activities inside the season.
	MaxSeasonActivities int
	// ScanChunk is how many activities are requested from the snapshot
	// source at a time. The backward scan stops at the first chunk holding
	// a match, so small chunks avoid fetching far past the baseline.
	ScanChunk int
}

// DefaultResolverOptions returns the default scan bounds.
func DefaultResolverOptions() ResolverOptions {
	return ResolverOptions{
		MaxPreSeasonActivities: 150,
		MaxSeasonActivities:    150,
		ScanChunk:              5,
	}
}

// Resolver computes the season delta for one badge.
type Resolver struct {
	snaps  SnapshotSource
	opts   ResolverOptions
	logger *slog.Logger
}

// NewResolver creates a Resolver reading snapshots from snaps.
func NewResolver(snaps SnapshotSource, opts ResolverOptions, logger *slog.Logger) *Resolver {
	def := DefaultResolverOptions()
	if opts.MaxPreSeasonActivities <= 0 {
		opts.MaxPreSeasonActivities = def.MaxPreSeasonActivities
	}
	if opts.MaxSeasonActivities <= 0 {
		opts.MaxSeasonActivities = def.MaxSeasonActivities
	}
	if opts.ScanChunk <= 0 {
		opts.ScanChunk = def.ScanChunk
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{snaps: snaps, opts: opts, logger: logger}
}

// Resolve returns the season result for one badge. It never fails: missing
// or unreachable evidence is reported through the result's Verification.
func (r *Resolver) Resolve(
	ctx context.Context,
	competitorID string,
	state model.AchievementState,
	def model.BadgeDefinition,
	idx *history.Index,
	window model.SeasonWindow,
) model.SeasonBadgeResult {
	ctx, span := tracer.Start(ctx, "season.ResolveBadge", trace.WithAttributes(
		attribute.String("kiroku.competitor_id", competitorID),
		attribute.String("kiroku.badge_id", state.BadgeID),
		attribute.Bool("kiroku.multi_level", def.IsMultiLevel),
	))
	defer span.End()

	var res model.SeasonBadgeResult
	if def.IsMultiLevel {
		res = r.resolveMultiLevel(ctx, competitorID, state, def, idx, window)
	} else {
		res = r.resolveSingleLevel(ctx, competitorID, state, def, idx, window)
	}

	span.SetAttributes(
		attribute.String("kiroku.verification", string(res.Verification)),
		attribute.Int("kiroku.season_points", res.SeasonPoints),
		attribute.Int("kiroku.searched_activities", res.SearchedActivityCount),
	)
	return res
}

func (r *Resolver) resolveMultiLevel(
	ctx context.Context,
	competitorID string,
	state model.AchievementState,
	def model.BadgeDefinition,
	idx *history.Index,
	window model.SeasonWindow,
) model.SeasonBadgeResult {
	res := model.SeasonBadgeResult{
		BadgeID:      state.BadgeID,
		CurrentValue: state.CurrentValue,
		CurrentLevel: badges.LevelFor(def, state.CurrentValue),
	}

	// Nothing to search: no attribution is possible. The baseline stays at
	// level 0 like any truncated scan, but no points are awarded without
	// a single activity behind them.
	if idx.Len(competitorID) == 0 {
		res.Verification = model.VerificationTruncated
		return res
	}

	// Baseline: the newest pre-season activity carrying this badge.
	pre := r.scan(ctx, idx.ActivitiesBefore(competitorID, window.Start), state.BadgeID, r.opts.MaxPreSeasonActivities, true)
	switch {
	case pre.found:
		res.PreSeasonValue = pre.value
		res.PreSeasonLevel = badges.LevelFor(def, pre.value)
		res.EvidenceActivityID = pre.activityID
		res.Verification = model.VerificationBackwardSearch
	case pre.truncated:
		// Level 0 may overcount; the flag says so.
		res.Verification = model.VerificationTruncated
	default:
		res.Verification = model.VerificationAssumedNew
	}

	// Current: the best value observed inside the season, else the all-time
	// value from the achievement list.
	in := r.scan(ctx, idx.ActivitiesWithin(competitorID, window), state.BadgeID, r.opts.MaxSeasonActivities, false)
	if in.found {
		res.CurrentValue = in.value
		res.CurrentLevel = badges.LevelFor(def, in.value)
	}

	res.SearchedActivityCount = pre.searched + in.searched
	res.SeasonPoints = badges.PointsBetween(def, res.PreSeasonLevel, res.CurrentLevel)
	if res.CurrentLevel < res.PreSeasonLevel {
		r.logger.Warn("season: current level below pre-season level",
			"competitor_id", competitorID, "badge_id", state.BadgeID,
			"pre_season_level", res.PreSeasonLevel, "current_level", res.CurrentLevel)
	}
	return res
}

func (r *Resolver) resolveSingleLevel(
	ctx context.Context,
	competitorID string,
	state model.AchievementState,
	def model.BadgeDefinition,
	idx *history.Index,
	window model.SeasonWindow,
) model.SeasonBadgeResult {
	// A single-level badge in the achievement list is held, i.e. level 1.
	res := model.SeasonBadgeResult{
		BadgeID:        state.BadgeID,
		CurrentValue:   state.CurrentValue,
		CurrentLevel:   1,
		PreSeasonLevel: 1,
	}
	points := badges.CumulativePoints(def, 1)

	if idx.Len(competitorID) == 0 {
		res.Verification = model.VerificationAssumedNew
		return res
	}

	in := r.scan(ctx, idx.ActivitiesWithin(competitorID, window), state.BadgeID, r.opts.MaxSeasonActivities, true)
	if in.found {
		res.PreSeasonLevel = 0
		res.SeasonPoints = points
		res.EvidenceActivityID = in.activityID
		res.Verification = model.VerificationBackwardSearch
		res.SearchedActivityCount = in.searched
		return res
	}

	pre := r.scan(ctx, idx.ActivitiesBefore(competitorID, window.Start), state.BadgeID, r.opts.MaxPreSeasonActivities, true)
	res.SearchedActivityCount = in.searched + pre.searched
	if pre.found {
		res.PreSeasonValue = pre.value
		res.EvidenceActivityID = pre.activityID
		res.Verification = model.VerificationBackwardSearch
		return res
	}

	// No activity evidence: fall back to the record's creation time.
	res.Verification = model.VerificationAssumedNew
	if in.truncated || pre.truncated {
		res.Verification = model.VerificationTruncated
	}
	if window.Contains(state.CreatedAt) {
		res.PreSeasonLevel = 0
		res.SeasonPoints = points
	}
	return res
}

// scanResult is the outcome of scanning a run of activities for one badge.
type scanResult struct {
	found      bool
	value      float64
	activityID string
	searched   int
	truncated  bool // limit reached with activities left unscanned and no match
}

// scan walks activities in the given order, fetching snapshots a chunk at a
// time. With firstOnly it stops at the first activity carrying the badge;
// otherwise it returns the maximum value seen.
func (r *Resolver) scan(ctx context.Context, activities []model.ActivityRecord, badgeID string, limit int, firstOnly bool) scanResult {
	var res scanResult
	bounded := activities
	if len(bounded) > limit {
		bounded = bounded[:limit]
	}

	for start := 0; start < len(bounded); start += r.opts.ScanChunk {
		chunk := bounded[start:min(start+r.opts.ScanChunk, len(bounded))]
		ids := make([]string, len(chunk))
		for i, a := range chunk {
			ids[i] = a.ActivityID
		}
		results := r.snaps.GetBatch(ctx, ids)

		for _, a := range chunk {
			res.searched++
			v, ok := evidence(a, results[a.ActivityID], badgeID)
			if !ok {
				continue
			}
			if firstOnly {
				res.found, res.value, res.activityID = true, v, a.ActivityID
				return res
			}
			if !res.found || v > res.value {
				res.found, res.value, res.activityID = true, v, a.ActivityID
			}
		}
	}

	res.truncated = !res.found && len(activities) > limit
	return res
}

// evidence extracts the badge value observed at one activity. A transient
// lookup failure falls back to the raw metric cached on the activity record.
func evidence(a model.ActivityRecord, r detail.Result, badgeID string) (float64, bool) {
	switch r.State {
	case detail.StateResolved:
		return r.Snapshot.Value(badgeID)
	case detail.StateFailedTransient:
		return a.Metric(badgeID)
	default:
		return 0, false
	}
}
