package model

import (
	"time"

	"github.com/google/uuid"
)

// SeasonStartMonth is the calendar month competition seasons begin in.
const SeasonStartMonth = time.October

// SeasonWindow is the half-open interval [Start, End) of one competition season.
type SeasonWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// SeasonFor returns the season window containing t: from October 1st 00:00
// in loc to the following October 1st 00:00.
func SeasonFor(t time.Time, loc *time.Location) SeasonWindow {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	year := local.Year()
	if local.Month() < SeasonStartMonth {
		year--
	}
	start := time.Date(year, SeasonStartMonth, 1, 0, 0, 0, 0, loc)
	return SeasonWindow{Start: start, End: start.AddDate(1, 0, 0)}
}

// Contains reports whether t lies inside the window. Start is inclusive,
// End is exclusive.
func (w SeasonWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// BeforeStart reports whether t is strictly before the season start.
func (w SeasonWindow) BeforeStart(t time.Time) bool {
	return t.Before(w.Start)
}

// Valid reports whether the window is non-empty.
func (w SeasonWindow) Valid() bool {
	return !w.Start.IsZero() && w.End.After(w.Start)
}

// Verification records how a season result was established.
type Verification string

const (
	// VerificationBackwardSearch means activity evidence established the result.
	VerificationBackwardSearch Verification = "backward-search"
	// VerificationAssumedNew means no baseline evidence exists and the badge
	// was treated as newly obtained (or not obtained) from best-effort data.
	VerificationAssumedNew Verification = "assumed-new"
	// VerificationTruncated means the scan bound was hit, or no history was
	// available at all, so the baseline defaulted to level 0.
	VerificationTruncated Verification = "truncated"
)

// SeasonBadgeResult is the season attribution for one badge of one competitor.
type SeasonBadgeResult struct {
	BadgeID               string       `json:"badge_id"`
	PreSeasonLevel        int          `json:"pre_season_level"`
	PreSeasonValue        float64      `json:"pre_season_value"`
	CurrentLevel          int          `json:"current_level"`
	CurrentValue          float64      `json:"current_value"`
	SeasonPoints          int          `json:"season_points"`
	EvidenceActivityID    string       `json:"evidence_activity_id,omitempty"`
	Verification          Verification `json:"verification"`
	SearchedActivityCount int          `json:"searched_activity_count"`
}

// SeasonReport is the per-competitor season summary consumed by the
// presentation layer.
type SeasonReport struct {
	RunID             uuid.UUID           `json:"run_id"`
	CompetitorID      string              `json:"competitor_id"`
	Window            SeasonWindow        `json:"window"`
	TotalSeasonPoints int                 `json:"total_season_points"`
	BadgeTypeCount    int                 `json:"badge_type_count"`
	Results           []SeasonBadgeResult `json:"results"`
	Error             string              `json:"error,omitempty"`
	GeneratedAt       time.Time           `json:"generated_at"`
}

// Failed reports whether the report is an explicit error report.
func (r SeasonReport) Failed() bool {
	return r.Error != ""
}
