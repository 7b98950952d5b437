// Package model defines the core domain types for Kiroku.
//
// Every type here is a value snapshot: achievement state, activity records,
// and per-activity snapshots are recomputed on each resolution run and never
// mutated in place.
package model

import "time"

// BadgeDefinition describes one badge type and its level thresholds.
//
// Thresholds[i] is the value needed for level i+1 and PointsPerLevel[i] is the
// points awarded for reaching that level alone (not cumulative).
type BadgeDefinition struct {
	BadgeID        string    `json:"badge_id"`
	Name           string    `json:"name,omitempty"`
	Unit           string    `json:"unit,omitempty"` // descriptive only
	IsMultiLevel   bool      `json:"is_multi_level"`
	Thresholds     []float64 `json:"thresholds"`
	PointsPerLevel []int     `json:"points_per_level"`
}

// Levels returns the number of levels defined for the badge.
func (d BadgeDefinition) Levels() int {
	return len(d.Thresholds)
}

// Valid reports whether the definition satisfies the threshold invariants:
// equal-length, non-empty, strictly increasing thresholds and positive points.
func (d BadgeDefinition) Valid() bool {
	if len(d.Thresholds) == 0 || len(d.Thresholds) != len(d.PointsPerLevel) {
		return false
	}
	for i, t := range d.Thresholds {
		if i > 0 && t <= d.Thresholds[i-1] {
			return false
		}
		if d.PointsPerLevel[i] <= 0 {
			return false
		}
	}
	return true
}

// AchievementRecord is one raw entry of a competitor's current achievement
// list, as reported by the provider. Several records may exist for one badge.
type AchievementRecord struct {
	BadgeID    string           `json:"badge_id"`
	Value      float64          `json:"value"`
	Points     int              `json:"points"` // cross-check only
	Definition *BadgeDefinition `json:"definition,omitempty"`
	ActivityID string           `json:"activity_id,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
}

// AchievementState is the coalesced, all-time state of one badge for one
// competitor. CurrentValue is the maximum value ever reached.
type AchievementState struct {
	BadgeID             string    `json:"badge_id"`
	CurrentValue        float64   `json:"current_value"`
	CurrentLevel        int       `json:"current_level"`
	LastKnownActivityID string    `json:"last_known_activity_id,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
}
