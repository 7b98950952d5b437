package model

import "time"

// ActivityRecord is one recorded activity (flight). Immutable once created.
//
// Metrics optionally carries raw per-badge values cached alongside the
// activity; they are used as fallback evidence when the detail lookup for
// the activity fails transiently.
type ActivityRecord struct {
	ActivityID   string             `json:"activity_id"`
	CompetitorID string             `json:"competitor_id"`
	Timestamp    time.Time          `json:"timestamp"`
	Metrics      map[string]float64 `json:"metrics,omitempty"`
}

// Metric returns the cached raw metric for badgeID, if present.
func (a ActivityRecord) Metric(badgeID string) (float64, bool) {
	v, ok := a.Metrics[badgeID]
	return v, ok
}

// BadgeValue is the value of one badge as observed at one activity.
type BadgeValue struct {
	BadgeID string  `json:"badge_id"`
	Value   float64 `json:"value"`
}

// ActivitySnapshot is the achievement evidence observed at one activity.
// Activities are historical events, so a snapshot never changes.
type ActivitySnapshot struct {
	ActivityID string       `json:"activity_id"`
	Badges     []BadgeValue `json:"badges"`
}

// Value returns the highest value recorded for badgeID in the snapshot.
func (s ActivitySnapshot) Value(badgeID string) (float64, bool) {
	var (
		best  float64
		found bool
	)
	for _, b := range s.Badges {
		if b.BadgeID != badgeID {
			continue
		}
		if !found || b.Value > best {
			best = b.Value
		}
		found = true
	}
	return best, found
}
