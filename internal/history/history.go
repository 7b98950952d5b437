// Package history provides the per-competitor chronological activity index
// used by the backward search.
//
// The index is built once from a complete activity list: records are
// deduplicated by activity id and sorted ascending by timestamp at build
// time, so queries never re-sort.
package history

import (
	"sort"
	"time"

	"github.com/ashita-ai/kiroku/internal/model"
)

// Index is an immutable, per-competitor chronological activity index.
// Safe for concurrent reads.
type Index struct {
	byCompetitor map[string][]model.ActivityRecord // ascending by timestamp
}

// Build creates an index from records. Duplicate activity ids keep the first
// occurrence. Ties on timestamp are ordered by activity id so the order is
// deterministic across runs.
func Build(records []model.ActivityRecord) *Index {
	seen := make(map[string]struct{}, len(records))
	by := make(map[string][]model.ActivityRecord)
	for _, r := range records {
		if r.ActivityID == "" {
			continue
		}
		if _, dup := seen[r.ActivityID]; dup {
			continue
		}
		seen[r.ActivityID] = struct{}{}
		by[r.CompetitorID] = append(by[r.CompetitorID], r)
	}
	for _, list := range by {
		sort.SliceStable(list, func(i, j int) bool {
			if list[i].Timestamp.Equal(list[j].Timestamp) {
				return list[i].ActivityID < list[j].ActivityID
			}
			return list[i].Timestamp.Before(list[j].Timestamp)
		})
	}
	return &Index{byCompetitor: by}
}

// Len returns the number of activities indexed for competitorID.
func (idx *Index) Len(competitorID string) int {
	if idx == nil {
		return 0
	}
	return len(idx.byCompetitor[competitorID])
}

// All returns the competitor's activities in ascending order.
// The returned slice must not be modified.
func (idx *Index) All(competitorID string) []model.ActivityRecord {
	if idx == nil {
		return nil
	}
	return idx.byCompetitor[competitorID]
}

// ActivitiesBefore returns the activities strictly before t, newest first.
func (idx *Index) ActivitiesBefore(competitorID string, t time.Time) []model.ActivityRecord {
	list := idx.All(competitorID)
	// First position whose timestamp is >= t.
	cut := sort.Search(len(list), func(i int) bool {
		return !list[i].Timestamp.Before(t)
	})
	return reversed(list[:cut])
}

// ActivitiesWithin returns the activities inside w ([Start, End)), newest first.
func (idx *Index) ActivitiesWithin(competitorID string, w model.SeasonWindow) []model.ActivityRecord {
	list := idx.All(competitorID)
	lo := sort.Search(len(list), func(i int) bool {
		return !list[i].Timestamp.Before(w.Start)
	})
	hi := sort.Search(len(list), func(i int) bool {
		return !list[i].Timestamp.Before(w.End)
	})
	if hi < lo {
		hi = lo
	}
	return reversed(list[lo:hi])
}

func reversed(list []model.ActivityRecord) []model.ActivityRecord {
	out := make([]model.ActivityRecord, len(list))
	for i, r := range list {
		out[len(list)-1-i] = r
	}
	return out
}
