package history

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/kiroku/internal/model"
)

var seasonStart = time.Date(2025, time.October, 1, 0, 0, 0, 0, time.UTC)

func rec(id, competitor string, ts time.Time) model.ActivityRecord {
	return model.ActivityRecord{ActivityID: id, CompetitorID: competitor, Timestamp: ts}
}

func ids(records []model.ActivityRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ActivityID
	}
	return out
}

func TestBuild_DedupAndSort(t *testing.T) {
	idx := Build([]model.ActivityRecord{
		rec("c", "p1", seasonStart.Add(2*time.Hour)),
		rec("a", "p1", seasonStart.Add(-48*time.Hour)),
		rec("b", "p1", seasonStart.Add(-time.Hour)),
		rec("a", "p1", seasonStart.Add(10*time.Hour)), // duplicate id, dropped
		rec("x", "p2", seasonStart),
		rec("", "p1", seasonStart),
	})

	require.Equal(t, 3, idx.Len("p1"))
	assert.Equal(t, []string{"a", "b", "c"}, ids(idx.All("p1")))
	assert.Equal(t, 1, idx.Len("p2"))
	assert.Equal(t, 0, idx.Len("nobody"))
}

func TestActivitiesBefore_NewestFirst(t *testing.T) {
	idx := Build([]model.ActivityRecord{
		rec("old", "p1", seasonStart.AddDate(-1, 0, 0)),
		rec("mid", "p1", seasonStart.AddDate(0, -2, 0)),
		rec("edge", "p1", seasonStart.Add(-time.Millisecond)),
		rec("start", "p1", seasonStart),
		rec("late", "p1", seasonStart.AddDate(0, 3, 0)),
	})

	got := idx.ActivitiesBefore("p1", seasonStart)
	assert.Equal(t, []string{"edge", "mid", "old"}, ids(got))
}

func TestActivitiesWithin_BoundaryInclusivity(t *testing.T) {
	w := model.SeasonWindow{Start: seasonStart, End: seasonStart.AddDate(1, 0, 0)}
	idx := Build([]model.ActivityRecord{
		rec("pre", "p1", seasonStart.Add(-time.Millisecond)),
		rec("start", "p1", seasonStart),
		rec("inside", "p1", seasonStart.AddDate(0, 6, 0)),
		rec("end", "p1", w.End),
	})

	got := idx.ActivitiesWithin("p1", w)
	assert.Equal(t, []string{"inside", "start"}, ids(got), "start is inclusive, end is exclusive")
}

func TestBuild_TiesOrderedByID(t *testing.T) {
	idx := Build([]model.ActivityRecord{
		rec("b", "p1", seasonStart),
		rec("a", "p1", seasonStart),
	})
	assert.Equal(t, []string{"a", "b"}, ids(idx.All("p1")))
}

func TestNilIndex(t *testing.T) {
	var idx *Index
	assert.Empty(t, idx.ActivitiesBefore("p1", seasonStart))
	assert.Zero(t, idx.Len("p1"))
}
