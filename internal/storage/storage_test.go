package storage_test

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/kiroku/internal/detail"
	"github.com/ashita-ai/kiroku/internal/model"
	"github.com/ashita-ai/kiroku/internal/season"
	"github.com/ashita-ai/kiroku/internal/storage"
	"github.com/ashita-ai/kiroku/internal/testutil"
)

// testDB holds a shared test database connection for all tests in this package.
var testDB *storage.DB

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(m.Run())
	}

	ctx := context.Background()
	tc := testutil.MustStartPostgres()

	var err error
	testDB, err = tc.NewTestDB(ctx, testutil.TestLogger())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create DB: %v\n", err)
		tc.Terminate()
		os.Exit(1)
	}

	code := m.Run()

	testDB.Close()
	tc.Terminate()
	os.Exit(code)
}

func requireDB(t *testing.T) {
	t.Helper()
	if testDB == nil {
		t.Skip("skipping Postgres integration test in -short mode")
	}
}

// storage.DB backs both the persistent snapshot fetcher and mirrored history.
var (
	_ detail.SnapshotStore = (*storage.DB)(nil)
	_ season.HistoryStore  = (*storage.DB)(nil)
)

func TestUpsertAndListActivities(t *testing.T) {
	requireDB(t)
	ctx := context.Background()
	base := time.Date(2025, time.September, 1, 12, 0, 0, 0, time.UTC)

	n, err := testDB.UpsertActivities(ctx, []model.ActivityRecord{
		{ActivityID: "list-2", CompetitorID: "list-pilot", Timestamp: base.Add(48 * time.Hour)},
		{ActivityID: "list-1", CompetitorID: "list-pilot", Timestamp: base, Metrics: map[string]float64{"km": 42.5}},
		{ActivityID: "list-other", CompetitorID: "someone-else", Timestamp: base},
		{ActivityID: "", CompetitorID: "list-pilot", Timestamp: base},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n, "records without an id are skipped")

	got, err := testDB.ListActivities(ctx, "list-pilot")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "list-1", got[0].ActivityID)
	assert.Equal(t, "list-2", got[1].ActivityID)
	assert.True(t, base.Equal(got[0].Timestamp))
	v, ok := got[0].Metric("km")
	assert.True(t, ok)
	assert.Equal(t, 42.5, v)
	assert.Nil(t, got[1].Metrics)
}

func TestUpsertActivitiesReplacesMetrics(t *testing.T) {
	requireDB(t)
	ctx := context.Background()
	ts := time.Date(2025, time.October, 3, 9, 0, 0, 0, time.UTC)

	_, err := testDB.UpsertActivities(ctx, []model.ActivityRecord{
		{ActivityID: "upd-1", CompetitorID: "upd-pilot", Timestamp: ts, Metrics: map[string]float64{"km": 10}},
	})
	require.NoError(t, err)
	_, err = testDB.UpsertActivities(ctx, []model.ActivityRecord{
		{ActivityID: "upd-1", CompetitorID: "upd-pilot", Timestamp: ts, Metrics: map[string]float64{"km": 12}},
	})
	require.NoError(t, err)

	got, err := testDB.ListActivities(ctx, "upd-pilot")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 12.0, got[0].Metrics["km"])
}

func TestListActivitiesUnknownCompetitor(t *testing.T) {
	requireDB(t)
	got, err := testDB.ListActivities(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSnapshotRoundTrip(t *testing.T) {
	requireDB(t)
	ctx := context.Background()

	_, found, err := testDB.LoadSnapshot(ctx, "snap-1")
	require.NoError(t, err)
	assert.False(t, found)

	err = testDB.SaveSnapshot(ctx, model.ActivitySnapshot{
		ActivityID: "snap-1",
		Badges: []model.BadgeValue{
			{BadgeID: "km", Value: 60},
			{BadgeID: "alt", Value: 1500},
			{BadgeID: "km", Value: 80},
		},
	})
	require.NoError(t, err)

	snap, found, err := testDB.LoadSnapshot(ctx, "snap-1")
	require.NoError(t, err)
	require.True(t, found)
	v, ok := snap.Value("km")
	assert.True(t, ok)
	assert.Equal(t, 80.0, v, "duplicate badge entries keep the highest value")
	assert.Len(t, snap.Badges, 2)
}

func TestSaveSnapshotIsWriteOnce(t *testing.T) {
	requireDB(t)
	ctx := context.Background()

	require.NoError(t, testDB.SaveSnapshot(ctx, model.ActivitySnapshot{
		ActivityID: "once-1", Badges: []model.BadgeValue{{BadgeID: "km", Value: 5}},
	}))
	require.NoError(t, testDB.SaveSnapshot(ctx, model.ActivitySnapshot{
		ActivityID: "once-1", Badges: []model.BadgeValue{{BadgeID: "km", Value: 500}},
	}))

	snap, found, err := testDB.LoadSnapshot(ctx, "once-1")
	require.NoError(t, err)
	require.True(t, found)
	v, _ := snap.Value("km")
	assert.Equal(t, 5.0, v)
}

func TestEmptySnapshotIsStored(t *testing.T) {
	requireDB(t)
	ctx := context.Background()

	require.NoError(t, testDB.SaveSnapshot(ctx, model.ActivitySnapshot{ActivityID: "empty-1"}))

	snap, found, err := testDB.LoadSnapshot(ctx, "empty-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Empty(t, snap.Badges)
}

func TestSnapshotMiss(t *testing.T) {
	requireDB(t)
	ctx := context.Background()

	require.NoError(t, testDB.SaveMiss(ctx, "gone-1"))
	require.NoError(t, testDB.SaveMiss(ctx, "gone-1"), "recording a miss twice is harmless")

	_, found, err := testDB.LoadSnapshot(ctx, "gone-1")
	assert.False(t, found)
	assert.True(t, errors.Is(err, model.ErrNotFound))
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestSaveSnapshotRejectsEmptyID(t *testing.T) {
	requireDB(t)
	err := testDB.SaveSnapshot(context.Background(), model.ActivitySnapshot{})
	assert.Error(t, err)
}

func TestRunMigrationsIsIdempotent(t *testing.T) {
	requireDB(t)
	require.NoError(t, testDB.RunMigrations(context.Background(), os.DirFS("../../migrations")))
}
