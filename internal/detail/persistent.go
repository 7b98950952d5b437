package detail

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ashita-ai/kiroku/internal/model"
)

// SnapshotStore is a durable home for immutable activity snapshots.
//
// LoadSnapshot returns found=false with a nil error when nothing is stored,
// and an error matching model.ErrNotFound when a permanent miss was recorded.
type SnapshotStore interface {
	LoadSnapshot(ctx context.Context, activityID string) (model.ActivitySnapshot, bool, error)
	SaveSnapshot(ctx context.Context, snap model.ActivitySnapshot) error
	SaveMiss(ctx context.Context, activityID string) error
}

// PersistentFetcher is a read-through Fetcher: stored snapshots are served
// without an upstream call, and upstream results that can never change
// (snapshots and not-found) are written back. Store failures degrade to a
// plain upstream fetch.
type PersistentFetcher struct {
	upstream Fetcher
	store    SnapshotStore
	logger   *slog.Logger
}

// Persistent wraps upstream with store.
func Persistent(upstream Fetcher, store SnapshotStore, logger *slog.Logger) *PersistentFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &PersistentFetcher{upstream: upstream, store: store, logger: logger}
}

// FetchActivityDetail implements Fetcher.
func (p *PersistentFetcher) FetchActivityDetail(ctx context.Context, activityID string) (model.ActivitySnapshot, error) {
	snap, found, err := p.store.LoadSnapshot(ctx, activityID)
	switch {
	case errors.Is(err, model.ErrNotFound):
		return model.ActivitySnapshot{}, err
	case err != nil:
		p.logger.Warn("detail: snapshot store read failed", "activity_id", activityID, "error", err)
	case found:
		return snap, nil
	}

	snap, err = p.upstream.FetchActivityDetail(ctx, activityID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			if serr := p.store.SaveMiss(ctx, activityID); serr != nil {
				p.logger.Warn("detail: record miss failed", "activity_id", activityID, "error", serr)
			}
		}
		return model.ActivitySnapshot{}, err
	}

	if snap.ActivityID == "" {
		snap.ActivityID = activityID
	}
	if serr := p.store.SaveSnapshot(ctx, snap); serr != nil {
		p.logger.Warn("detail: snapshot store write failed", "activity_id", activityID, "error", serr)
	}
	return snap, nil
}
