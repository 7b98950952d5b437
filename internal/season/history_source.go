package season

import (
	"context"
	"log/slog"

	"github.com/ashita-ai/kiroku/internal/model"
)

// HistoryStore is a durable copy of activity history.
type HistoryStore interface {
	HistorySource
	UpsertActivities(ctx context.Context, records []model.ActivityRecord) (int, error)
}

// MirroredHistory reads history from the provider and mirrors it into a
// store. When the provider is unavailable the stored copy is served instead,
// so reports keep working from the last known history.
type MirroredHistory struct {
	upstream HistorySource
	store    HistoryStore
	logger   *slog.Logger
}

// NewMirroredHistory creates a MirroredHistory.
func NewMirroredHistory(upstream HistorySource, store HistoryStore, logger *slog.Logger) *MirroredHistory {
	if logger == nil {
		logger = slog.Default()
	}
	return &MirroredHistory{upstream: upstream, store: store, logger: logger}
}

// ListActivities implements HistorySource.
func (m *MirroredHistory) ListActivities(ctx context.Context, competitorID string) ([]model.ActivityRecord, error) {
	records, err := m.upstream.ListActivities(ctx, competitorID)
	if err != nil {
		stored, serr := m.store.ListActivities(ctx, competitorID)
		if serr != nil || len(stored) == 0 {
			return nil, err
		}
		m.logger.Warn("season: provider history unavailable, using stored copy",
			"competitor_id", competitorID, "activities", len(stored), "error", err)
		return stored, nil
	}

	if n, werr := m.store.UpsertActivities(ctx, records); werr != nil {
		m.logger.Warn("season: mirror activity history failed", "competitor_id", competitorID, "error", werr)
	} else {
		m.logger.Debug("season: mirrored activity history", "competitor_id", competitorID, "rows", n)
	}
	return records, nil
}
