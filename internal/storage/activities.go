package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ashita-ai/kiroku/internal/model"
)

const (
	writeRetries   = 3
	writeBaseDelay = 20 * time.Millisecond
)

// ListActivities returns every stored activity of competitorID, oldest first.
// The engine sorts and deduplicates on its own; the order here only keeps
// results stable.
func (db *DB) ListActivities(ctx context.Context, competitorID string) ([]model.ActivityRecord, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT activity_id, competitor_id, recorded_at, metrics
		 FROM activities WHERE competitor_id = $1
		 ORDER BY recorded_at ASC, activity_id ASC`, competitorID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list activities: %w", err)
	}
	defer rows.Close()

	var out []model.ActivityRecord
	for rows.Next() {
		var (
			a       model.ActivityRecord
			metrics map[string]float64
		)
		if err := rows.Scan(&a.ActivityID, &a.CompetitorID, &a.Timestamp, &metrics); err != nil {
			return nil, fmt.Errorf("storage: scan activity: %w", err)
		}
		a.Timestamp = a.Timestamp.UTC()
		if len(metrics) > 0 {
			a.Metrics = metrics
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: list activities: %w", err)
	}
	return out, nil
}

// UpsertActivities inserts or updates activities in one transaction. An
// existing activity keeps its id and competitor; its timestamp and cached
// metrics are replaced. Returns the number of rows written.
func (db *DB) UpsertActivities(ctx context.Context, records []model.ActivityRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	var written int
	err := WithRetry(ctx, writeRetries, writeBaseDelay, func() error {
		written = 0
		tx, err := db.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("storage: begin upsert activities: %w", err)
		}
		defer func() { _ = tx.Rollback(ctx) }()

		batch := &pgx.Batch{}
		for _, r := range records {
			if r.ActivityID == "" || r.CompetitorID == "" {
				continue
			}
			metrics := r.Metrics
			if metrics == nil {
				metrics = map[string]float64{}
			}
			batch.Queue(
				`INSERT INTO activities (activity_id, competitor_id, recorded_at, metrics)
				 VALUES ($1, $2, $3, $4)
				 ON CONFLICT (activity_id) DO UPDATE
				 SET recorded_at = EXCLUDED.recorded_at, metrics = EXCLUDED.metrics`,
				r.ActivityID, r.CompetitorID, r.Timestamp.UTC(), metrics,
			)
		}
		if batch.Len() == 0 {
			return nil
		}

		br := tx.SendBatch(ctx, batch)
		for range batch.Len() {
			tag, err := br.Exec()
			if err != nil {
				_ = br.Close()
				return fmt.Errorf("storage: upsert activity: %w", err)
			}
			written += int(tag.RowsAffected())
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("storage: upsert activities: %w", err)
		}
		return tx.Commit(ctx)
	})
	if err != nil {
		return 0, err
	}
	return written, nil
}
