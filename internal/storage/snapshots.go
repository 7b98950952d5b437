package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ashita-ai/kiroku/internal/model"
)

// LoadSnapshot returns the stored snapshot of activityID. found is false
// with a nil error when nothing is stored; a recorded miss returns
// ErrNotFound.
func (db *DB) LoadSnapshot(ctx context.Context, activityID string) (model.ActivitySnapshot, bool, error) {
	var missing bool
	err := db.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM activity_snapshot_misses WHERE activity_id = $1)`, activityID,
	).Scan(&missing)
	if err != nil {
		return model.ActivitySnapshot{}, false, fmt.Errorf("storage: load snapshot miss: %w", err)
	}
	if missing {
		return model.ActivitySnapshot{}, false, fmt.Errorf("%w: activity %s", ErrNotFound, activityID)
	}

	var id string
	err = db.pool.QueryRow(ctx,
		`SELECT activity_id FROM activity_snapshots WHERE activity_id = $1`, activityID,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ActivitySnapshot{}, false, nil
		}
		return model.ActivitySnapshot{}, false, fmt.Errorf("storage: load snapshot: %w", err)
	}

	rows, err := db.pool.Query(ctx,
		`SELECT badge_id, value FROM activity_snapshot_badges
		 WHERE activity_id = $1 ORDER BY badge_id`, activityID,
	)
	if err != nil {
		return model.ActivitySnapshot{}, false, fmt.Errorf("storage: load snapshot badges: %w", err)
	}
	badges, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.BadgeValue, error) {
		var b model.BadgeValue
		err := row.Scan(&b.BadgeID, &b.Value)
		return b, err
	})
	if err != nil {
		return model.ActivitySnapshot{}, false, fmt.Errorf("storage: scan snapshot badges: %w", err)
	}
	return model.ActivitySnapshot{ActivityID: id, Badges: badges}, true, nil
}

// SaveSnapshot stores snap. Snapshots are immutable, so saving an activity
// that is already stored is a no-op. Duplicate badge entries keep the
// highest value.
func (db *DB) SaveSnapshot(ctx context.Context, snap model.ActivitySnapshot) error {
	if snap.ActivityID == "" {
		return errors.New("storage: save snapshot: empty activity id")
	}
	return WithRetry(ctx, writeRetries, writeBaseDelay, func() error {
		tx, err := db.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("storage: begin save snapshot: %w", err)
		}
		defer func() { _ = tx.Rollback(ctx) }()

		tag, err := tx.Exec(ctx,
			`INSERT INTO activity_snapshots (activity_id) VALUES ($1) ON CONFLICT DO NOTHING`,
			snap.ActivityID,
		)
		if err != nil {
			return fmt.Errorf("storage: save snapshot: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}

		for _, b := range snap.Badges {
			if b.BadgeID == "" {
				continue
			}
			if _, err := tx.Exec(ctx,
				`INSERT INTO activity_snapshot_badges (activity_id, badge_id, value)
				 VALUES ($1, $2, $3)
				 ON CONFLICT (activity_id, badge_id)
				 DO UPDATE SET value = GREATEST(activity_snapshot_badges.value, EXCLUDED.value)`,
				snap.ActivityID, b.BadgeID, b.Value,
			); err != nil {
				return fmt.Errorf("storage: save snapshot badge: %w", err)
			}
		}
		if _, err := tx.Exec(ctx,
			`DELETE FROM activity_snapshot_misses WHERE activity_id = $1`, snap.ActivityID,
		); err != nil {
			return fmt.Errorf("storage: clear snapshot miss: %w", err)
		}
		return tx.Commit(ctx)
	})
}

// SaveMiss records that the provider permanently reported activityID as not
// found.
func (db *DB) SaveMiss(ctx context.Context, activityID string) error {
	if _, err := db.pool.Exec(ctx,
		`INSERT INTO activity_snapshot_misses (activity_id) VALUES ($1) ON CONFLICT DO NOTHING`,
		activityID,
	); err != nil {
		return fmt.Errorf("storage: save snapshot miss: %w", err)
	}
	return nil
}
