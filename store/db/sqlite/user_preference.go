package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/pebbletrail/store"
)

// GetUserPreference gets a user preference row. Returns nil when not found.
func (d *DB) GetUserPreference(ctx context.Context, userID int64) (*store.UserPreference, error) {
	query := `
		SELECT user_id, language, created_ts, updated_ts
		FROM user_preference
		WHERE user_id = ?
	`

	var pref store.UserPreference
	err := d.db.QueryRowContext(ctx, query, userID).Scan(
		&pref.UserID,
		&pref.Language,
		&pref.CreatedTs,
		&pref.UpdatedTs,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get user preference")
	}
	return &pref, nil
}

// UpsertUserPreference inserts or updates a user preference.
func (d *DB) UpsertUserPreference(ctx context.Context, upsert *store.UpsertUserPreference) (*store.UserPreference, error) {
	now := time.Now().Unix()
	stmt := `
		INSERT INTO user_preference (user_id, language, created_ts, updated_ts)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id)
		DO UPDATE SET
			language = EXCLUDED.language,
			updated_ts = EXCLUDED.updated_ts
		RETURNING user_id, language, created_ts, updated_ts
	`

	var pref store.UserPreference
	if err := d.db.QueryRowContext(ctx, stmt, upsert.UserID, upsert.Language, now, now).Scan(
		&pref.UserID,
		&pref.Language,
		&pref.CreatedTs,
		&pref.UpdatedTs,
	); err != nil {
		return nil, errors.Wrap(err, "failed to upsert user preference")
	}
	return &pref, nil
}
