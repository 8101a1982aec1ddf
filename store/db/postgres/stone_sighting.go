package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/pebbletrail/store"
)

// CreateStoneSighting appends a sighting row.
func (d *DB) CreateStoneSighting(ctx context.Context, create *store.CreateStoneSighting) (*store.StoneSighting, error) {
	sighting := &store.StoneSighting{
		StoneID:        create.StoneID,
		ReporterUserID: create.ReporterUserID,
		PhotoFileID:    create.PhotoFileID,
		Latitude:       create.Latitude,
		Longitude:      create.Longitude,
		PostalCode:     create.PostalCode,
		CreatedTs:      time.Now().Unix(),
	}

	stmt := `
		INSERT INTO stone_sighting (stone_id, reporter_user_id, photo_file_id, latitude, longitude, postal_code, created_ts)
		VALUES (` + placeholders(7) + `)
		RETURNING id
	`
	if err := d.db.QueryRowContext(ctx, stmt,
		sighting.StoneID,
		sighting.ReporterUserID,
		sighting.PhotoFileID,
		sighting.Latitude,
		sighting.Longitude,
		sighting.PostalCode,
		sighting.CreatedTs,
	).Scan(&sighting.ID); err != nil {
		return nil, errors.Wrap(err, "failed to insert stone sighting")
	}

	return sighting, nil
}

// ListStoneSightings lists sightings ordered ascending by creation time with
// the sighting ID as a stable secondary order.
func (d *DB) ListStoneSightings(ctx context.Context, find *store.FindStoneSighting) ([]*store.StoneSighting, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.StoneID != nil {
		where, args = append(where, "stone_id = "+placeholder(len(args)+1)), append(args, *find.StoneID)
	}

	query := `
		SELECT id, stone_id, reporter_user_id, photo_file_id, latitude, longitude, postal_code, created_ts
		FROM stone_sighting
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY created_ts ASC, id ASC
	`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list stone sightings")
	}
	defer rows.Close()

	list := []*store.StoneSighting{}
	for rows.Next() {
		var sighting store.StoneSighting
		if err := rows.Scan(
			&sighting.ID,
			&sighting.StoneID,
			&sighting.ReporterUserID,
			&sighting.PhotoFileID,
			&sighting.Latitude,
			&sighting.Longitude,
			&sighting.PostalCode,
			&sighting.CreatedTs,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan stone sighting")
		}
		list = append(list, &sighting)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

// CountStoneSightings returns the number of sightings for a stone.
func (d *DB) CountStoneSightings(ctx context.Context, stoneID int32) (int, error) {
	var count int
	err := d.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM stone_sighting WHERE stone_id = "+placeholder(1), stoneID,
	).Scan(&count)
	if err != nil {
		return 0, errors.Wrap(err, "failed to count stone sightings")
	}
	return count, nil
}
