package sqlite

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/pebbletrail/store"
)

// CreateStone creates a stone and its first sighting in one transaction.
func (d *DB) CreateStone(ctx context.Context, create *store.CreateStone, firstSighting *store.CreateStoneSighting) (*store.Stone, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin tx")
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	stone := &store.Stone{
		Name:               create.Name,
		Description:        create.Description,
		PhotoFileID:        create.PhotoFileID,
		Embedding:          create.Embedding,
		RegisteredByUserID: create.RegisteredByUserID,
		CreatedTs:          now,
	}

	stmt := `
		INSERT INTO stone (name, description, photo_file_id, embedding, registered_by_user_id, created_ts)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id
	`
	if err := tx.QueryRowContext(ctx, stmt,
		stone.Name,
		stone.Description,
		stone.PhotoFileID,
		embeddingToBlob(stone.Embedding),
		stone.RegisteredByUserID,
		stone.CreatedTs,
	).Scan(&stone.ID); err != nil {
		return nil, errors.Wrap(err, "failed to insert stone")
	}

	if firstSighting != nil {
		stmt = `
			INSERT INTO stone_sighting (stone_id, reporter_user_id, photo_file_id, latitude, longitude, postal_code, created_ts)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`
		if _, err := tx.ExecContext(ctx, stmt,
			stone.ID,
			firstSighting.ReporterUserID,
			firstSighting.PhotoFileID,
			firstSighting.Latitude,
			firstSighting.Longitude,
			firstSighting.PostalCode,
			now,
		); err != nil {
			return nil, errors.Wrap(err, "failed to insert first sighting")
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "failed to commit tx")
	}
	return stone, nil
}

// ListStones lists stones matching the find condition.
func (d *DB) ListStones(ctx context.Context, find *store.FindStone) ([]*store.Stone, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = ?"), append(args, *find.ID)
	}
	if find.RegisteredByUserID != nil {
		where, args = append(where, "registered_by_user_id = ?"), append(args, *find.RegisteredByUserID)
	}

	query := `
		SELECT id, name, description, photo_file_id, embedding, registered_by_user_id, created_ts
		FROM stone
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY id ASC
	`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list stones")
	}
	defer rows.Close()

	list := []*store.Stone{}
	for rows.Next() {
		var stone store.Stone
		var blob []byte
		if err := rows.Scan(
			&stone.ID,
			&stone.Name,
			&stone.Description,
			&stone.PhotoFileID,
			&blob,
			&stone.RegisteredByUserID,
			&stone.CreatedTs,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan stone")
		}
		embedding, err := blobToEmbedding(blob)
		if err != nil {
			return nil, err
		}
		stone.Embedding = embedding
		list = append(list, &stone)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

// DeleteStone deletes a stone; sightings cascade via foreign key.
func (d *DB) DeleteStone(ctx context.Context, id int32) error {
	if _, err := d.db.ExecContext(ctx, "DELETE FROM stone WHERE id = ?", id); err != nil {
		return errors.Wrap(err, "failed to delete stone")
	}
	return nil
}

// VectorSearchStones scans all stones and computes cosine similarity in Go.
// Results are ordered by similarity descending, ties broken by stone ID
// ascending, truncated to the limit; rows strictly below the threshold are
// excluded.
func (d *DB) VectorSearchStones(ctx context.Context, opts *store.VectorSearchOptions) ([]*store.StoneWithScore, error) {
	stones, err := d.ListStones(ctx, &store.FindStone{})
	if err != nil {
		return nil, err
	}

	list := []*store.StoneWithScore{}
	for _, stone := range stones {
		score := cosineSimilarity(opts.Vector, stone.Embedding)
		if score < opts.Threshold {
			continue
		}
		list = append(list, &store.StoneWithScore{Stone: stone, Score: score})
	}

	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Score != list[j].Score {
			return list[i].Score > list[j].Score
		}
		return list[i].Stone.ID < list[j].Stone.ID
	})

	if len(list) > opts.Limit {
		list = list[:opts.Limit]
	}
	return list, nil
}
