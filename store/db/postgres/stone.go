package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"
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
		VALUES (` + placeholders(6) + `)
		RETURNING id
	`
	if err := tx.QueryRowContext(ctx, stmt,
		stone.Name,
		stone.Description,
		stone.PhotoFileID,
		pgvector.NewVector(stone.Embedding),
		stone.RegisteredByUserID,
		stone.CreatedTs,
	).Scan(&stone.ID); err != nil {
		return nil, errors.Wrap(err, "failed to insert stone")
	}

	if firstSighting != nil {
		stmt = `
			INSERT INTO stone_sighting (stone_id, reporter_user_id, photo_file_id, latitude, longitude, postal_code, created_ts)
			VALUES (` + placeholders(7) + `)
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
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}
	if find.RegisteredByUserID != nil {
		where, args = append(where, "registered_by_user_id = "+placeholder(len(args)+1)), append(args, *find.RegisteredByUserID)
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
		stone, err := scanStone(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, stone)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

// DeleteStone deletes a stone; sightings cascade via foreign key.
func (d *DB) DeleteStone(ctx context.Context, id int32) error {
	if _, err := d.db.ExecContext(ctx, "DELETE FROM stone WHERE id = "+placeholder(1), id); err != nil {
		return errors.Wrap(err, "failed to delete stone")
	}
	return nil
}

// VectorSearchStones performs cosine similarity search using the pgvector
// `<=>` operator. Results are ordered by distance ascending with stone ID as
// a deterministic tie-break, and rows strictly below the threshold are
// filtered in SQL.
func (d *DB) VectorSearchStones(ctx context.Context, opts *store.VectorSearchOptions) ([]*store.StoneWithScore, error) {
	query := `
		SELECT id, name, description, photo_file_id, embedding, registered_by_user_id, created_ts,
			(1 - (embedding <=> $1)) AS score
		FROM stone
		WHERE (1 - (embedding <=> $1)) >= $2
		ORDER BY embedding <=> $1, id ASC
		LIMIT $3
	`

	rows, err := d.db.QueryContext(ctx, query, pgvector.NewVector(opts.Vector), opts.Threshold, opts.Limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to vector search stones")
	}
	defer rows.Close()

	list := []*store.StoneWithScore{}
	for rows.Next() {
		var stone store.Stone
		var vector pgvector.Vector
		var score float32
		if err := rows.Scan(
			&stone.ID,
			&stone.Name,
			&stone.Description,
			&stone.PhotoFileID,
			&vector,
			&stone.RegisteredByUserID,
			&stone.CreatedTs,
			&score,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan stone with score")
		}
		stone.Embedding = vector.Slice()
		list = append(list, &store.StoneWithScore{Stone: &stone, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStone(row rowScanner) (*store.Stone, error) {
	var stone store.Stone
	var vector pgvector.Vector
	if err := row.Scan(
		&stone.ID,
		&stone.Name,
		&stone.Description,
		&stone.PhotoFileID,
		&vector,
		&stone.RegisteredByUserID,
		&stone.CreatedTs,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to scan stone")
	}
	stone.Embedding = vector.Slice()
	return &stone, nil
}
