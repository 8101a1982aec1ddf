// Package sqlite implements the store driver on SQLite.
//
// SQLite is supported on a best-effort basis for development and testing.
// Vectors are stored as BLOBs (little-endian float32) and similarity search
// is a linear scan computed in Go, which satisfies the same contract as the
// pgvector index for small catalogs.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"math"

	"github.com/pkg/errors"

	// Import the SQLite driver.
	_ "modernc.org/sqlite"

	"github.com/hrygo/pebbletrail/internal/profile"
	"github.com/hrygo/pebbletrail/store"
)

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens a SQLite database using the DSN from the profile.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile.DSN == "" {
		return nil, errors.New("dsn required")
	}

	// WAL journal mode prevents most locking issues; busy_timeout covers the
	// rest. The modernc.org/sqlite driver requires the `_pragma=` prefix.
	sqliteDB, err := sql.Open("sqlite", profile.DSN+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", profile.DSN)
	}

	// A single connection is optimal for SQLite with WAL.
	sqliteDB.SetMaxOpenConns(1)
	sqliteDB.SetMaxIdleConns(1)
	sqliteDB.SetConnMaxLifetime(0)

	return &DB{db: sqliteDB, profile: profile}, nil
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

const schema = `
CREATE TABLE IF NOT EXISTS stone (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	photo_file_id TEXT NOT NULL,
	embedding BLOB NOT NULL,
	registered_by_user_id INTEGER NOT NULL,
	created_ts INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS stone_sighting (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	stone_id INTEGER NOT NULL REFERENCES stone (id) ON DELETE CASCADE,
	reporter_user_id INTEGER NOT NULL,
	photo_file_id TEXT NOT NULL,
	latitude REAL,
	longitude REAL,
	postal_code TEXT,
	created_ts INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_stone_sighting_stone_id ON stone_sighting (stone_id, created_ts);

CREATE TABLE IF NOT EXISTS user_preference (
	user_id INTEGER PRIMARY KEY,
	language TEXT NOT NULL DEFAULT 'pl',
	created_ts INTEGER NOT NULL,
	updated_ts INTEGER NOT NULL
);
`

// Migrate creates the schema when missing. Statements are idempotent.
func (d *DB) Migrate(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, schema); err != nil {
		return errors.Wrap(err, "failed to apply schema")
	}
	return nil
}

// embeddingToBlob converts a []float32 vector to its BLOB encoding.
func embeddingToBlob(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:i*4+4], math.Float32bits(v))
	}
	return buf
}

// blobToEmbedding converts a BLOB back to a float32 vector.
func blobToEmbedding(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, errors.Errorf("invalid embedding blob length: %d", len(blob))
	}
	vec := make([]float32, len(blob)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4 : i*4+4]))
	}
	return vec, nil
}

// cosineSimilarity computes the cosine similarity of two vectors. Returns 0
// when either vector has zero magnitude.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
