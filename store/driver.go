package store

import "context"

// Driver is an interface for the database driver.
type Driver interface {
	Close() error
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error

	// Stone model.
	CreateStone(ctx context.Context, create *CreateStone, firstSighting *CreateStoneSighting) (*Stone, error)
	ListStones(ctx context.Context, find *FindStone) ([]*Stone, error)
	DeleteStone(ctx context.Context, id int32) error
	VectorSearchStones(ctx context.Context, opts *VectorSearchOptions) ([]*StoneWithScore, error)

	// StoneSighting model.
	CreateStoneSighting(ctx context.Context, create *CreateStoneSighting) (*StoneSighting, error)
	ListStoneSightings(ctx context.Context, find *FindStoneSighting) ([]*StoneSighting, error)
	CountStoneSightings(ctx context.Context, stoneID int32) (int, error)

	// UserPreference model.
	GetUserPreference(ctx context.Context, userID int64) (*UserPreference, error)
	UpsertUserPreference(ctx context.Context, upsert *UpsertUserPreference) (*UserPreference, error)
}
