package store

import (
	"context"

	"github.com/pkg/errors"
)

// EmbeddingDimensions is the length of every canonical stone embedding.
// CLIP ViT-B/32 produces 512-dim vectors.
const EmbeddingDimensions = 512

// Stone represents a registered painted stone.
type Stone struct {
	ID          int32
	Name        string
	Description string
	// PhotoFileID is the opaque chat-platform reference to the registration
	// photo. Raw photo bytes are never persisted.
	PhotoFileID string
	// Embedding is the canonical vector fixed at registration. It is never
	// updated; all future matching compares against it.
	Embedding          []float32
	RegisteredByUserID int64
	CreatedTs          int64
}

// CreateStone is the creation payload for a stone.
type CreateStone struct {
	Name               string
	Description        string
	PhotoFileID        string
	Embedding          []float32
	RegisteredByUserID int64
}

// Validate validates the CreateStone payload.
func (c *CreateStone) Validate() error {
	if c.Name == "" {
		return errors.New("stone name cannot be empty")
	}
	if c.PhotoFileID == "" {
		return errors.New("photo file id cannot be empty")
	}
	if len(c.Embedding) != EmbeddingDimensions {
		return errors.Errorf("embedding must have %d dimensions, got %d", EmbeddingDimensions, len(c.Embedding))
	}
	if c.RegisteredByUserID == 0 {
		return errors.New("registering user id cannot be zero")
	}
	return nil
}

// FindStone is the find condition for stones.
type FindStone struct {
	ID                 *int32
	RegisteredByUserID *int64
}

// StoneWithScore represents a vector search result with similarity score.
type StoneWithScore struct {
	Stone *Stone
	Score float32 // Cosine similarity in [0, 1], higher is more similar.
}

// VectorSearchOptions represents the options for stone vector search.
type VectorSearchOptions struct {
	Vector    []float32
	Limit     int
	Threshold float32 // Results strictly below the threshold are excluded.
}

// Validate validates the VectorSearchOptions.
func (o *VectorSearchOptions) Validate() error {
	if len(o.Vector) != EmbeddingDimensions {
		return errors.Errorf("query vector must have %d dimensions, got %d", EmbeddingDimensions, len(o.Vector))
	}
	if o.Limit < 0 {
		return errors.Errorf("limit cannot be negative: %d", o.Limit)
	}
	if o.Limit == 0 {
		o.Limit = 10
	}
	if o.Limit > 1000 {
		return errors.Errorf("limit too large (max 1000): %d", o.Limit)
	}
	return nil
}

// CreateStone creates a stone along with its first sighting in one transaction.
func (s *Store) CreateStone(ctx context.Context, create *CreateStone, firstSighting *CreateStoneSighting) (*Stone, error) {
	if err := create.Validate(); err != nil {
		return nil, err
	}
	return s.driver.CreateStone(ctx, create, firstSighting)
}

// GetStone gets a stone by ID. Returns nil when not found.
func (s *Store) GetStone(ctx context.Context, id int32) (*Stone, error) {
	list, err := s.driver.ListStones(ctx, &FindStone{ID: &id})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

// ListStones lists stones matching the find condition.
func (s *Store) ListStones(ctx context.Context, find *FindStone) ([]*Stone, error) {
	return s.driver.ListStones(ctx, find)
}

// DeleteStone deletes a stone and cascades to its sightings. This is an
// administrative operation; the conversational flow never deletes.
func (s *Store) DeleteStone(ctx context.Context, id int32) error {
	return s.driver.DeleteStone(ctx, id)
}

// VectorSearchStones performs cosine similarity search over canonical stone
// embeddings. Results are ordered by similarity descending, ties broken by
// stone ID ascending.
func (s *Store) VectorSearchStones(ctx context.Context, opts *VectorSearchOptions) ([]*StoneWithScore, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return s.driver.VectorSearchStones(ctx, opts)
}
