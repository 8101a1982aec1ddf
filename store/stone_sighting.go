package store

import (
	"context"

	"github.com/pkg/errors"
)

// StoneSighting represents one observation of a stone. Sightings are
// append-only: they are never updated, and deleted only when their stone is
// deleted.
type StoneSighting struct {
	ID             int32
	StoneID        int32
	ReporterUserID int64
	PhotoFileID    string
	// Latitude/Longitude are nil when the reporter skipped the location step.
	// Such sightings are retained for audit but excluded from route geometry.
	Latitude   *float64
	Longitude  *float64
	PostalCode *string
	CreatedTs  int64
}

// HasCoordinates reports whether the sighting carries a geographic position.
func (h *StoneSighting) HasCoordinates() bool {
	return h.Latitude != nil && h.Longitude != nil
}

// CreateStoneSighting is the creation payload for a sighting.
type CreateStoneSighting struct {
	StoneID        int32
	ReporterUserID int64
	PhotoFileID    string
	Latitude       *float64
	Longitude      *float64
	PostalCode     *string
}

// Validate validates the CreateStoneSighting payload.
func (c *CreateStoneSighting) Validate() error {
	if c.ReporterUserID == 0 {
		return errors.New("reporter user id cannot be zero")
	}
	if c.PhotoFileID == "" {
		return errors.New("photo file id cannot be empty")
	}
	if (c.Latitude == nil) != (c.Longitude == nil) {
		return errors.New("latitude and longitude must be set together")
	}
	return nil
}

// FindStoneSighting is the find condition for sightings.
type FindStoneSighting struct {
	StoneID *int32
}

// CreateStoneSighting appends a sighting to a stone's history.
func (s *Store) CreateStoneSighting(ctx context.Context, create *CreateStoneSighting) (*StoneSighting, error) {
	if err := create.Validate(); err != nil {
		return nil, err
	}
	if create.StoneID <= 0 {
		return nil, errors.Errorf("invalid stone id: %d", create.StoneID)
	}
	return s.driver.CreateStoneSighting(ctx, create)
}

// ListStoneSightings lists sightings for a stone, ordered ascending by
// creation time with ties broken by sighting ID. The ordering defines the
// stone's travel route.
func (s *Store) ListStoneSightings(ctx context.Context, find *FindStoneSighting) ([]*StoneSighting, error) {
	return s.driver.ListStoneSightings(ctx, find)
}

// CountStoneSightings returns the number of sightings recorded for a stone.
func (s *Store) CountStoneSightings(ctx context.Context, stoneID int32) (int, error) {
	return s.driver.CountStoneSightings(ctx, stoneID)
}
