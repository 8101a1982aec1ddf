package store

import (
	"context"
	"fmt"
)

// DefaultLanguage is applied when a user has no stored preference.
const DefaultLanguage = "pl"

// UserPreference represents per-user display settings.
type UserPreference struct {
	UserID    int64
	Language  string
	CreatedTs int64
	UpdatedTs int64
}

// UpsertUserPreference specifies the data for upserting a user preference.
type UpsertUserPreference struct {
	UserID   int64
	Language string
}

func userPreferenceCacheKey(userID int64) string {
	return fmt.Sprintf("user_preference:%d", userID)
}

// GetUserPreference gets a user's preference, falling back to defaults when
// none is stored.
func (s *Store) GetUserPreference(ctx context.Context, userID int64) (*UserPreference, error) {
	if cached, ok := s.userPreferenceCache.Get(userPreferenceCacheKey(userID)); ok {
		if pref, ok := cached.(*UserPreference); ok {
			return pref, nil
		}
	}

	pref, err := s.driver.GetUserPreference(ctx, userID)
	if err != nil {
		return nil, err
	}
	if pref == nil {
		pref = &UserPreference{UserID: userID, Language: DefaultLanguage}
	}

	s.userPreferenceCache.Set(userPreferenceCacheKey(userID), pref)
	return pref, nil
}

// UpsertUserPreference inserts or updates a user preference.
func (s *Store) UpsertUserPreference(ctx context.Context, upsert *UpsertUserPreference) (*UserPreference, error) {
	pref, err := s.driver.UpsertUserPreference(ctx, upsert)
	if err != nil {
		return nil, err
	}
	s.userPreferenceCache.Set(userPreferenceCacheKey(upsert.UserID), pref)
	return pref, nil
}
