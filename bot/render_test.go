package bot

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hrygo/pebbletrail/engine"
	"github.com/hrygo/pebbletrail/store"
)

// TestAddressLine checks the display form of reverse-geocoded addresses.
func TestAddressLine(t *testing.T) {
	testCases := []struct {
		name string
		addr engine.Address
		want string
	}{
		{
			"full address",
			engine.Address{City: "Warszawa", PostalCode: "00-001", Country: "Polska"},
			"Warszawa, 00-001, Polska",
		},
		{
			"city only",
			engine.Address{City: "Warszawa"},
			"Warszawa",
		},
		{
			"display name fallback",
			engine.Address{DisplayName: "somewhere far away"},
			"somewhere far away",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, addressLine(&tc.addr))
		})
	}
}

// TestListText checks list rendering with and without similarity scores.
func TestListText(t *testing.T) {
	stones := []*engine.StoneSummary{
		{Stone: &store.Stone{Name: "Ladybug"}, SightingCount: 3, Similarity: 0.30},
		{Stone: &store.Stone{Name: "Sunset"}, SightingCount: 1, Similarity: 0.27},
	}

	plain := listText("en", "my_stones", stones, false)
	assert.Contains(t, plain, "Ladybug (3)")
	assert.Contains(t, plain, "Sunset (1)")
	assert.NotContains(t, plain, "%")

	scored := listText("en", "search_results", stones, true)
	assert.Contains(t, scored, "30%")
	assert.Contains(t, scored, "27%")
}

// TestIsSkipButton matches the skip label across languages, case-insensitive.
func TestIsSkipButton(t *testing.T) {
	b := &Bot{}

	assert.True(t, b.isSkipButton("Skip"))
	assert.True(t, b.isSkipButton("pomiń"))
	assert.True(t, b.isSkipButton("Пропустить"))
	assert.False(t, b.isSkipButton("skip it please"))
	assert.False(t, b.isSkipButton("Warszawa"))
}

// TestMatchText omits the description line when empty.
func TestMatchText(t *testing.T) {
	withDesc := matchText("en", &engine.StoneSummary{
		Stone:         &store.Stone{Name: "Ladybug", Description: "red dots"},
		SightingCount: 2,
	})
	assert.Contains(t, withDesc, "Ladybug")
	assert.Contains(t, withDesc, "red dots")

	noDesc := matchText("en", &engine.StoneSummary{
		Stone:         &store.Stone{Name: "Plain"},
		SightingCount: 1,
	})
	assert.NotContains(t, noDesc, "Description")
}
