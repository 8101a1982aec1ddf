package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/pebbletrail/store"
)

func located(lat, lon float64, ts int64) *store.StoneSighting {
	return &store.StoneSighting{Latitude: &lat, Longitude: &lon, CreatedTs: ts}
}

func unlocated(ts int64) *store.StoneSighting {
	return &store.StoneSighting{CreatedTs: ts}
}

// TestBuildRoute_Roles checks start/waypoint/end assignment.
func TestBuildRoute_Roles(t *testing.T) {
	t.Run("empty history", func(t *testing.T) {
		route := BuildRoute(1, nil)
		assert.True(t, route.IsEmpty())
	})

	t.Run("only unlocated sightings", func(t *testing.T) {
		route := BuildRoute(1, []*store.StoneSighting{unlocated(1), unlocated(2)})
		assert.True(t, route.IsEmpty())
	})

	t.Run("single point is the start", func(t *testing.T) {
		route := BuildRoute(1, []*store.StoneSighting{located(52.1, 21.0, 1)})
		require.Len(t, route.Points, 1)
		assert.Equal(t, MarkerStart, route.Points[0].Role)
	})

	t.Run("two points are start and end", func(t *testing.T) {
		route := BuildRoute(1, []*store.StoneSighting{
			located(52.1, 21.0, 1),
			located(50.0, 19.9, 2),
		})
		require.Len(t, route.Points, 2)
		assert.Equal(t, MarkerStart, route.Points[0].Role)
		assert.Equal(t, MarkerEnd, route.Points[1].Role)
	})

	t.Run("middle points are waypoints", func(t *testing.T) {
		route := BuildRoute(1, []*store.StoneSighting{
			located(52.1, 21.0, 1),
			located(51.0, 20.0, 2),
			located(50.5, 19.5, 3),
			located(50.0, 19.9, 4),
		})
		require.Len(t, route.Points, 4)
		assert.Equal(t, MarkerStart, route.Points[0].Role)
		assert.Equal(t, MarkerWaypoint, route.Points[1].Role)
		assert.Equal(t, MarkerWaypoint, route.Points[2].Role)
		assert.Equal(t, MarkerEnd, route.Points[3].Role)
	})
}

// TestBuildRoute_SkipsUnlocated verifies unlocated sightings are excluded
// while chronological order is preserved.
func TestBuildRoute_SkipsUnlocated(t *testing.T) {
	route := BuildRoute(1, []*store.StoneSighting{
		located(52.0, 21.0, 1),
		unlocated(2),
		located(51.0, 20.0, 3),
		unlocated(4),
	})
	require.Len(t, route.Points, 2)
	assert.Equal(t, int64(1), route.Points[0].CreatedTs)
	assert.Equal(t, int64(3), route.Points[1].CreatedTs)
	assert.Equal(t, MarkerEnd, route.Points[1].Role)
}

// TestBuildRoute_Bounds checks the bounding region covers all points.
func TestBuildRoute_Bounds(t *testing.T) {
	route := BuildRoute(1, []*store.StoneSighting{
		located(52.1, 21.0, 1),
		located(50.0, 23.5, 2),
		located(51.5, 19.9, 3),
	})

	assert.InDelta(t, 50.0, route.Bounds.MinLat, 1e-9)
	assert.InDelta(t, 52.1, route.Bounds.MaxLat, 1e-9)
	assert.InDelta(t, 19.9, route.Bounds.MinLon, 1e-9)
	assert.InDelta(t, 23.5, route.Bounds.MaxLon, 1e-9)
}
