package engine

import "github.com/hrygo/pebbletrail/store"

// MarkerRole classifies a route point for rendering.
type MarkerRole int

const (
	MarkerStart MarkerRole = iota
	MarkerWaypoint
	MarkerEnd
)

// RoutePoint is one located observation on a stone's route.
type RoutePoint struct {
	Coordinates Coordinates
	Role        MarkerRole
	CreatedTs   int64
}

// BoundingRegion covers all route points. The renderer uses it to choose
// zoom and extent.
type BoundingRegion struct {
	MinLat float64
	MinLon float64
	MaxLat float64
	MaxLon float64
}

// RouteGeometry is the ordered, located subset of a stone's history.
type RouteGeometry struct {
	StoneID int32
	Points  []RoutePoint
	Bounds  BoundingRegion
}

// IsEmpty reports whether the route has no located points.
func (g *RouteGeometry) IsEmpty() bool {
	return len(g.Points) == 0
}

// BuildRoute derives route geometry from a stone's ordered history.
// Sightings without coordinates are skipped; chronological order is
// preserved. The first located sighting becomes the start marker, the last
// the end marker, everything between a waypoint. Zero or one located
// sightings produce a degenerate geometry in which the single point, if any,
// is the start.
func BuildRoute(stoneID int32, sightings []*store.StoneSighting) *RouteGeometry {
	geometry := &RouteGeometry{StoneID: stoneID}

	for _, sighting := range sightings {
		if !sighting.HasCoordinates() {
			continue
		}
		geometry.Points = append(geometry.Points, RoutePoint{
			Coordinates: Coordinates{Latitude: *sighting.Latitude, Longitude: *sighting.Longitude},
			Role:        MarkerWaypoint,
			CreatedTs:   sighting.CreatedTs,
		})
	}

	if len(geometry.Points) == 0 {
		return geometry
	}

	geometry.Points[0].Role = MarkerStart
	if len(geometry.Points) > 1 {
		geometry.Points[len(geometry.Points)-1].Role = MarkerEnd
	}

	bounds := BoundingRegion{
		MinLat: geometry.Points[0].Coordinates.Latitude,
		MaxLat: geometry.Points[0].Coordinates.Latitude,
		MinLon: geometry.Points[0].Coordinates.Longitude,
		MaxLon: geometry.Points[0].Coordinates.Longitude,
	}
	for _, p := range geometry.Points[1:] {
		bounds.MinLat = min(bounds.MinLat, p.Coordinates.Latitude)
		bounds.MaxLat = max(bounds.MaxLat, p.Coordinates.Latitude)
		bounds.MinLon = min(bounds.MinLon, p.Coordinates.Longitude)
		bounds.MaxLon = max(bounds.MaxLon, p.Coordinates.Longitude)
	}
	geometry.Bounds = bounds

	return geometry
}
