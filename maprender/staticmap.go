// Package maprender draws route geometry onto OpenStreetMap tiles and
// produces a static PNG for chat delivery.
package maprender

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/jpeg" // register decoder for JPEG tile servers
	"image/png"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/pebbletrail/engine"
	"github.com/hrygo/pebbletrail/internal/version"
)

const (
	defaultWidth  = 800
	defaultHeight = 600
	tileSize      = 256
	minZoom       = 1
	maxZoom       = 17
	// singlePointZoom is used when the route collapses to one location.
	singlePointZoom = 13
)

var (
	startColor    = color.NRGBA{R: 0x22, G: 0xc5, B: 0x5e, A: 0xff}
	endColor      = color.NRGBA{R: 0xef, G: 0x44, B: 0x44, A: 0xff}
	waypointColor = color.NRGBA{R: 0x3b, G: 0x82, B: 0xf6, A: 0xff}
	lineColor     = color.NRGBA{R: 0x3b, G: 0x82, B: 0xf6, A: 0xff}
	landColor     = color.NRGBA{R: 0xdd, G: 0xdd, B: 0xdd, A: 0xff}
)

// Config holds renderer settings.
type Config struct {
	TileURLTemplate string // e.g. "https://tile.openstreetmap.org/%d/%d/%d.png" (z, x, y)
	Width           int
	Height          int
}

// Renderer implements the engine's Renderer port with slippy-map tiles.
type Renderer struct {
	config Config
	client *http.Client
}

// NewRenderer creates a static map renderer.
func NewRenderer(config Config) *Renderer {
	if config.TileURLTemplate == "" {
		config.TileURLTemplate = "https://tile.openstreetmap.org/%d/%d/%d.png"
	}
	if config.Width <= 0 {
		config.Width = defaultWidth
	}
	if config.Height <= 0 {
		config.Height = defaultHeight
	}
	return &Renderer{
		config: config,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

// Render draws the route onto a map image. The zoom level is chosen so the
// bounding region fits the canvas with a margin.
func (r *Renderer) Render(ctx context.Context, route *engine.RouteGeometry) ([]byte, error) {
	if route.IsEmpty() {
		return nil, errors.New("cannot render empty route")
	}

	zoom := fitZoom(route.Bounds, r.config.Width, r.config.Height)
	centerLat := (route.Bounds.MinLat + route.Bounds.MaxLat) / 2
	centerLon := (route.Bounds.MinLon + route.Bounds.MaxLon) / 2
	centerX, centerY := project(centerLat, centerLon, zoom)

	canvas := image.NewRGBA(image.Rect(0, 0, r.config.Width, r.config.Height))
	originX := centerX - float64(r.config.Width)/2
	originY := centerY - float64(r.config.Height)/2

	r.drawTiles(ctx, canvas, zoom, originX, originY)

	// Route line under the markers.
	if len(route.Points) > 1 {
		var prevX, prevY float64
		for i, point := range route.Points {
			x, y := project(point.Coordinates.Latitude, point.Coordinates.Longitude, zoom)
			x, y = x-originX, y-originY
			if i > 0 {
				drawLine(canvas, prevX, prevY, x, y, 3, lineColor)
			}
			prevX, prevY = x, y
		}
	}

	for _, point := range route.Points {
		x, y := project(point.Coordinates.Latitude, point.Coordinates.Longitude, zoom)
		markerColor, radius := waypointColor, 8
		switch point.Role {
		case engine.MarkerStart:
			markerColor, radius = startColor, 12
		case engine.MarkerEnd:
			markerColor, radius = endColor, 12
		}
		drawCircle(canvas, x-originX, y-originY, radius, markerColor)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, errors.Wrap(err, "failed to encode map image")
	}
	return buf.Bytes(), nil
}

// drawTiles paints all tiles intersecting the viewport. A failed tile fetch
// leaves a flat background instead of failing the whole render.
func (r *Renderer) drawTiles(ctx context.Context, canvas *image.RGBA, zoom int, originX, originY float64) {
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(landColor), image.Point{}, draw.Src)

	maxTile := 1 << zoom
	firstX := int(math.Floor(originX / tileSize))
	firstY := int(math.Floor(originY / tileSize))
	lastX := int(math.Floor((originX + float64(canvas.Bounds().Dx())) / tileSize))
	lastY := int(math.Floor((originY + float64(canvas.Bounds().Dy())) / tileSize))

	for tx := firstX; tx <= lastX; tx++ {
		for ty := firstY; ty <= lastY; ty++ {
			if ty < 0 || ty >= maxTile {
				continue
			}
			wrappedX := ((tx % maxTile) + maxTile) % maxTile
			tile, err := r.fetchTile(ctx, zoom, wrappedX, ty)
			if err != nil {
				slog.Warn("tile fetch failed", "zoom", zoom, "x", wrappedX, "y", ty, "error", err)
				continue
			}
			offset := image.Pt(int(float64(tx*tileSize)-originX), int(float64(ty*tileSize)-originY))
			draw.Draw(canvas, image.Rect(offset.X, offset.Y, offset.X+tileSize, offset.Y+tileSize), tile, image.Point{}, draw.Src)
		}
	}
}

func (r *Renderer) fetchTile(ctx context.Context, zoom, x, y int) (image.Image, error) {
	url := fmt.Sprintf(r.config.TileURLTemplate, zoom, x, y)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build tile request")
	}
	req.Header.Set("User-Agent", fmt.Sprintf("pebbletrail/%s", version.Version))

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "tile request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("tile server returned %d", resp.StatusCode)
	}

	tile, _, err := image.Decode(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode tile")
	}
	return tile, nil
}

// project converts WGS84 coordinates to global pixel coordinates at a zoom
// level using the spherical Mercator projection.
func project(lat, lon float64, zoom int) (x, y float64) {
	scale := float64(int(1)<<zoom) * tileSize
	x = (lon + 180) / 360 * scale
	latRad := lat * math.Pi / 180
	y = (1 - math.Log(math.Tan(latRad)+1/math.Cos(latRad))/math.Pi) / 2 * scale
	return x, y
}

// fitZoom picks the highest zoom at which the bounding region fits the
// canvas with a 10% margin on each side.
func fitZoom(bounds engine.BoundingRegion, width, height int) int {
	if bounds.MinLat == bounds.MaxLat && bounds.MinLon == bounds.MaxLon {
		return singlePointZoom
	}

	marginW := float64(width) * 0.8
	marginH := float64(height) * 0.8
	for zoom := maxZoom; zoom >= minZoom; zoom-- {
		minX, maxY := project(bounds.MinLat, bounds.MinLon, zoom)
		maxX, minY := project(bounds.MaxLat, bounds.MaxLon, zoom)
		if maxX-minX <= marginW && maxY-minY <= marginH {
			return zoom
		}
	}
	return minZoom
}

// drawCircle paints a filled circle with a thin white rim.
func drawCircle(canvas *image.RGBA, cx, cy float64, radius int, fill color.NRGBA) {
	rim := radius + 2
	for dy := -rim; dy <= rim; dy++ {
		for dx := -rim; dx <= rim; dx++ {
			dist := math.Sqrt(float64(dx*dx + dy*dy))
			px, py := int(cx)+dx, int(cy)+dy
			switch {
			case dist <= float64(radius):
				canvas.Set(px, py, fill)
			case dist <= float64(rim):
				canvas.Set(px, py, color.White)
			}
		}
	}
}

// drawLine paints a line segment with the given thickness by stamping discs
// along it.
func drawLine(canvas *image.RGBA, x0, y0, x1, y1 float64, thickness int, c color.NRGBA) {
	length := math.Hypot(x1-x0, y1-y0)
	steps := int(length) + 1
	for i := 0; i <= steps; i++ {
		t := float64(i) / float64(steps)
		x := x0 + (x1-x0)*t
		y := y0 + (y1-y0)*t
		radius := thickness / 2
		for dy := -radius; dy <= radius; dy++ {
			for dx := -radius; dx <= radius; dx++ {
				if dx*dx+dy*dy <= radius*radius {
					canvas.Set(int(x)+dx, int(y)+dy, c)
				}
			}
		}
	}
}
