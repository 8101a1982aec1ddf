package engine

import (
	"context"

	"github.com/pkg/errors"
)

// ErrLocationNotFound is returned by Geocoder.Forward when the postal code
// does not resolve to any place. It is a normal outcome, not a collaborator
// failure.
var ErrLocationNotFound = errors.New("location not found")

// Coordinates is a WGS84 geographic position.
type Coordinates struct {
	Latitude  float64
	Longitude float64
}

// Address is a human-readable reverse-geocoding result. Used for display
// only, never for matching.
type Address struct {
	City        string
	PostalCode  string
	Country     string
	DisplayName string
}

// CropResult is the output of subject extraction from a photo.
type CropResult struct {
	// Found reports whether a foreground subject was detected. When false
	// the engine falls back to the full original image.
	Found bool
	// Cropped is the subject region of the original image.
	Cropped []byte
	// Thumbnail is a small preview of the cropped region.
	Thumbnail []byte
}

// Embedder produces vectors in a shared image/text embedding space.
type Embedder interface {
	EmbedImage(ctx context.Context, image []byte) ([]float32, error)
	EmbedText(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// Preprocessor extracts the photographed subject before embedding.
type Preprocessor interface {
	CropSubject(ctx context.Context, image []byte) (*CropResult, error)
}

// Detector gates photos on whether they depict a painted stone at all.
type Detector interface {
	// DetectStone returns whether the image is a painted stone and the
	// classifier margin backing the decision.
	DetectStone(ctx context.Context, image []byte) (bool, float64, error)
}

// Geocoder translates between postal codes/coordinates and addresses.
type Geocoder interface {
	Forward(ctx context.Context, postalCode string) (*Coordinates, error)
	Reverse(ctx context.Context, coords Coordinates) (*Address, error)
}

// Renderer draws route geometry into an image for display.
type Renderer interface {
	Render(ctx context.Context, route *RouteGeometry) ([]byte, error)
}
