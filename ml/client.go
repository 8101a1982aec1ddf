// Package ml provides the HTTP client for the CLIP + background-removal
// inference service. It implements the engine's Embedder, Preprocessor, and
// Detector ports.
package ml

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"github.com/hrygo/pebbletrail/engine"
	"github.com/hrygo/pebbletrail/internal/profile"
	"github.com/hrygo/pebbletrail/store"
	"github.com/hrygo/pebbletrail/store/cache"
)

// Config holds configuration for the inference client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	// DetectThreshold is the minimum stone-vs-not-stone classifier margin.
	DetectThreshold float64
}

// Client calls the inference service. One remote call covers cropping,
// detection, and embedding of an image; results are cached by content hash
// and deduplicated in flight so the engine's separate port calls do not
// multiply requests.
type Client struct {
	config Config
	client *http.Client

	group singleflight.Group
	cache *cache.Cache
}

// NewClient creates an inference client from the profile.
func NewClient(p *profile.Profile) *Client {
	timeout := time.Duration(p.MLTimeout) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		config: Config{
			BaseURL:         p.MLServiceURL,
			APIKey:          p.MLServiceAPIKey,
			Timeout:         timeout,
			DetectThreshold: p.StoneDetectThreshold,
		},
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		cache: cache.New(cache.Config{
			DefaultTTL:      2 * time.Minute,
			CleanupInterval: time.Minute,
			MaxItems:        64,
		}),
	}
}

// Close releases client resources.
func (c *Client) Close() {
	c.cache.Close()
}

// processResult mirrors the inference service response.
type processResult struct {
	IsStone    bool      `json:"is_stone"`
	Confidence float64   `json:"confidence"`
	Embedding  []float32 `json:"embedding"`
	Cropped    []byte    `json:"-"`
	Thumbnail  []byte    `json:"-"`
}

type processResponse struct {
	IsStone      bool      `json:"is_stone"`
	Confidence   float64   `json:"confidence"`
	Embedding    []float32 `json:"embedding"`
	CroppedImage string    `json:"cropped_image"`
	Thumbnail    string    `json:"thumbnail"`
}

type embedTextResponse struct {
	Embedding []float32 `json:"embedding"`
}

// process runs the full inference pipeline for an image, deduplicating
// concurrent calls and caching by content hash.
func (c *Client) process(ctx context.Context, image []byte) (*processResult, error) {
	sum := sha256.Sum256(image)
	key := hex.EncodeToString(sum[:])

	if cached, ok := c.cache.Get(key); ok {
		if result, ok := cached.(*processResult); ok {
			return result, nil
		}
	}

	value, err, _ := c.group.Do(key, func() (any, error) {
		result, err := c.doProcess(ctx, image)
		if err != nil {
			return nil, err
		}
		c.cache.Set(key, result)
		if len(result.Cropped) > 0 {
			// The detection and embedding in the response already describe
			// the cropped subject, so follow-up calls on the crop bytes
			// reuse this result instead of a second inference.
			cropSum := sha256.Sum256(result.Cropped)
			c.cache.Set(hex.EncodeToString(cropSum[:]), result)
		}
		return result, nil
	})
	if err != nil {
		return nil, err
	}
	return value.(*processResult), nil
}

func (c *Client) doProcess(ctx context.Context, image []byte) (*processResult, error) {
	payload, err := json.Marshal(map[string]string{
		"image_base64": base64.StdEncoding.EncodeToString(image),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode process request")
	}

	var resp processResponse
	if err := c.post(ctx, "/process", payload, &resp); err != nil {
		return nil, err
	}

	result := &processResult{
		IsStone:    resp.IsStone,
		Confidence: resp.Confidence,
		Embedding:  resp.Embedding,
	}
	if resp.CroppedImage != "" {
		if result.Cropped, err = base64.StdEncoding.DecodeString(resp.CroppedImage); err != nil {
			return nil, errors.Wrap(err, "failed to decode cropped image")
		}
	}
	if resp.Thumbnail != "" {
		if result.Thumbnail, err = base64.StdEncoding.DecodeString(resp.Thumbnail); err != nil {
			return nil, errors.Wrap(err, "failed to decode thumbnail")
		}
	}
	return result, nil
}

func (c *Client) post(ctx context.Context, path string, payload []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "failed to build request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "inference request failed: %s", path)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.Errorf("inference service returned %d for %s: %s", resp.StatusCode, path, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "failed to decode response from %s", path)
	}
	return nil
}

// EmbedImage returns the CLIP embedding of an image.
func (c *Client) EmbedImage(ctx context.Context, image []byte) ([]float32, error) {
	result, err := c.process(ctx, image)
	if err != nil {
		return nil, err
	}
	if len(result.Embedding) != store.EmbeddingDimensions {
		return nil, errors.Errorf("unexpected embedding dimensions: %d", len(result.Embedding))
	}
	return result.Embedding, nil
}

// EmbedText encodes a text query into the shared embedding space.
func (c *Client) EmbedText(ctx context.Context, text string) ([]float32, error) {
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode embed_text request")
	}

	var resp embedTextResponse
	if err := c.post(ctx, "/embed_text", payload, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embedding) != store.EmbeddingDimensions {
		return nil, errors.Errorf("unexpected embedding dimensions: %d", len(resp.Embedding))
	}
	return resp.Embedding, nil
}

// Dimensions returns the embedding vector dimension.
func (c *Client) Dimensions() int {
	return store.EmbeddingDimensions
}

// CropSubject extracts the photographed stone via background removal. Found
// is false when no foreground object was detected; the caller then falls
// back to the full image.
func (c *Client) CropSubject(ctx context.Context, image []byte) (*engine.CropResult, error) {
	result, err := c.process(ctx, image)
	if err != nil {
		return nil, err
	}
	return &engine.CropResult{
		Found:     len(result.Cropped) > 0,
		Cropped:   result.Cropped,
		Thumbnail: result.Thumbnail,
	}, nil
}

// DetectStone reports whether the image depicts a painted stone, with the
// classifier margin behind the decision.
func (c *Client) DetectStone(ctx context.Context, image []byte) (bool, float64, error) {
	result, err := c.process(ctx, image)
	if err != nil {
		return false, 0, err
	}
	isStone := result.IsStone && result.Confidence > c.config.DetectThreshold
	return isStone, result.Confidence, nil
}
