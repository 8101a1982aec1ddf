package ml

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/pebbletrail/internal/profile"
	"github.com/hrygo/pebbletrail/store"
)

func testEmbedding() []float32 {
	v := make([]float32, store.EmbeddingDimensions)
	v[0] = 1
	return v
}

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := NewClient(&profile.Profile{
		MLServiceURL:         srv.URL,
		MLServiceAPIKey:      "secret",
		MLTimeout:            5,
		StoneDetectThreshold: 0.05,
	})
	t.Cleanup(client.Close)
	return client, srv
}

// TestClient_Process verifies the full pipeline response covers all three
// ports from one call.
func TestClient_Process(t *testing.T) {
	var calls atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/process", r.URL.Path)
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		image, err := base64.StdEncoding.DecodeString(req["image_base64"])
		require.NoError(t, err)
		assert.Equal(t, []byte("raw-photo"), image)

		calls.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"is_stone":      true,
			"confidence":    0.93,
			"embedding":     testEmbedding(),
			"cropped_image": base64.StdEncoding.EncodeToString([]byte("cropped")),
			"thumbnail":     base64.StdEncoding.EncodeToString([]byte("tiny")),
		})
	})
	client, _ := newTestClient(t, handler)
	ctx := context.Background()

	crop, err := client.CropSubject(ctx, []byte("raw-photo"))
	require.NoError(t, err)
	assert.True(t, crop.Found)
	assert.Equal(t, []byte("cropped"), crop.Cropped)
	assert.Equal(t, []byte("tiny"), crop.Thumbnail)

	isStone, confidence, err := client.DetectStone(ctx, []byte("raw-photo"))
	require.NoError(t, err)
	assert.True(t, isStone)
	assert.InDelta(t, 0.93, confidence, 1e-9)

	embedding, err := client.EmbedImage(ctx, []byte("raw-photo"))
	require.NoError(t, err)
	assert.Len(t, embedding, store.EmbeddingDimensions)

	// All three port calls share one remote inference.
	assert.Equal(t, int32(1), calls.Load())
}

// TestClient_CroppedResultReused verifies the photo pipeline's call sequence,
// cropping the original and then classifying and embedding the crop, costs a
// single remote inference.
func TestClient_CroppedResultReused(t *testing.T) {
	var calls atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"is_stone":      true,
			"confidence":    0.88,
			"embedding":     testEmbedding(),
			"cropped_image": base64.StdEncoding.EncodeToString([]byte("just-the-stone")),
			"thumbnail":     base64.StdEncoding.EncodeToString([]byte("tiny")),
		})
	})
	client, _ := newTestClient(t, handler)
	ctx := context.Background()

	crop, err := client.CropSubject(ctx, []byte("raw-photo"))
	require.NoError(t, err)
	require.True(t, crop.Found)

	isStone, _, err := client.DetectStone(ctx, crop.Cropped)
	require.NoError(t, err)
	assert.True(t, isStone)

	embedding, err := client.EmbedImage(ctx, crop.Cropped)
	require.NoError(t, err)
	assert.Len(t, embedding, store.EmbeddingDimensions)

	assert.Equal(t, int32(1), calls.Load())
}

// TestClient_NoSubject verifies an empty cropped image maps to Found=false.
func TestClient_NoSubject(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"is_stone":   false,
			"confidence": 0.01,
			"embedding":  testEmbedding(),
		})
	})
	client, _ := newTestClient(t, handler)

	crop, err := client.CropSubject(context.Background(), []byte("blurry"))
	require.NoError(t, err)
	assert.False(t, crop.Found)

	isStone, _, err := client.DetectStone(context.Background(), []byte("blurry"))
	require.NoError(t, err)
	assert.False(t, isStone)
}

// TestClient_DetectThreshold verifies a positive label below the margin is
// still rejected.
func TestClient_DetectThreshold(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"is_stone":   true,
			"confidence": 0.01,
			"embedding":  testEmbedding(),
		})
	})
	client, _ := newTestClient(t, handler)

	isStone, confidence, err := client.DetectStone(context.Background(), []byte("faint"))
	require.NoError(t, err)
	assert.False(t, isStone)
	assert.InDelta(t, 0.01, confidence, 1e-9)
}

// TestClient_EmbedText verifies the text endpoint and dimension check.
func TestClient_EmbedText(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/embed_text", r.URL.Path)
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "ladybug", req["text"])

		_ = json.NewEncoder(w).Encode(map[string]any{"embedding": testEmbedding()})
	})
	client, _ := newTestClient(t, handler)

	embedding, err := client.EmbedText(context.Background(), "ladybug")
	require.NoError(t, err)
	assert.Len(t, embedding, store.EmbeddingDimensions)
}

// TestClient_BadDimensions rejects embeddings of the wrong size.
func TestClient_BadDimensions(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"embedding": []float32{1, 2, 3}})
	})
	client, _ := newTestClient(t, handler)

	_, err := client.EmbedText(context.Background(), "query")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimensions")
}

// TestClient_ServerError surfaces non-200 responses with the body excerpt.
func TestClient_ServerError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	})
	client, _ := newTestClient(t, handler)

	_, err := client.EmbedImage(context.Background(), []byte("photo"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

// TestClient_ErrorNotCached verifies a failed inference is retried on the
// next call instead of being served from cache.
func TestClient_ErrorNotCached(t *testing.T) {
	var calls atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "transient", http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"is_stone":   true,
			"confidence": 0.9,
			"embedding":  testEmbedding(),
		})
	})
	client, _ := newTestClient(t, handler)
	ctx := context.Background()

	_, err := client.EmbedImage(ctx, []byte("photo"))
	require.Error(t, err)

	embedding, err := client.EmbedImage(ctx, []byte("photo"))
	require.NoError(t, err)
	assert.Len(t, embedding, store.EmbeddingDimensions)
	assert.Equal(t, int32(2), calls.Load())
}
