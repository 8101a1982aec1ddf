package engine

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/pebbletrail/internal/profile"
	"github.com/hrygo/pebbletrail/store"
)

// fakeDriver is an in-memory store.Driver with real cosine similarity, so
// threshold and ordering behavior is exercised end to end.
type fakeDriver struct {
	mu             sync.Mutex
	stones         map[int32]*store.Stone
	sightings      []*store.StoneSighting
	prefs          map[int64]*store.UserPreference
	nextStoneID    int32
	nextSightingID int32

	failNextCreate bool
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		stones:      make(map[int32]*store.Stone),
		prefs:       make(map[int64]*store.UserPreference),
		nextStoneID: 1, nextSightingID: 1,
	}
}

func (d *fakeDriver) Close() error                    { return nil }
func (d *fakeDriver) Migrate(_ context.Context) error { return nil }
func (d *fakeDriver) Ping(_ context.Context) error    { return nil }

func (d *fakeDriver) CreateStone(_ context.Context, create *store.CreateStone, firstSighting *store.CreateStoneSighting) (*store.Stone, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failNextCreate {
		d.failNextCreate = false
		return nil, errors.New("injected failure")
	}
	stone := &store.Stone{
		ID:                 d.nextStoneID,
		Name:               create.Name,
		Description:        create.Description,
		PhotoFileID:        create.PhotoFileID,
		Embedding:          create.Embedding,
		RegisteredByUserID: create.RegisteredByUserID,
		CreatedTs:          time.Now().Unix(),
	}
	d.nextStoneID++
	d.stones[stone.ID] = stone
	if firstSighting != nil {
		s := *firstSighting
		s.StoneID = stone.ID
		d.appendSightingLocked(&s)
	}
	return stone, nil
}

func (d *fakeDriver) ListStones(_ context.Context, find *store.FindStone) ([]*store.Stone, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*store.Stone
	for _, stone := range d.stones {
		if find.ID != nil && stone.ID != *find.ID {
			continue
		}
		if find.RegisteredByUserID != nil && stone.RegisteredByUserID != *find.RegisteredByUserID {
			continue
		}
		out = append(out, stone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (d *fakeDriver) DeleteStone(_ context.Context, id int32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.stones, id)
	kept := d.sightings[:0]
	for _, s := range d.sightings {
		if s.StoneID != id {
			kept = append(kept, s)
		}
	}
	d.sightings = kept
	return nil
}

func (d *fakeDriver) VectorSearchStones(_ context.Context, opts *store.VectorSearchOptions) ([]*store.StoneWithScore, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*store.StoneWithScore
	for _, stone := range d.stones {
		score := cosine(opts.Vector, stone.Embedding)
		if score >= opts.Threshold {
			out = append(out, &store.StoneWithScore{Stone: stone, Score: score})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Stone.ID < out[j].Stone.ID
	})
	if len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (d *fakeDriver) CreateStoneSighting(_ context.Context, create *store.CreateStoneSighting) (*store.StoneSighting, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failNextCreate {
		d.failNextCreate = false
		return nil, errors.New("injected failure")
	}
	s := *create
	return d.appendSightingLocked(&s), nil
}

func (d *fakeDriver) appendSightingLocked(create *store.CreateStoneSighting) *store.StoneSighting {
	sighting := &store.StoneSighting{
		ID:             d.nextSightingID,
		StoneID:        create.StoneID,
		ReporterUserID: create.ReporterUserID,
		PhotoFileID:    create.PhotoFileID,
		Latitude:       create.Latitude,
		Longitude:      create.Longitude,
		PostalCode:     create.PostalCode,
		CreatedTs:      time.Now().Unix(),
	}
	d.nextSightingID++
	d.sightings = append(d.sightings, sighting)
	return sighting
}

func (d *fakeDriver) ListStoneSightings(_ context.Context, find *store.FindStoneSighting) ([]*store.StoneSighting, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*store.StoneSighting
	for _, s := range d.sightings {
		if find.StoneID != nil && s.StoneID != *find.StoneID {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (d *fakeDriver) CountStoneSightings(_ context.Context, stoneID int32) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	count := 0
	for _, s := range d.sightings {
		if s.StoneID == stoneID {
			count++
		}
	}
	return count, nil
}

func (d *fakeDriver) GetUserPreference(_ context.Context, userID int64) (*store.UserPreference, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.prefs[userID], nil
}

func (d *fakeDriver) UpsertUserPreference(_ context.Context, upsert *store.UpsertUserPreference) (*store.UserPreference, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	pref := &store.UserPreference{UserID: upsert.UserID, Language: upsert.Language}
	d.prefs[upsert.UserID] = pref
	return pref, nil
}

func cosine(a, b []float32) float32 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// basisVec returns a unit vector along one embedding axis.
func basisVec(axis int) []float32 {
	v := make([]float32, store.EmbeddingDimensions)
	v[axis] = 1
	return v
}

// similarVec returns a unit vector whose cosine similarity to basisVec(axis)
// is sim. The orthogonal component lives on the last axis.
func similarVec(axis int, sim float64) []float32 {
	v := make([]float32, store.EmbeddingDimensions)
	v[axis] = float32(sim)
	v[store.EmbeddingDimensions-1] = float32(math.Sqrt(1 - sim*sim))
	return v
}

// fakeEmbedder maps image/text content to preset vectors.
type fakeEmbedder struct {
	images map[string][]float32
	texts  map[string][]float32
	err    error
}

func (f *fakeEmbedder) EmbedImage(_ context.Context, image []byte) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	if v, ok := f.images[string(image)]; ok {
		return v, nil
	}
	return basisVec(0), nil
}

func (f *fakeEmbedder) EmbedText(_ context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	if v, ok := f.texts[text]; ok {
		return v, nil
	}
	return basisVec(0), nil
}

func (f *fakeEmbedder) Dimensions() int { return store.EmbeddingDimensions }

type fakePreprocessor struct {
	found bool
	err   error
}

func (f *fakePreprocessor) CropSubject(_ context.Context, image []byte) (*CropResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	if !f.found {
		return &CropResult{Found: false}, nil
	}
	return &CropResult{Found: true, Cropped: image, Thumbnail: []byte("thumb")}, nil
}

type fakeDetector struct {
	isStone bool
	err     error
}

func (f *fakeDetector) DetectStone(_ context.Context, _ []byte) (bool, float64, error) {
	if f.err != nil {
		return false, 0, f.err
	}
	return f.isStone, 0.9, nil
}

type fakeGeocoder struct {
	forward map[string]Coordinates
	addr    *Address
	err     error
}

func (f *fakeGeocoder) Forward(_ context.Context, postalCode string) (*Coordinates, error) {
	if f.err != nil {
		return nil, f.err
	}
	if coords, ok := f.forward[postalCode]; ok {
		return &coords, nil
	}
	return nil, ErrLocationNotFound
}

func (f *fakeGeocoder) Reverse(_ context.Context, _ Coordinates) (*Address, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.addr, nil
}

type testHarness struct {
	engine   *Engine
	driver   *fakeDriver
	embedder *fakeEmbedder
	detector *fakeDetector
	geocoder *fakeGeocoder
}

func newTestHarness() *testHarness {
	driver := newFakeDriver()
	p := &profile.Profile{
		ImageMatchThreshold: 0.82,
		TextMatchThreshold:  0.25,
		TextSearchLimit:     5,
		SessionTTL:          time.Minute,
	}
	embedder := &fakeEmbedder{images: map[string][]float32{}, texts: map[string][]float32{}}
	detector := &fakeDetector{isStone: true}
	geocoder := &fakeGeocoder{forward: map[string]Coordinates{}}
	eng := New(p, Options{
		Store:        store.New(driver, p),
		Embedder:     embedder,
		Preprocessor: &fakePreprocessor{found: true},
		Detector:     detector,
		Geocoder:     geocoder,
	})
	return &testHarness{engine: eng, driver: driver, embedder: embedder, detector: detector, geocoder: geocoder}
}

func (h *testHarness) state(userID int64) State {
	var st State
	h.engine.sessions.With(userID, func(sess *Session) { st = sess.State })
	return st
}
