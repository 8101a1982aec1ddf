package engine

import (
	"context"
	"time"

	"github.com/hrygo/pebbletrail/internal/metrics"
	"github.com/hrygo/pebbletrail/store"
)

// Match is one similarity search hit.
type Match struct {
	Stone      *store.Stone
	Similarity float32
}

// Resolver decides whether a query embedding depicts a known stone. It is
// read-only; all state changes happen at commit time in the engine.
type Resolver struct {
	store *store.Store

	imageThreshold float32
	textThreshold  float32
	textLimit      int
}

// NewResolver creates a resolver with the given thresholds.
func NewResolver(st *store.Store, imageThreshold, textThreshold float64, textLimit int) *Resolver {
	if textLimit <= 0 {
		textLimit = 5
	}
	return &Resolver{
		store:          st,
		imageThreshold: float32(imageThreshold),
		textThreshold:  float32(textThreshold),
		textLimit:      textLimit,
	}
}

// Resolve returns the best match at or above the image threshold, or nil
// when no stored stone is similar enough. Exact ties are broken by the
// lowest stone ID, which the store guarantees through its ordering contract.
func (r *Resolver) Resolve(ctx context.Context, embedding []float32) (*Match, error) {
	start := time.Now()
	defer func() {
		metrics.ResolveDuration.Observe(time.Since(start).Seconds())
	}()

	results, err := r.store.VectorSearchStones(ctx, &store.VectorSearchOptions{
		Vector:    embedding,
		Limit:     1,
		Threshold: r.imageThreshold,
	})
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	return &Match{Stone: results[0].Stone, Similarity: results[0].Score}, nil
}

// ResolveText returns up to the configured limit of matches at or above the
// text threshold, ordered by similarity descending with stone ID as the
// tie-break. The threshold is lower than for image matching since
// cross-modal similarity is noisier.
func (r *Resolver) ResolveText(ctx context.Context, embedding []float32) ([]*Match, error) {
	results, err := r.store.VectorSearchStones(ctx, &store.VectorSearchOptions{
		Vector:    embedding,
		Limit:     r.textLimit,
		Threshold: r.textThreshold,
	})
	if err != nil {
		return nil, err
	}

	matches := make([]*Match, 0, len(results))
	for _, result := range results {
		matches = append(matches, &Match{Stone: result.Stone, Similarity: result.Score})
	}
	return matches, nil
}
