// Package scoring provides the text-scoring capability the classifiers
// depend on: semantic similarity against fixed exemplar sets, and sentiment.
//
// It is the pipeline's only non-deterministic external dependency, kept
// behind a two-operation interface so the real service can be swapped for
// the deterministic static scorer in tests and offline runs.
package scoring

import (
	"context"
	"fmt"
	"math"
	"sort"
)

// ExemplarSet is a fixed reference collection of example texts used for
// semantic-similarity classification. Aggregation controls how per-exemplar
// similarities collapse into one score: TopK == 0 takes the max, TopK > 0
// takes the mean of the K best (less sensitive to a single exemplar).
type ExemplarSet struct {
	Name  string
	Texts []string
	TopK  int
}

// Scorer is the injected text-scoring service contract.
type Scorer interface {
	// Similarity scores text against a registered exemplar set, in [0,1]
	// for well-behaved embeddings. Empty text scores 0.
	Similarity(ctx context.Context, text, set string) (float64, error)
	// SimilarityBatch scores many texts in one call so callers can amortize
	// external-service latency.
	SimilarityBatch(ctx context.Context, texts []string, set string) ([]float64, error)
	// Sentiment returns a polarity score in [-1,1]. Empty text scores 0.
	Sentiment(ctx context.Context, text string) (float64, error)
	SentimentBatch(ctx context.Context, texts []string) ([]float64, error)
	// Concurrency is the service's concurrent-request budget; the pipeline's
	// worker pool is bounded by it.
	Concurrency() int
}

// aggregate collapses per-exemplar similarities per the set's policy.
func aggregate(sims []float64, topK int) float64 {
	if len(sims) == 0 {
		return 0
	}
	if topK <= 0 || topK == 1 {
		max := sims[0]
		for _, s := range sims[1:] {
			if s > max {
				max = s
			}
		}
		return max
	}
	sorted := append([]float64(nil), sims...)
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))
	k := topK
	if k > len(sorted) {
		k = len(sorted)
	}
	var sum float64
	for _, s := range sorted[:k] {
		sum += s
	}
	return sum / float64(k)
}

// normalize scales a vector to unit length so similarity reduces to a dot
// product.
func normalize(v []float32) []float32 {
	var sq float64
	for _, x := range v {
		sq += float64(x) * float64(x)
	}
	if sq == 0 {
		return v
	}
	inv := 1 / math.Sqrt(sq)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) * inv)
	}
	return out
}

// dot computes the dot product of two equal-length vectors.
func dot(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vector length mismatch: %d vs %d", len(a), len(b))
	}
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum, nil
}
