// Package embed defines the Embedder contract the Ingestor and
// Retriever depend on, plus two implementations: a deterministic,
// dependency-free HashEmbedder for tests and offline use, and an
// OpenAI-backed Embedder for production. Ported from the teacher's
// internal/embed/types.go contract and internal/embed/static.go's
// hashing scheme.
package embed

import (
	"context"
	"math"
	"time"
)

const (
	MinBatchSize     = 1
	MaxBatchSize     = 256
	DefaultBatchSize = 32

	// DefaultWarmTimeout is the per-batch timeout once a remote model is
	// already loaded/warm.
	DefaultWarmTimeout = 30 * time.Second
	// DefaultColdTimeout covers the first call, which may incur model
	// load latency on the provider side.
	DefaultColdTimeout = 60 * time.Second

	DefaultMaxRetries = 3

	// HashDimensions is the embedding width produced by HashEmbedder —
	// chosen distinct from any real provider's width so a dimension
	// mismatch against a previously-built Vector Store fails loudly
	// instead of silently degrading quality.
	HashDimensions = 256
)

// Embedder generates vector embeddings for text (spec.md §4.5's
// embedding-producer role feeding the Vector Store).
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	ModelName() string
	Available(ctx context.Context) bool
	Close() error
}

func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}
	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
