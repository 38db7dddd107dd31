package embed

import (
	"context"
	"fmt"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIEmbedder wraps an OpenAI-compatible embeddings endpoint
// (sashabaranov/go-openai), retrying transient failures with a bounded
// backoff, mirroring the teacher's warm/cold timeout split for remote
// model calls.
type OpenAIEmbedder struct {
	mu         sync.RWMutex
	client     *openai.Client
	model      string
	dimensions int
	maxRetries int
	closed     bool
	firstCall  bool
}

// NewOpenAIEmbedder builds an embedder against model, which must report
// dimensions-wide vectors (e.g. "text-embedding-3-small" -> 1536).
// baseURL may be empty to use the default OpenAI API, or point at a
// local/self-hosted OpenAI-compatible server.
func NewOpenAIEmbedder(apiKey, baseURL, model string, dimensions int) *OpenAIEmbedder {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIEmbedder{
		client:     openai.NewClientWithConfig(cfg),
		model:      model,
		dimensions: dimensions,
		maxRetries: DefaultMaxRetries,
		firstCall:  true,
	}
}

func (e *OpenAIEmbedder) timeout() time.Duration {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.firstCall {
		return DefaultColdTimeout
	}
	return DefaultWarmTimeout
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, fmt.Errorf("embedder is closed")
	}
	e.mu.RUnlock()

	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if len(texts) > MaxBatchSize {
		return nil, fmt.Errorf("batch of %d exceeds max batch size %d", len(texts), MaxBatchSize)
	}

	var lastErr error
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff(attempt)):
			}
		}

		cctx, cancel := context.WithTimeout(ctx, e.timeout())
		resp, err := e.client.CreateEmbeddings(cctx, openai.EmbeddingRequestStrings{
			Input: texts,
			Model: openai.EmbeddingModel(e.model),
		})
		cancel()
		if err == nil {
			e.mu.Lock()
			e.firstCall = false
			e.mu.Unlock()

			vectors := make([][]float32, len(resp.Data))
			for _, d := range resp.Data {
				vectors[d.Index] = d.Embedding
			}
			return vectors, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("embed batch after %d attempts: %w", e.maxRetries+1, lastErr)
}

func backoff(attempt int) time.Duration {
	d := time.Duration(attempt) * 500 * time.Millisecond
	if d > 5*time.Second {
		return 5 * time.Second
	}
	return d
}

func (e *OpenAIEmbedder) Dimensions() int   { return e.dimensions }
func (e *OpenAIEmbedder) ModelName() string { return e.model }

func (e *OpenAIEmbedder) Available(ctx context.Context) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return false
	}
	_, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: []string{"ping"},
		Model: openai.EmbeddingModel(e.model),
	})
	return err == nil
}

func (e *OpenAIEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

var _ Embedder = (*OpenAIEmbedder)(nil)
