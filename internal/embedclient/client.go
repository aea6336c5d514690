// Package embedclient is the embedding client: a cached, batching
// front door onto whatever embedding provider backs it, returning one
// normalized 1024-dim vector per input text.
package embedclient

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"math"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/toolscope/discovery-engine/internal/apperr"
	"github.com/toolscope/discovery-engine/internal/model"
)

// TaskType distinguishes the asymmetric embedding mode, mirroring the
// RETRIEVAL_DOCUMENT vs RETRIEVAL_QUERY distinction Vertex AI's
// text-embedding models expect.
type TaskType string

const (
	TaskRetrievalDocument TaskType = "RETRIEVAL_DOCUMENT"
	TaskRetrievalQuery    TaskType = "RETRIEVAL_QUERY"
)

// Provider is the transport this client batches calls through. A Vertex AI
// REST adapter is provided in vertex.go; tests supply a fake.
type Provider interface {
	EmbedTexts(ctx context.Context, texts []string, taskType TaskType) ([][]float32, error)
}

// Client batches embedding requests, validates dimensionality, L2-normalizes
// results, and caches per-text vectors behind a bounded LRU so repeated or
// overlapping queries never re-hit the provider.
type Client struct {
	provider  Provider
	cache     *lru.Cache[string, []float32]
	batchSize int
}

// Option configures a Client at construction time.
type Option func(*Client)

// WithBatchSize overrides the default per-call batch size of 250 texts,
// the Vertex AI embedding batch cap.
func WithBatchSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

// New builds a Client with a bounded LRU cache of cacheSize entries.
func New(provider Provider, cacheSize int, opts ...Option) (*Client, error) {
	if cacheSize <= 0 {
		cacheSize = 4096
	}
	cache, err := lru.New[string, []float32](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("embedclient.New: %w", err)
	}
	c := &Client{provider: provider, cache: cache, batchSize: 250}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// EmbedQueries embeds one or more query strings with RETRIEVAL_QUERY task
// type, serving cache hits directly and batching the remainder through the
// provider.
func (c *Client) EmbedQueries(ctx context.Context, texts []string) ([][]float32, error) {
	return c.embed(ctx, texts, TaskRetrievalQuery)
}

// EmbedDocuments embeds one or more record texts with RETRIEVAL_DOCUMENT
// task type, used by the seeder.
func (c *Client) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return c.embed(ctx, texts, TaskRetrievalDocument)
}

func (c *Client) embed(ctx context.Context, texts []string, taskType TaskType) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, apperr.Wrap(apperr.KindInputInvalid, "embedclient.embed", fmt.Errorf("no texts provided"))
	}

	results := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string

	for i, text := range texts {
		key := cacheKey(taskType, text)
		if vec, ok := c.cache.Get(key); ok {
			results[i] = vec
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}

	slog.Info("[CACHE] embedclient lookup", "requested", len(texts), "hits", len(texts)-len(missTexts), "misses", len(missTexts))

	for start := 0; start < len(missTexts); start += c.batchSize {
		end := start + c.batchSize
		if end > len(missTexts) {
			end = len(missTexts)
		}
		batch := missTexts[start:end]

		vectors, err := c.provider.EmbedTexts(ctx, batch, taskType)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindEmbeddingUnavailable, "embedclient.embed", fmt.Errorf("batch %d-%d: %w", start, end, err))
		}
		if len(vectors) != len(batch) {
			return nil, apperr.Wrap(apperr.KindEmbeddingUnavailable, "embedclient.embed", fmt.Errorf("got %d vectors for %d texts", len(vectors), len(batch)))
		}

		for j, vec := range vectors {
			if len(vec) != model.VectorDimension {
				return nil, apperr.Wrap(apperr.KindEmbeddingDimensionMismatch, "embedclient.embed",
					fmt.Errorf("vector has %d dimensions, want %d", len(vec), model.VectorDimension))
			}
			normalized := l2Normalize(vec)
			globalIdx := missIdx[start+j]
			results[globalIdx] = normalized
			c.cache.Add(cacheKey(taskType, batch[j]), normalized)
		}
	}

	return results, nil
}

func cacheKey(taskType TaskType, text string) string {
	normalized := strings.ToLower(strings.TrimSpace(text))
	h := sha256.Sum256([]byte(string(taskType) + "|" + normalized))
	return fmt.Sprintf("%x", h[:16])
}

func l2Normalize(vec []float32) []float32 {
	var sumSq float64
	for _, v := range vec {
		sumSq += float64(v) * float64(v)
	}
	norm := math.Sqrt(sumSq)
	if norm == 0 {
		return vec
	}
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	return out
}
