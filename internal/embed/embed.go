// Package embed provides the Embedder abstraction (C4): a pure function
// producing a fixed-dimension dense vector from a text string, following the
// teacher's src/memory/embed/embed.go Embedder interface and AutoEmbedder
// dispatch pattern.
package embed

import (
	"context"
	"crypto/sha256"
	"errors"
	"math"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/elevend0g/vicw/internal/cache"
)

// ErrNotSupported is returned by providers that cannot embed under current configuration.
var ErrNotSupported = errors.New("embed: embedding not supported by this provider")

// Embedder produces a fixed-dimension vector for a piece of text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dim() int
}

// DummyEmbedder is a deterministic, hash-based fallback embedder used in tests and when no real
// provider is configured, mirroring the teacher's DummyEmbedder/DummyEmbedding.
type DummyEmbedder struct {
	dim int
}

// NewDummyEmbedder constructs a deterministic embedder of the given dimension.
func NewDummyEmbedder(dim int) *DummyEmbedder {
	if dim <= 0 {
		dim = 384
	}
	return &DummyEmbedder{dim: dim}
}

func (d *DummyEmbedder) Dim() int { return d.dim }

// Embed hashes the input text into a deterministic pseudo-random vector, normalized to unit
// length so cosine similarity behaves sensibly in tests.
func (d *DummyEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return DummyEmbedding(text, d.dim), nil
}

// DummyEmbedding derives a deterministic vector from the sha256 digest of text.
func DummyEmbedding(text string, dim int) []float32 {
	sum := sha256.Sum256([]byte(text))
	vec := make([]float32, dim)
	var norm float64
	for i := 0; i < dim; i++ {
		b := sum[i%len(sum)]
		v := float32(b)/255.0*2 - 1
		vec[i] = v
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	scale := float32(1.0 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}

// OpenAIEmbedder embeds text via an OpenAI-compatible embeddings endpoint, reusing the teacher's
// already-wired github.com/sashabaranov/go-openai client rather than a bespoke provider.
type OpenAIEmbedder struct {
	client *openai.Client
	model  openai.EmbeddingModel
	dim    int
}

// NewOpenAIEmbedder constructs an embedder backed by go-openai.
func NewOpenAIEmbedder(client *openai.Client, model openai.EmbeddingModel, dim int) *OpenAIEmbedder {
	return &OpenAIEmbedder{client: client, model: model, dim: dim}
}

func (o *OpenAIEmbedder) Dim() int { return o.dim }

func (o *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if o.client == nil {
		return nil, ErrNotSupported
	}
	resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: o.model,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("embed: empty embedding response")
	}
	return resp.Data[0].Embedding, nil
}

// CachedEmbedder memoizes Embed by sha256(text), fronting any Embedder with the adapted teacher
// LRU cache so repeated echo-guard and retrieval queries for identical text skip the provider.
type CachedEmbedder struct {
	inner Embedder
	cache *cache.LRUCache
}

// NewCachedEmbedder wraps inner with an LRU cache of the given capacity and TTL.
func NewCachedEmbedder(inner Embedder, capacity int, ttl time.Duration) *CachedEmbedder {
	return &CachedEmbedder{inner: inner, cache: cache.New(capacity, ttl)}
}

func (c *CachedEmbedder) Dim() int { return c.inner.Dim() }

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cache.HashKey(text)
	if v, ok := c.cache.Get(key); ok {
		if vec, ok := v.([]float32); ok {
			return vec, nil
		}
	}
	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, vec)
	return vec, nil
}
