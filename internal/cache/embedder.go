package cache

import "context"

// Embedder is the subset of the embedder service wrapped by CachedEmbedder.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// embeddingBackend is satisfied by both the in-process EmbeddingCache (via
// memEmbeddingBackend) and RedisEmbeddingCache, letting CachedEmbedder stay
// agnostic to which one backs it.
type embeddingBackend interface {
	Get(ctx context.Context, hash string) ([]float32, bool)
	Set(ctx context.Context, hash string, vec []float32)
}

type memEmbeddingBackend struct{ c *EmbeddingCache }

func (m memEmbeddingBackend) Get(_ context.Context, hash string) ([]float32, bool) {
	return m.c.Get(hash)
}

func (m memEmbeddingBackend) Set(_ context.Context, hash string, vec []float32) {
	m.c.Set(hash, vec)
}

// CachedEmbedder decorates an Embedder with a query-embedding cache: a
// repeated or near-simultaneous identical query skips the round trip to the
// embedding provider entirely.
type CachedEmbedder struct {
	next    Embedder
	backend embeddingBackend
}

// NewCachedEmbedder wraps next with an in-process EmbeddingCache.
func NewCachedEmbedder(next Embedder, mem *EmbeddingCache) *CachedEmbedder {
	return &CachedEmbedder{next: next, backend: memEmbeddingBackend{mem}}
}

// NewCachedEmbedderRedis wraps next with a shared RedisEmbeddingCache.
func NewCachedEmbedderRedis(next Embedder, r *RedisEmbeddingCache) *CachedEmbedder {
	return &CachedEmbedder{next: next, backend: r}
}

// Embed serves from cache on a hit; otherwise calls next and caches the
// result. Embeddings are content-addressed by normalized query text, so a
// cache hit is exact, not approximate.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	hash := EmbeddingQueryHash(text)
	if vec, ok := c.backend.Get(ctx, hash); ok {
		return vec, nil
	}

	vec, err := c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.backend.Set(ctx, hash, vec)
	return vec, nil
}
