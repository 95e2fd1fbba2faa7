// Redis-backed variants of the in-process caches in this package, used when
// REDIS_ADDR is configured. A shared cache lets cache hits be reused across
// replicas rather than being pinned to whichever process served the
// original request, since many concurrent requests can land on independent
// processes and a process-local map cache only ever helps one replica
// at a time.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/connexus-ai/ragbox-backend/internal/model"
)

// RedisEmbeddingCache caches query embedding vectors in Redis, keyed by
// normalized query hash, with the same shape as EmbeddingCache.
type RedisEmbeddingCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisEmbeddingCache creates a RedisEmbeddingCache. It pings the server
// once at construction time so a misconfigured REDIS_ADDR fails fast at
// boot rather than on the first request.
func NewRedisEmbeddingCache(ctx context.Context, addr string, ttl time.Duration) (*RedisEmbeddingCache, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("cache.NewRedisEmbeddingCache: ping: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultEmbeddingTTL()
	}
	return &RedisEmbeddingCache{client: client, ttl: ttl}, nil
}

// Get returns a cached embedding vector if present.
func (c *RedisEmbeddingCache) Get(ctx context.Context, hash string) ([]float32, bool) {
	val, err := c.client.Get(ctx, "emb:"+hash).Bytes()
	if err != nil {
		if err != redis.Nil {
			slog.Warn("[EMBED-CACHE] redis get error", "hash", hash, "error", err)
		}
		return nil, false
	}
	var vec []float32
	if err := json.Unmarshal(val, &vec); err != nil {
		slog.Warn("[EMBED-CACHE] redis unmarshal error", "hash", hash, "error", err)
		return nil, false
	}
	slog.Info("[EMBED-CACHE] redis hit", "hash", hash)
	return vec, true
}

// Set stores an embedding vector in Redis with the cache's TTL.
func (c *RedisEmbeddingCache) Set(ctx context.Context, hash string, vec []float32) {
	data, err := json.Marshal(vec)
	if err != nil {
		slog.Warn("[EMBED-CACHE] redis marshal error", "hash", hash, "error", err)
		return
	}
	if err := c.client.Set(ctx, "emb:"+hash, data, c.ttl).Err(); err != nil {
		slog.Warn("[EMBED-CACHE] redis set error", "hash", hash, "error", err)
		return
	}
	slog.Info("[EMBED-CACHE] redis set", "hash", hash, "vec_dim", len(vec))
}

// Close closes the underlying Redis client.
func (c *RedisEmbeddingCache) Close() error {
	return c.client.Close()
}

// RedisCandidateCache decorates a service.CandidateFetcher with a
// Redis-backed TTL cache, the distributed analogue of CandidateCache.
type RedisCandidateCache struct {
	client redis.UniversalClient
	ttl    time.Duration
	next   CandidateFetcher
}

// CandidateFetcher is declared locally (rather than imported from service)
// to avoid a cache -> service import cycle; it is structurally identical to
// service.CandidateFetcher.
type CandidateFetcher interface {
	FetchCandidates(ctx context.Context, queryVec []float32, n int) ([]model.ScoredChunk, error)
}

// NewRedisCandidateCache creates a RedisCandidateCache wrapping next.
func NewRedisCandidateCache(ctx context.Context, addr string, ttl time.Duration, next CandidateFetcher) (*RedisCandidateCache, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("cache.NewRedisCandidateCache: ping: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultCandidateTTL()
	}
	return &RedisCandidateCache{client: client, ttl: ttl, next: next}, nil
}

// FetchCandidates serves from the shared Redis cache on a key hit,
// otherwise delegates to next and caches the result.
func (c *RedisCandidateCache) FetchCandidates(ctx context.Context, queryVec []float32, n int) ([]model.ScoredChunk, error) {
	key := "cand:" + candidateKey(queryVec, n)

	if val, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var chunks []model.ScoredChunk
		if err := json.Unmarshal(val, &chunks); err == nil {
			slog.Info("[CANDIDATE-CACHE] redis hit", "key", key)
			return chunks, nil
		}
	}

	chunks, err := c.next.FetchCandidates(ctx, queryVec, n)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(chunks); err == nil {
		if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
			slog.Warn("[CANDIDATE-CACHE] redis set error", "key", key, "error", err)
		}
	}

	slog.Info("[CANDIDATE-CACHE] redis miss", "key", key, "n", n, "returned", len(chunks))
	return chunks, nil
}

// Close closes the underlying Redis client.
func (c *RedisCandidateCache) Close() error {
	return c.client.Close()
}
