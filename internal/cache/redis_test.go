package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/connexus-ai/ragbox-backend/internal/model"
)

func redisAddrOrSkip(t *testing.T) string {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set, skipping integration test")
	}
	return addr
}

func TestRedisEmbeddingCache_HitMiss(t *testing.T) {
	addr := redisAddrOrSkip(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := NewRedisEmbeddingCache(ctx, addr, time.Minute)
	if err != nil {
		t.Fatalf("NewRedisEmbeddingCache: %v", err)
	}
	defer c.Close()

	hash := EmbeddingQueryHash("redis cache test query")

	if _, ok := c.Get(ctx, hash); ok {
		t.Fatal("expected miss before set")
	}

	vec := []float32{0.1, 0.2, 0.3}
	c.Set(ctx, hash, vec)

	got, ok := c.Get(ctx, hash)
	if !ok {
		t.Fatal("expected hit after set")
	}
	if len(got) != 3 || got[0] != 0.1 || got[2] != 0.3 {
		t.Fatalf("unexpected vector: %v", got)
	}
}

type stubFetcher struct {
	calls int
	out   []model.ScoredChunk
}

func (s *stubFetcher) FetchCandidates(ctx context.Context, queryVec []float32, n int) ([]model.ScoredChunk, error) {
	s.calls++
	return s.out, nil
}

func TestRedisCandidateCache_DelegatesAndCaches(t *testing.T) {
	addr := redisAddrOrSkip(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	fetcher := &stubFetcher{out: []model.ScoredChunk{{Chunk: model.Chunk{ID: "c1"}, Similarity: 0.9}}}

	c, err := NewRedisCandidateCache(ctx, addr, time.Minute, fetcher)
	if err != nil {
		t.Fatalf("NewRedisCandidateCache: %v", err)
	}
	defer c.Close()

	queryVec := []float32{0.1, 0.2}

	first, err := c.FetchCandidates(ctx, queryVec, 5)
	if err != nil {
		t.Fatalf("FetchCandidates: %v", err)
	}
	if len(first) != 1 || first[0].Chunk.ID != "c1" {
		t.Fatalf("unexpected result: %+v", first)
	}
	if fetcher.calls != 1 {
		t.Fatalf("expected 1 delegate call, got %d", fetcher.calls)
	}

	second, err := c.FetchCandidates(ctx, queryVec, 5)
	if err != nil {
		t.Fatalf("FetchCandidates (cached): %v", err)
	}
	if len(second) != 1 || second[0].Chunk.ID != "c1" {
		t.Fatalf("unexpected cached result: %+v", second)
	}
	if fetcher.calls != 1 {
		t.Fatalf("expected cache hit to avoid a second delegate call, got %d calls", fetcher.calls)
	}
}
