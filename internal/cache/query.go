// Package cache provides in-memory caching for the RAG pipeline.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/connexus-ai/ragbox-backend/internal/model"
	"github.com/connexus-ai/ragbox-backend/internal/service"
)

// CandidateCache decorates a service.CandidateFetcher with an in-memory,
// TTL-expiring cache keyed by (queryVec, n), so repeated or near-simultaneous
// identical queries (e.g. a burst of retries) skip the round trip to the
// chunks table. Thread-safe via sync.RWMutex.
type CandidateCache struct {
	mu      sync.RWMutex
	entries map[string]*candidateEntry
	ttl     time.Duration
	stopCh  chan struct{}
	next    service.CandidateFetcher
}

type candidateEntry struct {
	chunks    []model.ScoredChunk
	createdAt time.Time
	expiresAt time.Time
}

var _ service.CandidateFetcher = (*CandidateCache)(nil)

// DefaultCandidateTTL is 5 minutes unless overridden by CANDIDATE_CACHE_TTL env var.
func DefaultCandidateTTL() time.Duration {
	if v := os.Getenv("CANDIDATE_CACHE_TTL"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return 5 * time.Minute
}

// NewCandidateCache wraps next with a TTL cache and starts background cleanup.
func NewCandidateCache(next service.CandidateFetcher, ttl time.Duration) *CandidateCache {
	c := &CandidateCache{
		entries: make(map[string]*candidateEntry),
		ttl:     ttl,
		stopCh:  make(chan struct{}),
		next:    next,
	}
	go c.cleanup()
	return c
}

// FetchCandidates serves from cache on a key hit, otherwise delegates to the
// wrapped fetcher and caches the result.
func (c *CandidateCache) FetchCandidates(ctx context.Context, queryVec []float32, n int) ([]model.ScoredChunk, error) {
	key := candidateKey(queryVec, n)

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if ok {
		if time.Now().Before(entry.expiresAt) {
			slog.Info("[CANDIDATE-CACHE] hit", "key", key, "age_ms", time.Since(entry.createdAt).Milliseconds())
			return entry.chunks, nil
		}
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
	}

	chunks, err := c.next.FetchCandidates(ctx, queryVec, n)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	c.mu.Lock()
	c.entries[key] = &candidateEntry{chunks: chunks, createdAt: now, expiresAt: now.Add(c.ttl)}
	c.mu.Unlock()

	slog.Info("[CANDIDATE-CACHE] miss", "key", key, "n", n, "returned", len(chunks))
	return chunks, nil
}

// Len returns the number of entries in the cache.
func (c *CandidateCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stop halts the background cleanup goroutine.
func (c *CandidateCache) Stop() {
	close(c.stopCh)
}

func (c *CandidateCache) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			now := time.Now()
			c.mu.Lock()
			before := len(c.entries)
			for key, entry := range c.entries {
				if now.After(entry.expiresAt) {
					delete(c.entries, key)
				}
			}
			after := len(c.entries)
			c.mu.Unlock()
			if before != after {
				slog.Info("[CANDIDATE-CACHE] cleanup", "removed", before-after, "remaining", after)
			}
		case <-c.stopCh:
			return
		}
	}
}

// candidateKey hashes the query vector's bytes plus n into a short, stable key.
func candidateKey(queryVec []float32, n int) string {
	h := sha256.New()
	buf := make([]byte, 4)
	for _, f := range queryVec {
		binary.LittleEndian.PutUint32(buf, math.Float32bits(f))
		h.Write(buf)
	}
	binary.LittleEndian.PutUint32(buf, uint32(n))
	h.Write(buf)
	return fmt.Sprintf("cand:%x", h.Sum(nil)[:16])
}
