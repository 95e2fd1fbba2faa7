package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/connexus-ai/ragbox-backend/internal/model"
)

// mockCandidateFetcher implements CandidateFetcher for testing.
type mockCandidateFetcher struct {
	candidates []model.ScoredChunk
	err        error
	capturedN  int
}

func (m *mockCandidateFetcher) FetchCandidates(ctx context.Context, queryVec []float32, n int) ([]model.ScoredChunk, error) {
	m.capturedN = n
	if m.err != nil {
		return nil, m.err
	}
	return m.candidates, nil
}

func chunkWithWeight(id string, weight float64) model.Chunk {
	return model.Chunk{ID: id, Repo: "r", Path: "p", AccuracyWeight: weight}
}

func TestRetrieve_EmptyQueryVec(t *testing.T) {
	svc := NewRetrieverService(&mockCandidateFetcher{}, 0.2)

	_, err := svc.Retrieve(context.Background(), nil, 5, nil)
	if err == nil {
		t.Fatal("expected error for empty query vector")
	}
}

func TestRetrieve_NonPositiveK(t *testing.T) {
	svc := NewRetrieverService(&mockCandidateFetcher{}, 0.2)

	_, err := svc.Retrieve(context.Background(), []float32{1, 0}, 0, nil)
	if err == nil {
		t.Fatal("expected error for k <= 0")
	}
}

func TestRetrieve_FetchError(t *testing.T) {
	fetcher := &mockCandidateFetcher{err: fmt.Errorf("db down")}
	svc := NewRetrieverService(fetcher, 0.2)

	_, err := svc.Retrieve(context.Background(), []float32{1, 0}, 5, nil)
	if err == nil {
		t.Fatal("expected error when fetch fails")
	}
}

func TestRetrieve_CandidateCountFormula(t *testing.T) {
	tests := []struct {
		k      int
		wantN  int
	}{
		{1, 11},   // max(3, 11) = 11
		{5, 15},   // max(15, 15) = 15
		{10, 30},  // max(30, 20) = 30
		{100, 200}, // max(300, 110) capped at 200
	}
	for _, tt := range tests {
		fetcher := &mockCandidateFetcher{}
		svc := NewRetrieverService(fetcher, 0.2)
		svc.Retrieve(context.Background(), []float32{1, 0}, tt.k, nil)
		if fetcher.capturedN != tt.wantN {
			t.Errorf("k=%d: candidate count = %d, want %d", tt.k, fetcher.capturedN, tt.wantN)
		}
	}
}

func TestRetrieve_EffectiveScoreIsWeighted(t *testing.T) {
	fetcher := &mockCandidateFetcher{
		candidates: []model.ScoredChunk{
			{Chunk: chunkWithWeight("low-weight", 0.5), Similarity: 0.9},
			{Chunk: chunkWithWeight("high-weight", 2.0), Similarity: 0.5},
		},
	}
	svc := NewRetrieverService(fetcher, 0.2)

	ranked, err := svc.Retrieve(context.Background(), []float32{1, 0}, 2, nil)
	if err != nil {
		t.Fatalf("Retrieve() error: %v", err)
	}
	if len(ranked) != 2 {
		t.Fatalf("expected 2 ranked chunks, got %d", len(ranked))
	}
	// high-weight: 0.5*2.0=1.0 beats low-weight: 0.9*0.5=0.45
	if ranked[0].Chunk.ID != "high-weight" {
		t.Errorf("ranked[0] = %s, want high-weight", ranked[0].Chunk.ID)
	}
}

func TestRetrieve_WorkflowBoostAppliedMultiplicatively(t *testing.T) {
	fetcher := &mockCandidateFetcher{
		candidates: []model.ScoredChunk{
			{Chunk: chunkWithWeight("boosted", 1.0), Similarity: 0.5},
			{Chunk: chunkWithWeight("unboosted", 1.0), Similarity: 0.55},
		},
	}
	svc := NewRetrieverService(fetcher, 0.2)

	hits := []model.ScoredMemory{
		{Memory: model.WorkflowMemory{UsefulChunkIDs: []string{"boosted"}}, Similarity: 1.0},
	}

	ranked, err := svc.Retrieve(context.Background(), []float32{1, 0}, 2, hits)
	if err != nil {
		t.Fatalf("Retrieve() error: %v", err)
	}
	// boosted: 0.5*1.0*(1+0.2*1.0)=0.6 beats unboosted: 0.55
	if ranked[0].Chunk.ID != "boosted" {
		t.Errorf("ranked[0] = %s, want boosted", ranked[0].Chunk.ID)
	}
	if !ranked[0].WorkflowBoosted {
		t.Error("expected WorkflowBoosted = true for boosted chunk")
	}
	if ranked[1].WorkflowBoosted {
		t.Error("expected WorkflowBoosted = false for unboosted chunk")
	}
}

func TestRetrieve_WorkflowBoostUsesMaxSimilarityAcrossHits(t *testing.T) {
	fetcher := &mockCandidateFetcher{
		candidates: []model.ScoredChunk{
			{Chunk: chunkWithWeight("c1", 1.0), Similarity: 0.5},
		},
	}
	svc := NewRetrieverService(fetcher, 0.5)

	hits := []model.ScoredMemory{
		{Memory: model.WorkflowMemory{UsefulChunkIDs: []string{"c1"}}, Similarity: 0.8},
		{Memory: model.WorkflowMemory{UsefulChunkIDs: []string{"c1"}}, Similarity: 0.95},
	}

	ranked, err := svc.Retrieve(context.Background(), []float32{1, 0}, 1, hits)
	if err != nil {
		t.Fatalf("Retrieve() error: %v", err)
	}
	want := 0.5 * 1.0 * (1 + 0.5*0.95)
	if diff := ranked[0].EffectiveScore - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("EffectiveScore = %f, want %f", ranked[0].EffectiveScore, want)
	}
}

func TestRetrieve_DeterministicTieBreak(t *testing.T) {
	fetcher := &mockCandidateFetcher{
		candidates: []model.ScoredChunk{
			{Chunk: chunkWithWeight("z-chunk", 1.0), Similarity: 0.5},
			{Chunk: chunkWithWeight("a-chunk", 1.0), Similarity: 0.5},
		},
	}
	svc := NewRetrieverService(fetcher, 0.2)

	ranked, err := svc.Retrieve(context.Background(), []float32{1, 0}, 2, nil)
	if err != nil {
		t.Fatalf("Retrieve() error: %v", err)
	}
	// Equal effective score and similarity -> tie-break by chunk id ascending.
	if ranked[0].Chunk.ID != "a-chunk" {
		t.Errorf("ranked[0] = %s, want a-chunk (tie-break on id)", ranked[0].Chunk.ID)
	}
}

func TestRetrieve_FewerCandidatesThanK(t *testing.T) {
	fetcher := &mockCandidateFetcher{
		candidates: []model.ScoredChunk{
			{Chunk: chunkWithWeight("only", 1.0), Similarity: 0.5},
		},
	}
	svc := NewRetrieverService(fetcher, 0.2)

	ranked, err := svc.Retrieve(context.Background(), []float32{1, 0}, 5, nil)
	if err != nil {
		t.Fatalf("Retrieve() error: %v", err)
	}
	if len(ranked) != 1 {
		t.Errorf("expected 1 ranked chunk, got %d", len(ranked))
	}
}

func TestRetrieve_NoCandidates(t *testing.T) {
	svc := NewRetrieverService(&mockCandidateFetcher{}, 0.2)

	ranked, err := svc.Retrieve(context.Background(), []float32{1, 0}, 5, nil)
	if err != nil {
		t.Fatalf("Retrieve() error: %v", err)
	}
	if len(ranked) != 0 {
		t.Errorf("expected 0 ranked chunks, got %d", len(ranked))
	}
}

func TestBoostSet_UnionsAcrossMemories(t *testing.T) {
	hits := []model.ScoredMemory{
		{Memory: model.WorkflowMemory{UsefulChunkIDs: []string{"a", "b"}}, Similarity: 0.8},
		{Memory: model.WorkflowMemory{UsefulChunkIDs: []string{"b", "c"}}, Similarity: 0.9},
	}
	set := boostSet(hits)
	if len(set) != 3 {
		t.Fatalf("expected 3 boosted chunk ids, got %d", len(set))
	}
	if set["b"] != 0.9 {
		t.Errorf("b's max similarity = %f, want 0.9", set["b"])
	}
}
