package service

import (
	"context"
	"log/slog"
	"sort"

	"github.com/connexus-ai/ragbox-backend/internal/apperr"
	"github.com/connexus-ai/ragbox-backend/internal/model"
)

// candidateMultiplier and candidateFloor determine how many candidates are
// pulled from the Chunk Store before accuracy-weighting and workflow boosts
// are applied: N = max(3K, K+10), capped at candidateCap.
const (
	candidateMultiplier = 3
	candidateFloor      = 10
	candidateCap        = 200
)

// CandidateFetcher abstracts cosine k-NN candidate retrieval for testability.
type CandidateFetcher interface {
	FetchCandidates(ctx context.Context, queryVec []float32, n int) ([]model.ScoredChunk, error)
}

// RankedChunk is a chunk candidate after accuracy-weighting and workflow
// boosting, in final ranked order.
type RankedChunk struct {
	Chunk           model.Chunk
	Similarity      float64
	EffectiveScore  float64
	WorkflowBoosted bool
}

// RetrieverService ranks chunk candidates by accuracy-weighted, workflow-
// boosted effective score.
type RetrieverService struct {
	fetcher CandidateFetcher
	beta    float64
}

// NewRetrieverService creates a RetrieverService. beta is the workflow-boost
// coefficient applied as 1 + beta*maxMemorySimilarity.
func NewRetrieverService(fetcher CandidateFetcher, beta float64) *RetrieverService {
	return &RetrieverService{fetcher: fetcher, beta: beta}
}

// FetchCandidates pulls the cosine-nearest candidate pool for queryVec,
// sized by the N = max(3K, K+10) formula (capped at candidateCap). It is
// split out from Retrieve so a caller (the Ask Orchestrator) can run it
// concurrently with a workflow-memory lookup on the same query embedding,
// then feed both results into Rank once both have returned.
func (s *RetrieverService) FetchCandidates(ctx context.Context, queryVec []float32, k int) ([]model.ScoredChunk, error) {
	if len(queryVec) == 0 {
		return nil, apperr.New(apperr.KindInvalidInput, "service.FetchCandidates: query vector is empty")
	}
	if k <= 0 {
		return nil, apperr.New(apperr.KindInvalidInput, "service.FetchCandidates: k must be positive")
	}

	n := candidateMultiplier * k
	if floor := k + candidateFloor; floor > n {
		n = floor
	}
	if n > candidateCap {
		n = candidateCap
	}

	candidates, err := s.fetcher.FetchCandidates(ctx, queryVec, n)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStore, "service.FetchCandidates: fetch candidates", err)
	}
	return candidates, nil
}

// Rank scores already-fetched candidates by accuracy_weight-adjusted
// similarity with an optional multiplicative workflow boost, and returns the
// top k in deterministic order (effective score desc, raw similarity desc,
// chunk id asc). It is a pure, synchronous computation with no suspension
// points, per spec §5.
//
// workflowHits is the set of similar past-successful workflow memories
// already looked up by the caller (empty/nil disables boosting). A chunk
// referenced by any hit is boosted by 1 + beta*maxSimilarity across the
// hits that reference it.
func (s *RetrieverService) Rank(candidates []model.ScoredChunk, k int, workflowHits []model.ScoredMemory) []RankedChunk {
	boost := boostSet(workflowHits)

	ranked := make([]RankedChunk, len(candidates))
	for i, c := range candidates {
		maxSim, boosted := boost[c.Chunk.ID]
		multiplier := 1.0
		if boosted {
			multiplier = 1 + s.beta*maxSim
		}
		ranked[i] = RankedChunk{
			Chunk:           c.Chunk,
			Similarity:      c.Similarity,
			EffectiveScore:  c.Similarity * c.Chunk.AccuracyWeight * multiplier,
			WorkflowBoosted: boosted,
		}
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].EffectiveScore != ranked[j].EffectiveScore {
			return ranked[i].EffectiveScore > ranked[j].EffectiveScore
		}
		if ranked[i].Similarity != ranked[j].Similarity {
			return ranked[i].Similarity > ranked[j].Similarity
		}
		return ranked[i].Chunk.ID < ranked[j].Chunk.ID
	})

	slog.Info("[DEBUG-RETRIEVER] ranked candidates",
		"requested_k", k,
		"candidates_fetched", len(candidates),
		"workflow_boost_set_size", len(boost),
	)

	if k > len(ranked) {
		k = len(ranked)
	}
	return ranked[:k]
}

// Retrieve fetches candidates for queryVec and ranks them in one sequential
// call. It composes FetchCandidates and Rank for callers that don't need to
// overlap the fetch with a concurrent workflow lookup (e.g. direct tests or
// tools driving the retriever standalone).
func (s *RetrieverService) Retrieve(ctx context.Context, queryVec []float32, k int, workflowHits []model.ScoredMemory) ([]RankedChunk, error) {
	candidates, err := s.FetchCandidates(ctx, queryVec, k)
	if err != nil {
		return nil, err
	}
	return s.Rank(candidates, k, workflowHits), nil
}

// boostSet computes, for each chunk id referenced by any workflow hit, the
// maximum memory similarity across the hits that reference it.
func boostSet(hits []model.ScoredMemory) map[string]float64 {
	out := make(map[string]float64)
	for _, h := range hits {
		for _, chunkID := range h.Memory.UsefulChunkIDs {
			if cur, ok := out[chunkID]; !ok || h.Similarity > cur {
				out[chunkID] = h.Similarity
			}
		}
	}
	return out
}
