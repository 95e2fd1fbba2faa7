package service

import (
	"context"
	"fmt"

	"github.com/connexus-ai/ragbox-backend/internal/apperr"
	"github.com/connexus-ai/ragbox-backend/internal/model"
)

// maxWeightDelta bounds the magnitude of a single adjust_weight call
// (spec invariant on §4.2: |delta| <= 0.5).
const maxWeightDelta = 0.5

// ChunkRepo defines persistence operations for chunks, including the
// accuracy-weight and usefulness counters a feedback event mutates.
// Each of BumpCounters and AdjustWeight is expected to be its own
// single-row transaction.
type ChunkRepo interface {
	CandidateFetcher
	Get(ctx context.Context, id string) (*model.Chunk, error)
	BumpCounters(ctx context.Context, id string, useful bool) error
	AdjustWeight(ctx context.Context, id string, delta float64) (float64, error)
	SetWeight(ctx context.Context, id string, newWeight float64) (float64, error)
}

// ChunkStoreService exposes the Chunk Store operations the Feedback
// Processor mutates. Candidate fetching for ranking is served directly by
// the underlying ChunkRepo as a CandidateFetcher (see RetrieverService).
type ChunkStoreService struct {
	repo ChunkRepo
}

// NewChunkStoreService creates a ChunkStoreService.
func NewChunkStoreService(repo ChunkRepo) *ChunkStoreService {
	return &ChunkStoreService{repo: repo}
}

// Get returns a chunk by id, wrapping a missing row as NotFound.
func (s *ChunkStoreService) Get(ctx context.Context, id string) (*model.Chunk, error) {
	chunk, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service.GetChunk: %w", err)
	}
	if chunk == nil {
		return nil, apperr.New(apperr.KindNotFound, fmt.Sprintf("service.GetChunk: chunk %q not found", id))
	}
	return chunk, nil
}

// BumpCounters atomically increments a chunk's retrieval counter, and its
// usefulness counter if useful.
func (s *ChunkStoreService) BumpCounters(ctx context.Context, id string, useful bool) error {
	if id == "" {
		return apperr.New(apperr.KindInvalidInput, "service.BumpCounters: chunk id is empty")
	}
	if err := s.repo.BumpCounters(ctx, id, useful); err != nil {
		return fmt.Errorf("service.BumpCounters: %w", err)
	}
	return nil
}

// AdjustWeight atomically clamps a chunk's accuracy weight by delta into
// [WeightMin, WeightMax] and returns the post-state.
func (s *ChunkStoreService) AdjustWeight(ctx context.Context, id string, delta float64) (float64, error) {
	if id == "" {
		return 0, apperr.New(apperr.KindInvalidInput, "service.AdjustWeight: chunk id is empty")
	}
	if delta > maxWeightDelta || delta < -maxWeightDelta {
		return 0, apperr.New(apperr.KindInvalidInput, fmt.Sprintf("service.AdjustWeight: |delta| %v exceeds bound %v", delta, maxWeightDelta))
	}

	newWeight, err := s.repo.AdjustWeight(ctx, id, delta)
	if err != nil {
		return 0, fmt.Errorf("service.AdjustWeight: %w", err)
	}
	return newWeight, nil
}

// SetWeight atomically sets a chunk's accuracy weight to an absolute value,
// clamped into [WeightMin, WeightMax]. Unlike AdjustWeight (the feedback
// signal's bounded per-event delta), this backs the CHUNK EDIT operator
// endpoint, which may set any value in range directly.
func (s *ChunkStoreService) SetWeight(ctx context.Context, id string, newWeight float64) (float64, error) {
	if id == "" {
		return 0, apperr.New(apperr.KindInvalidInput, "service.SetWeight: chunk id is empty")
	}
	if newWeight < model.WeightMin || newWeight > model.WeightMax {
		return 0, apperr.New(apperr.KindInvalidInput, fmt.Sprintf("service.SetWeight: weight %v outside [%v, %v]", newWeight, model.WeightMin, model.WeightMax))
	}

	result, err := s.repo.SetWeight(ctx, id, newWeight)
	if err != nil {
		return 0, fmt.Errorf("service.SetWeight: %w", err)
	}
	return result, nil
}
