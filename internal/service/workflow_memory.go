package service

import (
	"context"
	"fmt"

	"github.com/connexus-ai/ragbox-backend/internal/apperr"
	"github.com/connexus-ai/ragbox-backend/internal/model"
)

// WorkflowMemoryRepo defines persistence operations for workflow memories.
// FindSimilar is expected to restrict its cosine search to successful
// memories and to apply minSim itself (a store-side filter, not merely a
// candidate cap); Record is expected to reject a duplicate
// sourceSessionID rather than insert a second memory for the same session.
type WorkflowMemoryRepo interface {
	FindSimilar(ctx context.Context, queryVec []float32, topM int, minSim float64) ([]model.ScoredMemory, error)
	Record(ctx context.Context, summaryVec []float32, sourceSessionID int64, usefulChunkIDs []string) (string, error)
}

// WorkflowMemoryService looks up and records workflow memories: summaries of
// past sessions whose feedback confirmed the answer was correct.
type WorkflowMemoryService struct {
	repo          WorkflowMemoryRepo
	defaultTopM   int
	defaultMinSim float64
}

// NewWorkflowMemoryService creates a WorkflowMemoryService. defaultTopM and
// defaultMinSim are used by FindSimilar when the caller passes zero values.
func NewWorkflowMemoryService(repo WorkflowMemoryRepo, defaultTopM int, defaultMinSim float64) *WorkflowMemoryService {
	return &WorkflowMemoryService{repo: repo, defaultTopM: defaultTopM, defaultMinSim: defaultMinSim}
}

// FindSimilar returns up to topM successful memories whose summary
// embedding is at least minSim similar to queryVec. A zero topM or minSim
// falls back to the service's configured defaults.
func (s *WorkflowMemoryService) FindSimilar(ctx context.Context, queryVec []float32, topM int, minSim float64) ([]model.ScoredMemory, error) {
	if len(queryVec) == 0 {
		return nil, apperr.New(apperr.KindInvalidInput, "service.FindSimilar: query vector is empty")
	}
	if topM <= 0 {
		topM = s.defaultTopM
	}
	if minSim <= 0 {
		minSim = s.defaultMinSim
	}

	hits, err := s.repo.FindSimilar(ctx, queryVec, topM, minSim)
	if err != nil {
		return nil, fmt.Errorf("service.FindSimilar: %w", err)
	}
	return hits, nil
}

// Record stores a new workflow memory derived from a session whose feedback
// confirmed correctness and whose usefulChunkIDs is non-empty. The caller
// (the feedback processor) enforces that gating; this method only enforces
// that the inputs it is handed are well-formed.
func (s *WorkflowMemoryService) Record(ctx context.Context, summaryVec []float32, sourceSessionID int64, usefulChunkIDs []string) (string, error) {
	if len(summaryVec) == 0 {
		return "", apperr.New(apperr.KindInvalidInput, "service.RecordWorkflowMemory: summary vector is empty")
	}
	if len(usefulChunkIDs) == 0 {
		return "", apperr.New(apperr.KindInvalidInput, "service.RecordWorkflowMemory: no useful chunk ids")
	}

	id, err := s.repo.Record(ctx, summaryVec, sourceSessionID, usefulChunkIDs)
	if err != nil {
		return "", fmt.Errorf("service.RecordWorkflowMemory: %w", err)
	}
	return id, nil
}
