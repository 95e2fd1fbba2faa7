package service

import (
	"context"
	"fmt"

	"github.com/connexus-ai/ragbox-backend/internal/model"
)

// defaultTopChunks is used when Compute is called with a non-positive topN.
const defaultTopChunks = 10

// StatsRepo defines the aggregate queries the STATS operation needs.
type StatsRepo interface {
	AccuracyRate(ctx context.Context) (rate float64, finalizedSessions int64, err error)
	PendingFeedbackCount(ctx context.Context) (int64, error)
	TopChunksByUsefulness(ctx context.Context, limit int) ([]model.TopChunk, error)
}

// StatsService computes the read-only aggregate snapshot exposed by the
// STATS endpoint: accuracy rate across finalised sessions, how many
// sessions are still awaiting feedback, and the most useful chunks.
type StatsService struct {
	repo StatsRepo
}

// NewStatsService creates a StatsService.
func NewStatsService(repo StatsRepo) *StatsService {
	return &StatsService{repo: repo}
}

// Compute returns the current Stats snapshot, ranking up to topN chunks by
// usefulness rate (times_useful/times_retrieved).
func (s *StatsService) Compute(ctx context.Context, topN int) (model.Stats, error) {
	if topN <= 0 {
		topN = defaultTopChunks
	}

	rate, finalized, err := s.repo.AccuracyRate(ctx)
	if err != nil {
		return model.Stats{}, fmt.Errorf("service.ComputeStats: accuracy rate: %w", err)
	}

	pending, err := s.repo.PendingFeedbackCount(ctx)
	if err != nil {
		return model.Stats{}, fmt.Errorf("service.ComputeStats: pending feedback count: %w", err)
	}

	top, err := s.repo.TopChunksByUsefulness(ctx, topN)
	if err != nil {
		return model.Stats{}, fmt.Errorf("service.ComputeStats: top chunks: %w", err)
	}

	return model.Stats{
		AccuracyRate:         rate,
		FinalizedSessions:    finalized,
		PendingFeedbackCount: pending,
		TopChunks:            top,
	}, nil
}
