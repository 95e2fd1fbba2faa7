package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/connexus-ai/ragbox-backend/internal/model"
	"github.com/connexus-ai/ragbox-backend/internal/service"
)

// StatsRepo implements service.StatsRepo with read-only aggregate queries
// over sessions and chunks.
type StatsRepo struct {
	pool *pgxpool.Pool
}

// NewStatsRepo creates a StatsRepo.
func NewStatsRepo(pool *pgxpool.Pool) *StatsRepo {
	return &StatsRepo{pool: pool}
}

var _ service.StatsRepo = (*StatsRepo)(nil)

// AccuracyRate returns the fraction of finalised (non-pending) sessions
// whose feedback_status is "correct", and the total finalised count.
func (r *StatsRepo) AccuracyRate(ctx context.Context) (float64, int64, error) {
	var correct, finalized int64
	err := r.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE feedback_status = 'correct'),
			COUNT(*) FILTER (WHERE feedback_status != 'pending')
		FROM sessions`,
	).Scan(&correct, &finalized)
	if err != nil {
		return 0, 0, fmt.Errorf("repository.Stats.AccuracyRate: %w", err)
	}
	if finalized == 0 {
		return 0, 0, nil
	}
	return float64(correct) / float64(finalized), finalized, nil
}

// PendingFeedbackCount returns how many sessions await feedback.
func (r *StatsRepo) PendingFeedbackCount(ctx context.Context) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sessions WHERE feedback_status = 'pending'`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("repository.Stats.PendingFeedbackCount: %w", err)
	}
	return count, nil
}

// TopChunksByUsefulness returns up to limit chunks ranked by
// times_useful/times_retrieved, chunks never retrieved excluded.
func (r *StatsRepo) TopChunksByUsefulness(ctx context.Context, limit int) ([]model.TopChunk, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, repo, path, section, times_retrieved, times_useful,
			times_useful::float8 / NULLIF(times_retrieved, 0) AS usefulness_rate
		FROM chunks
		WHERE times_retrieved > 0
		ORDER BY usefulness_rate DESC, times_retrieved DESC
		LIMIT $1`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("repository.Stats.TopChunksByUsefulness: %w", err)
	}
	defer rows.Close()

	var out []model.TopChunk
	for rows.Next() {
		var tc model.TopChunk
		var repo, path, section string
		if err := rows.Scan(&tc.ChunkID, &repo, &path, &section, &tc.TimesRetrieved, &tc.TimesUseful, &tc.UsefulnessRate); err != nil {
			return nil, fmt.Errorf("repository.Stats.TopChunksByUsefulness: scan: %w", err)
		}
		c := model.Chunk{Repo: repo, Path: path, Section: section}
		tc.Slug = c.Slug()
		out = append(out, tc)
	}
	return out, nil
}
