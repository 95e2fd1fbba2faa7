package repository

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/connexus-ai/ragbox-backend/internal/model"
	"github.com/connexus-ai/ragbox-backend/internal/service"
)

// ChunkRepo implements service.ChunkRepo (and, by extension, the narrower
// service.CandidateFetcher and feedback.ChunkStore interfaces) against a
// pgvector-enabled chunks table.
type ChunkRepo struct {
	pool *pgxpool.Pool
}

// NewChunkRepo creates a ChunkRepo.
func NewChunkRepo(pool *pgxpool.Pool) *ChunkRepo {
	return &ChunkRepo{pool: pool}
}

var _ service.ChunkRepo = (*ChunkRepo)(nil)

// FetchCandidates returns the n nearest chunks to queryVec by cosine
// similarity (1 - cosine distance), ordered nearest-first.
func (r *ChunkRepo) FetchCandidates(ctx context.Context, queryVec []float32, n int) ([]model.ScoredChunk, error) {
	embedding := pgvector.NewVector(queryVec)

	rows, err := r.pool.Query(ctx, `
		SELECT id, repo, path, section, content, accuracy_weight,
			times_retrieved, times_useful, created_at,
			1 - (embedding <=> $1::vector) AS similarity
		FROM chunks
		ORDER BY embedding <=> $1::vector
		LIMIT $2`,
		embedding, n,
	)
	if err != nil {
		return nil, fmt.Errorf("repository.FetchCandidates: %w", err)
	}
	defer rows.Close()

	var results []model.ScoredChunk
	for rows.Next() {
		var sc model.ScoredChunk
		if err := rows.Scan(
			&sc.Chunk.ID, &sc.Chunk.Repo, &sc.Chunk.Path, &sc.Chunk.Section, &sc.Chunk.Content,
			&sc.Chunk.AccuracyWeight, &sc.Chunk.TimesRetrieved, &sc.Chunk.TimesUseful, &sc.Chunk.CreatedAt,
			&sc.Similarity,
		); err != nil {
			return nil, fmt.Errorf("repository.FetchCandidates: scan: %w", err)
		}
		results = append(results, sc)
	}

	slog.Info("[DEBUG-REPO] fetched candidates", "requested_n", n, "returned", len(results))
	return results, nil
}

// Get returns a chunk by id, or (nil, nil) if it doesn't exist.
func (r *ChunkRepo) Get(ctx context.Context, id string) (*model.Chunk, error) {
	var c model.Chunk
	err := r.pool.QueryRow(ctx, `
		SELECT id, repo, path, section, content, accuracy_weight,
			times_retrieved, times_useful, created_at
		FROM chunks WHERE id = $1`, id,
	).Scan(&c.ID, &c.Repo, &c.Path, &c.Section, &c.Content, &c.AccuracyWeight, &c.TimesRetrieved, &c.TimesUseful, &c.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("repository.GetChunk: %w", err)
	}
	return &c, nil
}

// BumpCounters atomically increments times_retrieved, and times_useful if
// useful, in a single-row UPDATE.
func (r *ChunkRepo) BumpCounters(ctx context.Context, id string, useful bool) error {
	usefulDelta := 0
	if useful {
		usefulDelta = 1
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE chunks
		SET times_retrieved = times_retrieved + 1,
			times_useful = times_useful + $2
		WHERE id = $1`,
		id, usefulDelta,
	)
	if err != nil {
		return fmt.Errorf("repository.BumpCounters: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("repository.BumpCounters: chunk %q not found", id)
	}
	return nil
}

// AdjustWeight atomically clamps accuracy_weight by delta into
// [model.WeightMin, model.WeightMax] and returns the post-state.
func (r *ChunkRepo) AdjustWeight(ctx context.Context, id string, delta float64) (float64, error) {
	var newWeight float64
	err := r.pool.QueryRow(ctx, `
		UPDATE chunks
		SET accuracy_weight = LEAST(GREATEST(accuracy_weight + $2, $3), $4)
		WHERE id = $1
		RETURNING accuracy_weight`,
		id, delta, model.WeightMin, model.WeightMax,
	).Scan(&newWeight)
	if err == pgx.ErrNoRows {
		return 0, fmt.Errorf("repository.AdjustWeight: chunk %q not found", id)
	}
	if err != nil {
		return 0, fmt.Errorf("repository.AdjustWeight: %w", err)
	}
	return newWeight, nil
}

// SetWeight atomically sets accuracy_weight to an absolute value, clamped
// into [model.WeightMin, model.WeightMax], backing the CHUNK EDIT operation.
func (r *ChunkRepo) SetWeight(ctx context.Context, id string, newWeight float64) (float64, error) {
	var result float64
	err := r.pool.QueryRow(ctx, `
		UPDATE chunks
		SET accuracy_weight = LEAST(GREATEST($2, $3), $4)
		WHERE id = $1
		RETURNING accuracy_weight`,
		id, newWeight, model.WeightMin, model.WeightMax,
	).Scan(&result)
	if err == pgx.ErrNoRows {
		return 0, fmt.Errorf("repository.SetWeight: chunk %q not found", id)
	}
	if err != nil {
		return 0, fmt.Errorf("repository.SetWeight: %w", err)
	}
	return result, nil
}
