package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/connexus-ai/ragbox-backend/internal/model"
	"github.com/connexus-ai/ragbox-backend/internal/service"
)

// WorkflowMemoryRepo implements service.WorkflowMemoryRepo against a
// pgvector-enabled workflow_memories table (spec §4.3).
type WorkflowMemoryRepo struct {
	pool *pgxpool.Pool
}

// NewWorkflowMemoryRepo creates a WorkflowMemoryRepo.
func NewWorkflowMemoryRepo(pool *pgxpool.Pool) *WorkflowMemoryRepo {
	return &WorkflowMemoryRepo{pool: pool}
}

var _ service.WorkflowMemoryRepo = (*WorkflowMemoryRepo)(nil)

// FindSimilar returns up to topM workflow memories whose summary embedding
// is at least minSim similar to queryVec, ordered by similarity descending.
// Every row in workflow_memories is, by invariant I4, backed by a correct
// session, so no extra "is_successful" gate is required at query time.
func (r *WorkflowMemoryRepo) FindSimilar(ctx context.Context, queryVec []float32, topM int, minSim float64) ([]model.ScoredMemory, error) {
	embedding := pgvector.NewVector(queryVec)

	rows, err := r.pool.Query(ctx, `
		SELECT id, source_session_id, useful_chunk_ids, created_at,
			1 - (summary_embedding <=> $1::vector) AS similarity
		FROM workflow_memories
		WHERE 1 - (summary_embedding <=> $1::vector) >= $2
		ORDER BY summary_embedding <=> $1::vector
		LIMIT $3`,
		embedding, minSim, topM,
	)
	if err != nil {
		return nil, fmt.Errorf("repository.WorkflowMemory.FindSimilar: %w", err)
	}
	defer rows.Close()

	var results []model.ScoredMemory
	for rows.Next() {
		var sm model.ScoredMemory
		if err := rows.Scan(&sm.Memory.ID, &sm.Memory.SourceSessionID, &sm.Memory.UsefulChunkIDs, &sm.Memory.CreatedAt, &sm.Similarity); err != nil {
			return nil, fmt.Errorf("repository.WorkflowMemory.FindSimilar: scan: %w", err)
		}
		results = append(results, sm)
	}
	return results, nil
}

// Record inserts a new workflow memory, rejecting a duplicate for the same
// source_session_id (spec §4.3: "duplicates on same source_session_id are
// rejected") via ON CONFLICT DO NOTHING plus an existence check.
func (r *WorkflowMemoryRepo) Record(ctx context.Context, summaryVec []float32, sourceSessionID int64, usefulChunkIDs []string) (string, error) {
	embedding := pgvector.NewVector(summaryVec)

	var id string
	err := r.pool.QueryRow(ctx, `
		INSERT INTO workflow_memories (source_session_id, summary_embedding, useful_chunk_ids)
		VALUES ($1, $2, $3)
		ON CONFLICT (source_session_id) DO NOTHING
		RETURNING id`,
		sourceSessionID, embedding, usefulChunkIDs,
	).Scan(&id)
	if err != nil {
		existing, lookupErr := r.bySourceSession(ctx, sourceSessionID)
		if lookupErr == nil && existing != "" {
			return existing, nil
		}
		return "", fmt.Errorf("repository.WorkflowMemory.Record: %w", err)
	}
	return id, nil
}

func (r *WorkflowMemoryRepo) bySourceSession(ctx context.Context, sourceSessionID int64) (string, error) {
	var id string
	err := r.pool.QueryRow(ctx, `SELECT id FROM workflow_memories WHERE source_session_id = $1`, sourceSessionID).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}
