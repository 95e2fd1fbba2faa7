package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/connexus-ai/ragbox-backend/internal/apperr"
	"github.com/connexus-ai/ragbox-backend/internal/model"
	"github.com/connexus-ai/ragbox-backend/internal/service"
)

// SessionRepo implements service.SessionRepo against a sessions table plus
// its embedding_links child rows (spec §6 persisted state layout).
type SessionRepo struct {
	pool *pgxpool.Pool
}

// NewSessionRepo creates a SessionRepo.
func NewSessionRepo(pool *pgxpool.Pool) *SessionRepo {
	return &SessionRepo{pool: pool}
}

var _ service.SessionRepo = (*SessionRepo)(nil)

// Create persists a new session and its retrieved list + reasoning trace in
// a single transaction, per spec §4.7 ("single atomic write").
func (r *SessionRepo) Create(ctx context.Context, session *model.Session) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repository.Session.Create: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	stepsJSON, err := json.Marshal(session.ReasoningSteps)
	if err != nil {
		return fmt.Errorf("repository.Session.Create: marshal reasoning steps: %w", err)
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO sessions (query, query_embedding, answer, reasoning_steps, feedback_status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		session.Query, pgvector.NewVector(session.QueryEmbedding), session.Answer, stepsJSON, string(model.FeedbackPending),
	).Scan(&session.ID, &session.CreatedAt)
	if err != nil {
		return fmt.Errorf("repository.Session.Create: insert session: %w", err)
	}
	session.FeedbackStatus = model.FeedbackPending

	for _, rc := range session.Retrieved {
		_, err := tx.Exec(ctx, `
			INSERT INTO embedding_links (session_id, chunk_id, rank, similarity, effective_score, workflow_boosted, was_useful)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			session.ID, rc.ChunkID, rc.Rank, rc.Similarity, rc.EffectiveScore, rc.WorkflowBoosted, string(model.UsefulUnknown),
		)
		if err != nil {
			return fmt.Errorf("repository.Session.Create: insert embedding_link: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("repository.Session.Create: commit: %w", err)
	}
	return nil
}

// GetByID returns a session with its retrieved list, or (nil, nil) if it
// doesn't exist.
func (r *SessionRepo) GetByID(ctx context.Context, id int64) (*model.Session, error) {
	var s model.Session
	var statusStr string
	var stepsJSON []byte
	err := r.pool.QueryRow(ctx, `
		SELECT id, query, answer, reasoning_steps, feedback_status, correction_text, created_at
		FROM sessions WHERE id = $1`, id,
	).Scan(&s.ID, &s.Query, &s.Answer, &stepsJSON, &statusStr, &s.CorrectionText, &s.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("repository.Session.GetByID: %w", err)
	}
	s.FeedbackStatus = model.FeedbackStatus(statusStr)
	if err := json.Unmarshal(stepsJSON, &s.ReasoningSteps); err != nil {
		return nil, fmt.Errorf("repository.Session.GetByID: unmarshal reasoning steps: %w", err)
	}

	retrieved, err := r.retrievedFor(ctx, id)
	if err != nil {
		return nil, err
	}
	s.Retrieved = retrieved

	return &s, nil
}

func (r *SessionRepo) retrievedFor(ctx context.Context, sessionID int64) ([]model.RetrievedChunk, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT chunk_id, rank, similarity, effective_score, workflow_boosted, was_useful
		FROM embedding_links
		WHERE session_id = $1
		ORDER BY rank ASC`, sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("repository.Session.retrievedFor: %w", err)
	}
	defer rows.Close()

	var out []model.RetrievedChunk
	for rows.Next() {
		var rc model.RetrievedChunk
		var usefulStr string
		if err := rows.Scan(&rc.ChunkID, &rc.Rank, &rc.Similarity, &rc.EffectiveScore, &rc.WorkflowBoosted, &usefulStr); err != nil {
			return nil, fmt.Errorf("repository.Session.retrievedFor: scan: %w", err)
		}
		rc.WasUseful = model.Usefulness(usefulStr)
		out = append(out, rc)
	}
	return out, nil
}

// List returns sessions matching filters, newest first, bounded by paging.
func (r *SessionRepo) List(ctx context.Context, filters service.ListFilters, paging service.Paging) ([]model.Session, error) {
	query := `SELECT id, query, answer, reasoning_steps, feedback_status, correction_text, created_at FROM sessions WHERE 1=1`
	args := []interface{}{}
	argN := 1

	if filters.FeedbackStatus != nil {
		query += fmt.Sprintf(" AND feedback_status = $%d", argN)
		args = append(args, string(*filters.FeedbackStatus))
		argN++
	}
	if filters.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argN)
		args = append(args, *filters.Since)
		argN++
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argN, argN+1)
	args = append(args, paging.Limit, paging.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("repository.Session.List: %w", err)
	}
	defer rows.Close()

	var sessions []model.Session
	for rows.Next() {
		var s model.Session
		var statusStr string
		var stepsJSON []byte
		if err := rows.Scan(&s.ID, &s.Query, &s.Answer, &stepsJSON, &statusStr, &s.CorrectionText, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("repository.Session.List: scan: %w", err)
		}
		s.FeedbackStatus = model.FeedbackStatus(statusStr)
		if err := json.Unmarshal(stepsJSON, &s.ReasoningSteps); err != nil {
			return nil, fmt.Errorf("repository.Session.List: unmarshal reasoning steps: %w", err)
		}
		sessions = append(sessions, s)
	}

	for i := range sessions {
		retrieved, err := r.retrievedFor(ctx, sessions[i].ID)
		if err != nil {
			return nil, err
		}
		sessions[i].Retrieved = retrieved
	}

	return sessions, nil
}

// UpdateFeedback atomically finalises a session's feedback status and each
// retrieved entry's was_useful flag, guarding AlreadyFinalised by scoping
// the UPDATE to feedback_status = 'pending' and checking rows affected
// (spec §4.7, invariant I3).
func (r *SessionRepo) UpdateFeedback(ctx context.Context, id int64, status model.FeedbackStatus, usefulness map[string]bool, correction *string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repository.Session.UpdateFeedback: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE sessions
		SET feedback_status = $2, correction_text = $3
		WHERE id = $1 AND feedback_status = $4`,
		id, string(status), correction, string(model.FeedbackPending),
	)
	if err != nil {
		return fmt.Errorf("repository.Session.UpdateFeedback: update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.KindAlreadyFinalised, fmt.Sprintf("repository.Session.UpdateFeedback: session %d not found or already finalised", id))
	}

	for chunkID, useful := range usefulness {
		usefulStr := model.UsefulFalse
		if useful {
			usefulStr = model.UsefulTrue
		}
		if _, err := tx.Exec(ctx, `
			UPDATE embedding_links
			SET was_useful = $3
			WHERE session_id = $1 AND chunk_id = $2`,
			id, chunkID, string(usefulStr),
		); err != nil {
			return fmt.Errorf("repository.Session.UpdateFeedback: update embedding_link %q: %w", chunkID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("repository.Session.UpdateFeedback: commit: %w", err)
	}
	return nil
}
