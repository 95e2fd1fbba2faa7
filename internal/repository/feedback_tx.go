package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/connexus-ai/ragbox-backend/internal/apperr"
	"github.com/connexus-ai/ragbox-backend/internal/feedback"
	"github.com/connexus-ai/ragbox-backend/internal/model"
)

// FeedbackTxRunner implements feedback.TxRunner against a pgxpool.Pool: it
// begins one pgx.Tx spanning every chunk counter/weight mutation and the
// session feedback-status update a Feedback Processor Apply call makes,
// satisfying spec §4.8 step 2's "single transaction" requirement the same
// way SessionRepo.Create and SessionRepo.UpdateFeedback already do for
// their own atomic writes.
type FeedbackTxRunner struct {
	pool *pgxpool.Pool
}

// NewFeedbackTxRunner creates a FeedbackTxRunner.
func NewFeedbackTxRunner(pool *pgxpool.Pool) *FeedbackTxRunner {
	return &FeedbackTxRunner{pool: pool}
}

var _ feedback.TxRunner = (*FeedbackTxRunner)(nil)

// RunFeedbackTx begins a transaction, hands fn tx-scoped chunk and session
// stores, and commits only if fn succeeds. Any error from fn (or from
// commit) rolls the transaction back, leaving counters, weights, and the
// session's feedback_status exactly as they were before the call.
func (r *FeedbackTxRunner) RunFeedbackTx(ctx context.Context, fn func(feedback.TxChunkStore, feedback.TxSessionStore) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repository.RunFeedbackTx: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&txChunkStore{tx: tx}, &txSessionStore{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("repository.RunFeedbackTx: commit: %w", err)
	}
	return nil
}

// txChunkStore mutates a chunk's counters and accuracy weight against a
// shared pgx.Tx, mirroring ChunkRepo.BumpCounters/AdjustWeight's single-row
// UPDATE shape but participating in the caller's transaction instead of its
// own.
type txChunkStore struct {
	tx pgx.Tx
}

func (t *txChunkStore) BumpCounters(ctx context.Context, id string, useful bool) error {
	usefulDelta := 0
	if useful {
		usefulDelta = 1
	}
	tag, err := t.tx.Exec(ctx, `
		UPDATE chunks
		SET times_retrieved = times_retrieved + 1,
			times_useful = times_useful + $2
		WHERE id = $1`,
		id, usefulDelta,
	)
	if err != nil {
		return fmt.Errorf("repository.txChunkStore.BumpCounters: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("repository.txChunkStore.BumpCounters: chunk %q not found", id)
	}
	return nil
}

func (t *txChunkStore) AdjustWeight(ctx context.Context, id string, delta float64) (float64, error) {
	var newWeight float64
	err := t.tx.QueryRow(ctx, `
		UPDATE chunks
		SET accuracy_weight = LEAST(GREATEST(accuracy_weight + $2, $3), $4)
		WHERE id = $1
		RETURNING accuracy_weight`,
		id, delta, model.WeightMin, model.WeightMax,
	).Scan(&newWeight)
	if err == pgx.ErrNoRows {
		return 0, fmt.Errorf("repository.txChunkStore.AdjustWeight: chunk %q not found", id)
	}
	if err != nil {
		return 0, fmt.Errorf("repository.txChunkStore.AdjustWeight: %w", err)
	}
	return newWeight, nil
}

// txSessionStore finalises a session's feedback status against a shared
// pgx.Tx, mirroring SessionRepo.UpdateFeedback's AlreadyFinalised guard (the
// UPDATE is scoped to feedback_status = 'pending' and checked for rows
// affected) but participating in the caller's transaction.
type txSessionStore struct {
	tx pgx.Tx
}

func (t *txSessionStore) UpdateFeedback(ctx context.Context, id int64, status model.FeedbackStatus, usefulness map[string]bool, correction *string) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE sessions
		SET feedback_status = $2, correction_text = $3
		WHERE id = $1 AND feedback_status = $4`,
		id, string(status), correction, string(model.FeedbackPending),
	)
	if err != nil {
		return fmt.Errorf("repository.txSessionStore.UpdateFeedback: update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.KindAlreadyFinalised, fmt.Sprintf("repository.txSessionStore.UpdateFeedback: session %d not found or already finalised", id))
	}

	for chunkID, useful := range usefulness {
		usefulStr := model.UsefulFalse
		if useful {
			usefulStr = model.UsefulTrue
		}
		if _, err := t.tx.Exec(ctx, `
			UPDATE embedding_links
			SET was_useful = $3
			WHERE session_id = $1 AND chunk_id = $2`,
			id, chunkID, string(usefulStr),
		); err != nil {
			return fmt.Errorf("repository.txSessionStore.UpdateFeedback: update embedding_link %q: %w", chunkID, err)
		}
	}

	return nil
}
