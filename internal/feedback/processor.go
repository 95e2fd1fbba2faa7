// Package feedback applies a human feedback event to a completed session:
// it adjusts the chunk store's accuracy weights and usefulness counters,
// finalises the session's feedback status, and, when the answer was
// correct and at least one chunk was useful, records a workflow memory so
// future similar queries can benefit from the boost.
package feedback

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/connexus-ai/ragbox-backend/internal/apperr"
	"github.com/connexus-ai/ragbox-backend/internal/model"
)

// SessionStore is the read-only session lookup the Processor needs outside
// its transactional mutation step (pre-check and the query text for the
// workflow-memory summary).
type SessionStore interface {
	Get(ctx context.Context, id int64) (*model.Session, error)
}

// ChunkStore is the read-only chunk lookup the Processor needs outside its
// transactional mutation step (provenance slugs for the workflow-memory
// summary).
type ChunkStore interface {
	Get(ctx context.Context, id string) (*model.Chunk, error)
}

// TxChunkStore mutates a chunk's usefulness counters and accuracy weight
// within the shared feedback transaction.
type TxChunkStore interface {
	BumpCounters(ctx context.Context, id string, useful bool) error
	AdjustWeight(ctx context.Context, id string, delta float64) (float64, error)
}

// TxSessionStore finalises a session's feedback status within the shared
// feedback transaction.
type TxSessionStore interface {
	UpdateFeedback(ctx context.Context, id int64, status model.FeedbackStatus, usefulness map[string]bool, correction *string) error
}

// TxRunner begins one transaction spanning every chunk counter/weight
// mutation and the session feedback-status update for a single Apply call.
// Spec §4.8 step 2 requires these to commit "in a single transaction" — if
// fn returns an error the whole transaction rolls back, so a caller that
// retries a still-pending session never double-applies a partial update.
type TxRunner interface {
	RunFeedbackTx(ctx context.Context, fn func(TxChunkStore, TxSessionStore) error) error
}

// Embedder produces the summary embedding for a new workflow memory.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// WorkflowMemoryStore records new workflow memories.
type WorkflowMemoryStore interface {
	Record(ctx context.Context, summaryVec []float32, sourceSessionID int64, usefulChunkIDs []string) (string, error)
}

// Result reports what a feedback Apply call changed.
type Result struct {
	SessionID        int64
	FeedbackStatus   model.FeedbackStatus
	WeightsAdjusted  int
	WorkflowMemoryID string // empty if no memory was recorded
}

// Processor applies feedback events. Weight adjustments and the session
// status update are the authoritative, must-succeed half of Apply and
// commit together in one transaction; the workflow memory write is a
// secondary learning signal, retried independently and never rolled back on
// its failure.
type Processor struct {
	sessions      SessionStore
	chunks        ChunkStore
	txRunner      TxRunner
	embedder      Embedder
	memories      WorkflowMemoryStore
	delta         float64
	memMaxRetries int
}

// New creates a Processor. delta is the default magnitude applied to a
// chunk's accuracy weight per useful/not-useful report.
// memMaxRetries bounds the workflow-memory write's independent retry loop.
func New(sessions SessionStore, chunks ChunkStore, txRunner TxRunner, embedder Embedder, memories WorkflowMemoryStore, delta float64, memMaxRetries int) *Processor {
	return &Processor{
		sessions:      sessions,
		chunks:        chunks,
		txRunner:      txRunner,
		embedder:      embedder,
		memories:      memories,
		delta:         delta,
		memMaxRetries: memMaxRetries,
	}
}

// Apply runs the full feedback algorithm for one session. usefulness lists
// only the chunks the caller is reporting on; a session's retrieved chunks
// absent from usefulness are left untouched. Every chunk counter/weight
// mutation and the session status update commit in a single transaction
// (spec §4.8 step 2); if any of them fails, none of them takes effect, so a
// caller that retries a still-pending session never double-applies a
// partial update (invariants I3/P3, round-trip property R1).
func (p *Processor) Apply(ctx context.Context, sessionID int64, isCorrect bool, usefulness []model.ChunkFeedback, correction *string) (Result, error) {
	session, err := p.sessions.Get(ctx, sessionID)
	if err != nil {
		return Result{}, fmt.Errorf("feedback.Apply: %w", err)
	}
	if session.FeedbackStatus != model.FeedbackPending {
		return Result{}, apperr.New(apperr.KindAlreadyFinalised, fmt.Sprintf("feedback.Apply: session %d feedback already %s", sessionID, session.FeedbackStatus))
	}

	usefulnessMap := make(map[string]bool, len(usefulness))
	for _, fb := range usefulness {
		usefulnessMap[fb.ChunkID] = fb.WasUseful
	}

	status := model.FeedbackIncorrect
	if isCorrect {
		status = model.FeedbackCorrect
	}

	var usefulChunkIDs []string
	err = p.txRunner.RunFeedbackTx(ctx, func(chunks TxChunkStore, sessions TxSessionStore) error {
		usefulChunkIDs = nil
		for _, fb := range usefulness {
			delta := p.delta
			if !fb.WasUseful {
				delta = -p.delta
			}
			if err := chunks.BumpCounters(ctx, fb.ChunkID, fb.WasUseful); err != nil {
				return fmt.Errorf("feedback.Apply: bump counters for %q: %w", fb.ChunkID, err)
			}
			if _, err := chunks.AdjustWeight(ctx, fb.ChunkID, delta); err != nil {
				return fmt.Errorf("feedback.Apply: adjust weight for %q: %w", fb.ChunkID, err)
			}
			if fb.WasUseful {
				usefulChunkIDs = append(usefulChunkIDs, fb.ChunkID)
			}
		}
		if err := sessions.UpdateFeedback(ctx, sessionID, status, usefulnessMap, correction); err != nil {
			return fmt.Errorf("feedback.Apply: update session status: %w", err)
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	result := Result{SessionID: sessionID, FeedbackStatus: status, WeightsAdjusted: len(usefulness)}

	if isCorrect && len(usefulChunkIDs) > 0 {
		usefulSlugs := make([]string, 0, len(usefulChunkIDs))
		for _, id := range usefulChunkIDs {
			if chunk, err := p.chunks.Get(ctx, id); err == nil && chunk != nil {
				usefulSlugs = append(usefulSlugs, chunk.Slug())
			} else {
				usefulSlugs = append(usefulSlugs, id)
			}
		}
		memoryID := p.recordMemory(ctx, session.Query, sessionID, usefulChunkIDs, usefulSlugs)
		result.WorkflowMemoryID = memoryID
	}

	return result, nil
}

// recordMemory composes and embeds the summary text, then records a
// workflow memory with up to memMaxRetries attempts. A persistent failure
// is logged and swallowed: the weight updates above already committed and
// must not be undone for a secondary signal's sake.
func (p *Processor) recordMemory(ctx context.Context, query string, sessionID int64, usefulChunkIDs, usefulSlugs []string) string {
	summary := composeSummary(query, usefulSlugs)

	vec, err := p.embedder.Embed(ctx, summary)
	if err != nil {
		slog.Error("feedback: failed to embed workflow memory summary", "session_id", sessionID, "error", err)
		return ""
	}

	attempts := p.memMaxRetries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ""
			case <-time.After(time.Duration(attempt) * 200 * time.Millisecond):
			}
		}
		id, err := p.memories.Record(ctx, vec, sessionID, usefulChunkIDs)
		if err == nil {
			return id
		}
		lastErr = err
	}

	slog.Error("feedback: failed to record workflow memory after retries", "session_id", sessionID, "attempts", attempts, "error", lastErr)
	return ""
}

// composeSummary deterministically combines the query and the sorted
// "repo/path#section" slugs of useful chunks with a literal success
// marker.
func composeSummary(query string, usefulSlugs []string) string {
	sorted := append([]string(nil), usefulSlugs...)
	sort.Strings(sorted)
	return fmt.Sprintf("query=%q useful=[%s] outcome=success", query, strings.Join(sorted, ","))
}
