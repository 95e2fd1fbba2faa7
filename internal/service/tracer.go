package service

import (
	"time"

	"github.com/connexus-ai/ragbox-backend/internal/model"
)

// Tracer is a scoped, single-threaded-per-request collaborator that
// accumulates the reasoning trace for one Ask request: which chunks were
// retrieved, what phases ran and how long they took, and a free-form step
// log. It is not safe for concurrent use by design — callers that fan work
// out across goroutines must serialize their calls into the tracer.
type Tracer struct {
	retrieved   []model.RetrievedChunk
	steps       []model.ReasoningStep
	phaseStarts map[model.ReasoningPhase]time.Time
}

// NewTracer creates an empty Tracer.
func NewTracer() *Tracer {
	return &Tracer{
		phaseStarts: make(map[model.ReasoningPhase]time.Time),
	}
}

// AddRetrieved records one ranked chunk's retrieval metadata, in the order
// it was ranked.
func (t *Tracer) AddRetrieved(chunkID string, rank int, similarity, effectiveScore float64, workflowBoosted bool) {
	t.retrieved = append(t.retrieved, model.RetrievedChunk{
		ChunkID:         chunkID,
		Rank:            rank,
		Similarity:      similarity,
		EffectiveScore:  effectiveScore,
		WorkflowBoosted: workflowBoosted,
		WasUseful:       model.UsefulUnknown,
	})
}

// AddStep appends a reasoning step with no associated duration.
func (t *Tracer) AddStep(phase model.ReasoningPhase, description string) {
	t.steps = append(t.steps, model.ReasoningStep{Phase: phase, Description: description})
}

// MarkPhaseStart records the start time of phase.
func (t *Tracer) MarkPhaseStart(phase model.ReasoningPhase) {
	t.phaseStarts[phase] = time.Now()
}

// MarkPhaseEnd appends a reasoning step for phase with its elapsed duration
// since MarkPhaseStart. If MarkPhaseStart was never called for phase, the
// duration is recorded as zero.
func (t *Tracer) MarkPhaseEnd(phase model.ReasoningPhase, description string) {
	var durationMs int64
	if start, ok := t.phaseStarts[phase]; ok {
		durationMs = time.Since(start).Milliseconds()
		delete(t.phaseStarts, phase)
	}
	t.steps = append(t.steps, model.ReasoningStep{
		Phase:       phase,
		Description: description,
		DurationMs:  durationMs,
	})
}

// Snapshot returns the persistable reasoning trace. It is idempotent and may
// be called any number of times; each call returns independent copies so
// callers cannot mutate the tracer's internal state through the result.
func (t *Tracer) Snapshot() ([]model.RetrievedChunk, []model.ReasoningStep) {
	retrieved := make([]model.RetrievedChunk, len(t.retrieved))
	copy(retrieved, t.retrieved)
	steps := make([]model.ReasoningStep, len(t.steps))
	copy(steps, t.steps)
	return retrieved, steps
}
