package model

import "time"

// FeedbackStatus is the lifecycle state of a Session's human feedback.
type FeedbackStatus string

const (
	FeedbackPending   FeedbackStatus = "pending"
	FeedbackCorrect   FeedbackStatus = "correct"
	FeedbackIncorrect FeedbackStatus = "incorrect"
)

// Usefulness is a tri-state per-chunk feedback marker. A session's retrieved
// chunks start "unknown" and are set to true/false by the Feedback Processor.
type Usefulness string

const (
	UsefulUnknown Usefulness = "unknown"
	UsefulTrue    Usefulness = "true"
	UsefulFalse   Usefulness = "false"
)

// RetrievedChunk is one entry of a Session's immutable retrieved list.
type RetrievedChunk struct {
	ChunkID         string     `json:"chunkId"`
	Rank            int        `json:"rank"`
	Similarity      float64    `json:"similarity"`
	EffectiveScore  float64    `json:"effectiveScore"`
	WorkflowBoosted bool       `json:"workflowBoosted"`
	WasUseful       Usefulness `json:"wasUseful"`
}

// ReasoningPhase names a phase of a single Ask request, recorded by the
// Workflow Tracer.
type ReasoningPhase string

const (
	PhaseEmbed           ReasoningPhase = "embed"
	PhaseRetrieve        ReasoningPhase = "retrieve"
	PhaseWorkflowLookup  ReasoningPhase = "workflow_lookup"
	PhaseGenerate        ReasoningPhase = "generate"
	PhasePersist         ReasoningPhase = "persist"
)

// ReasoningStep is one ordered entry of a Session's reasoning trace.
type ReasoningStep struct {
	Phase       ReasoningPhase `json:"phase"`
	Description string         `json:"description"`
	DurationMs  int64          `json:"durationMs,omitempty"`
}

// Session is one (query, answer, retrieved chunks, feedback) tuple. The
// Retrieved list and ReasoningSteps are written once at creation and are
// immutable thereafter; FeedbackStatus, CorrectionText, and each entry's
// WasUseful are set exactly once by the Feedback Processor.
type Session struct {
	ID              int64            `json:"id"`
	Query           string           `json:"query"`
	QueryEmbedding  []float32        `json:"-"`
	Answer          string           `json:"answer"`
	Retrieved       []RetrievedChunk `json:"retrieved"`
	ReasoningSteps  []ReasoningStep  `json:"reasoningSteps"`
	FeedbackStatus  FeedbackStatus   `json:"feedbackStatus"`
	CorrectionText  *string          `json:"correctionText,omitempty"`
	CreatedAt       time.Time        `json:"createdAt"`
}

// ChunkFeedback is one caller-supplied (chunk_id, was_useful) pair in a
// FEEDBACK request (spec §6).
type ChunkFeedback struct {
	ChunkID   string `json:"chunkId"`
	WasUseful bool   `json:"wasUseful"`
}
