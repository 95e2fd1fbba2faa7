package model

import "time"

// WorkflowMemory summarises a past correct answer along with the chunk ids
// that contributed to it. It is created only from sessions with
// FeedbackStatus = correct and at least one useful chunk (invariant I4), is
// never mutated after creation, and may be garbage-collected by an
// age/capacity policy the core does not define.
type WorkflowMemory struct {
	ID               string    `json:"id"`
	SummaryEmbedding []float32 `json:"-"`
	SourceSessionID  int64     `json:"sourceSessionId"`
	UsefulChunkIDs   []string  `json:"usefulChunkIds"`
	CreatedAt        time.Time `json:"createdAt"`
}
