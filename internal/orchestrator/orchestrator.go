// Package orchestrator composes the Embedder, Workflow Memory, Retriever,
// Generator, and Session Log into a single Ask request: embed the query,
// look up similar past workflows, retrieve candidate chunks, generate an
// answer, then persist the session.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/connexus-ai/ragbox-backend/internal/apperr"
	"github.com/connexus-ai/ragbox-backend/internal/model"
	"github.com/connexus-ai/ragbox-backend/internal/service"
)

// Per-call deadlines for the three external-boundary calls the Ask pipeline
// makes (spec §5: "each external call ... has its own deadline"), matching
// the teacher's inline context.WithTimeout-per-handler convention rather
// than a single blanket timeout.
const (
	embedTimeout    = 10 * time.Second
	retrieveTimeout = 5 * time.Second
	generateTimeout = 30 * time.Second
)

// Embedder produces a query embedding.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// WorkflowMemoryFinder looks up similar past-successful workflow memories.
type WorkflowMemoryFinder interface {
	FindSimilar(ctx context.Context, queryVec []float32, topM int, minSim float64) ([]model.ScoredMemory, error)
}

// Retriever fetches candidate chunks and ranks them for a query. FetchCandidates
// and Rank are kept separate so the orchestrator can run the candidate fetch
// concurrently with a workflow-memory lookup (both depend only on the query
// embedding, per spec §5) and only rank once both have returned.
type Retriever interface {
	FetchCandidates(ctx context.Context, queryVec []float32, k int) ([]model.ScoredChunk, error)
	Rank(candidates []model.ScoredChunk, k int, workflowHits []model.ScoredMemory) []service.RankedChunk
}

// Generator produces an answer grounded in retrieved chunks.
type Generator interface {
	Generate(ctx context.Context, query string, chunks []service.RankedChunk, tracer *service.Tracer) (string, []model.ReasoningStep, error)
}

// SessionWriter persists the completed Ask request as a Session.
type SessionWriter interface {
	Create(ctx context.Context, query string, queryEmbedding []float32, answer string, retrieved []model.RetrievedChunk, steps []model.ReasoningStep) (*model.Session, error)
}

// Options configures a single Ask call.
type Options struct {
	K               int
	WorkflowEnabled bool
	WorkflowTopM    int
	MinMemorySim    float64
}

// Result is what Ask returns to its caller.
type Result struct {
	Answer    string
	SessionID int64
	Sources   []string
	Steps     []model.ReasoningStep
}

// Orchestrator validates the query, then runs the five-step Ask pipeline:
// embed, workflow lookup, retrieve, generate, persist.
type Orchestrator struct {
	embedder  Embedder
	memories  WorkflowMemoryFinder
	retriever Retriever
	generator Generator
	sessions  SessionWriter
	qMax      int
}

// New creates an Orchestrator. qMax bounds query length in characters.
func New(embedder Embedder, memories WorkflowMemoryFinder, retriever Retriever, generator Generator, sessions SessionWriter, qMax int) *Orchestrator {
	return &Orchestrator{
		embedder:  embedder,
		memories:  memories,
		retriever: retriever,
		generator: generator,
		sessions:  sessions,
		qMax:      qMax,
	}
}

// Ask runs the pipeline for one query. No Session is written if any step
// before persistence fails; the Session write is always the last action.
func (o *Orchestrator) Ask(ctx context.Context, query string, opts Options) (Result, error) {
	if query == "" {
		return Result{}, apperr.New(apperr.KindInvalidInput, "orchestrator.Ask: query is empty")
	}
	if o.qMax > 0 && len([]rune(query)) > o.qMax {
		return Result{}, apperr.New(apperr.KindInvalidInput, fmt.Sprintf("orchestrator.Ask: query exceeds %d characters", o.qMax))
	}
	if opts.K <= 0 {
		return Result{}, apperr.New(apperr.KindInvalidInput, "orchestrator.Ask: k must be positive")
	}

	tracer := service.NewTracer()

	tracer.MarkPhaseStart(model.PhaseEmbed)
	embedCtx, embedCancel := context.WithTimeout(ctx, embedTimeout)
	queryVec, err := o.embedder.Embed(embedCtx, query)
	deadlineExceeded := errors.Is(embedCtx.Err(), context.DeadlineExceeded)
	embedCancel()
	if err != nil {
		if deadlineExceeded {
			return Result{}, apperr.Wrap(apperr.KindTimeout, "orchestrator.Ask: embed", err)
		}
		return Result{}, fmt.Errorf("orchestrator.Ask: embed: %w", err)
	}
	tracer.MarkPhaseEnd(model.PhaseEmbed, "embedded query")

	// Candidate fetch and workflow-memory lookup both depend only on
	// queryVec, so they run concurrently under one deadline; ranking itself
	// is a pure, synchronous step with no suspension point (spec §5).
	tracer.MarkPhaseStart(model.PhaseRetrieve)
	if opts.WorkflowEnabled {
		tracer.MarkPhaseStart(model.PhaseWorkflowLookup)
	}

	retrieveCtx, retrieveCancel := context.WithTimeout(ctx, retrieveTimeout)
	defer retrieveCancel()

	var candidates []model.ScoredChunk
	var workflowHits []model.ScoredMemory
	g, gCtx := errgroup.WithContext(retrieveCtx)
	g.Go(func() error {
		var err error
		candidates, err = o.retriever.FetchCandidates(gCtx, queryVec, opts.K)
		return err
	})
	if opts.WorkflowEnabled {
		g.Go(func() error {
			var err error
			workflowHits, err = o.memories.FindSimilar(gCtx, queryVec, opts.WorkflowTopM, opts.MinMemorySim)
			return err
		})
	}
	err = g.Wait()
	deadlineExceeded = errors.Is(retrieveCtx.Err(), context.DeadlineExceeded)
	if err != nil {
		if deadlineExceeded {
			return Result{}, apperr.Wrap(apperr.KindTimeout, "orchestrator.Ask: retrieve", err)
		}
		return Result{}, fmt.Errorf("orchestrator.Ask: retrieve: %w", err)
	}
	if opts.WorkflowEnabled {
		tracer.MarkPhaseEnd(model.PhaseWorkflowLookup, fmt.Sprintf("found %d workflow hits", len(workflowHits)))
	}

	ranked := o.retriever.Rank(candidates, opts.K, workflowHits)
	tracer.MarkPhaseEnd(model.PhaseRetrieve, fmt.Sprintf("retrieved %d chunks", len(ranked)))
	for i, c := range ranked {
		tracer.AddRetrieved(c.Chunk.ID, i+1, c.Similarity, c.EffectiveScore, c.WorkflowBoosted)
	}

	genCtx, genCancel := context.WithTimeout(ctx, generateTimeout)
	answer, _, err := o.generator.Generate(genCtx, query, ranked, tracer)
	deadlineExceeded = errors.Is(genCtx.Err(), context.DeadlineExceeded)
	genCancel()
	if err != nil {
		if deadlineExceeded {
			return Result{}, apperr.Wrap(apperr.KindTimeout, "orchestrator.Ask: generate", err)
		}
		return Result{}, fmt.Errorf("orchestrator.Ask: generate: %w", err)
	}

	select {
	case <-ctx.Done():
		return Result{}, fmt.Errorf("orchestrator.Ask: %w", ctx.Err())
	default:
	}

	retrieved, steps := tracer.Snapshot()
	session, err := o.sessions.Create(ctx, query, queryVec, answer, retrieved, steps)
	if err != nil {
		return Result{}, fmt.Errorf("orchestrator.Ask: persist: %w", err)
	}

	sources := make([]string, len(ranked))
	for i, c := range ranked {
		sources[i] = c.Chunk.Slug()
	}

	_, finalSteps := tracer.Snapshot()
	return Result{
		Answer:    answer,
		SessionID: session.ID,
		Sources:   sources,
		Steps:     finalSteps,
	}, nil
}
