package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/connexus-ai/ragbox-backend/internal/apperr"
	"github.com/connexus-ai/ragbox-backend/internal/model"
)

// ListFilters narrows a session List call. A nil field means unfiltered.
type ListFilters struct {
	FeedbackStatus *model.FeedbackStatus
	Since          *time.Time
}

// Paging bounds a session List call.
type Paging struct {
	Limit  int
	Offset int
}

// SessionRepo defines persistence operations for sessions. UpdateFeedback is
// expected to enforce the AlreadyFinalised guard atomically (e.g. an UPDATE
// ... WHERE feedback_status = 'pending' that reports zero rows affected),
// since a prior read-then-write in the service layer cannot by itself rule
// out a concurrent second feedback call.
type SessionRepo interface {
	Create(ctx context.Context, session *model.Session) error
	GetByID(ctx context.Context, id int64) (*model.Session, error)
	List(ctx context.Context, filters ListFilters, paging Paging) ([]model.Session, error)
	UpdateFeedback(ctx context.Context, id int64, status model.FeedbackStatus, usefulness map[string]bool, correction *string) error
}

// SessionService records and retrieves Ask requests and applies the
// feedback lifecycle guard described in spec §4.7: a session's feedback may
// be finalised at most once.
type SessionService struct {
	repo SessionRepo
}

// NewSessionService creates a SessionService.
func NewSessionService(repo SessionRepo) *SessionService {
	return &SessionService{repo: repo}
}

// Create persists a new session in a single atomic write, including its
// retrieved list and reasoning trace. Sessions always start pending.
func (s *SessionService) Create(ctx context.Context, query string, queryEmbedding []float32, answer string, retrieved []model.RetrievedChunk, steps []model.ReasoningStep) (*model.Session, error) {
	if query == "" {
		return nil, apperr.New(apperr.KindInvalidInput, "service.CreateSession: query is empty")
	}

	session := &model.Session{
		Query:          query,
		QueryEmbedding: queryEmbedding,
		Answer:         answer,
		Retrieved:      retrieved,
		ReasoningSteps: steps,
		FeedbackStatus: model.FeedbackPending,
	}

	if err := s.repo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("service.CreateSession: %w", err)
	}

	slog.Info("session created", "session_id", session.ID, "chunks_retrieved", len(retrieved))
	return session, nil
}

// Get returns a session by id, wrapping a missing row as NotFound.
func (s *SessionService) Get(ctx context.Context, id int64) (*model.Session, error) {
	session, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service.GetSession: %w", err)
	}
	if session == nil {
		return nil, apperr.New(apperr.KindNotFound, fmt.Sprintf("service.GetSession: session %d not found", id))
	}
	return session, nil
}

// List returns sessions matching filters, newest first, bounded by paging.
func (s *SessionService) List(ctx context.Context, filters ListFilters, paging Paging) ([]model.Session, error) {
	if paging.Limit <= 0 {
		paging.Limit = 50
	}
	sessions, err := s.repo.List(ctx, filters, paging)
	if err != nil {
		return nil, fmt.Errorf("service.ListSessions: %w", err)
	}
	return sessions, nil
}

// UpdateFeedback finalises a session's feedback status exactly once. A
// second call against an already-finalised session fails with
// AlreadyFinalised, whether reported by a defensive pre-check here or by
// the repo's own atomic guard.
func (s *SessionService) UpdateFeedback(ctx context.Context, id int64, status model.FeedbackStatus, usefulness map[string]bool, correction *string) error {
	if status != model.FeedbackCorrect && status != model.FeedbackIncorrect {
		return apperr.New(apperr.KindInvalidInput, fmt.Sprintf("service.UpdateFeedback: invalid terminal status %q", status))
	}

	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("service.UpdateFeedback: %w", err)
	}
	if existing == nil {
		return apperr.New(apperr.KindNotFound, fmt.Sprintf("service.UpdateFeedback: session %d not found", id))
	}
	if existing.FeedbackStatus != model.FeedbackPending {
		return apperr.New(apperr.KindAlreadyFinalised, fmt.Sprintf("service.UpdateFeedback: session %d feedback already %s", id, existing.FeedbackStatus))
	}

	if err := s.repo.UpdateFeedback(ctx, id, status, usefulness, correction); err != nil {
		return fmt.Errorf("service.UpdateFeedback: %w", err)
	}

	slog.Info("session feedback recorded", "session_id", id, "status", status, "usefulness_count", len(usefulness))
	return nil
}
