package service

import (
	"context"
	"testing"

	"github.com/connexus-ai/ragbox-backend/internal/apperr"
	"github.com/connexus-ai/ragbox-backend/internal/model"
)

// mockSessionRepo is a mock implementation of SessionRepo.
type mockSessionRepo struct {
	sessions  map[int64]*model.Session
	nextID    int64
	createErr error
	listErr   error
}

func newMockSessionRepo() *mockSessionRepo {
	return &mockSessionRepo{sessions: make(map[int64]*model.Session)}
}

func (m *mockSessionRepo) Create(ctx context.Context, session *model.Session) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.nextID++
	session.ID = m.nextID
	cp := *session
	m.sessions[session.ID] = &cp
	return nil
}

func (m *mockSessionRepo) GetByID(ctx context.Context, id int64) (*model.Session, error) {
	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (m *mockSessionRepo) List(ctx context.Context, filters ListFilters, paging Paging) ([]model.Session, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []model.Session
	for _, s := range m.sessions {
		if filters.FeedbackStatus != nil && s.FeedbackStatus != *filters.FeedbackStatus {
			continue
		}
		out = append(out, *s)
	}
	return out, nil
}

func (m *mockSessionRepo) UpdateFeedback(ctx context.Context, id int64, status model.FeedbackStatus, usefulness map[string]bool, correction *string) error {
	s, ok := m.sessions[id]
	if !ok {
		return apperr.New(apperr.KindNotFound, "session not found")
	}
	if s.FeedbackStatus != model.FeedbackPending {
		return apperr.New(apperr.KindAlreadyFinalised, "feedback already finalised")
	}
	s.FeedbackStatus = status
	s.CorrectionText = correction
	for i := range s.Retrieved {
		if useful, ok := usefulness[s.Retrieved[i].ChunkID]; ok {
			if useful {
				s.Retrieved[i].WasUseful = model.UsefulTrue
			} else {
				s.Retrieved[i].WasUseful = model.UsefulFalse
			}
		}
	}
	return nil
}

func testRetrieved() []model.RetrievedChunk {
	return []model.RetrievedChunk{
		{ChunkID: "chunk-1", Rank: 1, Similarity: 0.9, EffectiveScore: 0.9, WasUseful: model.UsefulUnknown},
		{ChunkID: "chunk-2", Rank: 2, Similarity: 0.8, EffectiveScore: 0.8, WasUseful: model.UsefulUnknown},
	}
}

func TestSessionService_Create(t *testing.T) {
	repo := newMockSessionRepo()
	svc := NewSessionService(repo)

	session, err := svc.Create(context.Background(), "what is the refund window?", []float32{0.1, 0.2}, "30 days", testRetrieved(), nil)
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if session.ID == 0 {
		t.Error("expected non-zero session ID")
	}
	if session.FeedbackStatus != model.FeedbackPending {
		t.Errorf("FeedbackStatus = %q, want %q", session.FeedbackStatus, model.FeedbackPending)
	}
	if len(session.Retrieved) != 2 {
		t.Errorf("expected 2 retrieved chunks, got %d", len(session.Retrieved))
	}
}

func TestSessionService_Create_EmptyQuery(t *testing.T) {
	svc := NewSessionService(newMockSessionRepo())

	_, err := svc.Create(context.Background(), "", nil, "answer", nil, nil)
	if !apperr.Is(err, apperr.KindInvalidInput) {
		t.Fatalf("expected KindInvalidInput, got %v", err)
	}
}

func TestSessionService_Get(t *testing.T) {
	repo := newMockSessionRepo()
	svc := NewSessionService(repo)
	created, _ := svc.Create(context.Background(), "q", nil, "a", testRetrieved(), nil)

	got, err := svc.Get(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.ID != created.ID {
		t.Errorf("ID = %d, want %d", got.ID, created.ID)
	}
}

func TestSessionService_Get_NotFound(t *testing.T) {
	svc := NewSessionService(newMockSessionRepo())

	_, err := svc.Get(context.Background(), 999)
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected KindNotFound, got %v", err)
	}
}

func TestSessionService_List_FiltersByFeedbackStatus(t *testing.T) {
	repo := newMockSessionRepo()
	svc := NewSessionService(repo)
	a, _ := svc.Create(context.Background(), "q1", nil, "a1", testRetrieved(), nil)
	_, _ = svc.Create(context.Background(), "q2", nil, "a2", testRetrieved(), nil)

	correct := model.FeedbackCorrect
	if err := svc.UpdateFeedback(context.Background(), a.ID, correct, map[string]bool{"chunk-1": true}, nil); err != nil {
		t.Fatalf("UpdateFeedback() error: %v", err)
	}

	sessions, err := svc.List(context.Background(), ListFilters{FeedbackStatus: &correct}, Paging{})
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session with correct feedback, got %d", len(sessions))
	}
	if sessions[0].ID != a.ID {
		t.Errorf("session ID = %d, want %d", sessions[0].ID, a.ID)
	}
}

func TestSessionService_UpdateFeedback_MarksChunkUsefulness(t *testing.T) {
	repo := newMockSessionRepo()
	svc := NewSessionService(repo)
	created, _ := svc.Create(context.Background(), "q", nil, "a", testRetrieved(), nil)

	err := svc.UpdateFeedback(context.Background(), created.ID, model.FeedbackCorrect, map[string]bool{
		"chunk-1": true,
		"chunk-2": false,
	}, nil)
	if err != nil {
		t.Fatalf("UpdateFeedback() error: %v", err)
	}

	got, _ := svc.Get(context.Background(), created.ID)
	if got.FeedbackStatus != model.FeedbackCorrect {
		t.Errorf("FeedbackStatus = %q, want %q", got.FeedbackStatus, model.FeedbackCorrect)
	}
	if got.Retrieved[0].WasUseful != model.UsefulTrue {
		t.Errorf("chunk-1 WasUseful = %q, want %q", got.Retrieved[0].WasUseful, model.UsefulTrue)
	}
	if got.Retrieved[1].WasUseful != model.UsefulFalse {
		t.Errorf("chunk-2 WasUseful = %q, want %q", got.Retrieved[1].WasUseful, model.UsefulFalse)
	}
}

func TestSessionService_UpdateFeedback_RejectsSecondFinalisingCall(t *testing.T) {
	repo := newMockSessionRepo()
	svc := NewSessionService(repo)
	created, _ := svc.Create(context.Background(), "q", nil, "a", testRetrieved(), nil)

	if err := svc.UpdateFeedback(context.Background(), created.ID, model.FeedbackCorrect, map[string]bool{"chunk-1": true}, nil); err != nil {
		t.Fatalf("first UpdateFeedback() error: %v", err)
	}

	err := svc.UpdateFeedback(context.Background(), created.ID, model.FeedbackIncorrect, nil, nil)
	if !apperr.Is(err, apperr.KindAlreadyFinalised) {
		t.Fatalf("expected KindAlreadyFinalised, got %v", err)
	}
}

func TestSessionService_UpdateFeedback_InvalidStatus(t *testing.T) {
	repo := newMockSessionRepo()
	svc := NewSessionService(repo)
	created, _ := svc.Create(context.Background(), "q", nil, "a", testRetrieved(), nil)

	err := svc.UpdateFeedback(context.Background(), created.ID, model.FeedbackPending, nil, nil)
	if !apperr.Is(err, apperr.KindInvalidInput) {
		t.Fatalf("expected KindInvalidInput, got %v", err)
	}
}

func TestSessionService_UpdateFeedback_NotFound(t *testing.T) {
	svc := NewSessionService(newMockSessionRepo())

	err := svc.UpdateFeedback(context.Background(), 404, model.FeedbackCorrect, nil, nil)
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected KindNotFound, got %v", err)
	}
}
