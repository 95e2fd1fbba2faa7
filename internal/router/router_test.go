package router

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/connexus-ai/ragbox-backend/internal/feedback"
	"github.com/connexus-ai/ragbox-backend/internal/model"
	"github.com/connexus-ai/ragbox-backend/internal/orchestrator"
	"github.com/connexus-ai/ragbox-backend/internal/service"
)

type mockDB struct{ err error }

func (m *mockDB) Ping(ctx context.Context) error { return m.err }

type mockAsker struct {
	result orchestrator.Result
	err    error
}

func (m *mockAsker) Ask(ctx context.Context, query string, opts orchestrator.Options) (orchestrator.Result, error) {
	return m.result, m.err
}

type mockSessions struct {
	session *model.Session
	err     error
}

func (m *mockSessions) Get(ctx context.Context, id int64) (*model.Session, error) {
	return m.session, m.err
}

func (m *mockSessions) List(ctx context.Context, filters service.ListFilters, paging service.Paging) ([]model.Session, error) {
	return nil, nil
}

type mockChunkGetter struct{}

func (m *mockChunkGetter) Get(ctx context.Context, id string) (*model.Chunk, error) {
	return nil, fmt.Errorf("not found")
}

type mockFeedbackApplier struct{}

func (m *mockFeedbackApplier) Apply(ctx context.Context, sessionID int64, isCorrect bool, usefulness []model.ChunkFeedback, correction *string) (feedback.Result, error) {
	return feedback.Result{SessionID: sessionID, FeedbackStatus: model.FeedbackCorrect}, nil
}

type mockChunkWeightSetter struct{}

func (m *mockChunkWeightSetter) SetWeight(ctx context.Context, id string, newWeight float64) (float64, error) {
	return newWeight, nil
}

type mockEmbedder struct{}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1, 0.2}, nil
}

type mockWorkflowSearcher struct{}

func (m *mockWorkflowSearcher) FindSimilar(ctx context.Context, queryVec []float32, topM int, minSim float64) ([]model.ScoredMemory, error) {
	return nil, nil
}

type mockStats struct{}

func (m *mockStats) Compute(ctx context.Context, topN int) (model.Stats, error) {
	return model.Stats{}, nil
}

func newTestRouter() *Dependencies {
	return &Dependencies{
		DB:                &mockDB{},
		FrontendURL:       "http://localhost:3000",
		Version:           "0.2.0",
		AdminAuthSecret:   "admin-secret",
		Asker:             &mockAsker{},
		Sessions:          &mockSessions{session: &model.Session{ID: 1}},
		SessionChunks:     &mockChunkGetter{},
		FeedbackProcessor: &mockFeedbackApplier{},
		Chunks:            &mockChunkWeightSetter{},
		WorkflowEmbedder:  &mockEmbedder{},
		WorkflowMemories:  &mockWorkflowSearcher{},
		Stats:             &mockStats{},
	}
}

func TestHealth_IsPublic(t *testing.T) {
	r := New(newTestRouter())

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body map[string]string
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["status"] != "ok" {
		t.Errorf("status = %q, want %q", body["status"], "ok")
	}
	if body["version"] != "0.2.0" {
		t.Errorf("version = %q, want %q", body["version"], "0.2.0")
	}
}

func TestHealth_DBDown(t *testing.T) {
	deps := newTestRouter()
	deps.DB = &mockDB{err: fmt.Errorf("connection refused")}
	r := New(deps)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}

	var body map[string]string
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["database"] != "disconnected" {
		t.Errorf("database = %q, want %q", body["database"], "disconnected")
	}
}

func TestAsk_IsPublic(t *testing.T) {
	r := New(newTestRouter())

	req := httptest.NewRequest(http.MethodPost, "/api/ask", nil)
	req.Body = http.NoBody
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	// No auth needed; malformed/empty body yields 400, not 401.
	if rec.Code == http.StatusUnauthorized {
		t.Errorf("expected /api/ask to require no auth, got %d", rec.Code)
	}
}

func TestAdminSessions_RequiresAuth(t *testing.T) {
	r := New(newTestRouter())

	req := httptest.NewRequest(http.MethodGet, "/api/admin/sessions", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestAdminSessions_WithAuth(t *testing.T) {
	r := New(newTestRouter())

	req := httptest.NewRequest(http.MethodGet, "/api/admin/sessions/1", nil)
	req.Header.Set("Authorization", "Bearer admin-secret")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestAdminStats_RequiresAuth(t *testing.T) {
	r := New(newTestRouter())

	req := httptest.NewRequest(http.MethodGet, "/api/admin/stats", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestUnknownRoute_Returns404(t *testing.T) {
	r := New(newTestRouter())

	req := httptest.NewRequest(http.MethodGet, "/api/nonexistent", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}

	var body map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["success"] != false {
		t.Error("expected success=false for 404")
	}
}

func TestAdminMigrate_RequiresInternalSecret(t *testing.T) {
	deps := newTestRouter()
	deps.InternalAuthSecret = "correct-secret"
	r := New(deps)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/migrate", nil)
	req.Header.Set("X-Internal-Auth", "wrong-secret")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}
