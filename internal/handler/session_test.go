package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/connexus-ai/ragbox-backend/internal/apperr"
	"github.com/connexus-ai/ragbox-backend/internal/model"
	"github.com/connexus-ai/ragbox-backend/internal/service"
)

type stubSessionGetter struct {
	session *model.Session
	getErr  error
	list    []model.Session
	listErr error
	gotFilt service.ListFilters
	gotPage service.Paging
}

func (s *stubSessionGetter) Get(ctx context.Context, id int64) (*model.Session, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.session, nil
}

func (s *stubSessionGetter) List(ctx context.Context, filters service.ListFilters, paging service.Paging) ([]model.Session, error) {
	s.gotFilt = filters
	s.gotPage = paging
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.list, nil
}

func requestWithIDParam(method, path, id string) *http.Request {
	return requestWithIDParamBody(method, path, id, "")
}

func requestWithIDParamBody(method, path, id, body string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id)
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

type stubSessionChunkGetter struct {
	chunks map[string]*model.Chunk
	err    error
}

func (s *stubSessionChunkGetter) Get(ctx context.Context, id string) (*model.Chunk, error) {
	if s.err != nil {
		return nil, s.err
	}
	c, ok := s.chunks[id]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "chunk not found")
	}
	return c, nil
}

func TestInspectSession_Found(t *testing.T) {
	stub := &stubSessionGetter{session: &model.Session{
		ID:             7,
		Query:          "q",
		FeedbackStatus: model.FeedbackPending,
		Retrieved:      []model.RetrievedChunk{{ChunkID: "c1", Rank: 0, Similarity: 0.9}},
	}}
	chunks := &stubSessionChunkGetter{chunks: map[string]*model.Chunk{
		"c1": {ID: "c1", Content: "some chunk content", AccuracyWeight: 1.4},
	}}
	h := InspectSession(stub, chunks)

	req := requestWithIDParam(http.MethodGet, "/api/admin/sessions/7", "7")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
	var got inspectedSession
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != 7 {
		t.Errorf("ID = %d, want 7", got.ID)
	}
	if len(got.Retrieved) != 1 {
		t.Fatalf("len(Retrieved) = %d, want 1", len(got.Retrieved))
	}
	if got.Retrieved[0].ContentPreview != "some chunk content" || got.Retrieved[0].AccuracyWeight != 1.4 {
		t.Errorf("enriched chunk = %+v", got.Retrieved[0])
	}
}

func TestInspectSession_MissingChunkLeavesPreviewEmpty(t *testing.T) {
	stub := &stubSessionGetter{session: &model.Session{
		ID:        8,
		Retrieved: []model.RetrievedChunk{{ChunkID: "gone"}},
	}}
	h := InspectSession(stub, &stubSessionChunkGetter{chunks: map[string]*model.Chunk{}})

	req := requestWithIDParam(http.MethodGet, "/api/admin/sessions/8", "8")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got inspectedSession
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got.Retrieved[0].ContentPreview != "" {
		t.Errorf("ContentPreview = %q, want empty for missing chunk", got.Retrieved[0].ContentPreview)
	}
}

func TestInspectSession_NonIntegerID(t *testing.T) {
	h := InspectSession(&stubSessionGetter{}, &stubSessionChunkGetter{})

	req := requestWithIDParam(http.MethodGet, "/api/admin/sessions/abc", "abc")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestListSessions_FiltersAndPaging(t *testing.T) {
	stub := &stubSessionGetter{list: []model.Session{{ID: 1}, {ID: 2}}}
	h := ListSessions(stub)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/sessions?status=correct&limit=10&offset=5", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
	if stub.gotFilt.FeedbackStatus == nil || *stub.gotFilt.FeedbackStatus != model.FeedbackCorrect {
		t.Errorf("status filter not applied: %+v", stub.gotFilt)
	}
	if stub.gotPage.Limit != 10 || stub.gotPage.Offset != 5 {
		t.Errorf("paging = %+v, want limit=10 offset=5", stub.gotPage)
	}
}

func TestListSessions_DefaultsPaging(t *testing.T) {
	stub := &stubSessionGetter{}
	h := ListSessions(stub)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/sessions", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if stub.gotPage.Limit != 50 || stub.gotPage.Offset != 0 {
		t.Errorf("default paging = %+v, want limit=50 offset=0", stub.gotPage)
	}
}

func TestListSessions_InvalidStatus(t *testing.T) {
	h := ListSessions(&stubSessionGetter{})

	req := httptest.NewRequest(http.MethodGet, "/api/admin/sessions?status=bogus", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestListSessions_InvalidSince(t *testing.T) {
	h := ListSessions(&stubSessionGetter{})

	req := httptest.NewRequest(http.MethodGet, "/api/admin/sessions?since=not-a-date", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
