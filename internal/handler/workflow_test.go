package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/connexus-ai/ragbox-backend/internal/model"
)

type stubWorkflowEmbedder struct {
	vec   []float32
	err   error
	gotTx string
}

func (s *stubWorkflowEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	s.gotTx = text
	if s.err != nil {
		return nil, s.err
	}
	return s.vec, nil
}

type stubWorkflowMemorySearcher struct {
	hits     []model.ScoredMemory
	err      error
	gotTopM  int
	gotMinSi float64
}

func (s *stubWorkflowMemorySearcher) FindSimilar(ctx context.Context, queryVec []float32, topM int, minSim float64) ([]model.ScoredMemory, error) {
	s.gotTopM = topM
	s.gotMinSi = minSim
	if s.err != nil {
		return nil, s.err
	}
	return s.hits, nil
}

func TestWorkflowSearch_Success(t *testing.T) {
	embedder := &stubWorkflowEmbedder{vec: []float32{0.1, 0.2}}
	searcher := &stubWorkflowMemorySearcher{hits: []model.ScoredMemory{
		{Memory: model.WorkflowMemory{ID: "wm-1", SourceSessionID: 5, UsefulChunkIDs: []string{"c1"}}, Similarity: 0.91},
	}}
	h := WorkflowSearch(embedder, searcher)

	body := `{"queryText":"how to configure retries","minSimilarity":0.8,"topK":5}`
	req := httptest.NewRequest(http.MethodPost, "/api/admin/workflow-memories/search", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
	if embedder.gotTx != "how to configure retries" {
		t.Errorf("embedded text = %q", embedder.gotTx)
	}
	if searcher.gotTopM != 5 || searcher.gotMinSi != 0.8 {
		t.Errorf("search params = topM=%d minSim=%v", searcher.gotTopM, searcher.gotMinSi)
	}

	var resp workflowSearchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Memories) != 1 || resp.Memories[0].ID != "wm-1" {
		t.Errorf("memories = %+v", resp.Memories)
	}
}

func TestWorkflowSearch_MissingQueryText(t *testing.T) {
	h := WorkflowSearch(&stubWorkflowEmbedder{}, &stubWorkflowMemorySearcher{})

	req := httptest.NewRequest(http.MethodPost, "/api/admin/workflow-memories/search", strings.NewReader(`{"topK":5}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestWorkflowSearch_NoMatches(t *testing.T) {
	h := WorkflowSearch(&stubWorkflowEmbedder{vec: []float32{0.1}}, &stubWorkflowMemorySearcher{})

	req := httptest.NewRequest(http.MethodPost, "/api/admin/workflow-memories/search", strings.NewReader(`{"queryText":"q"}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp workflowSearchResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Memories == nil || len(resp.Memories) != 0 {
		t.Errorf("memories = %+v, want empty slice not nil", resp.Memories)
	}
}
