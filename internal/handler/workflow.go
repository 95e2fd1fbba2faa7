package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/connexus-ai/ragbox-backend/internal/apperr"
	"github.com/connexus-ai/ragbox-backend/internal/model"
)

// WorkflowEmbedder turns query text into an embedding for memory search.
type WorkflowEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// WorkflowMemorySearcher finds workflow memories similar to a query vector.
type WorkflowMemorySearcher interface {
	FindSimilar(ctx context.Context, queryVec []float32, topM int, minSim float64) ([]model.ScoredMemory, error)
}

type workflowSearchRequest struct {
	QueryText      string  `json:"queryText"`
	SuccessfulOnly bool    `json:"successfulOnly"`
	MinSimilarity  float64 `json:"minSimilarity"`
	TopK           int     `json:"topK"`
}

type workflowMemoryResult struct {
	ID              string   `json:"id"`
	SourceSessionID int64    `json:"sourceSessionId"`
	UsefulChunkIDs  []string `json:"usefulChunkIds"`
	Similarity      float64  `json:"similarity"`
}

type workflowSearchResponse struct {
	Memories []workflowMemoryResult `json:"memories"`
}

// WorkflowSearch returns the handler for POST /api/admin/workflow-memories/search
// (spec §6 WORKFLOW SEARCH). Every stored workflow memory is already backed
// by a correct session (invariant I4: a memory is only ever created from
// correct feedback), so successfulOnly has nothing left to filter and is
// accepted purely for contract compatibility.
func WorkflowSearch(embedder WorkflowEmbedder, memories WorkflowMemorySearcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req workflowSearchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, apperr.New(apperr.KindInvalidInput, "malformed JSON body"))
			return
		}
		if req.QueryText == "" {
			writeError(w, apperr.New(apperr.KindInvalidInput, "queryText is required"))
			return
		}

		queryVec, err := embedder.Embed(r.Context(), req.QueryText)
		if err != nil {
			writeError(w, err)
			return
		}

		hits, err := memories.FindSimilar(r.Context(), queryVec, req.TopK, req.MinSimilarity)
		if err != nil {
			writeError(w, err)
			return
		}

		resp := workflowSearchResponse{Memories: make([]workflowMemoryResult, 0, len(hits))}
		for _, h := range hits {
			resp.Memories = append(resp.Memories, workflowMemoryResult{
				ID:              h.Memory.ID,
				SourceSessionID: h.Memory.SourceSessionID,
				UsefulChunkIDs:  h.Memory.UsefulChunkIDs,
				Similarity:      h.Similarity,
			})
		}

		writeJSON(w, http.StatusOK, resp)
	}
}
