package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/connexus-ai/ragbox-backend/internal/apperr"
	"github.com/connexus-ai/ragbox-backend/internal/model"
	"github.com/connexus-ai/ragbox-backend/internal/orchestrator"
)

// Asker runs the Ask pipeline (embed, workflow lookup, retrieve, generate, persist).
type Asker interface {
	Ask(ctx context.Context, query string, opts orchestrator.Options) (orchestrator.Result, error)
}

type askRequest struct {
	Query        string `json:"query"`
	IncludeTrace bool   `json:"includeTrace"`
}

type askResponse struct {
	SessionID int64                 `json:"sessionId"`
	Answer    string                `json:"answer"`
	Sources   []string              `json:"sources"`
	Steps     []model.ReasoningStep `json:"reasoningSteps,omitempty"`
}

// AskOptions configures the fixed parameters of every Ask call this handler
// issues (spec §6 ASK takes only a query from the caller; K and workflow
// tuning are server-side configuration, not request parameters).
type AskOptions struct {
	K               int
	WorkflowEnabled bool
	WorkflowTopM    int
	MinMemorySim    float64
}

// Ask returns the handler for POST /api/ask. No auth is required per spec §6.
func Ask(asker Asker, opts AskOptions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req askRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, apperr.New(apperr.KindInvalidInput, "malformed JSON body"))
			return
		}

		result, err := asker.Ask(r.Context(), req.Query, orchestrator.Options{
			K:               opts.K,
			WorkflowEnabled: opts.WorkflowEnabled,
			WorkflowTopM:    opts.WorkflowTopM,
			MinMemorySim:    opts.MinMemorySim,
		})
		if err != nil {
			writeError(w, err)
			return
		}

		resp := askResponse{
			SessionID: result.SessionID,
			Answer:    result.Answer,
			Sources:   result.Sources,
		}
		if req.IncludeTrace {
			resp.Steps = result.Steps
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
