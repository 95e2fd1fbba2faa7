package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/connexus-ai/ragbox-backend/internal/apperr"
)

// ChunkWeightSetter atomically sets a chunk's accuracy weight.
type ChunkWeightSetter interface {
	SetWeight(ctx context.Context, id string, newWeight float64) (float64, error)
}

// ChunkEditMetricsRecorder is satisfied by *middleware.Metrics.
type ChunkEditMetricsRecorder interface {
	RecordChunkWeightAdjustment()
}

type chunkEditRequest struct {
	ChunkID   string  `json:"chunkId"`
	NewWeight float64 `json:"newWeight"`
	Reason    string  `json:"reason"`
}

type chunkEditResponse struct {
	ChunkID   string  `json:"chunkId"`
	NewWeight float64 `json:"newWeight"`
}

// ChunkEdit returns the handler for POST /api/admin/chunks/edit (spec §6
// CHUNK EDIT): an operator-initiated absolute weight override, distinct
// from the bounded per-event adjustment the Feedback Processor applies.
func ChunkEdit(chunks ChunkWeightSetter, metrics ChunkEditMetricsRecorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req chunkEditRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, apperr.New(apperr.KindInvalidInput, "malformed JSON body"))
			return
		}
		if req.ChunkID == "" {
			writeError(w, apperr.New(apperr.KindInvalidInput, "chunkId is required"))
			return
		}
		if req.Reason == "" {
			writeError(w, apperr.New(apperr.KindInvalidInput, "reason is required"))
			return
		}

		newWeight, err := chunks.SetWeight(r.Context(), req.ChunkID, req.NewWeight)
		if err != nil {
			writeError(w, err)
			return
		}
		if metrics != nil {
			metrics.RecordChunkWeightAdjustment()
		}

		writeJSON(w, http.StatusOK, chunkEditResponse{ChunkID: req.ChunkID, NewWeight: newWeight})
	}
}
