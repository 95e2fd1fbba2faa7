package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/connexus-ai/ragbox-backend/internal/apperr"
	"github.com/connexus-ai/ragbox-backend/internal/feedback"
	"github.com/connexus-ai/ragbox-backend/internal/model"
)

// FeedbackApplier applies one feedback event to a completed session.
type FeedbackApplier interface {
	Apply(ctx context.Context, sessionID int64, isCorrect bool, usefulness []model.ChunkFeedback, correction *string) (feedback.Result, error)
}

// FeedbackMetricsRecorder is satisfied by *middleware.Metrics; declared here
// to avoid a handler -> middleware import for just this one call.
type FeedbackMetricsRecorder interface {
	RecordFeedbackApplied(status string)
	RecordWorkflowMemoryCreated()
}

type feedbackRequest struct {
	IsCorrect  bool                  `json:"isCorrect"`
	Usefulness []model.ChunkFeedback `json:"usefulness"`
	Correction *string               `json:"correction,omitempty"`
}

type feedbackResponse struct {
	SessionID        int64  `json:"sessionId"`
	FeedbackStatus   string `json:"feedbackStatus"`
	WeightsAdjusted  int    `json:"weightsAdjusted"`
	WorkflowMemoryID string `json:"workflowMemoryId,omitempty"`
}

func toFeedbackResponse(r feedback.Result) feedbackResponse {
	return feedbackResponse{
		SessionID:        r.SessionID,
		FeedbackStatus:   string(r.FeedbackStatus),
		WeightsAdjusted:  r.WeightsAdjusted,
		WorkflowMemoryID: r.WorkflowMemoryID,
	}
}

// Feedback returns the handler for POST /api/admin/sessions/{id}/feedback
// (spec §6 FEEDBACK, single-session form).
func Feedback(processor FeedbackApplier, metrics FeedbackMetricsRecorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			writeError(w, apperr.New(apperr.KindInvalidInput, "session id must be an integer"))
			return
		}

		var req feedbackRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, apperr.New(apperr.KindInvalidInput, "malformed JSON body"))
			return
		}

		result, err := processor.Apply(r.Context(), id, req.IsCorrect, req.Usefulness, req.Correction)
		if err != nil {
			writeError(w, err)
			return
		}

		recordFeedbackMetrics(metrics, result)
		writeJSON(w, http.StatusOK, toFeedbackResponse(result))
	}
}

type bulkFeedbackItem struct {
	SessionID  int64                 `json:"sessionId"`
	IsCorrect  bool                  `json:"isCorrect"`
	Usefulness []model.ChunkFeedback `json:"usefulness"`
	Correction *string               `json:"correction,omitempty"`
}

type bulkFeedbackRequest struct {
	Items []bulkFeedbackItem `json:"items"`
}

type bulkFeedbackResult struct {
	SessionID int64             `json:"sessionId"`
	Result    *feedbackResponse `json:"result,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// BulkFeedback returns the handler for POST /api/admin/sessions/feedback:bulk
// (spec §6 FEEDBACK, bulk form). Each item is applied independently — one
// item's failure (e.g. already finalised) does not block the rest.
func BulkFeedback(processor FeedbackApplier, metrics FeedbackMetricsRecorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req bulkFeedbackRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, apperr.New(apperr.KindInvalidInput, "malformed JSON body"))
			return
		}

		results := make([]bulkFeedbackResult, 0, len(req.Items))
		for _, item := range req.Items {
			result, err := processor.Apply(r.Context(), item.SessionID, item.IsCorrect, item.Usefulness, item.Correction)
			if err != nil {
				results = append(results, bulkFeedbackResult{SessionID: item.SessionID, Error: err.Error()})
				continue
			}
			recordFeedbackMetrics(metrics, result)
			fr := toFeedbackResponse(result)
			results = append(results, bulkFeedbackResult{SessionID: item.SessionID, Result: &fr})
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{"results": results})
	}
}

func recordFeedbackMetrics(metrics FeedbackMetricsRecorder, result feedback.Result) {
	if metrics == nil {
		return
	}
	metrics.RecordFeedbackApplied(string(result.FeedbackStatus))
	if result.WorkflowMemoryID != "" {
		metrics.RecordWorkflowMemoryCreated()
	}
}
