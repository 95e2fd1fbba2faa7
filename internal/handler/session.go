package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/connexus-ai/ragbox-backend/internal/apperr"
	"github.com/connexus-ai/ragbox-backend/internal/model"
	"github.com/connexus-ai/ragbox-backend/internal/service"
)

// SessionGetter is the subset of SessionService the INSPECT SESSION and
// WORKFLOW SEARCH-adjacent listing endpoints need.
type SessionGetter interface {
	Get(ctx context.Context, id int64) (*model.Session, error)
	List(ctx context.Context, filters service.ListFilters, paging service.Paging) ([]model.Session, error)
}

// SessionChunkGetter resolves a chunk by id, used to attach content preview
// and current weight to each retrieved entry in an inspected session.
type SessionChunkGetter interface {
	Get(ctx context.Context, id string) (*model.Chunk, error)
}

const retrievedChunkPreviewLen = 200

// inspectedRetrievedChunk is one entry of INSPECT SESSION's retrieved list,
// joining the session's immutable retrieval record against the chunk
// store's current content and weight (spec §6: previews capped at 200
// chars, weight reflects live state rather than the value at retrieval
// time).
type inspectedRetrievedChunk struct {
	model.RetrievedChunk
	ContentPreview string  `json:"contentPreview"`
	AccuracyWeight float64 `json:"accuracyWeight"`
}

type inspectedSession struct {
	model.Session
	Retrieved []inspectedRetrievedChunk `json:"retrieved"`
}

// InspectSession returns the handler for GET /api/admin/sessions/{id}: the
// full stored record for one Ask request, including its retrieved list
// (enriched with live chunk content and weight) and reasoning trace
// (spec §6 INSPECT SESSION).
func InspectSession(sessions SessionGetter, chunks SessionChunkGetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			writeError(w, apperr.New(apperr.KindInvalidInput, "session id must be an integer"))
			return
		}

		session, err := sessions.Get(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}

		enriched := inspectedSession{Session: *session, Retrieved: make([]inspectedRetrievedChunk, 0, len(session.Retrieved))}
		for _, rc := range session.Retrieved {
			entry := inspectedRetrievedChunk{RetrievedChunk: rc}
			if chunk, err := chunks.Get(r.Context(), rc.ChunkID); err == nil && chunk != nil {
				entry.ContentPreview = chunk.Preview(retrievedChunkPreviewLen)
				entry.AccuracyWeight = chunk.AccuracyWeight
			}
			enriched.Retrieved = append(enriched.Retrieved, entry)
		}

		writeJSON(w, http.StatusOK, enriched)
	}
}

// ListSessions returns the handler for GET /api/admin/sessions, an
// operator-facing listing used to find sessions awaiting feedback.
// Supports ?status=pending|correct|incorrect, ?since=RFC3339, ?limit=, ?offset=.
func ListSessions(sessions SessionGetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var filters service.ListFilters

		if raw := q.Get("status"); raw != "" {
			status := model.FeedbackStatus(raw)
			switch status {
			case model.FeedbackPending, model.FeedbackCorrect, model.FeedbackIncorrect:
				filters.FeedbackStatus = &status
			default:
				writeError(w, apperr.New(apperr.KindInvalidInput, "invalid status filter"))
				return
			}
		}
		if raw := q.Get("since"); raw != "" {
			since, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				writeError(w, apperr.New(apperr.KindInvalidInput, "since must be RFC3339"))
				return
			}
			filters.Since = &since
		}

		paging := service.Paging{
			Limit:  queryInt(q, "limit", 50),
			Offset: queryInt(q, "offset", 0),
		}

		sess, err := sessions.List(r.Context(), filters, paging)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": sess})
	}
}

func queryInt(q map[string][]string, key string, fallback int) int {
	vals, ok := q[key]
	if !ok || len(vals) == 0 || vals[0] == "" {
		return fallback
	}
	n, err := strconv.Atoi(vals[0])
	if err != nil {
		return fallback
	}
	return n
}
