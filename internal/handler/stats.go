package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/connexus-ai/ragbox-backend/internal/model"
)

// StatsComputer computes the aggregate STATS snapshot.
type StatsComputer interface {
	Compute(ctx context.Context, topN int) (model.Stats, error)
}

// Stats returns the handler for GET /api/admin/stats (spec §6 STATS):
// accuracy rate, pending feedback count, and top-N chunks by usefulness.
// ?top_n overrides the service's default ranking size.
func Stats(stats StatsComputer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		topN := 0
		if v := r.URL.Query().Get("top_n"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				topN = n
			}
		}

		snapshot, err := stats.Compute(r.Context(), topN)
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, snapshot)
	}
}
