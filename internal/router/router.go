package router

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/connexus-ai/ragbox-backend/internal/handler"
	"github.com/connexus-ai/ragbox-backend/internal/middleware"
)

// Dependencies holds all injected services needed by the router.
type Dependencies struct {
	DB                 handler.DBPinger
	FrontendURL        string
	Version            string
	Metrics            *middleware.Metrics
	MetricsReg         *prometheus.Registry
	AdminAuthSecret    string
	InternalAuthSecret string

	// ASK — no auth required, just a per-caller rate limit.
	Asker   handler.Asker
	AskOpts handler.AskOptions

	// Admin-authenticated operator surface: inspect sessions, apply
	// feedback, edit chunk weights, search workflow memories, read stats.
	Sessions          handler.SessionGetter
	SessionChunks     handler.SessionChunkGetter
	FeedbackProcessor handler.FeedbackApplier
	Chunks            handler.ChunkWeightSetter
	WorkflowEmbedder  handler.WorkflowEmbedder
	WorkflowMemories  handler.WorkflowMemorySearcher
	Stats             handler.StatsComputer

	// Admin migrations, run by the deploy pipeline rather than an operator.
	AdminMigrateDeps handler.AdminMigrateDeps

	// Rate limiters (nil = no rate limiting)
	AskRateLimiter *middleware.RateLimiter
}

// internalAuthOnly wraps a handler with a simple internal auth check.
// Used for admin endpoints called by the deploy pipeline (no operator bearer
// token, no user context).
func internalAuthOnly(secret string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("X-Internal-Auth")
		if secret == "" || token != secret {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"success": false,
				"error":   "unauthorized",
			})
			return
		}
		next.ServeHTTP(w, r)
	}
}

// New creates and configures the Chi router with all routes.
func New(deps *Dependencies) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.Logging)
	r.Use(middleware.CORS(deps.FrontendURL))
	if deps.Metrics != nil {
		r.Use(middleware.Monitoring(deps.Metrics))
	}

	// Public routes (no auth)
	r.Get("/api/health", handler.Health(deps.DB, deps.Version))
	if deps.MetricsReg != nil {
		r.Handle("/metrics", middleware.MetricsHandler(deps.MetricsReg))
	}

	// ASK — no auth required, just a per-caller rate limit and a blanket
	// deadline above the orchestrator's own embed/retrieve/generate timeouts.
	askHandler := middleware.Timeout(45 * time.Second)(handler.Ask(deps.Asker, deps.AskOpts))
	if deps.AskRateLimiter != nil {
		r.With(middleware.RateLimit(deps.AskRateLimiter)).Post("/api/ask", askHandler.ServeHTTP)
	} else {
		r.Post("/api/ask", askHandler.ServeHTTP)
	}

	// Admin migrations (internal auth only — called by the deploy pipeline)
	r.Post("/api/admin/migrate", internalAuthOnly(deps.InternalAuthSecret,
		handler.AdminMigrate(deps.AdminMigrateDeps)))

	// Admin-authenticated operator surface.
	r.Group(func(r chi.Router) {
		r.Use(middleware.AdminAuth(deps.AdminAuthSecret))
		r.Use(middleware.Timeout(30 * time.Second))

		r.Get("/api/admin/sessions", handler.ListSessions(deps.Sessions))
		r.Get("/api/admin/sessions/{id}", handler.InspectSession(deps.Sessions, deps.SessionChunks))
		r.Post("/api/admin/sessions/{id}/feedback", handler.Feedback(deps.FeedbackProcessor, deps.Metrics))
		r.Post("/api/admin/sessions/feedback:bulk", handler.BulkFeedback(deps.FeedbackProcessor, deps.Metrics))

		r.Post("/api/admin/chunks/edit", handler.ChunkEdit(deps.Chunks, deps.Metrics))

		r.Post("/api/admin/workflow-memories/search", handler.WorkflowSearch(deps.WorkflowEmbedder, deps.WorkflowMemories))

		r.Get("/api/admin/stats", handler.Stats(deps.Stats))
	})

	// 404 fallback
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": false,
			"error":   "route not found",
		})
	})

	return r
}
