package middleware

import (
	"encoding/json"
	"net/http"
	"time"
)

// timeoutBody uses internal/handler/respond.go's writeError envelope
// ({"success": false, "error": ...}) so a request that blows the blanket
// deadline below gets the same body shape as other errors. The status is
// http.TimeoutHandler's 503, not the 504 writeError uses for
// apperr.KindTimeout.
var timeoutBody = func() string {
	b, _ := json.Marshal(map[string]interface{}{
		"success": false,
		"error":   "request timeout",
	})
	return string(b)
}()

// Timeout wraps non-streaming handlers with an http.TimeoutHandler as a
// last-resort deadline: callers that reach their own per-stage apperr.KindTimeout
// (e.g. the Ask orchestrator's embed/retrieve/generate deadlines) return
// through the normal handler error path well before this fires. This one
// guards against a handler hanging outside any of those stages.
// Streaming (SSE) endpoints should NOT use this middleware.
func Timeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, timeoutBody)
	}
}
