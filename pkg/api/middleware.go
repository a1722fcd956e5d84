package api

import (
	"net/http"
	"strconv"

	"github.com/cuemby/skynet-control/pkg/log"
	"github.com/cuemby/skynet-control/pkg/metrics"
)

var apiLog = log.WithComponent("api")

// withAuth rejects requests lacking a matching API key, via either the
// X-API-Key header or an "Authorization: Bearer <key>" header. An empty
// configured key disables authentication (local/dev use).
func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	if s.apiKey == "" {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-API-Key")
		if key == "" {
			if auth := r.Header.Get("Authorization"); len(auth) > 7 && auth[:7] == "Bearer " {
				key = auth[7:]
			}
		}
		if key != s.apiKey {
			writeError(w, errMissingAPIKey)
			return
		}
		next(w, r)
	}
}

// withRateLimit enforces the per-IP token bucket ahead of the handler.
func (s *Server) withRateLimit(next http.HandlerFunc) http.HandlerFunc {
	if s.limiter == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow(r) {
			metrics.RateLimitedTotal.Inc()
			writeError(w, errRateLimited)
			return
		}
		next(w, r)
	}
}

// statusRecorder captures the response status for the request metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(status int) {
	sr.status = status
	sr.ResponseWriter.WriteHeader(status)
}

// Flush passes through so the SSE event stream keeps working behind the
// recorder.
func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// withMetrics records per-route request counts and durations.
func (s *Server) withMetrics(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		timer := metrics.NewTimer()
		next(rec, r)
		route := r.Pattern
		if route == "" {
			route = r.URL.Path
		}
		timer.ObserveDurationVec(metrics.APIRequestDuration, route)
		metrics.APIRequestsTotal.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
	}
}

// protect composes the metrics, auth, and rate-limit middleware in the
// order the external interface promises them: unauthenticated callers are
// rejected before they consume rate-limit budget.
func (s *Server) protect(next http.HandlerFunc) http.HandlerFunc {
	return s.withMetrics(s.withAuth(s.withRateLimit(next)))
}
