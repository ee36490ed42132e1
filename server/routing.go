package server

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/teranos/crosspost/logger"
)

// setupHTTPRoutes configures all HTTP handlers
func (s *Server) setupHTTPRoutes() {
	s.mux.HandleFunc("/api/scheduler/process", s.requestMiddleware(s.HandleProcess)) // Run one processing pass (POST)
	s.mux.HandleFunc("/healthz", s.HandleHealth)                                      // Liveness and lifecycle state (GET)
}

// statusRecorder captures the response code for the access log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// requestMiddleware tags the request context with a request id, so every
// log line of the pass it triggers can be correlated, and logs the result.
func (s *Server) requestMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		ctx := logger.WithRequestID(r.Context(), requestID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next(rec, r.WithContext(ctx))

		logger.FromContext(ctx, s.logger).Infow("Request handled",
			"method", r.Method,
			"path", r.URL.Path,
			logger.FieldStatus, rec.status,
			logger.FieldDurationMS, time.Since(start).Milliseconds())
	}
}
