package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const requestIDHeader = "X-Request-ID"

// loggingMiddleware tags every request with an id, attaches a request-scoped
// logger to the context and logs the outcome.
func loggingMiddleware(logger zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)

		reqLogger := logger.With().Str("request_id", requestID).Logger()
		r = r.WithContext(reqLogger.WithContext(r.Context()))

		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		ev := reqLogger.Info()
		if recorder.status >= http.StatusInternalServerError {
			ev = reqLogger.Error()
		}
		ev.Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote", clientKey(r)).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
