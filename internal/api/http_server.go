package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"ridesync/internal/cache"
	"ridesync/internal/config"
	"ridesync/internal/metrics"
	"ridesync/internal/models"
	"ridesync/internal/queue"
	"ridesync/internal/service"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Service is what the HTTP surface needs from the offline service.
type Service interface {
	UpsertUser(ctx context.Context, p models.UserPayload) (models.QueueItem, error)
	UpsertTrip(ctx context.Context, t models.TripRecord) (models.QueueItem, error)
	CreateBooking(ctx context.Context, p models.BookingPayload) (string, models.QueueItem, error)
	UpdateBookingStatus(ctx context.Context, bookingID, status string) (models.QueueItem, error)
	Drain(ctx context.Context) models.SyncStatus
	Refresh(ctx context.Context) (*cache.Snapshot, error)
	RequeueDeadLetter(ctx context.Context, seq int64) (models.QueueItem, error)
	Status() models.SyncStatus
	PendingCount() int
	PendingItems() []models.QueueItem
	DeadLetters() []models.DeadLetter
	Snapshot() *cache.Snapshot
}

const maxBodyBytes = 1 << 20

// HTTPServer exposes the offline service as a JSON API.
type HTTPServer struct {
	svc    Service
	server *http.Server
	logger zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, metricsEnabled bool, svc Service, logger *zerolog.Logger) *HTTPServer {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "http").Logger()
	}
	srv := &HTTPServer{svc: svc, logger: l}

	mux := http.NewServeMux()
	srv.handle(mux, "GET /healthz", srv.handleHealth)
	srv.handle(mux, "GET /api/v1/status", srv.handleStatus)
	srv.handle(mux, "GET /api/v1/queue", srv.handleQueue)
	srv.handle(mux, "GET /api/v1/queue/dead", srv.handleDeadLetters)
	srv.handle(mux, "POST /api/v1/queue/dead/{seq}/requeue", srv.handleRequeue)
	srv.handle(mux, "GET /api/v1/snapshot", srv.handleSnapshot)
	srv.handle(mux, "POST /api/v1/refresh", srv.handleRefresh)
	srv.handle(mux, "POST /api/v1/drain", srv.handleDrain)
	srv.handle(mux, "POST /api/v1/users", srv.handleUpsertUser)
	srv.handle(mux, "POST /api/v1/trips", srv.handleUpsertTrip)
	srv.handle(mux, "POST /api/v1/bookings", srv.handleCreateBooking)
	srv.handle(mux, "PATCH /api/v1/bookings/{id}", srv.handleUpdateBooking)
	if metricsEnabled {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	handler := loggingMiddleware(l, newRateLimiter(cfg.RateLimit).Wrap(mux))

	port := cfg.Port
	if port <= 0 {
		port = 8080
	}
	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	return srv
}

func (s *HTTPServer) handle(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		metrics.IncHTTP(pattern)
		h(w, r)
	})
}

// Handler returns the fully wrapped handler.
func (s *HTTPServer) Handler() http.Handler { return s.server.Handler }

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       s.svc.Status(),
		"pending":      s.svc.PendingCount(),
		"dead_letters": len(s.svc.DeadLetters()),
	})
}

func (s *HTTPServer) handleQueue(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"items": s.svc.PendingItems()})
}

func (s *HTTPServer) handleDeadLetters(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"dead_letters": s.svc.DeadLetters()})
}

func (s *HTTPServer) handleRequeue(w http.ResponseWriter, r *http.Request) {
	seq, err := strconv.ParseInt(r.PathValue("seq"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid sequence id")
		return
	}
	item, err := s.svc.RequeueDeadLetter(r.Context(), seq)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"item": item, "status": s.svc.Status()})
}

func (s *HTTPServer) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Snapshot().Raw())
}

func (s *HTTPServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	snap, err := s.svc.Refresh(r.Context())
	if err != nil {
		if errors.Is(err, cache.ErrUnreachable) {
			writeError(w, http.StatusServiceUnavailable, "remote store unreachable, serving cached data")
			return
		}
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap.Raw())
}

func (s *HTTPServer) handleDrain(w http.ResponseWriter, r *http.Request) {
	status := s.svc.Drain(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"status": status, "pending": s.svc.PendingCount()})
}

func (s *HTTPServer) handleUpsertUser(w http.ResponseWriter, r *http.Request) {
	var p models.UserPayload
	if !decodeBody(w, r, &p) {
		return
	}
	item, err := s.svc.UpsertUser(r.Context(), p)
	s.writeQueued(w, r, item, err, nil)
}

func (s *HTTPServer) handleUpsertTrip(w http.ResponseWriter, r *http.Request) {
	var t models.TripRecord
	if !decodeBody(w, r, &t) {
		return
	}
	item, err := s.svc.UpsertTrip(r.Context(), t)
	s.writeQueued(w, r, item, err, nil)
}

func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	var p models.BookingPayload
	if !decodeBody(w, r, &p) {
		return
	}
	id, item, err := s.svc.CreateBooking(r.Context(), p)
	s.writeQueued(w, r, item, err, map[string]any{"id": id})
}

func (s *HTTPServer) handleUpdateBooking(w http.ResponseWriter, r *http.Request) {
	var p models.BookingStatusPatch
	if !decodeBody(w, r, &p) {
		return
	}
	item, err := s.svc.UpdateBookingStatus(r.Context(), r.PathValue("id"), p.Status)
	s.writeQueued(w, r, item, err, nil)
}

// writeQueued answers 202: the write is durable locally, remote delivery is
// reported through status.
func (s *HTTPServer) writeQueued(w http.ResponseWriter, r *http.Request, item models.QueueItem, err error, extra map[string]any) {
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	body := map[string]any{"item": item, "status": s.svc.Status(), "pending": s.svc.PendingCount()}
	for k, v := range extra {
		body[k] = v
	}
	writeJSON(w, http.StatusAccepted, body)
}

func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidPayload), errors.Is(err, queue.ErrInvalidItem):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, queue.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, err.Error())
	case errors.Is(err, queue.ErrPersist), errors.Is(err, cache.ErrPersist):
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("local storage failure")
		writeError(w, http.StatusInternalServerError, "local storage failure")
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("request failed")
		writeError(w, http.StatusBadGateway, err.Error())
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}
