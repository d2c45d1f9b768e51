package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"ridesync/internal/cache"
	"ridesync/internal/domain"
	"ridesync/internal/events"
	"ridesync/internal/models"
	"ridesync/internal/queue"
	"ridesync/internal/worker"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var ErrInvalidPayload = errors.New("invalid payload")

// OfflineService owns the write queue, the sync engine and the read cache
// for one device. Construct it once at startup and share the handle.
type OfflineService struct {
	queue     *queue.Store
	engine    *worker.SyncEngine
	refresher *cache.Coordinator
	bus       *events.EventBus
	logger    zerolog.Logger
	newID     func() string
}

type Options struct {
	Sync worker.Options
	// RefreshTimeout bounds the remote reads of one cache refresh.
	RefreshTimeout time.Duration
}

// New loads the durable queue from kv and wires the engine and cache
// around remote. It fails only if the persisted queue cannot be read.
func New(ctx context.Context, kv domain.KVStore, remote domain.RemoteStore, opts Options, logger *zerolog.Logger) (*OfflineService, error) {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "offline_service").Logger()
	}

	q, err := queue.NewStore(ctx, kv, logger)
	if err != nil {
		return nil, fmt.Errorf("load queue: %w", err)
	}

	bus := events.NewEventBus()
	return &OfflineService{
		queue:     q,
		engine:    worker.NewSyncEngine(q, remote, bus, opts.Sync, logger),
		refresher: cache.NewCoordinator(cache.NewLocalCache(kv, logger), remote, remote, bus, opts.RefreshTimeout, logger),
		bus:       bus,
		logger:    l,
		newID:     uuid.NewString,
	}, nil
}

// Start serves the durable cache, refreshes it in the background and starts
// the periodic drain.
func (s *OfflineService) Start(ctx context.Context) *cache.Snapshot {
	snap := s.refresher.LoadFromDurableCache(ctx)

	go func() {
		if _, err := s.refresher.Refresh(ctx); err != nil {
			s.logger.Info().Err(err).Msg("initial refresh failed, serving cached data")
		}
	}()

	s.engine.Start(ctx)
	return snap
}

func (s *OfflineService) UpsertUser(ctx context.Context, p models.UserPayload) (models.QueueItem, error) {
	if err := p.Validate(); err != nil {
		return models.QueueItem{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return s.enqueue(ctx, models.OpUpsertUser, p, "")
}

func (s *OfflineService) UpsertTrip(ctx context.Context, t models.TripRecord) (models.QueueItem, error) {
	if err := t.Validate(); err != nil {
		return models.QueueItem{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return s.enqueue(ctx, models.OpUpsertTrip, t, "")
}

// CreateBooking queues a booking insert. A missing id is filled with a new
// UUID and a missing status defaults to pending.
func (s *OfflineService) CreateBooking(ctx context.Context, p models.BookingPayload) (string, models.QueueItem, error) {
	if strings.TrimSpace(p.ID) == "" {
		p.ID = s.newID()
	}
	if p.Status == "" {
		p.Status = models.BookingStatusPending
	}
	if err := p.Validate(); err != nil {
		return "", models.QueueItem{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	item, err := s.enqueue(ctx, models.OpCreateBooking, p, "")
	if err != nil {
		return "", models.QueueItem{}, err
	}
	return p.ID, item, nil
}

func (s *OfflineService) UpdateBookingStatus(ctx context.Context, bookingID, status string) (models.QueueItem, error) {
	if strings.TrimSpace(bookingID) == "" {
		return models.QueueItem{}, fmt.Errorf("%w: booking id is required", ErrInvalidPayload)
	}
	patch := models.BookingStatusPatch{Status: status}
	if err := patch.Validate(); err != nil {
		return models.QueueItem{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return s.enqueue(ctx, models.OpUpdateBooking, patch, bookingID)
}

func (s *OfflineService) enqueue(ctx context.Context, kind models.OperationKind, payload any, targetID string) (models.QueueItem, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return models.QueueItem{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return s.engine.Enqueue(ctx, kind, data, targetID)
}

// Drain runs a drain pass now and returns the resulting status.
func (s *OfflineService) Drain(ctx context.Context) models.SyncStatus {
	s.engine.Drain(ctx)
	return s.engine.Status()
}

func (s *OfflineService) Refresh(ctx context.Context) (*cache.Snapshot, error) {
	return s.refresher.Refresh(ctx)
}

// RequeueDeadLetter moves a dead-lettered item back to the queue tail and
// triggers a drain.
func (s *OfflineService) RequeueDeadLetter(ctx context.Context, seq int64) (models.QueueItem, error) {
	item, err := s.queue.RequeueDeadLetter(ctx, seq)
	if err != nil {
		return models.QueueItem{}, err
	}
	s.engine.Drain(ctx)
	return item, nil
}

// Wait blocks until drains started by write operations have returned.
func (s *OfflineService) Wait() { s.engine.Wait() }

func (s *OfflineService) Status() models.SyncStatus { return s.engine.Status() }

func (s *OfflineService) PendingCount() int { return s.queue.Size() }

func (s *OfflineService) PendingItems() []models.QueueItem { return s.queue.Items() }

func (s *OfflineService) DeadLetters() []models.DeadLetter { return s.queue.DeadLetters() }

// Snapshot returns the cache snapshot readers should render from.
func (s *OfflineService) Snapshot() *cache.Snapshot { return s.refresher.Current() }

// Subscribe registers handler for one of the events package event types.
func (s *OfflineService) Subscribe(eventType string, handler events.EventHandler) {
	s.bus.Subscribe(eventType, handler)
}
