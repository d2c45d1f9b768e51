package worker

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"ridesync/internal/domain"
	"ridesync/internal/events"
	"ridesync/internal/metrics"
	"ridesync/internal/models"
	"ridesync/internal/remote"

	"github.com/rs/zerolog"
)

// Queue is the part of the durable queue the engine drives.
type Queue interface {
	Append(ctx context.Context, kind models.OperationKind, payload json.RawMessage, targetID string) (models.QueueItem, error)
	PeekHead() (models.QueueItem, bool)
	PopHead(ctx context.Context, seq int64) error
	DeadLetterHead(ctx context.Context, seq int64, reason string) (models.DeadLetter, error)
	Size() int
}

type Options struct {
	Interval     time.Duration
	ApplyTimeout time.Duration
	// Backoff gates timer-triggered drains after failures. Nil disables it.
	Backoff *RetryPolicy
	// DeadLetterRejected moves items the remote store rejects out of the
	// queue instead of retrying them forever.
	DeadLetterRejected bool
}

// SyncEngine drains the queue head-first against the remote gateway. At
// most one drain runs at a time; items are never applied in parallel.
type SyncEngine struct {
	queue   Queue
	gateway domain.Gateway
	events  domain.EventPublisher
	opts    Options
	logger  zerolog.Logger
	now     func() time.Time

	inFlight atomic.Bool
	rerun    atomic.Bool

	mu          sync.RWMutex
	status      models.SyncStatus
	failures    int
	nextAttempt time.Time
	lifetime    context.Context

	startOnce sync.Once
	triggers  sync.WaitGroup
}

func NewSyncEngine(q Queue, gw domain.Gateway, pub domain.EventPublisher, opts Options, logger *zerolog.Logger) *SyncEngine {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "sync_engine").Logger()
	}
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	if opts.ApplyTimeout <= 0 {
		opts.ApplyTimeout = 10 * time.Second
	}

	e := &SyncEngine{
		queue:    q,
		gateway:  gw,
		events:   pub,
		opts:     opts,
		logger:   l,
		now:      time.Now,
		status:   models.StatusOnline,
		lifetime: context.Background(),
	}
	metrics.SetSyncStatus(e.status.Gauge())
	metrics.SetQueueDepth(q.Size())
	return e
}

// Status returns the current write-path status.
func (e *SyncEngine) Status() models.SyncStatus {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.status
}

// Enqueue appends a write and triggers a background drain. It returns once
// the item is durable. Only a local persistence failure is returned; remote
// failures surface as status.
func (e *SyncEngine) Enqueue(ctx context.Context, kind models.OperationKind, payload json.RawMessage, targetID string) (models.QueueItem, error) {
	item, err := e.queue.Append(ctx, kind, payload, targetID)
	if err != nil {
		return models.QueueItem{}, err
	}
	metrics.SetQueueDepth(e.queue.Size())

	e.trigger()
	return item, nil
}

// trigger starts a drain on the engine's lifetime context without waiting
// for it. Triggers that land while a drain is in flight fold into its rerun.
func (e *SyncEngine) trigger() {
	e.triggers.Add(1)
	go func() {
		defer e.triggers.Done()
		e.Drain(e.lifetimeCtx())
	}()
}

// Wait blocks until every drain started by Enqueue has returned.
func (e *SyncEngine) Wait() {
	e.triggers.Wait()
}

// Drain applies queued items until the queue is empty, an apply fails or
// ctx is done. A call that finds a drain in flight returns at once and
// leaves a request for exactly one more pass.
func (e *SyncEngine) Drain(ctx context.Context) {
	e.rerun.Store(true)
	for e.rerun.Load() {
		if !e.inFlight.CompareAndSwap(false, true) {
			return
		}
		e.rerun.Store(false)
		e.drainOnce(ctx)
		e.inFlight.Store(false)
	}
}

func (e *SyncEngine) drainOnce(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		item, ok := e.queue.PeekHead()
		if !ok {
			e.succeeded()
			return
		}

		e.setStatus(models.StatusSyncing)
		err := e.apply(ctx, item)
		// Local bookkeeping after the remote call must not be cut short by
		// the trigger's cancellation.
		localCtx := context.WithoutCancel(ctx)

		if err != nil {
			class := remote.ClassOf(err)
			rejected := remote.IsRejected(err)
			metrics.IncFailure(string(item.OperationKind), string(class))

			if rejected && e.opts.DeadLetterRejected {
				if !e.deadLetter(localCtx, item, err) {
					e.failed()
					return
				}
				continue
			}

			ev := e.logger.Warn()
			if rejected {
				ev = e.logger.Error()
			}
			ev.Err(err).Int64("seq", item.SequenceID).Str("kind", string(item.OperationKind)).
				Str("class", string(class)).Int("pending", e.queue.Size()).Msg("apply failed, draining halted")
			e.failed()
			return
		}

		if err := e.queue.PopHead(localCtx, item.SequenceID); err != nil {
			// The item stays queued and will be applied again.
			e.logger.Error().Err(err).Int64("seq", item.SequenceID).Msg("failed to remove applied item")
			e.failed()
			return
		}

		metrics.IncApplied(string(item.OperationKind))
		metrics.SetQueueDepth(e.queue.Size())
		e.publish(events.EventQueueItemApplied, events.QueueItemPayload{
			SequenceID: item.SequenceID,
			Kind:       string(item.OperationKind),
		})
		e.logger.Debug().Int64("seq", item.SequenceID).Str("kind", string(item.OperationKind)).Msg("item applied")
		e.succeeded()
	}
}

func (e *SyncEngine) apply(ctx context.Context, item models.QueueItem) error {
	ctx, cancel := context.WithTimeout(ctx, e.opts.ApplyTimeout)
	defer cancel()

	start := time.Now()
	err := e.gateway.Apply(ctx, item)
	metrics.ObserveApply(string(item.OperationKind), time.Since(start).Seconds())
	return err
}

func (e *SyncEngine) deadLetter(ctx context.Context, item models.QueueItem, cause error) bool {
	if _, err := e.queue.DeadLetterHead(ctx, item.SequenceID, cause.Error()); err != nil {
		e.logger.Error().Err(err).Int64("seq", item.SequenceID).Msg("failed to dead-letter item")
		return false
	}
	metrics.IncDeadLettered(string(item.OperationKind))
	metrics.SetQueueDepth(e.queue.Size())
	e.publish(events.EventQueueItemDeadLettered, events.QueueItemPayload{
		SequenceID: item.SequenceID,
		Kind:       string(item.OperationKind),
		Reason:     cause.Error(),
	})
	return true
}

func (e *SyncEngine) succeeded() {
	e.mu.Lock()
	e.failures = 0
	e.nextAttempt = time.Time{}
	e.mu.Unlock()
	e.setStatus(models.StatusOnline)
}

func (e *SyncEngine) failed() {
	e.mu.Lock()
	e.failures++
	if e.opts.Backoff != nil {
		e.nextAttempt = e.now().Add(e.opts.Backoff.NextDelay(e.failures))
	}
	e.mu.Unlock()
	e.setStatus(models.StatusOffline)
}

func (e *SyncEngine) setStatus(s models.SyncStatus) {
	e.mu.Lock()
	prev := e.status
	e.status = s
	e.mu.Unlock()

	if prev == s {
		return
	}
	metrics.SetSyncStatus(s.Gauge())
	e.publish(events.EventSyncStatusChanged, events.SyncStatusPayload{
		Status:   string(s),
		Previous: string(prev),
		Pending:  e.queue.Size(),
	})
}

func (e *SyncEngine) publish(eventType string, payload interface{}) {
	if e.events == nil {
		return
	}
	if err := e.events.PublishJSON(eventType, payload); err != nil {
		e.logger.Warn().Err(err).Str("event", eventType).Msg("failed to publish event")
	}
}

func (e *SyncEngine) lifetimeCtx() context.Context {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lifetime
}

// tick is the timer-driven trigger. With backoff enabled it skips drains
// until the current backoff window has passed.
func (e *SyncEngine) tick(ctx context.Context) {
	e.mu.RLock()
	wait := e.opts.Backoff != nil && e.now().Before(e.nextAttempt)
	next := e.nextAttempt
	e.mu.RUnlock()

	if wait {
		e.logger.Debug().Time("next_attempt", next).Msg("drain skipped, backing off")
		return
	}
	e.Drain(ctx)
}

// Start runs an immediate drain and then the periodic timer until ctx is
// done. Later calls are no-ops.
func (e *SyncEngine) Start(ctx context.Context) {
	e.startOnce.Do(func() {
		e.mu.Lock()
		e.lifetime = ctx
		e.mu.Unlock()
		go e.run(ctx)
	})
}

func (e *SyncEngine) run(ctx context.Context) {
	e.logger.Info().Dur("interval", e.opts.Interval).Bool("backoff", e.opts.Backoff != nil).Msg("sync engine started")
	defer e.logger.Info().Msg("sync engine stopped")

	ticker := time.NewTicker(e.opts.Interval)
	defer ticker.Stop()

	e.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}
