package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ridesync/internal/domain"
	"ridesync/internal/events"
	"ridesync/internal/metrics"
	"ridesync/internal/models"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

var ErrUnreachable = errors.New("cache: remote store unreachable")

// DefaultFetchTimeout bounds the read batch of one refresh.
const DefaultFetchTimeout = 30 * time.Second

// Coordinator serves the cached snapshot first and refreshes it from the
// remote store on demand.
type Coordinator struct {
	cache  *LocalCache
	probe  domain.Prober
	reader domain.Reader
	events domain.EventPublisher
	group  singleflight.Group
	// fetchTimeout caps the shared batch, which no caller can cancel.
	fetchTimeout time.Duration
	logger       zerolog.Logger
}

// NewCoordinator wires the refresh path. A non-positive fetchTimeout means
// DefaultFetchTimeout.
func NewCoordinator(cache *LocalCache, probe domain.Prober, reader domain.Reader, pub domain.EventPublisher, fetchTimeout time.Duration, logger *zerolog.Logger) *Coordinator {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "refresh").Logger()
	}
	if fetchTimeout <= 0 {
		fetchTimeout = DefaultFetchTimeout
	}
	return &Coordinator{cache: cache, probe: probe, reader: reader, events: pub, fetchTimeout: fetchTimeout, logger: l}
}

// LoadFromDurableCache returns the persisted snapshot without any remote call.
func (c *Coordinator) LoadFromDurableCache(ctx context.Context) *Snapshot {
	return c.cache.Load(ctx)
}

func (c *Coordinator) Current() *Snapshot {
	return c.cache.Current()
}

// Refresh re-reads every collection and replaces the cache if all reads
// succeed. Concurrent calls share one remote batch.
func (c *Coordinator) Refresh(ctx context.Context) (*Snapshot, error) {
	// The shared batch outlives any single caller's cancellation.
	ch := c.group.DoChan("refresh", func() (interface{}, error) {
		return c.refresh(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Snapshot), nil
	}
}

func (c *Coordinator) refresh(ctx context.Context) (*Snapshot, error) {
	if !c.probe.CheckConnection(ctx).Reachable {
		metrics.IncCacheRefresh("unreachable")
		c.logger.Debug().Msg("refresh skipped, remote unreachable")
		return nil, ErrUnreachable
	}

	fetchCtx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()

	var doc models.CacheDocument
	g, gctx := errgroup.WithContext(fetchCtx)
	g.Go(func() (err error) {
		doc.Users, err = c.reader.FetchUsers(gctx)
		return err
	})
	g.Go(func() (err error) {
		doc.Trips, err = c.reader.FetchTrips(gctx)
		return err
	})
	g.Go(func() (err error) {
		doc.Bookings, err = c.reader.FetchBookings(gctx)
		return err
	})
	g.Go(func() (err error) {
		doc.Notifications, err = c.reader.FetchNotifications(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		metrics.IncCacheRefresh("error")
		c.logger.Warn().Err(err).Msg("refresh failed, keeping cached snapshot")
		return nil, fmt.Errorf("refresh: %w", err)
	}

	snap, err := c.cache.Replace(ctx, doc)
	if err != nil {
		metrics.IncCacheRefresh("error")
		c.logger.Error().Err(err).Msg("failed to store refreshed snapshot")
		return nil, err
	}

	metrics.IncCacheRefresh("success")
	payload := events.CacheRefreshedPayload{
		Users:         len(snap.users),
		Trips:         len(snap.trips),
		Bookings:      len(snap.bookings),
		Notifications: len(snap.notifications),
	}
	if c.events != nil {
		if err := c.events.PublishJSON(events.EventCacheRefreshed, payload); err != nil {
			c.logger.Warn().Err(err).Msg("failed to publish cache event")
		}
	}
	c.logger.Info().Interface("rows", payload).Msg("cache refreshed")
	return snap, nil
}
