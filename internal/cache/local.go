package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"ridesync/internal/domain"
	"ridesync/internal/models"

	"github.com/rs/zerolog"
)

// KeySnapshot is the KV key holding the persisted cache document.
const KeySnapshot = "cache:snapshot"

var ErrPersist = errors.New("cache: durable storage failure")

// LocalCache holds the current snapshot in memory and its wire form in the
// local KV store.
type LocalCache struct {
	kv      domain.KVStore
	current atomic.Pointer[Snapshot]
	logger  zerolog.Logger
}

func NewLocalCache(kv domain.KVStore, logger *zerolog.Logger) *LocalCache {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "cache").Logger()
	}
	c := &LocalCache{kv: kv, logger: l}
	c.current.Store(EmptySnapshot())
	return c
}

// Current returns the snapshot readers should render from.
func (c *LocalCache) Current() *Snapshot {
	return c.current.Load()
}

// Load reads the persisted snapshot. It never fails: a missing, unreadable
// or corrupt document yields an empty snapshot.
func (c *LocalCache) Load(ctx context.Context) *Snapshot {
	snap := c.read(ctx)
	c.current.Store(snap)
	return snap
}

func (c *LocalCache) read(ctx context.Context) *Snapshot {
	raw, ok, err := c.kv.Get(ctx, KeySnapshot)
	if err != nil {
		c.logger.Warn().Err(err).Msg("failed to read cache, starting empty")
		return EmptySnapshot()
	}
	if !ok {
		return EmptySnapshot()
	}

	var doc models.CacheDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		c.logger.Warn().Err(err).Msg("cache document is corrupt, starting empty")
		return EmptySnapshot()
	}
	snap, err := newSnapshot(doc)
	if err != nil {
		c.logger.Warn().Err(err).Msg("cache rows are corrupt, starting empty")
		return EmptySnapshot()
	}

	c.logger.Info().
		Int("users", len(snap.users)).
		Int("trips", len(snap.trips)).
		Int("bookings", len(snap.bookings)).
		Int("notifications", len(snap.notifications)).
		Msg("cache loaded")
	return snap
}

// Replace persists doc and then swaps the in-memory snapshot. On any error
// both the stored document and the current snapshot are left untouched.
func (c *LocalCache) Replace(ctx context.Context, doc models.CacheDocument) (*Snapshot, error) {
	snap, err := newSnapshot(doc)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(snap.raw)
	if err != nil {
		return nil, fmt.Errorf("%w: encode snapshot: %v", ErrPersist, err)
	}
	if err := c.kv.Put(ctx, map[string][]byte{KeySnapshot: data}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersist, err)
	}

	c.current.Store(snap)
	return snap, nil
}
