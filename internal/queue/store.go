package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"ridesync/internal/domain"
	"ridesync/internal/models"

	"github.com/rs/zerolog"
)

// Keys under which the queue is persisted in the local KV store.
const (
	KeyItems       = "sync:queue"
	KeySequence    = "sync:queue:seq"
	KeyDeadLetters = "sync:deadletter"
)

var (
	// ErrPersist wraps every failure to write the queue to durable storage.
	ErrPersist = errors.New("queue: durable storage failure")
	// ErrHeadMismatch is returned when a pop names an item that is not the head.
	ErrHeadMismatch = errors.New("queue: sequence is not the queue head")
	ErrInvalidItem  = errors.New("queue: invalid item")
	ErrNotFound     = errors.New("queue: dead letter not found")
)

// Store is the durable FIFO of pending remote writes. Every mutation is
// persisted before it becomes visible in memory, so a failed write leaves
// the queue exactly as it was.
type Store struct {
	mu      sync.Mutex
	kv      domain.KVStore
	items   []models.QueueItem
	dead    []models.DeadLetter
	lastSeq int64
	now     func() time.Time
	logger  zerolog.Logger
}

// NewStore loads the persisted queue from kv. A queue that cannot be read or
// decoded is an error: starting empty would silently drop pending writes.
func NewStore(ctx context.Context, kv domain.KVStore, logger *zerolog.Logger) (*Store, error) {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "queue").Logger()
	}

	s := &Store{kv: kv, now: time.Now, logger: l}
	if err := s.load(ctx); err != nil {
		return nil, err
	}

	l.Info().Int("pending", len(s.items)).Int("dead_letters", len(s.dead)).Int64("last_seq", s.lastSeq).Msg("queue loaded")
	return s, nil
}

func (s *Store) load(ctx context.Context) error {
	raw, ok, err := s.kv.Get(ctx, KeyItems)
	if err != nil {
		return fmt.Errorf("read queue: %w", err)
	}
	if ok && len(raw) > 0 {
		if err := json.Unmarshal(raw, &s.items); err != nil {
			return fmt.Errorf("decode queue: %w", err)
		}
	}

	raw, ok, err = s.kv.Get(ctx, KeyDeadLetters)
	if err != nil {
		return fmt.Errorf("read dead letters: %w", err)
	}
	if ok && len(raw) > 0 {
		if err := json.Unmarshal(raw, &s.dead); err != nil {
			return fmt.Errorf("decode dead letters: %w", err)
		}
	}

	raw, ok, err = s.kv.Get(ctx, KeySequence)
	if err != nil {
		return fmt.Errorf("read sequence counter: %w", err)
	}
	if ok && len(raw) > 0 {
		seq, err := strconv.ParseInt(string(bytes.TrimSpace(raw)), 10, 64)
		if err != nil {
			return fmt.Errorf("decode sequence counter: %w", err)
		}
		s.lastSeq = seq
	}

	// The counter must never fall behind an id already handed out.
	for _, it := range s.items {
		if it.SequenceID > s.lastSeq {
			s.lastSeq = it.SequenceID
		}
	}
	for _, d := range s.dead {
		if d.Item.SequenceID > s.lastSeq {
			s.lastSeq = d.Item.SequenceID
		}
	}
	return nil
}

// Append assigns the next sequence id to a new item and persists it at the
// tail of the queue together with the counter.
func (s *Store) Append(ctx context.Context, kind models.OperationKind, payload json.RawMessage, targetID string) (models.QueueItem, error) {
	if !kind.Valid() {
		return models.QueueItem{}, fmt.Errorf("%w: unknown operation kind %q", ErrInvalidItem, kind)
	}
	if kind == models.OpUpdateBooking && targetID == "" {
		return models.QueueItem{}, fmt.Errorf("%w: %s requires a target id", ErrInvalidItem, kind)
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, payload); err != nil {
		return models.QueueItem{}, fmt.Errorf("%w: payload is not valid JSON: %v", ErrInvalidItem, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	item := models.QueueItem{
		SequenceID:    s.lastSeq + 1,
		OperationKind: kind,
		Payload:       json.RawMessage(compact.Bytes()),
		TargetID:      targetID,
		EnqueuedAt:    s.now().UTC(),
	}

	items := make([]models.QueueItem, 0, len(s.items)+1)
	items = append(items, s.items...)
	items = append(items, item)

	if err := s.persist(ctx, items, nil, item.SequenceID); err != nil {
		return models.QueueItem{}, err
	}

	s.items = items
	s.lastSeq = item.SequenceID
	s.logger.Debug().Int64("seq", item.SequenceID).Str("kind", string(kind)).Int("pending", len(items)).Msg("item enqueued")
	return item, nil
}

// PeekHead returns the oldest pending item without removing it.
func (s *Store) PeekHead() (models.QueueItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.items) == 0 {
		return models.QueueItem{}, false
	}
	return s.items[0], true
}

// PopHead removes the head only if its sequence id is seq. Callers pass the
// id of the item whose remote apply they just confirmed.
func (s *Store) PopHead(ctx context.Context, seq int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.items) == 0 || s.items[0].SequenceID != seq {
		return fmt.Errorf("%w: %d", ErrHeadMismatch, seq)
	}

	items := append([]models.QueueItem(nil), s.items[1:]...)
	if err := s.persist(ctx, items, nil, 0); err != nil {
		return err
	}
	s.items = items
	return nil
}

// DeadLetterHead moves the head to the dead-letter list in one durable write.
func (s *Store) DeadLetterHead(ctx context.Context, seq int64, reason string) (models.DeadLetter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.items) == 0 || s.items[0].SequenceID != seq {
		return models.DeadLetter{}, fmt.Errorf("%w: %d", ErrHeadMismatch, seq)
	}

	letter := models.DeadLetter{Item: s.items[0], Reason: reason, FailedAt: s.now().UTC()}
	items := append([]models.QueueItem(nil), s.items[1:]...)
	dead := make([]models.DeadLetter, 0, len(s.dead)+1)
	dead = append(dead, s.dead...)
	dead = append(dead, letter)

	if err := s.persist(ctx, items, dead, 0); err != nil {
		return models.DeadLetter{}, err
	}
	s.items = items
	s.dead = dead
	s.logger.Warn().Int64("seq", seq).Str("kind", string(letter.Item.OperationKind)).Str("reason", reason).Msg("item dead-lettered")
	return letter, nil
}

// RequeueDeadLetter puts a dead-lettered item back at the tail of the queue
// under a fresh sequence id.
func (s *Store) RequeueDeadLetter(ctx context.Context, seq int64) (models.QueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, d := range s.dead {
		if d.Item.SequenceID == seq {
			idx = i
			break
		}
	}
	if idx < 0 {
		return models.QueueItem{}, fmt.Errorf("%w: %d", ErrNotFound, seq)
	}

	item := s.dead[idx].Item
	item.SequenceID = s.lastSeq + 1
	item.EnqueuedAt = s.now().UTC()

	items := make([]models.QueueItem, 0, len(s.items)+1)
	items = append(items, s.items...)
	items = append(items, item)

	dead := make([]models.DeadLetter, 0, len(s.dead)-1)
	dead = append(dead, s.dead[:idx]...)
	dead = append(dead, s.dead[idx+1:]...)

	if err := s.persist(ctx, items, dead, item.SequenceID); err != nil {
		return models.QueueItem{}, err
	}
	s.items = items
	s.dead = dead
	s.lastSeq = item.SequenceID
	return item, nil
}

// Size returns the number of pending items.
func (s *Store) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Items returns a copy of the pending items in queue order.
func (s *Store) Items() []models.QueueItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.QueueItem{}, s.items...)
}

func (s *Store) DeadLetters() []models.DeadLetter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.DeadLetter{}, s.dead...)
}

// persist writes the given state in one atomic Put. A nil dead slice leaves
// the dead-letter key untouched; a zero seq leaves the counter untouched.
func (s *Store) persist(ctx context.Context, items []models.QueueItem, dead []models.DeadLetter, seq int64) error {
	if items == nil {
		items = []models.QueueItem{}
	}
	entries := make(map[string][]byte, 3)

	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("%w: encode queue: %v", ErrPersist, err)
	}
	entries[KeyItems] = data

	if dead != nil {
		data, err := json.Marshal(dead)
		if err != nil {
			return fmt.Errorf("%w: encode dead letters: %v", ErrPersist, err)
		}
		entries[KeyDeadLetters] = data
	}
	if seq > 0 {
		entries[KeySequence] = []byte(strconv.FormatInt(seq, 10))
	}

	if err := s.kv.Put(ctx, entries); err != nil {
		s.logger.Error().Err(err).Msg("failed to persist queue")
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	return nil
}
