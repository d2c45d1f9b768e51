package repository

import (
	"context"
	"sync"
)

// MemoryKVStore is a process-local KV store. It loses everything on exit and
// is meant for tests and ephemeral runs.
type MemoryKVStore struct {
	mu      sync.RWMutex
	entries map[string][]byte
	failPuts error
}

func NewMemoryKVStore() *MemoryKVStore {
	return &MemoryKVStore{entries: make(map[string][]byte)}
}

func (r *MemoryKVStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	val, ok := r.entries[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), val...), true, nil
}

func (r *MemoryKVStore) Put(_ context.Context, entries map[string][]byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failPuts != nil {
		return r.failPuts
	}
	for k, v := range entries {
		r.entries[k] = append([]byte(nil), v...)
	}
	return nil
}

func (r *MemoryKVStore) Delete(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, key)
	return nil
}

// FailWrites makes subsequent Puts return err. A nil err restores writes.
func (r *MemoryKVStore) FailWrites(err error) {
	r.mu.Lock()
	r.failPuts = err
	r.mu.Unlock()
}
