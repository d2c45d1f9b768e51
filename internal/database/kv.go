package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"
)

// Get returns the value stored under key. The boolean is false when the
// key has never been written.
func (db *DB) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := db.db.QueryRowContext(ctx, `SELECT value FROM kv_store WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read key %s: %w", key, err)
	}
	return value, true, nil
}

// Put writes every entry inside one transaction.
func (db *DB) Put(ctx context.Context, entries map[string][]byte) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	now := time.Now().UTC()
	for _, key := range keys {
		_, err := tx.ExecContext(ctx, `
            INSERT INTO kv_store (key, value, updated_at) VALUES (?, ?, ?)
            ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			key, entries[key], now)
		if err != nil {
			return fmt.Errorf("failed to write key %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Delete removes a key; missing keys are ignored.
func (db *DB) Delete(ctx context.Context, key string) error {
	if _, err := db.db.ExecContext(ctx, `DELETE FROM kv_store WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}
