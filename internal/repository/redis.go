package repository

import (
	"context"
	"errors"
	"fmt"

	"ridesync/internal/config"

	"github.com/redis/go-redis/v9"
)

var ErrNilClient = errors.New("redis client is nil")

// RedisKVStore keeps queue and cache entries in Redis under a common prefix.
type RedisKVStore struct {
	client *redis.Client
	prefix string
}

// NewRedisClient создает новый клиент Redis на основе конфигурации
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}

	return redis.NewClient(options)
}

func NewRedisKVStore(client *redis.Client, prefix string) *RedisKVStore {
	return &RedisKVStore{
		client: client,
		prefix: prefix,
	}
}

func (r *RedisKVStore) key(k string) string { return r.prefix + k }

func (r *RedisKVStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if r.client == nil {
		return nil, false, ErrNilClient
	}
	val, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get %s from redis: %w", key, err)
	}
	return val, true, nil
}

// Put writes all entries in a single MULTI/EXEC block.
func (r *RedisKVStore) Put(ctx context.Context, entries map[string][]byte) error {
	if r.client == nil {
		return ErrNilClient
	}
	if len(entries) == 0 {
		return nil
	}

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for k, v := range entries {
			pipe.Set(ctx, r.key(k), v, 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write entries to redis: %w", err)
	}
	return nil
}

func (r *RedisKVStore) Delete(ctx context.Context, key string) error {
	if r.client == nil {
		return ErrNilClient
	}
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete %s from redis: %w", key, err)
	}
	return nil
}

// Ping проверяет соединение с Redis
func Ping(ctx context.Context, client *redis.Client) error {
	if client == nil {
		return ErrNilClient
	}
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
