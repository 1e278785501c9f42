// Package snapshot mirrors reconciled boards into Redis so a restarted process
// can serve the last good board while it reconciles again.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"boardsync/internal/store"
	"github.com/redis/go-redis/v9"
)

const defaultTTL = 24 * time.Hour

// RedisStore implements board snapshot storage using Redis
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a new Redis-backed snapshot store
func NewRedisStore(redisURL string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client, ttl), nil
}

// NewRedisStoreWithClient creates a store from an existing Redis client
func NewRedisStoreWithClient(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisStore{
		client: client,
		prefix: "boardsync:board:",
		ttl:    ttl,
	}
}

// key scopes the snapshot to one record root so several boards can share a
// Redis database.
func (s *RedisStore) key(root string) string {
	return s.prefix + root
}

// Publish stores the board under the record root it was computed for.
func (s *RedisStore) Publish(ctx context.Context, root string, board store.Board) error {
	data, err := json.Marshal(board)
	if err != nil {
		return fmt.Errorf("marshal board: %w", err)
	}
	if err := s.client.Set(ctx, s.key(root), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save board: %w", err)
	}
	return nil
}

// Load returns the last published board. The boolean is false when nothing
// was published or the snapshot expired.
func (s *RedisStore) Load(ctx context.Context, root string) (store.Board, bool, error) {
	data, err := s.client.Get(ctx, s.key(root)).Bytes()
	if err == redis.Nil {
		return store.Board{}, false, nil
	}
	if err != nil {
		return store.Board{}, false, fmt.Errorf("load board: %w", err)
	}

	var board store.Board
	if err := json.Unmarshal(data, &board); err != nil {
		return store.Board{}, false, fmt.Errorf("unmarshal board: %w", err)
	}
	return board, true, nil
}

// Clear deletes the snapshot for root.
func (s *RedisStore) Clear(ctx context.Context, root string) error {
	if err := s.client.Del(ctx, s.key(root)).Err(); err != nil {
		return fmt.Errorf("clear board: %w", err)
	}
	return nil
}

// For binds the store to one record root so it satisfies reconcile.Publisher.
func (s *RedisStore) For(root string) *Mirror {
	return &Mirror{store: s, root: root}
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks if Redis is reachable
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Mirror is a RedisStore scoped to a single record root.
type Mirror struct {
	store *RedisStore
	root  string
}

func (m *Mirror) Publish(ctx context.Context, board store.Board) error {
	return m.store.Publish(ctx, m.root, board)
}

func (m *Mirror) Load(ctx context.Context) (store.Board, bool, error) {
	return m.store.Load(ctx, m.root)
}
