// Package idempotency guards one-shot operations with Redis SETNX keys.
package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

// SettlementKey names the guard held while an order is being settled.
func (s *Store) SettlementKey(orderID string) string {
	return fmt.Sprintf("idem:settle:%s", orderID)
}

// MessageKey names the marker for a consumed broker message.
func (s *Store) MessageKey(queue, messageID string) string {
	return fmt.Sprintf("idem:msg:%s:%s", queue, messageID)
}

// Acquire sets key if absent and reports whether this caller now holds it.
func (s *Store) Acquire(ctx context.Context, key string) (bool, error) {
	return s.rdb.SetNX(ctx, key, "1", s.ttl).Result()
}

// Release drops a key taken with Acquire.
func (s *Store) Release(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}

// Seen marks key and reports whether it had been marked before.
func (s *Store) Seen(ctx context.Context, key string) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, key, "1", s.ttl).Result()
	if err != nil {
		return false, err
	}
	return !ok, nil
}
