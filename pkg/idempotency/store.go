package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Store is a durable set of processed billing event ids. Provider retries
// redeliver the same event id; marking it here before any side effect keeps
// replays from double-applying (duplicate emails included).
type Store struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl, prefix: "billing:event"}
}

// MarkProcessed records an event id and reports whether this is its first
// delivery. On Redis failure it fails open: processing a duplicate beats
// dropping a lifecycle transition.
func (s *Store) MarkProcessed(ctx context.Context, eventID string) (bool, error) {
	key := fmt.Sprintf("%s:%s", s.prefix, eventID)

	first, err := s.rdb.SetNX(ctx, key, 1, s.ttl).Result()
	if err != nil {
		return true, fmt.Errorf("redis error: %w", err)
	}
	return first, nil
}

// Unmark removes an event id from the ledger. Called when applying the event
// failed after the id was recorded, so the provider's retry is not absorbed
// as a duplicate.
func (s *Store) Unmark(ctx context.Context, eventID string) error {
	key := fmt.Sprintf("%s:%s", s.prefix, eventID)
	return s.rdb.Del(ctx, key).Err()
}
