// Package idemlock is the per-occurrence idempotency guard: a set-if-absent
// Redis key with expiry. Exactly one worker wins the key for a given
// (message, occurrence) pair; everyone else treats the occurrence as already
// claimed and walks away.
package idemlock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type Locker struct {
	rdb *redis.Client
	ttl time.Duration
}

// New builds a Locker. The TTL must exceed the worst-case delivery+retry
// duration of one occurrence; config validation enforces that bound.
func New(rdb *redis.Client, ttl time.Duration) *Locker {
	return &Locker{rdb: rdb, ttl: ttl}
}

// Key derives the idempotency key for one occurrence.
func Key(messageID uuid.UUID, runAt time.Time) string {
	return fmt.Sprintf("sched:lock:%s:%d", messageID, runAt.Unix())
}

// Acquire claims the occurrence. Returns false when another worker (or a
// redelivery of the same job) already holds it.
func (l *Locker) Acquire(ctx context.Context, key string) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, key, 1, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire %s: %w", key, err)
	}
	return ok, nil
}

// Release drops the lock early. Safe to call multiple times; DEL on a
// missing key is a no-op, and a redelivery that re-acquires afterwards is
// caught by the worker's store re-read.
func (l *Locker) Release(ctx context.Context, key string) error {
	return l.rdb.Del(ctx, key).Err()
}
