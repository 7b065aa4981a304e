// Package delayq adapts Redis into a persistent delay queue: jobs are held
// in a sorted set scored by due time, moved to a ready list once due, and
// handed to exactly one worker per pop. Delivery to workers is at-least-once
// (a crashed worker loses its pop; the store-driven reconciler re-pushes),
// so consumers deduplicate per occurrence themselves.
package delayq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/luis-kovi/WhatsKovi-sub003/internal/domain"
)

const (
	delayedKey = "schedq:delayed"
	readyKey   = "schedq:ready"
	payloadKey = "schedq:payload"
)

// Payload is the job reference carried through the queue. The worker never
// trusts it beyond locating the message; the store is re-read before any
// side effect.
type Payload struct {
	MessageID uuid.UUID `json:"message_id"`
	RunAt     time.Time `json:"run_at"`
}

// Delivery is one popped job.
type Delivery struct {
	JobID   uuid.UUID
	Payload Payload
}

type Queue struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Queue { return &Queue{rdb: rdb} }

// Enqueue schedules a job for release no earlier than dueAt. Job ids are
// caller-supplied and must be unique among pending jobs; a collision yields
// domain.ErrDuplicateJob.
func (q *Queue) Enqueue(ctx context.Context, jobID uuid.UUID, p Payload, dueAt time.Time) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	pipe := q.rdb.TxPipeline()
	added := pipe.ZAddNX(ctx, delayedKey, redis.Z{
		Score:  float64(dueAt.Unix()),
		Member: jobID.String(),
	})
	pipe.HSet(ctx, payloadKey, jobID.String(), raw)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("enqueue job %s: %w", jobID, err)
	}
	if added.Val() == 0 {
		return domain.ErrDuplicateJob
	}
	return nil
}

// Cancel removes a pending job. Returns false when the job already fired or
// never existed; that is an expected no-op, not an error.
func (q *Queue) Cancel(ctx context.Context, jobID uuid.UUID) (bool, error) {
	pipe := q.rdb.TxPipeline()
	zrem := pipe.ZRem(ctx, delayedKey, jobID.String())
	lrem := pipe.LRem(ctx, readyKey, 0, jobID.String())
	pipe.HDel(ctx, payloadKey, jobID.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("cancel job %s: %w", jobID, err)
	}
	return zrem.Val()+lrem.Val() > 0, nil
}

// Dequeue blocks up to the given duration for a ready job. Returns nil when
// nothing became ready, or when the popped id was cancelled after its move
// to the ready list (its payload is gone, so it is skipped silently).
func (q *Queue) Dequeue(ctx context.Context, block time.Duration) (*Delivery, error) {
	res, err := q.rdb.BRPop(ctx, block, readyKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pop ready job: %w", err)
	}
	if len(res) != 2 {
		return nil, nil
	}

	jobID, err := uuid.Parse(res[1])
	if err != nil {
		return nil, fmt.Errorf("malformed job id %q on ready list", res[1])
	}

	raw, err := q.rdb.HGet(ctx, payloadKey, jobID.String()).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch payload for %s: %w", jobID, err)
	}

	var p Payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("decode payload for %s: %w", jobID, err)
	}
	return &Delivery{JobID: jobID, Payload: p}, nil
}

// Forget drops a job's payload entry after the worker has finished with it.
// Idempotent.
func (q *Queue) Forget(ctx context.Context, jobID uuid.UUID) error {
	return q.rdb.HDel(ctx, payloadKey, jobID.String()).Err()
}

// MoveDue shifts up to batch due jobs from the delayed set to the ready
// list. Called by the elected mover only; the queue never releases a job
// before its due time.
func (q *Queue) MoveDue(ctx context.Context, now time.Time, batch int64) (int, error) {
	ids, err := q.rdb.ZRangeByScore(ctx, delayedKey, &redis.ZRangeBy{
		Min:    "-inf",
		Max:    strconv.FormatInt(now.Unix(), 10),
		Offset: 0,
		Count:  batch,
	}).Result()
	if err != nil || len(ids) == 0 {
		return 0, err
	}

	pipe := q.rdb.TxPipeline()
	for _, id := range ids {
		pipe.LPush(ctx, readyKey, id)
		pipe.ZRem(ctx, delayedKey, id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("move due jobs: %w", err)
	}
	return len(ids), nil
}

// Requeue pushes a job straight onto the ready list, restoring its payload
// entry. The reconciler uses it for due ACTIVE messages whose queue entry
// vanished (queue data loss, crashed worker after pop).
func (q *Queue) Requeue(ctx context.Context, jobID uuid.UUID, p Payload) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	pipe := q.rdb.TxPipeline()
	pipe.HSet(ctx, payloadKey, jobID.String(), raw)
	pipe.ZRem(ctx, delayedKey, jobID.String())
	pipe.LRem(ctx, readyKey, 0, jobID.String())
	pipe.LPush(ctx, readyKey, jobID.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("requeue job %s: %w", jobID, err)
	}
	return nil
}

// Pending reports whether a job is still waiting in the delayed set.
func (q *Queue) Pending(ctx context.Context, jobID uuid.UUID) (bool, error) {
	_, err := q.rdb.ZScore(ctx, delayedKey, jobID.String()).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
