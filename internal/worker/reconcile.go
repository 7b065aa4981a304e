package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/luis-kovi/WhatsKovi-sub003/internal/delayq"
	"github.com/luis-kovi/WhatsKovi-sub003/internal/store"
)

// moverLockKey is the PostgreSQL advisory lock key for mover election.
// Exactly one mover runs across the cluster at a time.
const moverLockKey = int64(0x5343484D) // "SCHM"

// Mover is the elected background loop that releases due jobs to workers
// and reconciles the queue against the store after crashes or queue data
// loss.
type Mover struct {
	Pool   *pgxpool.Pool
	Queue  *delayq.Queue
	Store  *store.Store
	Logger *slog.Logger

	// Interval is the delayed→ready tick; Batch bounds moves per tick.
	Interval time.Duration
	Batch    int64

	// Grace is how long past due an ACTIVE message may sit before the
	// reconciler re-pushes its job. It must comfortably exceed normal
	// queue-to-worker latency or healthy occurrences get double-pushed
	// (harmless, but noisy — the idempotency lock absorbs them).
	Grace time.Duration
}

// Run competes for the advisory lock and runs the mover loop on the winner.
// The lock is held on a dedicated connection so it auto-releases if the
// process crashes. Losers retry every 10 seconds.
func (m *Mover) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := m.Pool.Acquire(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.Logger.Error("mover: acquire failed", "err", err)
			time.Sleep(5 * time.Second)
			continue
		}

		var won bool
		err = conn.QueryRow(ctx,
			`SELECT pg_try_advisory_lock($1)`, moverLockKey).Scan(&won)
		if err != nil || !won {
			conn.Release()
			time.Sleep(10 * time.Second)
			continue
		}

		m.Logger.Info("mover: won election")
		m.runLoop(ctx)
		conn.Release()
	}
}

// runLoop ticks the delayed→ready mover every Interval and the
// store-driven reconciler every 30 seconds. Exits when ctx is cancelled or
// the election connection is lost.
func (m *Mover) runLoop(ctx context.Context) {
	move := time.NewTicker(m.Interval)
	defer move.Stop()
	reconcile := time.NewTicker(30 * time.Second)
	defer reconcile.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-move.C:
			n, err := m.Queue.MoveDue(ctx, time.Now(), m.Batch)
			if err != nil {
				m.Logger.Error("mover: move due failed", "err", err)
				return
			}
			if n > 0 {
				m.Logger.Debug("mover: released due jobs", "count", n)
			}
		case <-reconcile.C:
			if err := m.reconcile(ctx); err != nil {
				m.Logger.Error("mover: reconcile failed", "err", err)
				return
			}
		}
	}
}

// reconcile re-pushes jobs for ACTIVE messages that are past due beyond the
// grace window. The store is the source of truth for what should be
// pending; anything the queue lost (crashed worker after pop, flushed
// Redis) comes back through here. Redundant pushes for occurrences already
// in flight are deduplicated by the per-occurrence idempotency lock and the
// worker's store re-read.
func (m *Mover) reconcile(ctx context.Context) error {
	cutoff := time.Now().Add(-m.Grace)
	refs, err := m.Store.DueActive(ctx, cutoff, 500)
	if err != nil {
		return err
	}
	for _, ref := range refs {
		err := m.Queue.Requeue(ctx, ref.JobID, delayq.Payload{
			MessageID: ref.MessageID,
			RunAt:     ref.RunAt,
		})
		if err != nil {
			m.Logger.Warn("mover: requeue failed",
				"job_id", ref.JobID, "message_id", ref.MessageID, "err", err)
			continue
		}
		m.Logger.Info("mover: requeued overdue job",
			"job_id", ref.JobID,
			"message_id", ref.MessageID,
			"run_at", ref.RunAt)
	}
	return nil
}
