// Package worker consumes due delay-queue jobs and executes scheduled
// message occurrences exactly once each: idempotency lock, store re-read,
// delivery with bounded retries, outcome log, and the next transition via
// the scheduler service.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/luis-kovi/WhatsKovi-sub003/internal/delayq"
	"github.com/luis-kovi/WhatsKovi-sub003/internal/delivery"
	"github.com/luis-kovi/WhatsKovi-sub003/internal/scheduler"
)

// Source is the consuming side of the delay queue. Implemented by
// *delayq.Queue; faked in tests.
type Source interface {
	Dequeue(ctx context.Context, block time.Duration) (*delayq.Delivery, error)
	Forget(ctx context.Context, jobID uuid.UUID) error
}

// Locker is the per-occurrence idempotency guard. Implemented by
// *idemlock.Locker; faked in tests.
type Locker interface {
	Acquire(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// Config tunes the pool. The caller guarantees the lock TTL exceeds the
// worst-case delivery budget implied by these values.
type Config struct {
	Workers         int
	MaxAttempts     int
	BackoffBase     time.Duration
	BackoffCap      time.Duration
	DeliveryTimeout time.Duration
}

type Pool struct {
	store     scheduler.Store
	svc       *scheduler.Service
	source    Source
	locker    Locker
	deliverer delivery.Deliverer
	logger    *slog.Logger
	cfg       Config

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func New(
	st scheduler.Store,
	svc *scheduler.Service,
	source Source,
	locker Locker,
	deliverer delivery.Deliverer,
	logger *slog.Logger,
	cfg Config,
) *Pool {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Pool{
		store:     st,
		svc:       svc,
		source:    source,
		locker:    locker,
		deliverer: deliverer,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
		sleep:     sleepCtx,
	}
}

// Run blocks until ctx is cancelled, consuming jobs with cfg.Workers
// concurrent loops.
func (p *Pool) Run(ctx context.Context) error {
	p.logger.Info("worker pool starting", "workers", p.cfg.Workers)

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.cfg.Workers; i++ {
		g.Go(func() error {
			p.runLoop(ctx)
			return nil
		})
	}
	return g.Wait()
}

func (p *Pool) runLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		d, err := p.source.Dequeue(ctx, 2*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Error("dequeue failed", "err", err)
			time.Sleep(500 * time.Millisecond)
			continue
		}
		if d == nil {
			continue
		}
		p.process(ctx, d)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
