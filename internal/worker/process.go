package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/luis-kovi/WhatsKovi-sub003/internal/delayq"
	"github.com/luis-kovi/WhatsKovi-sub003/internal/delivery"
	"github.com/luis-kovi/WhatsKovi-sub003/internal/domain"
	"github.com/luis-kovi/WhatsKovi-sub003/internal/idemlock"
	"github.com/luis-kovi/WhatsKovi-sub003/internal/scheduler"
)

// process runs the per-occurrence state machine for one popped job. Losing
// the idempotency lock or the job-handle fence is expected under
// at-least-once delivery and is never surfaced as an error; the store
// re-read, not queue semantics, is what guarantees exactly-once outcomes.
//
// The lock is released only once the occurrence is finalized (outcome
// recorded, or established as not ours). When delivery may have gone out
// but the transition did not commit — Advance failure, shutdown — the lock
// is deliberately left to expire so a prompt redelivery cannot deliver the
// same occurrence again inside the TTL window.
func (p *Pool) process(ctx context.Context, d *delayq.Delivery) {
	log := p.logger.With(
		"job_id", d.JobID,
		"message_id", d.Payload.MessageID,
		"run_at", d.Payload.RunAt)

	key := idemlock.Key(d.Payload.MessageID, d.Payload.RunAt)
	won, err := p.locker.Acquire(ctx, key)
	if err != nil {
		log.Error("idempotency lock acquire failed", "err", err)
		return
	}
	if !won {
		// Another worker (or a redelivery) already claimed this occurrence.
		log.Debug("occurrence already claimed; discarding")
		return
	}

	msg, err := p.store.Get(ctx, d.Payload.MessageID)
	if errors.Is(err, domain.ErrNotFound) {
		log.Info("message gone; dropping job")
		p.forget(ctx, d.JobID, log)
		p.release(ctx, key, log)
		return
	}
	if err != nil {
		log.Error("store re-read failed", "err", err)
		// Nothing was delivered yet; the redelivery may retry immediately.
		p.release(ctx, key, log)
		return
	}

	// The store is authoritative: a job handle that no longer matches was
	// superseded by a concurrent transition and belongs to nobody.
	if msg.Status == domain.StatusActive && (msg.JobID == nil || *msg.JobID != d.JobID) {
		log.Debug("job superseded before delivery; discarding")
		p.forget(ctx, d.JobID, log)
		p.release(ctx, key, log)
		return
	}
	if msg.Status != domain.StatusActive {
		// Pause and cancel clear the job handle, so a non-ACTIVE row still
		// pointing at this job is the only case where the occurrence is
		// still ours to consume with a SKIPPED log. Anything else is a
		// redelivery of an occurrence that already has its outcome and must
		// not append a second log row.
		if msg.JobID != nil && *msg.JobID == d.JobID {
			log.Info("message no longer active; skipping occurrence", "status", msg.Status)
			p.record(ctx, msg.ID, domain.LogSkipped, nil, log)
		} else {
			log.Debug("stale job for inactive message; discarding")
		}
		p.forget(ctx, d.JobID, log)
		p.release(ctx, key, log)
		return
	}

	attemptAt := p.now()
	outcome, deliverErr := p.deliver(ctx, msg)
	if ctx.Err() != nil && outcome != domain.LogSuccess {
		// Shutdown mid-delivery: leave the occurrence and its lock alone;
		// the lock expires and the reconciler re-pushes the job.
		log.Info("shutdown during delivery; abandoning occurrence")
		return
	}

	// Transition first, then log: whether this occurrence still owns the
	// message decides what outcome gets recorded.
	adv, err := p.svc.Advance(ctx, msg, d.JobID)
	if err != nil {
		// The delivery may have gone out while the transition did not
		// commit. Keep the lock so a redelivery cannot double-deliver; the
		// TTL bounds how long the occurrence stays claimed.
		log.Error("advance failed; occurrence will be reconciled", "err", err)
		return
	}

	switch adv {
	case scheduler.Superseded:
		log.Debug("job superseded after delivery; discarding outcome")
	case scheduler.Inactive:
		// Pause/cancel won mid-flight: the delivery outcome is discarded
		// and the occurrence recorded as skipped.
		p.record(ctx, msg.ID, domain.LogSkipped, deliverErr, log)
	case scheduler.Advanced:
		p.record(ctx, msg.ID, outcome, deliverErr, log)
		switch outcome {
		case domain.LogSuccess:
			log.Info("occurrence delivered", "attempt_at", attemptAt)
		case domain.LogSkipped:
			log.Info("delivery precondition failed; occurrence skipped", "err", deliverErr)
		default:
			log.Warn("occurrence failed", "err", deliverErr)
		}
	}

	p.forget(ctx, d.JobID, log)
	p.release(ctx, key, log)
}

// deliver attempts the delivery with bounded retries of transient failures.
// Returns the log outcome plus the terminal error, if any.
func (p *Pool) deliver(ctx context.Context, msg *domain.ScheduledMessage) (domain.LogStatus, error) {
	req := delivery.Request{
		TicketID:  msg.TicketID,
		UserID:    msg.UserID,
		Body:      msg.Body,
		Type:      msg.Type,
		MediaURL:  msg.MediaURL,
		IsPrivate: msg.IsPrivate,
	}

	var lastErr error
	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := p.sleep(ctx, backoffDelay(attempt-1, p.cfg.BackoffBase, p.cfg.BackoffCap)); err != nil {
				return domain.LogFailed, lastErr
			}
		}

		dctx, cancel := context.WithTimeout(ctx, p.cfg.DeliveryTimeout)
		err := p.deliverer.Deliver(dctx, req)
		cancel()

		if err == nil {
			return domain.LogSuccess, nil
		}
		if delivery.IsPrecondition(err) {
			return domain.LogSkipped, err
		}
		if !delivery.IsRetryable(err) {
			return domain.LogFailed, err
		}
		lastErr = err
	}
	return domain.LogFailed, fmt.Errorf("retries exhausted after %d attempts: %w", p.cfg.MaxAttempts, lastErr)
}

// record appends the single outcome log for this occurrence and stamps
// last_run_at. Log-write failures are logged, not propagated: the state
// transition already happened and must not be retried.
func (p *Pool) record(ctx context.Context, messageID uuid.UUID, status domain.LogStatus, deliverErr error, log *slog.Logger) {
	entry := &domain.MessageLog{
		ID:        uuid.New(),
		MessageID: messageID,
		Status:    status,
		RunAt:     p.now(),
	}
	// The error column is populated for failures only.
	if status == domain.LogFailed && deliverErr != nil {
		msg := deliverErr.Error()
		entry.Error = &msg
	}
	if err := p.store.RecordRun(ctx, entry); err != nil {
		log.Error("failed to record occurrence outcome", "err", err, "status", status)
	}
}

func (p *Pool) forget(ctx context.Context, jobID uuid.UUID, log *slog.Logger) {
	if err := p.source.Forget(ctx, jobID); err != nil {
		log.Warn("failed to drop job payload", "err", err)
	}
}

func (p *Pool) release(ctx context.Context, key string, log *slog.Logger) {
	if err := p.locker.Release(ctx, key); err != nil {
		log.Warn("idempotency lock release failed; expiry will clean up", "err", err)
	}
}
