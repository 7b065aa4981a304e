package scheduler

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/luis-kovi/WhatsKovi-sub003/internal/delayq"
	"github.com/luis-kovi/WhatsKovi-sub003/internal/domain"
	"github.com/luis-kovi/WhatsKovi-sub003/internal/store"
)

// Pause suspends an ACTIVE message: the store transition happens first (it
// is authoritative), then the pending job is cancelled best-effort. A job
// that already escaped to a worker resolves through the worker's re-read.
func (s *Service) Pause(ctx context.Context, id uuid.UUID) (*domain.ScheduledMessage, error) {
	m, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.Status != domain.StatusActive {
		return nil, invalidTransition("pause", m.Status)
	}

	err = s.store.Apply(ctx, store.Transition{
		ID:           id,
		ExpectStatus: []domain.Status{domain.StatusActive},
		ExpectJobID:  m.JobID,
		Status:       domain.StatusPaused,
	})
	if err != nil {
		return nil, err
	}
	s.cancelJob(ctx, m.JobID)

	s.logger.Info("scheduled message paused", "message_id", id)
	return s.store.Get(ctx, id)
}

// Resume reactivates a PAUSED message with a freshly computed occurrence.
// A one-shot message whose single occurrence has passed cannot be resumed;
// the caller must recreate it.
func (s *Service) Resume(ctx context.Context, id uuid.UUID) (*domain.ScheduledMessage, error) {
	m, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.Status != domain.StatusPaused {
		return nil, invalidTransition("resume", m.Status)
	}

	loc, err := loadZone(m.Timezone)
	if err != nil {
		return nil, err
	}
	nextRunAt, err := s.firstOccurrence(m.Rule, m.ScheduledFor, loc)
	if err != nil {
		return nil, err
	}

	jobID := uuid.New()
	if err := s.queue.Enqueue(ctx, jobID, delayq.Payload{MessageID: id, RunAt: nextRunAt}, nextRunAt); err != nil {
		return nil, err
	}
	err = s.store.Apply(ctx, store.Transition{
		ID:           id,
		ExpectStatus: []domain.Status{domain.StatusPaused},
		Status:       domain.StatusActive,
		JobID:        &jobID,
		NextRunAt:    &nextRunAt,
	})
	if err != nil {
		s.cancelJob(ctx, &jobID)
		return nil, err
	}

	s.logger.Info("scheduled message resumed",
		"message_id", id, "next_run_at", nextRunAt, "job_id", jobID)
	return s.store.Get(ctx, id)
}

// Cancel terminates a message from ACTIVE or PAUSED. Cancelling an already
// cancelled message is a no-op success, including under a racing cancel.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string) (*domain.ScheduledMessage, error) {
	m, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.Status == domain.StatusCancelled {
		return m, nil
	}
	if m.Status == domain.StatusCompleted {
		return nil, invalidTransition("cancel", m.Status)
	}

	var reasonPtr *string
	if reason != "" {
		reasonPtr = &reason
	}
	cancelledAt := s.now()

	err = s.store.Apply(ctx, store.Transition{
		ID:           id,
		ExpectStatus: []domain.Status{domain.StatusActive, domain.StatusPaused},
		Status:       domain.StatusCancelled,
		CancelReason: reasonPtr,
		CancelledAt:  &cancelledAt,
	})
	if errors.Is(err, domain.ErrConflict) {
		// Lost a race; if the winner was another cancel this is still a
		// no-op success.
		if cur, getErr := s.store.Get(ctx, id); getErr == nil && cur.Status == domain.StatusCancelled {
			return cur, nil
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	s.cancelJob(ctx, m.JobID)

	s.logger.Info("scheduled message cancelled", "message_id", id, "reason", reason)
	return s.store.Get(ctx, id)
}
