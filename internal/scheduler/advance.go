package scheduler

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/luis-kovi/WhatsKovi-sub003/internal/delayq"
	"github.com/luis-kovi/WhatsKovi-sub003/internal/domain"
	"github.com/luis-kovi/WhatsKovi-sub003/internal/recurrence"
	"github.com/luis-kovi/WhatsKovi-sub003/internal/store"
)

// AdvanceOutcome tells the worker how to record the occurrence it just
// processed.
type AdvanceOutcome int

const (
	// Advanced: this worker owned the occurrence; log SUCCESS/FAILED.
	Advanced AdvanceOutcome = iota
	// Superseded: the job handle no longer matches (reschedule, rule edit,
	// resume). The occurrence belongs to nobody; abort silently.
	Superseded
	// Inactive: the message was paused, cancelled or completed while the
	// occurrence was in flight; log SKIPPED, never reschedule.
	Inactive
)

// Advance performs the post-occurrence transition for the worker: one-shot
// messages complete, recurring ones get the next occurrence enqueued under
// a fresh job id. The whole transition is fenced on (ACTIVE, firedJobID),
// so a pause/cancel/edit that won the store race turns this call into
// Inactive or Superseded instead of a reschedule.
func (s *Service) Advance(ctx context.Context, msg *domain.ScheduledMessage, firedJobID uuid.UUID) (AdvanceOutcome, error) {
	if msg.Status != domain.StatusActive {
		return Inactive, nil
	}
	if msg.JobID == nil || *msg.JobID != firedJobID {
		return Superseded, nil
	}

	if !msg.Rule.Recurring() {
		return s.finish(ctx, msg.ID, firedJobID)
	}

	loc, err := loadZone(msg.Timezone)
	if err != nil {
		// The zone validated at create time; a failure here means the tzdb
		// shrank underneath us. Guard by completing rather than looping.
		s.logger.Error("stored timezone no longer loads; completing message",
			"message_id", msg.ID, "timezone", msg.Timezone)
		return s.finish(ctx, msg.ID, firedJobID)
	}

	firedRunAt := msg.ScheduledFor
	if msg.NextRunAt != nil {
		firedRunAt = *msg.NextRunAt
	}
	next, ok := recurrence.Next(msg.Rule, msg.ScheduledFor, loc, firedRunAt)
	if !ok {
		// Rule degeneration guard; recurring rules normally always produce
		// a next occurrence.
		return s.finish(ctx, msg.ID, firedJobID)
	}

	newJobID := uuid.New()
	if err := s.queue.Enqueue(ctx, newJobID, delayq.Payload{MessageID: msg.ID, RunAt: next}, next); err != nil {
		return Advanced, err
	}
	err = s.store.Apply(ctx, store.Transition{
		ID:           msg.ID,
		ExpectStatus: []domain.Status{domain.StatusActive},
		ExpectJobID:  &firedJobID,
		Status:       domain.StatusActive,
		JobID:        &newJobID,
		NextRunAt:    &next,
	})
	if err != nil {
		s.cancelJob(ctx, &newJobID)
		return s.resolveConflict(ctx, msg.ID, err)
	}

	s.logger.Info("occurrence advanced",
		"message_id", msg.ID, "next_run_at", next, "job_id", newJobID)
	return Advanced, nil
}

// finish moves a message to COMPLETED, fenced on the fired job.
func (s *Service) finish(ctx context.Context, id, firedJobID uuid.UUID) (AdvanceOutcome, error) {
	err := s.store.Apply(ctx, store.Transition{
		ID:           id,
		ExpectStatus: []domain.Status{domain.StatusActive},
		ExpectJobID:  &firedJobID,
		Status:       domain.StatusCompleted,
	})
	if err != nil {
		return s.resolveConflict(ctx, id, err)
	}
	s.logger.Info("scheduled message completed", "message_id", id)
	return Advanced, nil
}

// resolveConflict classifies a lost fence: a non-ACTIVE current status means
// the user transitioned the message mid-flight (Inactive), anything else
// means this job was superseded.
func (s *Service) resolveConflict(ctx context.Context, id uuid.UUID, err error) (AdvanceOutcome, error) {
	if !errors.Is(err, domain.ErrConflict) {
		return Advanced, err
	}
	cur, getErr := s.store.Get(ctx, id)
	if getErr != nil || cur.Status != domain.StatusActive {
		return Inactive, nil
	}
	return Superseded, nil
}
