package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/luis-kovi/WhatsKovi-sub003/internal/delayq"
	"github.com/luis-kovi/WhatsKovi-sub003/internal/domain"
	"github.com/luis-kovi/WhatsKovi-sub003/internal/recurrence"
)

// UpdateParams is a partial rule edit; nil fields keep their current value.
// Weekdays replaces the whole set when non-nil.
type UpdateParams struct {
	Recurrence   *string
	Weekdays     []string
	DayOfMonth   *int
	Timezone     *string
	ScheduledFor *time.Time
}

// Update rewrites a message's schedule rule. PAUSED messages are edited in
// place. ACTIVE messages go through an implicit pause+resume: the pending
// job is swapped for a fresh one in the same fenced store update, so an
// in-flight occurrence of the old rule loses its job_id fence and aborts.
func (s *Service) Update(ctx context.Context, id uuid.UUID, p UpdateParams) (*domain.ScheduledMessage, error) {
	m, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.Status != domain.StatusActive && m.Status != domain.StatusPaused {
		return nil, invalidTransition("update", m.Status)
	}

	kind := string(m.Rule.Kind)
	if p.Recurrence != nil {
		kind = *p.Recurrence
	}
	weekdays := recurrence.Tokens(m.Rule.Weekdays)
	if p.Weekdays != nil {
		weekdays = p.Weekdays
	}
	dayOfMonth := m.Rule.DayOfMonth
	if p.DayOfMonth != nil {
		dayOfMonth = *p.DayOfMonth
	}
	timezone := m.Timezone
	if p.Timezone != nil {
		timezone = *p.Timezone
	}
	scheduledFor := m.ScheduledFor
	if p.ScheduledFor != nil {
		scheduledFor = *p.ScheduledFor
	}

	// Kind changes drop variant fields the new kind does not carry, so a
	// WEEKLY→DAILY edit does not trip validation on stale weekdays.
	newKind := recurrence.Kind(kind)
	if newKind != recurrence.Weekly && p.Weekdays == nil {
		weekdays = nil
	}
	if newKind != recurrence.Monthly && p.DayOfMonth == nil {
		dayOfMonth = 0
	}

	rule, loc, err := s.buildRule(kind, weekdays, dayOfMonth, timezone)
	if err != nil {
		return nil, err
	}

	if m.Status == domain.StatusPaused {
		err = s.store.UpdateRule(ctx, id,
			[]domain.Status{domain.StatusPaused},
			rule, timezone, scheduledFor, nil, nil)
		if err != nil {
			return nil, err
		}
		s.logger.Info("scheduled message rule updated", "message_id", id, "recurrence", rule.Kind)
		return s.store.Get(ctx, id)
	}

	// ACTIVE: implicit pause+resume.
	nextRunAt, err := s.firstOccurrence(rule, scheduledFor, loc)
	if err != nil {
		return nil, err
	}
	jobID := uuid.New()
	if err := s.queue.Enqueue(ctx, jobID, delayq.Payload{MessageID: id, RunAt: nextRunAt}, nextRunAt); err != nil {
		return nil, err
	}
	err = s.store.UpdateRule(ctx, id,
		[]domain.Status{domain.StatusActive},
		rule, timezone, scheduledFor, &jobID, &nextRunAt)
	if err != nil {
		s.cancelJob(ctx, &jobID)
		return nil, err
	}
	s.cancelJob(ctx, m.JobID)

	s.logger.Info("scheduled message rule updated",
		"message_id", id, "recurrence", rule.Kind, "next_run_at", nextRunAt, "job_id", jobID)
	return s.store.Get(ctx, id)
}
