// Package scheduler orchestrates the lifecycle of scheduled messages: it is
// the only writer of status, job_id and next_run_at, and keeps the delay
// queue in lockstep with the store on every transition.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/luis-kovi/WhatsKovi-sub003/internal/delayq"
	"github.com/luis-kovi/WhatsKovi-sub003/internal/domain"
	"github.com/luis-kovi/WhatsKovi-sub003/internal/recurrence"
	"github.com/luis-kovi/WhatsKovi-sub003/internal/store"
)

// Store is the durable schedule record the service drives. Implemented by
// *store.Store; faked in tests.
type Store interface {
	Create(ctx context.Context, m *domain.ScheduledMessage) error
	Get(ctx context.Context, id uuid.UUID) (*domain.ScheduledMessage, error)
	Apply(ctx context.Context, t store.Transition) error
	UpdateRule(ctx context.Context, id uuid.UUID, expect []domain.Status,
		rule recurrence.Rule, timezone string, scheduledFor time.Time,
		jobID *uuid.UUID, nextRunAt *time.Time) error
	RecordRun(ctx context.Context, log *domain.MessageLog) error
	Logs(ctx context.Context, messageID uuid.UUID) ([]domain.MessageLog, error)
}

// Queue is the delay-queue side of a transition. Implemented by
// *delayq.Queue; faked in tests.
type Queue interface {
	Enqueue(ctx context.Context, jobID uuid.UUID, p delayq.Payload, dueAt time.Time) error
	Cancel(ctx context.Context, jobID uuid.UUID) (bool, error)
}

type Service struct {
	store  Store
	queue  Queue
	logger *slog.Logger

	// now is injectable so transition logic is testable at fixed instants.
	now func() time.Time
}

func New(st Store, q Queue, logger *slog.Logger) *Service {
	return &Service{store: st, queue: q, logger: logger, now: time.Now}
}

// WithClock overrides the service clock. Test hook.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Get returns one message.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.ScheduledMessage, error) {
	return s.store.Get(ctx, id)
}

// Logs returns a message's execution history in execution order.
func (s *Service) Logs(ctx context.Context, id uuid.UUID) ([]domain.MessageLog, error) {
	if _, err := s.store.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.store.Logs(ctx, id)
}

// firstOccurrence resolves the initial next_run_at for a rule: the declared
// scheduledFor when it is still ahead, otherwise the calculator's next
// occurrence after now. ErrScheduleInPast when neither exists.
func (s *Service) firstOccurrence(rule recurrence.Rule, scheduledFor time.Time, loc *time.Location) (time.Time, error) {
	now := s.now()
	if scheduledFor.After(now) {
		return scheduledFor, nil
	}
	next, ok := recurrence.Next(rule, scheduledFor, loc, now)
	if !ok {
		return time.Time{}, domain.ErrScheduleInPast
	}
	return next, nil
}

// cancelJob removes a pending queue job, logging instead of failing: a job
// that already fired resolves through the worker's store re-read.
func (s *Service) cancelJob(ctx context.Context, jobID *uuid.UUID) {
	if jobID == nil {
		return
	}
	if _, err := s.queue.Cancel(ctx, *jobID); err != nil {
		s.logger.Warn("delay-queue cancel failed; worker re-read will resolve",
			"job_id", *jobID, "err", err)
	}
}

func loadZone(name string) (*time.Location, error) {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, domain.Validationf("timezone", "unrecognized zone %q", name)
	}
	return loc, nil
}

func invalidTransition(op string, from domain.Status) error {
	return fmt.Errorf("%w: cannot %s a %s message", domain.ErrInvalidTransition, op, from)
}
