package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/luis-kovi/WhatsKovi-sub003/internal/delayq"
	"github.com/luis-kovi/WhatsKovi-sub003/internal/domain"
	"github.com/luis-kovi/WhatsKovi-sub003/internal/recurrence"
)

// CreateParams declares a new scheduled message as the API layer supplies
// it: recurrence fields on the wire format, instants already parsed.
type CreateParams struct {
	TicketID  string
	UserID    string
	Body      string
	Type      domain.MessageType
	MediaURL  *string
	IsPrivate bool

	Recurrence   string
	Weekdays     []string
	DayOfMonth   int
	Timezone     string
	ScheduledFor time.Time
}

// Create validates the declaration, computes the first occurrence, enqueues
// the delay-queue job and persists the message as ACTIVE.
func (s *Service) Create(ctx context.Context, p CreateParams) (*domain.ScheduledMessage, error) {
	rule, loc, err := s.buildRule(p.Recurrence, p.Weekdays, p.DayOfMonth, p.Timezone)
	if err != nil {
		return nil, err
	}
	if err := validatePayload(p); err != nil {
		return nil, err
	}

	nextRunAt, err := s.firstOccurrence(rule, p.ScheduledFor, loc)
	if err != nil {
		return nil, err
	}

	m := &domain.ScheduledMessage{
		ID:           uuid.New(),
		TicketID:     p.TicketID,
		UserID:       p.UserID,
		Body:         p.Body,
		Type:         p.Type,
		MediaURL:     p.MediaURL,
		IsPrivate:    p.IsPrivate,
		Rule:         rule,
		Timezone:     p.Timezone,
		ScheduledFor: p.ScheduledFor,
		Status:       domain.StatusActive,
	}

	jobID := uuid.New()
	m.JobID = &jobID
	m.NextRunAt = &nextRunAt

	if err := s.queue.Enqueue(ctx, jobID, delayq.Payload{MessageID: m.ID, RunAt: nextRunAt}, nextRunAt); err != nil {
		return nil, fmt.Errorf("enqueue first occurrence: %w", err)
	}
	if err := s.store.Create(ctx, m); err != nil {
		s.cancelJob(ctx, &jobID)
		return nil, err
	}

	s.logger.Info("scheduled message created",
		"message_id", m.ID,
		"ticket_id", m.TicketID,
		"recurrence", rule.Kind,
		"next_run_at", nextRunAt,
		"job_id", jobID)
	return s.store.Get(ctx, m.ID)
}

// buildRule parses and validates the wire recurrence fields into the tagged
// variant plus the loaded zone.
func (s *Service) buildRule(kind string, weekdays []string, dayOfMonth int, timezone string) (recurrence.Rule, *time.Location, error) {
	loc, err := loadZone(timezone)
	if err != nil {
		return recurrence.Rule{}, nil, err
	}

	rule := recurrence.Rule{Kind: recurrence.Kind(kind), DayOfMonth: dayOfMonth}
	if rule.Weekdays, err = recurrence.ParseWeekdays(weekdays); err != nil {
		return recurrence.Rule{}, nil, domain.Validationf("weekdays", "%v", err)
	}
	if err := rule.Validate(); err != nil {
		return recurrence.Rule{}, nil, domain.Validationf("recurrence", "%v", err)
	}
	return rule, loc, nil
}

func validatePayload(p CreateParams) error {
	if p.TicketID == "" {
		return domain.Validationf("ticketId", "required")
	}
	if p.UserID == "" {
		return domain.Validationf("userId", "required")
	}
	if p.Body == "" && (p.MediaURL == nil || *p.MediaURL == "") {
		return domain.Validationf("body", "required unless mediaUrl is set")
	}
	for _, t := range domain.MessageTypes {
		if p.Type == t {
			return nil
		}
	}
	return domain.Validationf("type", "unknown message type %q", p.Type)
}
