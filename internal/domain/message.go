package domain

import (
	"time"

	"github.com/google/uuid"

	"github.com/luis-kovi/WhatsKovi-sub003/internal/recurrence"
)

// Status is the lifecycle state of a scheduled message.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusPaused    Status = "PAUSED"
	StatusCancelled Status = "CANCELLED"
	StatusCompleted Status = "COMPLETED"
)

// Terminal reports whether no further occurrences will ever be scheduled.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

// MessageType describes the payload handed to the delivery channel. It is
// opaque to the engine and passed through unchanged.
type MessageType string

const (
	TypeText     MessageType = "TEXT"
	TypeImage    MessageType = "IMAGE"
	TypeVideo    MessageType = "VIDEO"
	TypeAudio    MessageType = "AUDIO"
	TypeDocument MessageType = "DOCUMENT"
	TypeNote     MessageType = "NOTE"
)

// MessageTypes is the accepted set, used by validation.
var MessageTypes = []MessageType{TypeText, TypeImage, TypeVideo, TypeAudio, TypeDocument, TypeNote}

// LogStatus is the recorded outcome of one execution attempt.
type LogStatus string

const (
	LogSuccess LogStatus = "SUCCESS"
	LogFailed  LogStatus = "FAILED"
	LogSkipped LogStatus = "SKIPPED"
)

// ScheduledMessage is a user-declared "send this message on this schedule"
// intent plus its current scheduling state. The scheduler service is the
// sole writer of Status, JobID and NextRunAt; the worker pool is the sole
// writer of LastRunAt and log entries.
type ScheduledMessage struct {
	ID       uuid.UUID
	TicketID string
	UserID   string

	Body      string
	Type      MessageType
	MediaURL  *string
	IsPrivate bool

	Rule         recurrence.Rule
	Timezone     string
	ScheduledFor time.Time

	LastRunAt *time.Time
	NextRunAt *time.Time
	JobID     *uuid.UUID

	Status       Status
	CancelReason *string
	CancelledAt  *time.Time

	// StateVersion increments on every scheduling-field update and fences
	// concurrent writers, after the optimistic-concurrency pattern of the
	// jobs table this model grew out of.
	StateVersion int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// MessageLog is one immutable execution-attempt outcome. Logs are append-only
// and ordered by RunAt for a given message.
type MessageLog struct {
	ID        uuid.UUID
	MessageID uuid.UUID
	Status    LogStatus
	Error     *string
	RunAt     time.Time
	CreatedAt time.Time
}
