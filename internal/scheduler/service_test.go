package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luis-kovi/WhatsKovi-sub003/internal/delayq"
	"github.com/luis-kovi/WhatsKovi-sub003/internal/domain"
	"github.com/luis-kovi/WhatsKovi-sub003/internal/recurrence"
	"github.com/luis-kovi/WhatsKovi-sub003/internal/store"
)

// fakeStore mirrors the fenced-update semantics of the Postgres store in
// memory: Apply and UpdateRule fail with ErrConflict unless the current row
// matches the expectation, same as RowsAffected == 0 in SQL.
type fakeStore struct {
	mu       sync.Mutex
	messages map[uuid.UUID]domain.ScheduledMessage
	logs     map[uuid.UUID][]domain.MessageLog
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		messages: make(map[uuid.UUID]domain.ScheduledMessage),
		logs:     make(map[uuid.UUID][]domain.MessageLog),
	}
}

func (f *fakeStore) Create(_ context.Context, m *domain.ScheduledMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m.CreatedAt = time.Now()
	m.UpdatedAt = m.CreatedAt
	f.messages[m.ID] = *m
	return nil
}

func (f *fakeStore) Get(_ context.Context, id uuid.UUID) (*domain.ScheduledMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := m
	return &cp, nil
}

func (f *fakeStore) Apply(_ context.Context, t store.Transition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[t.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if !statusIn(m.Status, t.ExpectStatus) {
		return domain.ErrConflict
	}
	if t.ExpectJobID != nil && (m.JobID == nil || *m.JobID != *t.ExpectJobID) {
		return domain.ErrConflict
	}
	m.Status = t.Status
	m.JobID = t.JobID
	m.NextRunAt = t.NextRunAt
	m.CancelReason = t.CancelReason
	m.CancelledAt = t.CancelledAt
	m.StateVersion++
	m.UpdatedAt = time.Now()
	f.messages[t.ID] = m
	return nil
}

func (f *fakeStore) UpdateRule(_ context.Context, id uuid.UUID, expect []domain.Status,
	rule recurrence.Rule, timezone string, scheduledFor time.Time,
	jobID *uuid.UUID, nextRunAt *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[id]
	if !ok {
		return domain.ErrNotFound
	}
	if !statusIn(m.Status, expect) {
		return domain.ErrConflict
	}
	m.Rule = rule
	m.Timezone = timezone
	m.ScheduledFor = scheduledFor
	m.JobID = jobID
	m.NextRunAt = nextRunAt
	m.StateVersion++
	f.messages[id] = m
	return nil
}

func (f *fakeStore) RecordRun(_ context.Context, log *domain.MessageLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	log.CreatedAt = time.Now()
	f.logs[log.MessageID] = append(f.logs[log.MessageID], *log)
	if m, ok := f.messages[log.MessageID]; ok {
		runAt := log.RunAt
		m.LastRunAt = &runAt
		f.messages[log.MessageID] = m
	}
	return nil
}

func (f *fakeStore) Logs(_ context.Context, messageID uuid.UUID) ([]domain.MessageLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.MessageLog(nil), f.logs[messageID]...), nil
}

func statusIn(s domain.Status, set []domain.Status) bool {
	for _, want := range set {
		if s == want {
			return true
		}
	}
	return false
}

type queuedJob struct {
	payload delayq.Payload
	dueAt   time.Time
}

type fakeQueue struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]queuedJob
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{jobs: make(map[uuid.UUID]queuedJob)}
}

func (q *fakeQueue) Enqueue(_ context.Context, jobID uuid.UUID, p delayq.Payload, dueAt time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, exists := q.jobs[jobID]; exists {
		return domain.ErrDuplicateJob
	}
	q.jobs[jobID] = queuedJob{payload: p, dueAt: dueAt}
	return nil
}

func (q *fakeQueue) Cancel(_ context.Context, jobID uuid.UUID) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.jobs[jobID]
	delete(q.jobs, jobID)
	return ok, nil
}

func (q *fakeQueue) has(jobID uuid.UUID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.jobs[jobID]
	return ok
}

func (q *fakeQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mustParse panics on bad literals; test fixtures only.
func mustParse(value string) time.Time {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		panic(err)
	}
	return t
}

func newTestService(now time.Time) (*Service, *fakeStore, *fakeQueue) {
	st := newFakeStore()
	q := newFakeQueue()
	svc := New(st, q, testLogger()).WithClock(func() time.Time { return now })
	return svc, st, q
}

func baseCreate() CreateParams {
	return CreateParams{
		TicketID:     "ticket-981",
		UserID:       "user-12",
		Body:         "Bom dia! Segue o lembrete combinado.",
		Type:         domain.TypeText,
		Recurrence:   "NONE",
		Timezone:     "America/Sao_Paulo",
		ScheduledFor: mustParse("2025-06-10T12:00:00-03:00"),
	}
}

func TestCreateOneShot(t *testing.T) {
	now := mustParse("2025-06-01T10:00:00-03:00")
	svc, _, q := newTestService(now)

	m, err := svc.Create(context.Background(), baseCreate())
	require.NoError(t, err)

	assert.Equal(t, domain.StatusActive, m.Status)
	require.NotNil(t, m.NextRunAt)
	assert.True(t, m.NextRunAt.Equal(mustParse("2025-06-10T12:00:00-03:00")))
	require.NotNil(t, m.JobID)
	assert.True(t, q.has(*m.JobID))
}

func TestCreateOneShotInPast(t *testing.T) {
	now := mustParse("2025-06-20T10:00:00-03:00")
	svc, _, q := newTestService(now)

	_, err := svc.Create(context.Background(), baseCreate())
	require.ErrorIs(t, err, domain.ErrScheduleInPast)
	assert.Zero(t, q.len(), "no job may survive a rejected create")
}

func TestCreateRecurringWithElapsedAnchor(t *testing.T) {
	// A DAILY schedule whose anchor already passed is accepted; the first
	// occurrence is the next one after now.
	now := mustParse("2025-06-20T10:00:00-03:00")
	svc, _, _ := newTestService(now)

	p := baseCreate()
	p.Recurrence = "DAILY"
	m, err := svc.Create(context.Background(), p)
	require.NoError(t, err)
	require.NotNil(t, m.NextRunAt)
	assert.True(t, m.NextRunAt.Equal(mustParse("2025-06-21T12:00:00-03:00")))
}

func TestCreateValidation(t *testing.T) {
	now := mustParse("2025-06-01T10:00:00-03:00")

	tests := []struct {
		name   string
		mutate func(*CreateParams)
		field  string
	}{
		{"missing ticket", func(p *CreateParams) { p.TicketID = "" }, "ticketId"},
		{"missing user", func(p *CreateParams) { p.UserID = "" }, "userId"},
		{"empty body without media", func(p *CreateParams) { p.Body = "" }, "body"},
		{"unknown type", func(p *CreateParams) { p.Type = "CAROUSEL" }, "type"},
		{"bad timezone", func(p *CreateParams) { p.Timezone = "Mars/Olympus" }, "timezone"},
		{"weekly without weekdays", func(p *CreateParams) { p.Recurrence = "WEEKLY" }, "recurrence"},
		{"bad weekday token", func(p *CreateParams) {
			p.Recurrence = "WEEKLY"
			p.Weekdays = []string{"MON", "FUNDAY"}
		}, "weekdays"},
		{"monthly day out of range", func(p *CreateParams) {
			p.Recurrence = "MONTHLY"
			p.DayOfMonth = 32
		}, "recurrence"},
		{"weekdays on monthly", func(p *CreateParams) {
			p.Recurrence = "MONTHLY"
			p.DayOfMonth = 15
			p.Weekdays = []string{"MON"}
		}, "recurrence"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc, _, q := newTestService(now)
			p := baseCreate()
			tc.mutate(&p)

			_, err := svc.Create(context.Background(), p)
			require.Error(t, err)
			require.True(t, domain.IsValidation(err), "expected a validation error, got %v", err)
			var verr *domain.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Field)
			assert.Zero(t, q.len())
		})
	}
}

func TestCreateAllowsMediaOnlyBody(t *testing.T) {
	now := mustParse("2025-06-01T10:00:00-03:00")
	svc, _, _ := newTestService(now)

	url := "https://cdn.example.com/contract.pdf"
	p := baseCreate()
	p.Body = ""
	p.MediaURL = &url
	p.Type = domain.TypeDocument

	_, err := svc.Create(context.Background(), p)
	require.NoError(t, err)
}

func TestPauseResumeRoundTrip(t *testing.T) {
	now := mustParse("2025-06-01T10:00:00-03:00")
	svc, _, q := newTestService(now)

	p := baseCreate()
	p.Recurrence = "WEEKLY"
	p.Weekdays = []string{"MON", "THU"}
	m, err := svc.Create(context.Background(), p)
	require.NoError(t, err)
	firstJob := *m.JobID

	paused, err := svc.Pause(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaused, paused.Status)
	assert.Nil(t, paused.JobID)
	assert.False(t, q.has(firstJob), "pause must drop the pending job")

	// The rule survives the pause untouched.
	assert.Equal(t, recurrence.Weekly, paused.Rule.Kind)
	assert.Equal(t, []time.Weekday{time.Monday, time.Thursday}, paused.Rule.Weekdays)

	resumed, err := svc.Resume(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, resumed.Status)
	require.NotNil(t, resumed.JobID)
	require.NotNil(t, resumed.NextRunAt)
	assert.NotEqual(t, firstJob, *resumed.JobID)
	assert.True(t, q.has(*resumed.JobID))
	assert.True(t, resumed.NextRunAt.After(now))
}

func TestPauseRequiresActive(t *testing.T) {
	now := mustParse("2025-06-01T10:00:00-03:00")
	svc, _, _ := newTestService(now)

	m, err := svc.Create(context.Background(), baseCreate())
	require.NoError(t, err)
	_, err = svc.Pause(context.Background(), m.ID)
	require.NoError(t, err)

	_, err = svc.Pause(context.Background(), m.ID)
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestResumeElapsedOneShot(t *testing.T) {
	start := mustParse("2025-06-01T10:00:00-03:00")
	clock := start
	st := newFakeStore()
	q := newFakeQueue()
	svc := New(st, q, testLogger()).WithClock(func() time.Time { return clock })

	m, err := svc.Create(context.Background(), baseCreate())
	require.NoError(t, err)
	_, err = svc.Pause(context.Background(), m.ID)
	require.NoError(t, err)

	// The single occurrence elapses while paused.
	clock = mustParse("2025-07-01T10:00:00-03:00")
	_, err = svc.Resume(context.Background(), m.ID)
	require.ErrorIs(t, err, domain.ErrScheduleInPast)

	cur, err := svc.Get(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaused, cur.Status, "failed resume leaves the message paused")
}

func TestCancelIsIdempotent(t *testing.T) {
	now := mustParse("2025-06-01T10:00:00-03:00")
	svc, _, q := newTestService(now)

	m, err := svc.Create(context.Background(), baseCreate())
	require.NoError(t, err)
	job := *m.JobID

	first, err := svc.Cancel(context.Background(), m.ID, "customer churned")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, first.Status)
	require.NotNil(t, first.CancelReason)
	assert.Equal(t, "customer churned", *first.CancelReason)
	require.NotNil(t, first.CancelledAt)
	assert.False(t, q.has(job))

	second, err := svc.Cancel(context.Background(), m.ID, "again")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, second.Status)
	assert.Equal(t, "customer churned", *second.CancelReason, "second cancel must not overwrite the first")
}

func TestCancelCompletedRejected(t *testing.T) {
	now := mustParse("2025-06-01T10:00:00-03:00")
	svc, st, _ := newTestService(now)

	m, err := svc.Create(context.Background(), baseCreate())
	require.NoError(t, err)

	_, err = svc.Advance(context.Background(), m, *m.JobID)
	require.NoError(t, err)

	_, err = svc.Cancel(context.Background(), m.ID, "")
	require.ErrorIs(t, err, domain.ErrInvalidTransition)

	cur, err := st.Get(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, cur.Status)
}

func TestAdvanceOneShotCompletes(t *testing.T) {
	now := mustParse("2025-06-01T10:00:00-03:00")
	svc, _, q := newTestService(now)

	m, err := svc.Create(context.Background(), baseCreate())
	require.NoError(t, err)

	outcome, err := svc.Advance(context.Background(), m, *m.JobID)
	require.NoError(t, err)
	assert.Equal(t, Advanced, outcome)

	cur, err := svc.Get(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, cur.Status)
	assert.Nil(t, cur.JobID)
	assert.Nil(t, cur.NextRunAt)
	assert.Equal(t, 1, q.len(), "the fired job is forgotten by the worker, not Advance")
}

func TestAdvanceRecurringReschedules(t *testing.T) {
	now := mustParse("2025-06-10T12:00:05-03:00")
	svc, _, q := newTestService(now)

	p := baseCreate()
	p.Recurrence = "DAILY"
	p.ScheduledFor = mustParse("2025-06-10T12:00:00-03:00")
	clock := mustParse("2025-06-01T10:00:00-03:00")
	svc.WithClock(func() time.Time { return clock })
	m, err := svc.Create(context.Background(), p)
	require.NoError(t, err)
	firedJob := *m.JobID
	clock = now

	outcome, err := svc.Advance(context.Background(), m, firedJob)
	require.NoError(t, err)
	assert.Equal(t, Advanced, outcome)

	cur, err := svc.Get(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, cur.Status)
	require.NotNil(t, cur.JobID)
	assert.NotEqual(t, firedJob, *cur.JobID)
	require.NotNil(t, cur.NextRunAt)
	assert.True(t, cur.NextRunAt.Equal(mustParse("2025-06-11T12:00:00-03:00")))
	assert.True(t, q.has(*cur.JobID))
}

func TestAdvanceSupersededJob(t *testing.T) {
	now := mustParse("2025-06-01T10:00:00-03:00")
	svc, _, q := newTestService(now)

	p := baseCreate()
	p.Recurrence = "DAILY"
	m, err := svc.Create(context.Background(), p)
	require.NoError(t, err)

	staleJob := uuid.New()
	outcome, err := svc.Advance(context.Background(), m, staleJob)
	require.NoError(t, err)
	assert.Equal(t, Superseded, outcome)

	cur, err := svc.Get(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, m.StateVersion, cur.StateVersion, "a superseded job must not transition the message")
	assert.Equal(t, 1, q.len())
}

func TestAdvanceInactiveMessage(t *testing.T) {
	now := mustParse("2025-06-01T10:00:00-03:00")
	svc, _, _ := newTestService(now)

	p := baseCreate()
	p.Recurrence = "DAILY"
	m, err := svc.Create(context.Background(), p)
	require.NoError(t, err)
	firedJob := *m.JobID

	// Pause wins the store race while the occurrence is in flight; the
	// worker's Advance sees the refreshed row.
	_, err = svc.Pause(context.Background(), m.ID)
	require.NoError(t, err)
	cur, err := svc.Get(context.Background(), m.ID)
	require.NoError(t, err)

	outcome, err := svc.Advance(context.Background(), cur, firedJob)
	require.NoError(t, err)
	assert.Equal(t, Inactive, outcome)
}

func TestAdvanceLostFenceResolvesInactive(t *testing.T) {
	// The worker holds a stale ACTIVE snapshot; by the time Advance writes,
	// a cancel already won. The fenced update conflicts and resolves to
	// Inactive off the fresh row.
	now := mustParse("2025-06-01T10:00:00-03:00")
	svc, _, _ := newTestService(now)

	p := baseCreate()
	p.Recurrence = "DAILY"
	m, err := svc.Create(context.Background(), p)
	require.NoError(t, err)
	snapshot := *m

	_, err = svc.Cancel(context.Background(), m.ID, "")
	require.NoError(t, err)

	outcome, err := svc.Advance(context.Background(), &snapshot, *snapshot.JobID)
	require.NoError(t, err)
	assert.Equal(t, Inactive, outcome)
}

func TestAdvanceRowDeletedSurfacesNotFound(t *testing.T) {
	// A fenced transition against a row that vanished reports ErrNotFound,
	// not a concurrency conflict: the caller must not mistake a deleted
	// message for a lost race and re-resolve against a fresh read.
	now := mustParse("2025-06-01T10:00:00-03:00")
	svc, st, _ := newTestService(now)

	p := baseCreate()
	p.Recurrence = "DAILY"
	m, err := svc.Create(context.Background(), p)
	require.NoError(t, err)
	snapshot := *m

	st.mu.Lock()
	delete(st.messages, m.ID)
	st.mu.Unlock()

	_, err = svc.Advance(context.Background(), &snapshot, *snapshot.JobID)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdatePausedEditsInPlace(t *testing.T) {
	now := mustParse("2025-06-01T10:00:00-03:00")
	svc, _, q := newTestService(now)

	p := baseCreate()
	p.Recurrence = "DAILY"
	m, err := svc.Create(context.Background(), p)
	require.NoError(t, err)
	_, err = svc.Pause(context.Background(), m.ID)
	require.NoError(t, err)

	weekly := "WEEKLY"
	updated, err := svc.Update(context.Background(), m.ID, UpdateParams{
		Recurrence: &weekly,
		Weekdays:   []string{"TUE"},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaused, updated.Status)
	assert.Equal(t, recurrence.Weekly, updated.Rule.Kind)
	assert.Nil(t, updated.JobID, "editing a paused message must not enqueue")
	assert.Zero(t, q.len())
}

func TestUpdateActiveSwapsJob(t *testing.T) {
	now := mustParse("2025-06-01T10:00:00-03:00")
	svc, _, q := newTestService(now)

	p := baseCreate()
	p.Recurrence = "DAILY"
	m, err := svc.Create(context.Background(), p)
	require.NoError(t, err)
	oldJob := *m.JobID

	monthly := "MONTHLY"
	day := 15
	updated, err := svc.Update(context.Background(), m.ID, UpdateParams{
		Recurrence: &monthly,
		DayOfMonth: &day,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusActive, updated.Status)
	assert.Equal(t, recurrence.Monthly, updated.Rule.Kind)
	assert.Empty(t, updated.Rule.Weekdays, "kind change drops stale variant fields")
	require.NotNil(t, updated.JobID)
	assert.NotEqual(t, oldJob, *updated.JobID)
	assert.False(t, q.has(oldJob), "the old job must be cancelled")
	assert.True(t, q.has(*updated.JobID))
	assert.Equal(t, 1, q.len())
}

func TestUpdateTerminalRejected(t *testing.T) {
	now := mustParse("2025-06-01T10:00:00-03:00")
	svc, _, _ := newTestService(now)

	m, err := svc.Create(context.Background(), baseCreate())
	require.NoError(t, err)
	_, err = svc.Cancel(context.Background(), m.ID, "")
	require.NoError(t, err)

	daily := "DAILY"
	_, err = svc.Update(context.Background(), m.ID, UpdateParams{Recurrence: &daily})
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
}
