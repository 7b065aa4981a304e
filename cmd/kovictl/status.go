// cmd/kovictl/status.go — kovictl status and list subcommands.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/luis-kovi/WhatsKovi-sub003/internal/domain"
	"github.com/luis-kovi/WhatsKovi-sub003/internal/recurrence"
)

func runStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	_ = fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: kovictl status <message_id>")
		os.Exit(1)
	}
	id, err := uuid.Parse(fs.Arg(0))
	if err != nil {
		fatal("status", fmt.Errorf("invalid message id: %w", err))
	}

	ctx := context.Background()
	c, err := dial(ctx)
	if err != nil {
		fatal("status", err)
	}
	defer c.Close()

	m, err := c.Service.Get(ctx, id)
	if err != nil {
		fatal("status", err)
	}
	printMessage(m)

	if m.JobID != nil {
		pending, err := c.Queue.Pending(ctx, *m.JobID)
		if err != nil {
			fatal("status", err)
		}
		fmt.Printf("job_pending:   %t\n", pending)
	}
}

func runList(args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	status := fs.String("status", "", "filter by status (ACTIVE|PAUSED|CANCELLED|COMPLETED)")
	limit := fs.Int("limit", 50, "maximum rows")
	_ = fs.Parse(args)

	ctx := context.Background()
	c, err := dial(ctx)
	if err != nil {
		fatal("list", err)
	}
	defer c.Close()

	var filter *domain.Status
	if *status != "" {
		s := domain.Status(strings.ToUpper(*status))
		filter = &s
	}

	msgs, err := c.Store.List(ctx, filter, *limit)
	if err != nil {
		fatal("list", err)
	}
	for _, m := range msgs {
		next := "-"
		if m.NextRunAt != nil {
			next = m.NextRunAt.Format(time.RFC3339)
		}
		fmt.Printf("%s  %-9s  %-7s  ticket=%s  next=%s\n",
			m.ID, m.Status, m.Rule.Kind, m.TicketID, next)
	}
}

func printMessage(m *domain.ScheduledMessage) {
	fmt.Printf("message_id:    %s\n", m.ID)
	fmt.Printf("ticket_id:     %s\n", m.TicketID)
	fmt.Printf("user_id:       %s\n", m.UserID)
	fmt.Printf("status:        %s\n", m.Status)
	fmt.Printf("type:          %s\n", m.Type)
	fmt.Printf("recurrence:    %s\n", m.Rule.Kind)
	if len(m.Rule.Weekdays) > 0 {
		fmt.Printf("weekdays:      %s\n", strings.Join(recurrence.Tokens(m.Rule.Weekdays), ","))
	}
	if m.Rule.DayOfMonth > 0 {
		fmt.Printf("day_of_month:  %d\n", m.Rule.DayOfMonth)
	}
	fmt.Printf("timezone:      %s\n", m.Timezone)
	fmt.Printf("scheduled_for: %s\n", m.ScheduledFor.Format(time.RFC3339))
	if m.NextRunAt != nil {
		fmt.Printf("next_run_at:   %s\n", m.NextRunAt.Format(time.RFC3339))
	}
	if m.LastRunAt != nil {
		fmt.Printf("last_run_at:   %s\n", m.LastRunAt.Format(time.RFC3339))
	}
	if m.JobID != nil {
		fmt.Printf("job_id:        %s\n", m.JobID)
	}
	if m.CancelReason != nil {
		fmt.Printf("cancel_reason: %s\n", *m.CancelReason)
	}
	if m.CancelledAt != nil {
		fmt.Printf("cancelled_at:  %s\n", m.CancelledAt.Format(time.RFC3339))
	}
}
