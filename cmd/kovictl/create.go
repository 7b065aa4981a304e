// cmd/kovictl/create.go — kovictl create subcommand.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/luis-kovi/WhatsKovi-sub003/internal/domain"
	"github.com/luis-kovi/WhatsKovi-sub003/internal/scheduler"
)

func runCreate(args []string) {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	ticket := fs.String("ticket", "", "ticket reference (required)")
	user := fs.String("user", "", "authoring user id (required)")
	body := fs.String("body", "", "message body")
	msgType := fs.String("type", "TEXT", "message type (TEXT|IMAGE|VIDEO|AUDIO|DOCUMENT|NOTE)")
	mediaURL := fs.String("media-url", "", "media URL for non-text types")
	private := fs.Bool("private", false, "internal note, not delivered externally")
	recur := fs.String("recurrence", "NONE", "recurrence (NONE|DAILY|WEEKLY|MONTHLY)")
	weekdays := fs.String("weekdays", "", "comma-separated weekday tokens for WEEKLY (e.g. MON,WED)")
	dayOfMonth := fs.Int("day-of-month", 0, "day of month for MONTHLY (1-31)")
	timezone := fs.String("tz", "UTC", "IANA timezone of the schedule")
	at := fs.String("at", "", "first occurrence, RFC 3339 (required)")
	_ = fs.Parse(args)

	if *ticket == "" || *user == "" || *at == "" {
		fmt.Fprintln(os.Stderr, "create: --ticket, --user and --at are required")
		fs.Usage()
		os.Exit(1)
	}

	scheduledFor, err := time.Parse(time.RFC3339, *at)
	if err != nil {
		fatal("create", fmt.Errorf("invalid --at %q: %w", *at, err))
	}

	params := scheduler.CreateParams{
		TicketID:     *ticket,
		UserID:       *user,
		Body:         *body,
		Type:         domain.MessageType(strings.ToUpper(*msgType)),
		IsPrivate:    *private,
		Recurrence:   strings.ToUpper(*recur),
		DayOfMonth:   *dayOfMonth,
		Timezone:     *timezone,
		ScheduledFor: scheduledFor,
	}
	if *mediaURL != "" {
		params.MediaURL = mediaURL
	}
	if *weekdays != "" {
		params.Weekdays = strings.Split(*weekdays, ",")
	}

	ctx := context.Background()
	c, err := dial(ctx)
	if err != nil {
		fatal("create", err)
	}
	defer c.Close()

	m, err := c.Service.Create(ctx, params)
	if err != nil {
		fatal("create", err)
	}
	printMessage(m)
}
