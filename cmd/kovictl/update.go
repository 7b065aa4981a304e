// cmd/kovictl/update.go — kovictl update subcommand.
package main

import (
	"context"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/luis-kovi/WhatsKovi-sub003/internal/scheduler"
)

func runUpdate(args []string) {
	var params scheduler.UpdateParams
	var recur, weekdays, timezone, at string
	var dayOfMonth int

	id := parseID("update", args, func(fs *flag.FlagSet) {
		fs.StringVar(&recur, "recurrence", "", "new recurrence (NONE|DAILY|WEEKLY|MONTHLY)")
		fs.StringVar(&weekdays, "weekdays", "", "comma-separated weekday tokens for WEEKLY")
		fs.IntVar(&dayOfMonth, "day-of-month", 0, "day of month for MONTHLY (1-31)")
		fs.StringVar(&timezone, "tz", "", "new IANA timezone")
		fs.StringVar(&at, "at", "", "new anchor occurrence, RFC 3339")
	})

	if recur != "" {
		r := strings.ToUpper(recur)
		params.Recurrence = &r
	}
	if weekdays != "" {
		params.Weekdays = strings.Split(weekdays, ",")
	}
	if dayOfMonth != 0 {
		params.DayOfMonth = &dayOfMonth
	}
	if timezone != "" {
		params.Timezone = &timezone
	}
	if at != "" {
		t, err := time.Parse(time.RFC3339, at)
		if err != nil {
			fatal("update", fmt.Errorf("invalid --at %q: %w", at, err))
		}
		params.ScheduledFor = &t
	}

	ctx := context.Background()
	c, err := dial(ctx)
	if err != nil {
		fatal("update", err)
	}
	defer c.Close()

	m, err := c.Service.Update(ctx, id, params)
	if err != nil {
		fatal("update", err)
	}
	printMessage(m)
}
