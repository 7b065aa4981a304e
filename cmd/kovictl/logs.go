// cmd/kovictl/logs.go — kovictl logs subcommand.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
)

func runLogs(args []string) {
	fs := flag.NewFlagSet("logs", flag.ExitOnError)
	limit := fs.Int("limit", 50, "maximum rows")
	_ = fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: kovictl logs <message_id>")
		os.Exit(1)
	}
	id, err := uuid.Parse(fs.Arg(0))
	if err != nil {
		fatal("logs", fmt.Errorf("invalid message id: %w", err))
	}

	ctx := context.Background()
	c, err := dial(ctx)
	if err != nil {
		fatal("logs", err)
	}
	defer c.Close()

	logs, err := c.Service.Logs(ctx, id)
	if err != nil {
		fatal("logs", err)
	}
	if *limit > 0 && len(logs) > *limit {
		logs = logs[len(logs)-*limit:]
	}
	for _, l := range logs {
		line := fmt.Sprintf("%s  %-7s", l.RunAt.Format(time.RFC3339), l.Status)
		if l.Error != nil {
			line += "  " + *l.Error
		}
		fmt.Println(line)
	}
}
