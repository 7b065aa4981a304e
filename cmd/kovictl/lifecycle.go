// cmd/kovictl/lifecycle.go — pause, resume and cancel subcommands.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"
)

func runPause(args []string) {
	id := parseID("pause", args, nil)

	ctx := context.Background()
	c, err := dial(ctx)
	if err != nil {
		fatal("pause", err)
	}
	defer c.Close()

	m, err := c.Service.Pause(ctx, id)
	if err != nil {
		fatal("pause", err)
	}
	printMessage(m)
}

func runResume(args []string) {
	id := parseID("resume", args, nil)

	ctx := context.Background()
	c, err := dial(ctx)
	if err != nil {
		fatal("resume", err)
	}
	defer c.Close()

	m, err := c.Service.Resume(ctx, id)
	if err != nil {
		fatal("resume", err)
	}
	printMessage(m)
}

func runCancel(args []string) {
	var reason string
	id := parseID("cancel", args, func(fs *flag.FlagSet) {
		fs.StringVar(&reason, "reason", "", "why the schedule is being cancelled")
	})

	ctx := context.Background()
	c, err := dial(ctx)
	if err != nil {
		fatal("cancel", err)
	}
	defer c.Close()

	m, err := c.Service.Cancel(ctx, id, reason)
	if err != nil {
		fatal("cancel", err)
	}
	printMessage(m)
}

// parseID parses subcommand flags plus a positional message id.
func parseID(cmd string, args []string, register func(*flag.FlagSet)) uuid.UUID {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	if register != nil {
		register(fs)
	}
	_ = fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: kovictl %s [options] <message_id>\n", cmd)
		os.Exit(1)
	}
	id, err := uuid.Parse(fs.Arg(0))
	if err != nil {
		fatal(cmd, fmt.Errorf("invalid message id: %w", err))
	}
	return id
}
