// cmd/kovictl/conn.go — shared service construction for subcommands.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/luis-kovi/WhatsKovi-sub003/internal/config"
	"github.com/luis-kovi/WhatsKovi-sub003/internal/db"
	"github.com/luis-kovi/WhatsKovi-sub003/internal/delayq"
	"github.com/luis-kovi/WhatsKovi-sub003/internal/scheduler"
	"github.com/luis-kovi/WhatsKovi-sub003/internal/store"
)

type conn struct {
	Service *scheduler.Service
	Store   *store.Store
	Queue   *delayq.Queue
	close   func()
}

func dial(ctx context.Context) (*conn, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	rc := redis.NewClient(redisOpts)
	if err := rc.Ping(ctx).Err(); err != nil {
		pool.Close()
		rc.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	st := store.New(pool)
	q := delayq.New(rc)
	return &conn{
		Service: scheduler.New(st, q, logger),
		Store:   st,
		Queue:   q,
		close: func() {
			pool.Close()
			rc.Close()
		},
	}, nil
}

func (c *conn) Close() { c.close() }

func fatal(cmd string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", cmd, err)
	os.Exit(1)
}
