// cmd/worker runs the scheduled-message engine: migrations, the elected
// mover/reconciler, and the execution worker pool.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/luis-kovi/WhatsKovi-sub003/internal/config"
	"github.com/luis-kovi/WhatsKovi-sub003/internal/db"
	"github.com/luis-kovi/WhatsKovi-sub003/internal/delayq"
	"github.com/luis-kovi/WhatsKovi-sub003/internal/delivery"
	"github.com/luis-kovi/WhatsKovi-sub003/internal/delivery/twilio"
	"github.com/luis-kovi/WhatsKovi-sub003/internal/idemlock"
	"github.com/luis-kovi/WhatsKovi-sub003/internal/migrate"
	"github.com/luis-kovi/WhatsKovi-sub003/internal/scheduler"
	"github.com/luis-kovi/WhatsKovi-sub003/internal/store"
	"github.com/luis-kovi/WhatsKovi-sub003/internal/worker"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("load config failed", "err", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	logger.Info("connecting to database")
	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("connect to database failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("database connected")

	if err := migrate.Run(ctx, pool, logger); err != nil {
		logger.Error("run migrations failed", "err", err)
		os.Exit(1)
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Error("parse redis URL failed", "err", err)
		os.Exit(1)
	}
	rc := redis.NewClient(redisOpts)
	defer rc.Close()

	logger.Info("connecting to redis")
	if err := rc.Ping(ctx).Err(); err != nil {
		logger.Error("redis ping failed", "err", err)
		os.Exit(1)
	}
	logger.Info("redis connected")

	st := store.New(pool)
	q := delayq.New(rc)
	locker := idemlock.New(rc, cfg.LockTTL)
	svc := scheduler.New(st, q, logger)

	var deliverer delivery.Deliverer
	switch cfg.DeliveryDriver {
	case "twilio":
		deliverer = twilio.New(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFrom)
	default:
		deliverer = &delivery.LogDeliverer{Logger: logger}
	}
	logger.Info("delivery driver selected", "driver", cfg.DeliveryDriver)

	mover := &worker.Mover{
		Pool:     pool,
		Queue:    q,
		Store:    st,
		Logger:   logger,
		Interval: cfg.MoveInterval,
		Batch:    cfg.MoveBatch,
		Grace:    cfg.ReconcileGrace,
	}
	go mover.Run(ctx)

	w := worker.New(st, svc, q, locker, deliverer, logger, worker.Config{
		Workers:         cfg.WorkerCount,
		MaxAttempts:     cfg.MaxRetries,
		BackoffBase:     cfg.RetryBackoffBase,
		BackoffCap:      cfg.RetryBackoffCap,
		DeliveryTimeout: cfg.DeliveryTimeout,
	})

	if err := w.Run(ctx); err != nil {
		logger.Error("worker pool stopped", "err", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}
