package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"dataledge/internal/bootstrap"
	"dataledge/internal/cleanup"
	"dataledge/internal/queue"
	"dataledge/internal/shared/config"
	"dataledge/internal/shared/telemetry"
)

func main() {
	defer telemetry.Sync()
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.BuildWorker(cfg)
	if err != nil {
		telemetry.Error("worker.bootstrap_failed", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
	if app.DB != nil {
		defer app.DB.Close()
	}

	src, err := queue.DialAMQP(queue.AMQPConfig{
		URL:        cfg.AMQPURL,
		Exchange:   cfg.AMQPExchange,
		Queue:      cfg.AMQPQueue,
		RoutingKey: cfg.AMQPRoutingKey,
		Prefetch:   cfg.WorkerConcurrency,
	})
	if err != nil {
		telemetry.Error("worker.amqp_failed", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
	defer src.Close()

	pool := &cleanup.Pool{
		Handler:         app.CleanupHandler,
		Workers:         cfg.WorkerConcurrency,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}

	telemetry.Info("worker.started", map[string]any{
		"exchange":    cfg.AMQPExchange,
		"queue":       cfg.AMQPQueue,
		"routing_key": cfg.AMQPRoutingKey,
		"concurrency": cfg.WorkerConcurrency,
	})
	if err := run(ctx, src, pool); err != nil {
		telemetry.Error("worker.stopped", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
	telemetry.Info("worker.stopped", nil)
}

// run consumes from src until ctx is cancelled or the broker closes the
// delivery channel.
func run(ctx context.Context, src queue.Source, pool *cleanup.Pool) error {
	deliveries, err := src.Consume(ctx)
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	return pool.Run(ctx, deliveries)
}
