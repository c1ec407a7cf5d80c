package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"dataledge/internal/bootstrap"
	"dataledge/internal/shared/config"
	"dataledge/internal/shared/server"
	"dataledge/internal/shared/telemetry"
)

func main() {
	defer telemetry.Sync()
	cfg := config.Load()

	app, err := bootstrap.Build(cfg)
	if err != nil {
		telemetry.Error("api.bootstrap_failed", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
	if app.DB != nil {
		defer app.DB.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{Addr: server.Addr(cfg.Port), Handler: app.Router}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	telemetry.Info("api.started", map[string]any{"addr": srv.Addr, "env": cfg.Env, "object_store": cfg.ObjectStoreType})
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		telemetry.Error("api.server_error", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
	telemetry.Info("api.stopped", nil)
}
