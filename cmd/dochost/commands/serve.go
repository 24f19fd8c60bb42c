package commands

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"git.home.luguber.info/inful/dochost/internal/logfields"
	"git.home.luguber.info/inful/dochost/internal/metrics"
	"git.home.luguber.info/inful/dochost/internal/scheduler"
	"git.home.luguber.info/inful/dochost/internal/server"
)

// ServeCmd implements the 'serve' command.
type ServeCmd struct {
	Listen string `help:"HTTP listen address (overrides server.listen)"`
}

func (s *ServeCmd) Run(g *Global, root *CLI) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}
	if s.Listen != "" {
		cfg.Server.Listen = s.Listen
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, cfg, appOptions{deferNotifications: true})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	a.queue.Start(ctx)
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer stopCancel()
		a.queue.Stop(stopCtx)
	}()

	sched, err := scheduler.New()
	if err != nil {
		return err
	}
	sched.SetRecorder(a.recorder)
	if _, err := sched.ScheduleInactiveSweep(ctx, a.store, cfg.Builds.InactiveTimeout, cfg.Builds.SweepInterval); err != nil {
		return fmt.Errorf("schedule inactive build sweep: %w", err)
	}
	sched.Start()
	defer func() {
		if err := sched.Stop(); err != nil {
			slog.Warn("Failed to stop scheduler", logfields.Error(err))
		}
	}()

	var metricsHandler http.Handler
	if a.registry != nil {
		metricsHandler = metrics.HTTPHandler(a.registry)
	}

	logger := g.Logger
	if logger == nil {
		logger = slog.Default()
	}
	srv := server.New(a.store, a.task, a.queue, metricsHandler, logger)

	logger.Info("Starting dochost",
		slog.String("listen", cfg.Server.Listen),
		slog.Bool("eager", a.queue.Eager()),
		slog.Bool("nats", cfg.NATS.Enabled),
		slog.Bool("metrics", cfg.Metrics.Enabled))

	if err := srv.ListenAndServe(ctx, cfg.Server.Listen); err != nil {
		return err
	}
	logger.Info("dochost stopped")
	return nil
}
