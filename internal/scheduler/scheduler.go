// Package scheduler runs periodic maintenance jobs.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/dochost/internal/build"
	"git.home.luguber.info/inful/dochost/internal/logfields"
	"git.home.luguber.info/inful/dochost/internal/metrics"
	"git.home.luguber.info/inful/dochost/internal/storage"
)

// Scheduler wraps a gocron scheduler.
type Scheduler struct {
	scheduler gocron.Scheduler
	recorder  metrics.Recorder
}

// New creates a scheduler.
func New() (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	return &Scheduler{scheduler: s, recorder: metrics.NoopRecorder{}}, nil
}

// SetRecorder injects a metrics recorder.
func (s *Scheduler) SetRecorder(r metrics.Recorder) {
	if r != nil {
		s.recorder = r
	}
}

// Start begins running scheduled jobs.
func (s *Scheduler) Start() {
	slog.Info("Starting scheduler")
	s.scheduler.Start()
}

// Stop shuts the scheduler down, waiting for running jobs.
func (s *Scheduler) Stop() error {
	slog.Info("Stopping scheduler")
	return s.scheduler.Shutdown()
}

// ScheduleEvery runs fn every interval and returns the job ID.
func (s *Scheduler) ScheduleEvery(name string, interval time.Duration, fn func()) (string, error) {
	if interval <= 0 {
		return "", errors.New("interval must be positive")
	}
	job, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(fn),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create job %s: %w", name, err)
	}
	return job.ID().String(), nil
}

// ScheduleCron runs fn on a five-field cron expression and returns the job ID.
func (s *Scheduler) ScheduleCron(name, expr string, fn func()) (string, error) {
	job, err := s.scheduler.NewJob(
		gocron.CronJob(expr, false),
		gocron.NewTask(fn),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create job %s: %w", name, err)
	}
	return job.ID().String(), nil
}

// ScheduleInactiveSweep finishes builds older than timeout every interval.
func (s *Scheduler) ScheduleInactiveSweep(ctx context.Context, store storage.Store, timeout, interval time.Duration) (string, error) {
	return s.ScheduleEvery("finish-inactive-builds", interval, func() {
		s.sweep(ctx, store, timeout)
	})
}

func (s *Scheduler) sweep(ctx context.Context, store storage.Store, timeout time.Duration) int {
	n, err := build.FinishInactiveBuilds(ctx, store, timeout)
	if n > 0 {
		s.recorder.AddInactiveBuildsFinished(n)
	}
	if err != nil {
		slog.Error("Inactive build sweep failed", logfields.Error(err))
	}
	return n
}
