package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/dochost/internal/build"
	"git.home.luguber.info/inful/dochost/internal/config"
	"git.home.luguber.info/inful/dochost/internal/eventstore"
	"git.home.luguber.info/inful/dochost/internal/logfields"
	"git.home.luguber.info/inful/dochost/internal/metrics"
	"git.home.luguber.info/inful/dochost/internal/notify"
	"git.home.luguber.info/inful/dochost/internal/storage"
	"git.home.luguber.info/inful/dochost/internal/tasks"
	"git.home.luguber.info/inful/dochost/internal/vcs"
)

// app is the wired set of services a command works with.
type app struct {
	cfg      *config.Config
	store    *storage.SQLiteStore
	events   *eventstore.SQLiteStore
	queue    *tasks.Queue
	notifier *notify.Notifier
	task     *build.UpdateDocsTask
	recorder metrics.Recorder
	registry *prom.Registry
	// outbox is set when mail.backend is "outbox".
	outbox *notify.Outbox

	closers []func() error
}

type appOptions struct {
	// eager forces tasks to run inline regardless of tasks.always_eager.
	eager bool
	// deferNotifications dispatches notifications as their own queued task.
	deferNotifications bool
}

func openStore(cfg *config.Config) (*storage.SQLiteStore, error) {
	return storage.NewSQLiteStore(cfg.Database.Path)
}

func newApp(ctx context.Context, cfg *config.Config, opts appOptions) (*app, error) {
	a := &app{cfg: cfg, recorder: metrics.NoopRecorder{}}

	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	a.store = store
	a.closers = append(a.closers, store.Close)

	events, err := eventstore.NewSQLiteStore(cfg.Database.EventsPath)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.events = events
	a.closers = append(a.closers, events.Close)
	emitter := eventstore.NewEmitter(events)

	if cfg.Metrics.Enabled {
		a.registry = prom.NewRegistry()
		a.recorder = metrics.NewPrometheusRecorder(a.registry)
	}

	if opts.eager {
		a.queue = tasks.NewEager()
	} else {
		a.queue = tasks.New(cfg.Tasks)
	}
	a.queue.SetRecorder(a.recorder)

	mailer, err := a.mailer()
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	a.notifier = notify.New(notify.Config{
		ProductionDomain: cfg.Notifications.ProductionDomain,
		FromAddress:      cfg.Notifications.FromAddress,
		WebhookTimeout:   cfg.Notifications.WebhookTimeout,
		WebhookRate:      cfg.Notifications.WebhookRate,
	}, store, mailer)
	a.notifier.SetEventEmitter(emitter)
	a.notifier.SetRecorder(a.recorder)

	if cfg.NATS.Enabled {
		pub, err := notify.NewNATSPublisher(ctx, notify.NATSConfig{
			URL:     cfg.NATS.URL,
			Subject: cfg.NATS.Subject,
			Stream:  cfg.NATS.Stream,
			Retry:   cfg.NATS.Retry,
		})
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.notifier.SetPublisher(pub)
		a.closers = append(a.closers, pub.Close)
	}

	var sender notify.Sender = a.notifier
	if opts.deferNotifications {
		sender = notify.NewDeferred(a.notifier, a.queue)
	}

	a.task = build.NewUpdateDocsTask(store, a.queue, sender).
		WithVCS(vcs.NewClient(cfg.Workspace.Dir, cfg.Workspace.Auth)).
		WithBuilder(&build.CommandBuilder{Command: cfg.Builds.Command, OutputDir: cfg.Workspace.OutputDir}).
		WithEventEmitter(emitter).
		WithRecorder(a.recorder).
		WithNotifyOnSuccess(cfg.Notifications.NotifyOnSuccess)

	return a, nil
}

func (a *app) mailer() (notify.Mailer, error) {
	switch a.cfg.Mail.Backend {
	case config.MailBackendOutbox:
		a.outbox = notify.NewOutbox()
		return a.outbox, nil
	case config.MailBackendSMTP:
		return notify.NewSMTPMailer(notify.SMTPConfig{
			Host:     a.cfg.Mail.Host,
			Port:     a.cfg.Mail.Port,
			Username: a.cfg.Mail.Username,
			Password: a.cfg.Mail.Password,
			TLS:      a.cfg.Mail.TLS,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported mail backend %q", a.cfg.Mail.Backend)
	}
}

// Close releases everything opened by newApp in reverse order.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		slog.Warn("Failed to close resources", logfields.Error(err))
		return err
	}
	return nil
}
