package config

import (
	"path/filepath"
	"time"

	"git.home.luguber.info/inful/dochost/internal/retry"
)

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{Metrics: MetricsConfig{Enabled: true}, Mail: MailConfig{TLS: true}}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills unset fields.
func ApplyDefaults(cfg *Config) {
	if cfg.Database.Path == "" {
		cfg.Database.Path = "dochost.db"
	}
	if cfg.Database.EventsPath == "" {
		cfg.Database.EventsPath = cfg.Database.Path
	}

	if cfg.Workspace.Dir == "" {
		cfg.Workspace.Dir = "./workspace"
	}
	if cfg.Workspace.OutputDir == "" {
		cfg.Workspace.OutputDir = filepath.Join(cfg.Workspace.Dir, "_build")
	}

	if cfg.Tasks.Workers <= 0 {
		cfg.Tasks.Workers = 2
	}
	if cfg.Tasks.QueueSize <= 0 {
		cfg.Tasks.QueueSize = 100
	}
	if cfg.Tasks.HistorySize <= 0 {
		cfg.Tasks.HistorySize = 50
	}

	if cfg.Notifications.WebhookTimeout <= 0 {
		cfg.Notifications.WebhookTimeout = 10 * time.Second
	}
	if cfg.Notifications.WebhookRate == 0 {
		cfg.Notifications.WebhookRate = 10
	}

	if cfg.Mail.Backend == "" {
		cfg.Mail.Backend = MailBackendSMTP
	}
	if cfg.Mail.Port == 0 {
		cfg.Mail.Port = 587
	}

	if cfg.NATS.URL == "" {
		cfg.NATS.URL = "nats://127.0.0.1:4222"
	}
	if cfg.NATS.Subject == "" {
		cfg.NATS.Subject = "dochost.builds.notifications"
	}
	if cfg.NATS.Stream == "" {
		cfg.NATS.Stream = "DOCHOST_BUILDS"
	}
	if cfg.NATS.Retry == (retry.Policy{}) {
		cfg.NATS.Retry = retry.DefaultPolicy()
	} else {
		cfg.NATS.Retry = cfg.NATS.Retry.Normalize()
	}

	if len(cfg.Builds.Command) == 0 {
		cfg.Builds.Command = []string{"mkdocs", "build", "--site-dir", "{output}"}
	}
	if cfg.Builds.InactiveTimeout <= 0 {
		cfg.Builds.InactiveTimeout = 2 * time.Hour
	}
	if cfg.Builds.SweepInterval <= 0 {
		cfg.Builds.SweepInterval = 10 * time.Minute
	}

	if cfg.Server.Listen == "" {
		cfg.Server.Listen = ":8080"
	}
}
