// Package config loads the dochost YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	dherrors "git.home.luguber.info/inful/dochost/internal/errors"
	"git.home.luguber.info/inful/dochost/internal/retry"
	"git.home.luguber.info/inful/dochost/internal/tasks"
	"git.home.luguber.info/inful/dochost/internal/vcs"
)

// Config represents the application configuration.
type Config struct {
	Database      DatabaseConfig      `yaml:"database"`
	Workspace     WorkspaceConfig     `yaml:"workspace"`
	Tasks         tasks.Config        `yaml:"tasks"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Mail          MailConfig          `yaml:"mail"`
	NATS          NATSConfig          `yaml:"nats"`
	Metrics       MetricsConfig       `yaml:"metrics"`
	Builds        BuildsConfig        `yaml:"builds"`
	Server        ServerConfig        `yaml:"server"`
}

// DatabaseConfig locates the SQLite database files.
type DatabaseConfig struct {
	Path string `yaml:"path"`
	// EventsPath holds the build event log. Defaults to Path.
	EventsPath string `yaml:"events_path,omitempty"`
}

// WorkspaceConfig controls where checkouts and build output live.
type WorkspaceConfig struct {
	Dir       string          `yaml:"dir"`
	OutputDir string          `yaml:"output_dir,omitempty"`
	Auth      *vcs.AuthConfig `yaml:"auth,omitempty"`
}

// NotificationsConfig controls build notifications.
type NotificationsConfig struct {
	ProductionDomain string        `yaml:"production_domain"`
	FromAddress      string        `yaml:"from_address"`
	NotifyOnSuccess  bool          `yaml:"notify_on_success"`
	WebhookTimeout   time.Duration `yaml:"webhook_timeout"`
	// WebhookRate is the maximum number of webhook POSTs per second.
	WebhookRate float64 `yaml:"webhook_rate"`
}

// Mail backends.
const (
	MailBackendSMTP   = "smtp"
	MailBackendOutbox = "outbox"
)

// MailConfig selects and configures the email backend.
type MailConfig struct {
	Backend  string `yaml:"backend"`
	Host     string `yaml:"host,omitempty"`
	Port     int    `yaml:"port,omitempty"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	TLS      bool   `yaml:"tls"`
}

// NATSConfig enables publishing build notifications to JetStream.
type NATSConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
	Stream  string `yaml:"stream"`
	// Retry controls re-publishing after a failed publish.
	Retry retry.Policy `yaml:"retry"`
}

// MetricsConfig toggles Prometheus metrics.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// BuildsConfig controls the documentation build step.
type BuildsConfig struct {
	Command         []string      `yaml:"command"`
	InactiveTimeout time.Duration `yaml:"inactive_timeout"`
	SweepInterval   time.Duration `yaml:"sweep_interval"`
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Listen string `yaml:"listen"`
}

// Load reads configPath, expands ${VAR} references, applies defaults and
// validates the result. Variables from .env files are loaded first without
// overriding the process environment.
func Load(configPath string) (*Config, error) {
	if loaded := loadEnvFiles(); loaded != "" {
		fmt.Fprintf(os.Stderr, "Loaded environment variables from %s\n", loaded)
	}

	data, err := os.ReadFile(configPath)
	if os.IsNotExist(err) {
		return nil, dherrors.ConfigNotFound(configPath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration data, applying env expansion, defaults
// and validation.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	cfg := Config{Metrics: MetricsConfig{Enabled: true}, Mail: MailConfig{TLS: true}}
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, dherrors.Wrap(err, dherrors.CategoryConfig, dherrors.SeverityFatal, "failed to unmarshal config")
	}

	ApplyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Init writes an example configuration to configPath.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configPath)
	}

	example := Default()
	example.Notifications.ProductionDomain = "docs.example.org"
	example.Notifications.FromAddress = "no-reply@docs.example.org"
	example.Mail.Host = "smtp.example.org"
	example.Mail.Username = "${DOCHOST_SMTP_USER}"
	example.Mail.Password = "${DOCHOST_SMTP_PASSWORD}"

	data, err := yaml.Marshal(example)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
