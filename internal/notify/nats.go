package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"git.home.luguber.info/inful/dochost/internal/retry"
)

// BuildNotification is the event published for every notified build.
type BuildNotification struct {
	Project    string    `json:"project"`
	Name       string    `json:"name"`
	Version    string    `json:"version"`
	BuildID    int64     `json:"build_id"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
	Commit     string    `json:"commit,omitempty"`
	Date       time.Time `json:"date"`
	BuildURL   string    `json:"build_url"`
	Webhooks   int       `json:"webhooks"`
	Recipients int       `json:"recipients"`
}

// Publisher publishes build notifications to a broker.
type Publisher interface {
	Publish(ctx context.Context, event BuildNotification) error
}

// NATSConfig configures the JetStream publisher.
type NATSConfig struct {
	URL     string
	Subject string
	Stream  string
	// Retry applies to Publish. The zero value publishes once.
	Retry retry.Policy
}

// NATSPublisher publishes BuildNotification events to a JetStream stream.
type NATSPublisher struct {
	conn    *nats.Conn
	js      jetstream.JetStream
	subject string
	retry   retry.Policy
}

// NewNATSPublisher connects to NATS and makes sure the stream exists.
func NewNATSPublisher(ctx context.Context, cfg NATSConfig) (*NATSPublisher, error) {
	if cfg.Subject == "" {
		return nil, fmt.Errorf("nats subject is required")
	}
	if cfg.Stream == "" {
		cfg.Stream = "DOCHOST_BUILDS"
	}

	conn, err := nats.Connect(cfg.URL, nats.Name("dochost-notifier"), nats.Timeout(5*time.Second))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	setupCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := js.CreateOrUpdateStream(setupCtx, jetstream.StreamConfig{
		Name:        cfg.Stream,
		Description: "Build completion notifications",
		Subjects:    []string{cfg.Subject},
		MaxAge:      7 * 24 * time.Hour,
	}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create stream %s: %w", cfg.Stream, err)
	}

	slog.Info("NATS publisher initialized", "url", cfg.URL, "subject", cfg.Subject, "stream", cfg.Stream)
	return &NATSPublisher{conn: conn, js: js, subject: cfg.Subject, retry: cfg.Retry}, nil
}

// Publish sends event to the configured subject, retrying per the
// configured policy.
func (p *NATSPublisher) Publish(ctx context.Context, event BuildNotification) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = p.retry.Do(ctx, func(ctx context.Context) error {
		pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		_, err := p.js.Publish(pubCtx, p.subject, data)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Close closes the NATS connection.
func (p *NATSPublisher) Close() error {
	if p.conn != nil {
		p.conn.Close()
	}
	return nil
}
