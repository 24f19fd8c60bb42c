// Package notify delivers build-completion notifications: one HTTP POST per
// project webhook, one aggregated email to every email subscriber, and an
// optional event on NATS JetStream.
package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	dherrors "git.home.luguber.info/inful/dochost/internal/errors"
	"git.home.luguber.info/inful/dochost/internal/eventstore"
	"git.home.luguber.info/inful/dochost/internal/logfields"
	"git.home.luguber.info/inful/dochost/internal/metrics"
	"git.home.luguber.info/inful/dochost/internal/models"
	"git.home.luguber.info/inful/dochost/internal/observability"
)

// Channel names used in logs, metrics and events.
const (
	ChannelWebhook = "webhook"
	ChannelEmail   = "email"
	ChannelNATS    = "nats"
)

// Source is the subset of storage the notifier reads from.
type Source interface {
	GetProject(ctx context.Context, id int64) (*models.Project, error)
	GetVersion(ctx context.Context, id int64) (*models.Version, error)
	GetBuild(ctx context.Context, id int64) (*models.Build, error)
	ListEmailHooks(ctx context.Context, projectID int64) ([]*models.EmailHook, error)
	ListWebHooks(ctx context.Context, projectID int64) ([]*models.WebHook, error)
}

// Sender sends the notifications for a finished build.
type Sender interface {
	SendNotifications(ctx context.Context, versionID, buildID int64) error
}

// Config holds notifier settings.
type Config struct {
	ProductionDomain string
	FromAddress      string
	WebhookTimeout   time.Duration
	// WebhookRate caps outbound webhook POSTs per second. Zero disables limiting.
	WebhookRate float64
}

// Notifier fans a build result out to the project's hooks.
type Notifier struct {
	cfg       Config
	source    Source
	mailer    Mailer
	poster    Poster
	publisher Publisher
	events    *eventstore.Emitter
	recorder  metrics.Recorder
	limiter   *rate.Limiter
}

// New creates a notifier. The webhook client defaults to an *http.Client with
// cfg.WebhookTimeout.
func New(cfg Config, source Source, mailer Mailer) *Notifier {
	if cfg.WebhookTimeout <= 0 {
		cfg.WebhookTimeout = 10 * time.Second
	}
	n := &Notifier{
		cfg:      cfg,
		source:   source,
		mailer:   mailer,
		poster:   &http.Client{Timeout: cfg.WebhookTimeout},
		recorder: metrics.NoopRecorder{},
	}
	if cfg.WebhookRate > 0 {
		burst := int(cfg.WebhookRate)
		if burst < 1 {
			burst = 1
		}
		n.limiter = rate.NewLimiter(rate.Limit(cfg.WebhookRate), burst)
	}
	return n
}

// SetPoster replaces the webhook HTTP client.
func (n *Notifier) SetPoster(p Poster) {
	if p != nil {
		n.poster = p
	}
}

// SetPublisher enables publishing build notifications to a message broker.
func (n *Notifier) SetPublisher(p Publisher) {
	n.publisher = p
}

// SetEventEmitter records delivery attempts in the build event log.
func (n *Notifier) SetEventEmitter(e *eventstore.Emitter) {
	n.events = e
}

// SetRecorder injects a metrics recorder.
func (n *Notifier) SetRecorder(r metrics.Recorder) {
	if r == nil {
		r = metrics.NoopRecorder{}
	}
	n.recorder = r
}

// SendNotifications notifies every hook of the version's project about the
// build. Webhook delivery is best effort; an email delivery failure is
// returned after all other channels have been attempted.
func (n *Notifier) SendNotifications(ctx context.Context, versionID, buildID int64) error {
	version, err := n.source.GetVersion(ctx, versionID)
	if err != nil {
		return err
	}
	project, err := n.source.GetProject(ctx, version.ProjectID)
	if err != nil {
		return err
	}
	build, err := n.source.GetBuild(ctx, buildID)
	if err != nil {
		return err
	}

	ctx = observability.WithBuildID(ctx, build.ID)
	ctx = observability.WithProject(ctx, project.Slug)
	ctx = observability.WithVersion(ctx, version.Slug)

	webhooks, err := n.source.ListWebHooks(ctx, project.ID)
	if err != nil {
		return err
	}
	emailHooks, err := n.source.ListEmailHooks(ctx, project.ID)
	if err != nil {
		return err
	}

	if len(webhooks) > 0 {
		n.sendWebhooks(ctx, project, build, webhooks)
	}

	var emailErr error
	recipients := uniqueRecipients(emailHooks)
	if len(recipients) > 0 {
		emailErr = n.sendEmail(ctx, project, version, build, recipients)
	}

	if n.publisher != nil {
		n.publish(ctx, project, version, build, len(webhooks), len(recipients))
	}

	return emailErr
}

func (n *Notifier) sendEmail(ctx context.Context, project *models.Project, version *models.Version, build *models.Build, recipients []string) error {
	msg, err := composeEmail(n.cfg, project, version, build, recipients)
	if err != nil {
		return dherrors.InternalError("compose build email", err)
	}

	sendErr := n.mailer.Send(ctx, msg)
	n.recordDelivery(ctx, build.ID, ChannelEmail, fmt.Sprintf("%d recipients", len(recipients)), sendErr)
	if sendErr != nil {
		observability.ErrorContext(ctx, "Build email failed",
			logfields.Recipients(len(recipients)), logfields.Error(sendErr))
		return dherrors.NotificationFailed(ChannelEmail, sendErr).
			WithContext("recipients", len(recipients))
	}

	observability.InfoContext(ctx, "Build email sent", logfields.Recipients(len(recipients)))
	return nil
}

func (n *Notifier) publish(ctx context.Context, project *models.Project, version *models.Version, build *models.Build, webhooks, recipients int) {
	event := BuildNotification{
		Project:    project.Slug,
		Name:       project.Name,
		Version:    version.Slug,
		BuildID:    build.ID,
		Success:    build.Success,
		Error:      build.Error,
		Commit:     build.Commit,
		Date:       build.Date,
		BuildURL:   BuildURL(n.cfg.ProductionDomain, project, build),
		Webhooks:   webhooks,
		Recipients: recipients,
	}
	err := n.publisher.Publish(ctx, event)
	n.recordDelivery(ctx, build.ID, ChannelNATS, "", err)
	if err != nil {
		observability.WarnContext(ctx, "Build notification publish failed", logfields.Error(err))
	}
}

func (n *Notifier) recordDelivery(ctx context.Context, buildID int64, channel, target string, err error) {
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultFatal
	}
	n.recorder.IncNotification(channel, result)
	if emitErr := n.events.NotificationDelivered(ctx, buildID, channel, target, err); emitErr != nil {
		observability.WarnContext(ctx, "Failed to record notification event",
			logfields.Channel(channel), logfields.Error(emitErr))
	}
}

// BuildURL returns the public dashboard URL of a build.
func BuildURL(domain string, project *models.Project, build *models.Build) string {
	return "https://" + domain + build.Path(project.Slug)
}

// UnsubscribeURL returns the page where subscribers manage project notifications.
func UnsubscribeURL(domain string, project *models.Project) string {
	return fmt.Sprintf("https://%s/dashboard/%s/notifications/", domain, project.Slug)
}

func uniqueRecipients(hooks []*models.EmailHook) []string {
	seen := make(map[string]struct{}, len(hooks))
	out := make([]string, 0, len(hooks))
	for _, h := range hooks {
		if h == nil || h.Email == "" {
			continue
		}
		if _, ok := seen[h.Email]; ok {
			continue
		}
		seen[h.Email] = struct{}{}
		out = append(out, h.Email)
	}
	return out
}
