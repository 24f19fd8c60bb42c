package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	dherrors "git.home.luguber.info/inful/dochost/internal/errors"
	"git.home.luguber.info/inful/dochost/internal/logfields"
	"git.home.luguber.info/inful/dochost/internal/models"
	"git.home.luguber.info/inful/dochost/internal/observability"
	"git.home.luguber.info/inful/dochost/internal/version"
)

// Poster performs outbound webhook requests. *http.Client satisfies it.
type Poster interface {
	Do(req *http.Request) (*http.Response, error)
}

// WebhookDateLayout formats Build.Date in webhook payloads.
const WebhookDateLayout = "2006-01-02 15:04:05"

// WebhookPayload is the JSON body POSTed to every webhook.
type WebhookPayload struct {
	Name  string       `json:"name"`
	Slug  string       `json:"slug"`
	Build WebhookBuild `json:"build"`
}

// WebhookBuild describes the build inside a WebhookPayload.
type WebhookBuild struct {
	ID      int64  `json:"id"`
	Success bool   `json:"success"`
	Date    string `json:"date"`
}

// NewWebhookPayload builds the payload for project and build.
func NewWebhookPayload(project *models.Project, build *models.Build) WebhookPayload {
	return WebhookPayload{
		Name: project.Name,
		Slug: project.Slug,
		Build: WebhookBuild{
			ID:      build.ID,
			Success: build.Success,
			Date:    build.Date.UTC().Format(WebhookDateLayout),
		},
	}
}

func (n *Notifier) sendWebhooks(ctx context.Context, project *models.Project, build *models.Build, hooks []*models.WebHook) {
	body, err := json.Marshal(NewWebhookPayload(project, build))
	if err != nil {
		observability.ErrorContext(ctx, "Failed to encode webhook payload", logfields.Error(err))
		return
	}

	for _, hook := range hooks {
		start := time.Now()
		err := n.post(ctx, hook.URL, body)
		n.recorder.ObserveWebhookDuration(time.Since(start))
		n.recordDelivery(ctx, build.ID, ChannelWebhook, hook.URL, err)
		if err != nil {
			observability.WarnContext(ctx, "Webhook delivery failed",
				logfields.URL(hook.URL), logfields.Error(err))
			continue
		}
		observability.InfoContext(ctx, "Webhook delivered", logfields.URL(hook.URL))
	}
}

func (n *Notifier) post(ctx context.Context, url string, body []byte) error {
	if n.limiter != nil {
		if err := n.limiter.Wait(ctx); err != nil {
			return dherrors.NotificationFailed(ChannelWebhook, err).WithContext("url", url)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return dherrors.ValidationFailed("webhook.url", err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := n.poster.Do(req)
	if err != nil {
		return dherrors.NotificationFailed(ChannelWebhook, err).WithContext("url", url)
	}
	if resp == nil {
		return nil
	}
	if resp.Body != nil {
		defer func() { _ = resp.Body.Close() }()
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return dherrors.NotificationFailed(ChannelWebhook, fmt.Errorf("unexpected status %d", resp.StatusCode)).
			WithContext("url", url).
			WithContext("status", resp.StatusCode)
	}
	return nil
}
