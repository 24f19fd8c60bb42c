package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dherrors "git.home.luguber.info/inful/dochost/internal/errors"
	"git.home.luguber.info/inful/dochost/internal/eventstore"
	"git.home.luguber.info/inful/dochost/internal/models"
	"git.home.luguber.info/inful/dochost/internal/tasks"
	"git.home.luguber.info/inful/dochost/internal/testutil/fixture"
)

type countingPoster struct {
	mu       sync.Mutex
	requests []*http.Request
	bodies   [][]byte
	status   int
	err      error
}

func (p *countingPoster) Do(req *http.Request) (*http.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	body, _ := io.ReadAll(req.Body)
	p.requests = append(p.requests, req)
	p.bodies = append(p.bodies, body)
	if p.err != nil {
		return nil, p.err
	}
	status := p.status
	if status == 0 {
		status = http.StatusOK
	}
	return &http.Response{StatusCode: status, Body: http.NoBody}, nil
}

func (p *countingPoster) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

type recordingPublisher struct {
	events []BuildNotification
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e BuildNotification) error {
	p.events = append(p.events, e)
	return p.err
}

type env struct {
	fx       *fixture.Fixture
	outbox   *Outbox
	poster   *countingPoster
	notifier *Notifier
	project  *models.Project
	version  *models.Version
	build    *models.Build
}

func newEnv(t *testing.T) *env {
	t.Helper()
	fx := fixture.New(t)
	project := fx.Project(func(p *models.Project) { p.Name = "Pip"; p.Slug = "pip" })
	version := fx.Version(project)
	build := fx.Build(version, func(b *models.Build) {
		b.State = models.BuildStateFinished
		b.Error = "checkout failed"
		b.Date = time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)
	})

	outbox := NewOutbox()
	poster := &countingPoster{}
	n := New(Config{ProductionDomain: "docs.example.org", FromAddress: "no-reply@docs.example.org"}, fx.Store, outbox)
	n.SetPoster(poster)

	return &env{fx: fx, outbox: outbox, poster: poster, notifier: n, project: project, version: version, build: build}
}

func (e *env) send(t *testing.T) error {
	t.Helper()
	return e.notifier.SendNotifications(t.Context(), e.version.ID, e.build.ID)
}

func TestNoHooksSendsNothing(t *testing.T) {
	e := newEnv(t)

	require.NoError(t, e.send(t))

	assert.Equal(t, 0, e.outbox.Len())
	assert.Equal(t, 0, e.poster.count())
}

func TestOneWebhookOnePostNoEmail(t *testing.T) {
	e := newEnv(t)
	e.fx.WebHook(e.project, "https://hooks.example.org/build")

	require.NoError(t, e.send(t))

	assert.Equal(t, 1, e.poster.count())
	assert.Equal(t, 0, e.outbox.Len())
}

func TestOneEmailHookOneEmailNoPost(t *testing.T) {
	e := newEnv(t)
	e.fx.EmailHook(e.project, "dev@example.org")

	require.NoError(t, e.send(t))

	assert.Equal(t, 0, e.poster.count())
	require.Equal(t, 1, e.outbox.Len())
	assert.Equal(t, []string{"dev@example.org"}, e.outbox.Messages()[0].To)
}

func TestEmailAndWebhookBothFire(t *testing.T) {
	e := newEnv(t)
	e.fx.EmailHook(e.project, "dev@example.org")
	e.fx.WebHook(e.project, "https://hooks.example.org/build")

	require.NoError(t, e.send(t))

	assert.Equal(t, 1, e.poster.count())
	assert.Equal(t, 1, e.outbox.Len())
}

func TestRepeatedCallsRepeatSends(t *testing.T) {
	e := newEnv(t)
	e.fx.EmailHook(e.project, "dev@example.org")
	e.fx.WebHook(e.project, "https://hooks.example.org/build")

	require.NoError(t, e.send(t))
	require.NoError(t, e.send(t))

	assert.Equal(t, 2, e.poster.count())
	assert.Equal(t, 2, e.outbox.Len())
}

func TestMultipleEmailHooksAggregateIntoOneMessage(t *testing.T) {
	e := newEnv(t)
	e.fx.EmailHook(e.project, "b@example.org")
	e.fx.EmailHook(e.project, "a@example.org")
	e.fx.EmailHook(e.project, "b@example.org")

	require.NoError(t, e.send(t))

	require.Equal(t, 1, e.outbox.Len())
	assert.Equal(t, []string{"b@example.org", "a@example.org"}, e.outbox.Messages()[0].To)
}

func TestOnePostPerWebhook(t *testing.T) {
	e := newEnv(t)
	e.fx.WebHook(e.project, "https://hooks.example.org/one")
	e.fx.WebHook(e.project, "https://hooks.example.org/two")
	e.fx.WebHook(e.project, "https://hooks.example.org/three")

	require.NoError(t, e.send(t))
	assert.Equal(t, 3, e.poster.count())
}

func TestWebhookPayload(t *testing.T) {
	var (
		mu       sync.Mutex
		received []map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		mu.Lock()
		received = append(received, body)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	e := newEnv(t)
	e.notifier.SetPoster(srv.Client())
	e.fx.WebHook(e.project, srv.URL)

	require.NoError(t, e.send(t))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	assert.Equal(t, "Pip", received[0]["name"])
	assert.Equal(t, "pip", received[0]["slug"])
	build, ok := received[0]["build"].(map[string]any)
	require.True(t, ok)
	assert.InDelta(t, float64(e.build.ID), build["id"], 0)
	assert.Equal(t, false, build["success"])
	assert.Equal(t, "2024-03-09 14:05:07", build["date"])
}

func TestWebhookFailureDoesNotStopEmail(t *testing.T) {
	e := newEnv(t)
	e.poster.status = http.StatusBadGateway
	e.fx.WebHook(e.project, "https://hooks.example.org/down")
	e.fx.WebHook(e.project, "https://hooks.example.org/also-down")
	e.fx.EmailHook(e.project, "dev@example.org")

	require.NoError(t, e.send(t))

	assert.Equal(t, 2, e.poster.count())
	assert.Equal(t, 1, e.outbox.Len())
}

func TestWebhookTransportErrorIsBestEffort(t *testing.T) {
	e := newEnv(t)
	e.poster.err = errors.New("connection refused")
	e.fx.WebHook(e.project, "https://hooks.example.org/down")

	assert.NoError(t, e.send(t))
	assert.Equal(t, 1, e.poster.count())
}

func TestEmailFailureIsReturned(t *testing.T) {
	e := newEnv(t)
	e.outbox.FailWith(errors.New("relay unavailable"))
	e.fx.EmailHook(e.project, "dev@example.org")
	e.fx.WebHook(e.project, "https://hooks.example.org/build")

	err := e.send(t)
	require.Error(t, err)
	assert.True(t, dherrors.IsCategory(err, dherrors.CategoryNotification))
	assert.Equal(t, 1, e.poster.count())
}

func TestEmailContent(t *testing.T) {
	e := newEnv(t)
	e.fx.EmailHook(e.project, "dev@example.org")

	require.NoError(t, e.send(t))

	msg := e.outbox.Messages()[0]
	assert.Equal(t, "Failed: Pip (latest)", msg.Subject)
	assert.Equal(t, "no-reply@docs.example.org", msg.From)
	assert.NotEmpty(t, msg.ID)
	buildURL := "https://docs.example.org/projects/pip/builds/" + strconv.FormatInt(e.build.ID, 10) + "/"
	assert.Contains(t, msg.Text, buildURL)
	assert.Contains(t, msg.Text, "https://docs.example.org/dashboard/pip/notifications/")
	assert.Contains(t, msg.Text, "checkout failed")
	assert.Contains(t, msg.HTML, "<h1>Build failed: Pip</h1>")
	assert.Contains(t, msg.HTML, `href="`+buildURL+`"`)
}

func TestEmailSubject(t *testing.T) {
	project := &models.Project{Name: "Pip"}
	version := &models.Version{Slug: "stable", VerboseName: "Stable"}

	assert.Equal(t, "Failed: Pip (Stable)", EmailSubject(project, version, &models.Build{}))
	assert.Equal(t, "Failed: Pip (0123abcd)", EmailSubject(project, version, &models.Build{Commit: "0123abcdef0123"}))
	assert.Equal(t, "Passed: Pip (Stable)", EmailSubject(project, version, &models.Build{Success: true}))
}

func TestMissingVersionIsNotFound(t *testing.T) {
	e := newEnv(t)
	e.fx.EmailHook(e.project, "dev@example.org")

	err := e.notifier.SendNotifications(t.Context(), 9999, e.build.ID)
	require.Error(t, err)
	assert.True(t, dherrors.IsCategory(err, dherrors.CategoryNotFound))
	assert.Equal(t, 0, e.outbox.Len())
}

func TestPublisherReceivesEventAndFailureIsIgnored(t *testing.T) {
	e := newEnv(t)
	pub := &recordingPublisher{err: errors.New("no responders")}
	e.notifier.SetPublisher(pub)
	e.fx.EmailHook(e.project, "dev@example.org")

	require.NoError(t, e.send(t))

	require.Len(t, pub.events, 1)
	assert.Equal(t, "pip", pub.events[0].Project)
	assert.Equal(t, e.build.ID, pub.events[0].BuildID)
	assert.Equal(t, 1, pub.events[0].Recipients)
	assert.Equal(t, 1, e.outbox.Len())
}

func TestDeliveriesAreRecordedInEventLog(t *testing.T) {
	e := newEnv(t)
	store, err := eventstore.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	e.notifier.SetEventEmitter(eventstore.NewEmitter(store))
	e.fx.EmailHook(e.project, "dev@example.org")
	e.fx.WebHook(e.project, "https://hooks.example.org/build")

	require.NoError(t, e.send(t))

	events, err := store.GetByBuildID(t.Context(), e.build.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, eventstore.TypeNotificationSent, events[0].Type())
	assert.Equal(t, "webhook", events[0].Metadata()["channel"])
	assert.Equal(t, "email", events[1].Metadata()["channel"])
}

func TestDeferredEagerRunsInline(t *testing.T) {
	e := newEnv(t)
	e.fx.EmailHook(e.project, "dev@example.org")
	d := NewDeferred(e.notifier, tasks.NewEager())

	res := d.Delay(t.Context(), e.version.ID, e.build.ID)

	require.True(t, res.Ready())
	assert.True(t, res.Successful())
	assert.Equal(t, 1, e.outbox.Len())
	assert.NoError(t, d.SendNotifications(t.Context(), e.version.ID, e.build.ID))
	assert.Equal(t, 2, e.outbox.Len())
}

func TestDeferredWorkerQueue(t *testing.T) {
	e := newEnv(t)
	e.fx.EmailHook(e.project, "dev@example.org")
	q := tasks.New(tasks.Config{Workers: 1, QueueSize: 4})
	q.Start(t.Context())
	defer q.Stop(t.Context())

	res := NewDeferred(e.notifier, q).Delay(t.Context(), e.version.ID, e.build.ID)

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()
	require.NoError(t, res.Wait(ctx))
	assert.True(t, res.Successful())
	assert.Equal(t, 1, e.outbox.Len())
}

func TestWebhookRateLimiterStillDeliversAll(t *testing.T) {
	fx := fixture.New(t)
	project := fx.Project()
	version := fx.Version(project)
	build := fx.Build(version)
	for range 3 {
		fx.WebHook(project, "https://hooks.example.org/build")
	}

	poster := &countingPoster{}
	n := New(Config{ProductionDomain: "docs.example.org", WebhookRate: 1000}, fx.Store, NewOutbox())
	n.SetPoster(poster)

	require.NoError(t, n.SendNotifications(t.Context(), version.ID, build.ID))
	assert.Equal(t, 3, poster.count())
}
