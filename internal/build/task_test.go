package build

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dherrors "git.home.luguber.info/inful/dochost/internal/errors"
	"git.home.luguber.info/inful/dochost/internal/eventstore"
	"git.home.luguber.info/inful/dochost/internal/metrics"
	"git.home.luguber.info/inful/dochost/internal/models"
	"git.home.luguber.info/inful/dochost/internal/notify"
	"git.home.luguber.info/inful/dochost/internal/tasks"
	"git.home.luguber.info/inful/dochost/internal/testutil/fixture"
	"git.home.luguber.info/inful/dochost/internal/vcs"
)

type outcomeRecorder struct {
	metrics.NoopRecorder
	mu       sync.Mutex
	outcomes []metrics.BuildOutcomeLabel
}

func (r *outcomeRecorder) IncBuildOutcome(o metrics.BuildOutcomeLabel) {
	r.mu.Lock()
	r.outcomes = append(r.outcomes, o)
	r.mu.Unlock()
}

type harness struct {
	fx      *fixture.Fixture
	outbox  *notify.Outbox
	task    *UpdateDocsTask
	project *models.Project
	version *models.Version
	build   *models.Build
}

func newHarness(t *testing.T, projectOpts ...func(*models.Project)) *harness {
	t.Helper()
	fx := fixture.New(t)
	project := fx.Project(projectOpts...)
	version := fx.Version(project)
	build := fx.Build(version)
	fx.EmailHook(project, "dev@example.org")

	outbox := notify.NewOutbox()
	notifier := notify.New(notify.Config{ProductionDomain: "docs.example.org", FromAddress: "no-reply@docs.example.org"}, fx.Store, outbox)
	task := NewUpdateDocsTask(fx.Store, tasks.NewEager(), notifier)

	return &harness{fx: fx, outbox: outbox, task: task, project: project, version: version, build: build}
}

func (h *harness) storedBuild(t *testing.T) *models.Build {
	t.Helper()
	b, err := h.fx.Store.GetBuild(t.Context(), h.build.ID)
	require.NoError(t, err)
	return b
}

func TestSetupVCSFailureIsCaughtAndNotifies(t *testing.T) {
	h := newHarness(t)
	h.task.SetupVCS = func(context.Context, *Environment) error {
		return errors.New("unexpected checkout failure")
	}

	res := h.task.Delay(t.Context(), h.project.ID, Options{BuildID: h.build.ID, Record: false, Intersphinx: false})

	require.True(t, res.Ready())
	assert.True(t, res.Successful())
	assert.Equal(t, false, res.Result())
	assert.Equal(t, 1, h.outbox.Len())

	stored := h.storedBuild(t)
	assert.Equal(t, models.BuildStateTriggered, stored.State)
	assert.Empty(t, stored.Error)
}

func TestSetupVCSFailureWithStubbedLookups(t *testing.T) {
	h := newHarness(t)
	var calls []string
	h.task.GetProject = func(_ context.Context, projectID int64) (*models.Project, error) {
		calls = append(calls, "project")
		assert.Equal(t, int64(0), projectID)
		return h.project, nil
	}
	h.task.GetVersion = func(_ context.Context, p *models.Project, _ int64) (*models.Version, error) {
		calls = append(calls, "version")
		assert.Same(t, h.project, p)
		return h.version, nil
	}
	h.task.GetBuild = func(_ context.Context, _ *models.Project, v *models.Version, _ Options) (*models.Build, error) {
		calls = append(calls, "build")
		assert.Same(t, h.version, v)
		return h.build, nil
	}
	h.task.SetupVCS = func(context.Context, *Environment) error {
		calls = append(calls, "vcs")
		return errors.New("unexpected checkout failure")
	}

	// Project ID 0 does not exist in the store, so only the replaced
	// lookups can resolve it.
	res := h.task.Delay(t.Context(), 0, Options{Record: false, Intersphinx: false})

	require.True(t, res.Ready())
	assert.True(t, res.Successful())
	assert.Equal(t, false, res.Result())
	assert.Equal(t, []string{"project", "version", "build", "vcs"}, calls)
	require.Equal(t, 1, h.outbox.Len())
	assert.Equal(t, []string{"dev@example.org"}, h.outbox.Messages()[0].To)
}

func TestSetupFailureRecordedWithGenericMessage(t *testing.T) {
	h := newHarness(t)
	h.task.SetupVCS = func(context.Context, *Environment) error {
		return errors.New("unexpected checkout failure")
	}

	ok, err := h.task.Run(t.Context(), h.project.ID, Options{BuildID: h.build.ID, Record: true})
	require.NoError(t, err)
	assert.False(t, ok)

	stored := h.storedBuild(t)
	assert.Equal(t, models.BuildStateFinished, stored.State)
	assert.False(t, stored.Success)
	assert.Equal(t, fmt.Sprintf(GenericFailureMessage, h.build.ID), stored.Error)
	assert.Equal(t, 1, stored.ExitCode)

	require.Equal(t, 1, h.outbox.Len())
	msg := h.outbox.Messages()[0]
	assert.Contains(t, msg.Subject, "Failed: ")
	assert.Contains(t, msg.Text, fmt.Sprintf("build id (%d)", h.build.ID))
}

func TestSetupPanicIsContained(t *testing.T) {
	h := newHarness(t)
	h.task.SetupVCS = func(context.Context, *Environment) error {
		panic("nil map write")
	}

	res := h.task.Delay(t.Context(), h.project.ID, Options{BuildID: h.build.ID, Record: true})

	assert.True(t, res.Successful())
	assert.Equal(t, false, res.Result())
	assert.Equal(t, 1, h.outbox.Len())
	assert.Equal(t, fmt.Sprintf(GenericFailureMessage, h.build.ID), h.storedBuild(t).Error)
}

func TestSkippedProjectKeepsCategorizedMessage(t *testing.T) {
	h := newHarness(t, func(p *models.Project) { p.Skip = true })
	called := false
	h.task.SetupVCS = func(context.Context, *Environment) error {
		called = true
		return nil
	}
	rec := &outcomeRecorder{}
	h.task.WithRecorder(rec)

	ok, err := h.task.Run(t.Context(), h.project.ID, Options{BuildID: h.build.ID, Record: true})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, called)
	assert.Equal(t, "builds for this project are temporarily disabled", h.storedBuild(t).Error)
	assert.Equal(t, []metrics.BuildOutcomeLabel{metrics.BuildOutcomeSkipped}, rec.outcomes)
	assert.Equal(t, 1, h.outbox.Len())
}

func TestSuccessfulBuildWithGitCheckout(t *testing.T) {
	h := newHarness(t)
	repoDir, commit := fixture.GitRepo(t, "main", map[string]string{"docs/index.md": "# Docs\n"})
	h.project.RepoURL = repoDir
	require.NoError(t, h.fx.Store.UpdateProject(t.Context(), h.project))

	var got Request
	h.task.WithVCS(vcs.NewClient(t.TempDir(), nil)).
		WithBuilder(BuilderFunc(func(_ context.Context, req Request) error {
			got = req
			return nil
		}))

	res := h.task.Delay(t.Context(), h.project.ID, Options{BuildID: h.build.ID, Record: true, Intersphinx: true})

	require.True(t, res.Successful())
	assert.Equal(t, true, res.Result())
	assert.FileExists(t, filepath.Join(got.CheckoutPath, "docs", "index.md"))
	assert.True(t, got.Intersphinx)

	stored := h.storedBuild(t)
	assert.True(t, stored.Success)
	assert.Equal(t, models.BuildStateFinished, stored.State)
	assert.Equal(t, commit, stored.Commit)
	assert.Empty(t, stored.Error)
	assert.Equal(t, 0, h.outbox.Len())
}

func TestNotifyOnSuccess(t *testing.T) {
	h := newHarness(t)
	h.task.SetupVCS = func(ctx context.Context, env *Environment) error {
		env.SetCommit(ctx, "0123456789abcdef")
		return nil
	}
	h.task.WithBuilder(BuilderFunc(func(context.Context, Request) error { return nil })).
		WithNotifyOnSuccess(true)

	ok, err := h.task.Run(t.Context(), h.project.ID, Options{BuildID: h.build.ID, Record: true})
	require.NoError(t, err)
	assert.True(t, ok)

	require.Equal(t, 1, h.outbox.Len())
	assert.Equal(t, fmt.Sprintf("Passed: %s (01234567)", h.project.Name), h.outbox.Messages()[0].Subject)
}

func TestBuilderFailureNotifies(t *testing.T) {
	h := newHarness(t)
	h.task.SetupVCS = func(context.Context, *Environment) error { return nil }
	h.task.WithBuilder(BuilderFunc(func(context.Context, Request) error {
		return dherrors.BuildFailed("build", errors.New("mkdocs: config invalid"))
	}))

	ok, err := h.task.Run(t.Context(), h.project.ID, Options{BuildID: h.build.ID, Record: true})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "build failed: mkdocs: config invalid", h.storedBuild(t).Error)
	assert.Equal(t, 1, h.outbox.Len())
}

func TestLookupFailureIsTaskFailure(t *testing.T) {
	h := newHarness(t)

	res := h.task.Delay(t.Context(), 424242, Options{Record: true})
	assert.False(t, res.Successful())
	assert.True(t, dherrors.IsCategory(res.Err(), dherrors.CategoryNotFound))

	h.task.GetBuild = func(context.Context, *models.Project, *models.Version, Options) (*models.Build, error) {
		return nil, errors.New("database gone")
	}
	res = h.task.Delay(t.Context(), h.project.ID, Options{Record: true})
	assert.False(t, res.Successful())
	assert.Equal(t, 0, h.outbox.Len())
}

func TestRecordCreatesBuildWhenNoneGiven(t *testing.T) {
	h := newHarness(t)
	h.task.SetupVCS = func(context.Context, *Environment) error { return errors.New("boom") }

	ok, err := h.task.Run(t.Context(), h.project.ID, Options{Record: true})
	require.NoError(t, err)
	assert.False(t, ok)

	latest, err := h.fx.Store.LatestBuild(t.Context(), h.version.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.NotEqual(t, h.build.ID, latest.ID)
	assert.Equal(t, models.BuildStateFinished, latest.State)
	assert.Equal(t, 1, h.outbox.Len())
}

func TestDefaultVersionSelection(t *testing.T) {
	h := newHarness(t)
	ctx := t.Context()
	other := &models.Version{ProjectID: h.project.ID, Slug: "v1", Identifier: "v1", Active: true}
	require.NoError(t, h.fx.Store.CreateVersion(ctx, other))

	v, err := h.task.GetVersion(ctx, h.project, 0)
	require.NoError(t, err)
	assert.Equal(t, h.version.ID, v.ID)

	v, err = h.task.GetVersion(ctx, h.project, other.ID)
	require.NoError(t, err)
	assert.Equal(t, other.ID, v.ID)

	foreign := h.fx.Version(h.fx.Project())
	_, err = h.task.GetVersion(ctx, h.project, foreign.ID)
	assert.True(t, dherrors.IsCategory(err, dherrors.CategoryNotFound))
}

func TestLifecycleEventsRecorded(t *testing.T) {
	h := newHarness(t)
	store, err := eventstore.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	h.task.WithEventEmitter(eventstore.NewEmitter(store))
	h.task.SetupVCS = func(context.Context, *Environment) error { return errors.New("boom") }

	_, err = h.task.Run(t.Context(), h.project.ID, Options{BuildID: h.build.ID, Record: true})
	require.NoError(t, err)

	events, err := store.GetByBuildID(t.Context(), h.build.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, eventstore.TypeBuildStarted, events[0].Type())
	assert.Equal(t, eventstore.TypeBuildFinished, events[1].Type())
}

func TestCommandBuilder(t *testing.T) {
	h := newHarness(t)
	out := t.TempDir()
	h.task.SetupVCS = func(_ context.Context, env *Environment) error {
		env.CheckoutPath = t.TempDir()
		return nil
	}

	h.task.WithBuilder(&CommandBuilder{
		Command:   []string{"sh", "-c", `echo built > "$DOCHOST_OUTPUT_DIR/index.html"`},
		OutputDir: out,
	})
	ok, err := h.task.Run(t.Context(), h.project.ID, Options{BuildID: h.build.ID, Record: true})
	require.NoError(t, err)
	require.True(t, ok)
	content, err := os.ReadFile(filepath.Join(out, h.project.Slug, h.version.Slug, models.BuildTypeHTML, "index.html"))
	require.NoError(t, err)
	assert.Equal(t, "built\n", string(content))

	h.task.WithBuilder(&CommandBuilder{Command: []string{"sh", "-c", "echo nope; exit 3"}, OutputDir: out})
	ok, err = h.task.Run(t.Context(), h.project.ID, Options{BuildID: h.build.ID, Record: true})
	require.NoError(t, err)
	assert.False(t, ok)
	stored := h.storedBuild(t)
	assert.Equal(t, 3, stored.ExitCode)
	assert.Contains(t, stored.Error, "build failed")
}
