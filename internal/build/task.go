// Package build runs the documentation update pipeline for a project version
// and reports its outcome through the notifier.
package build

import (
	"context"
	"log/slog"
	"time"

	dherrors "git.home.luguber.info/inful/dochost/internal/errors"
	"git.home.luguber.info/inful/dochost/internal/eventstore"
	"git.home.luguber.info/inful/dochost/internal/logfields"
	"git.home.luguber.info/inful/dochost/internal/metrics"
	"git.home.luguber.info/inful/dochost/internal/models"
	"git.home.luguber.info/inful/dochost/internal/notify"
	"git.home.luguber.info/inful/dochost/internal/observability"
	"git.home.luguber.info/inful/dochost/internal/storage"
	"git.home.luguber.info/inful/dochost/internal/tasks"
	"git.home.luguber.info/inful/dochost/internal/vcs"
)

// TaskName is the task queue name of the update task.
const TaskName = "update_docs"

// Options parameterize one run of the update task.
type Options struct {
	// BuildID selects an existing build. When zero and Record is set a new
	// triggered build is created.
	BuildID int64
	// VersionID selects the version; zero picks the project's default.
	VersionID int64
	// Record persists build state changes.
	Record      bool
	Intersphinx bool
	Force       bool
}

// Checkouter checks out a ref of a repository for a project version.
type Checkouter interface {
	Checkout(ctx context.Context, repoURL, ref, projectSlug, versionSlug string) (*vcs.Checkout, error)
}

// UpdateDocsTask checks out and builds a project version, then notifies the
// project's subscribers. The lookup and VCS hooks may be replaced.
type UpdateDocsTask struct {
	GetProject func(ctx context.Context, projectID int64) (*models.Project, error)
	GetVersion func(ctx context.Context, project *models.Project, versionID int64) (*models.Version, error)
	GetBuild   func(ctx context.Context, project *models.Project, version *models.Version, opts Options) (*models.Build, error)
	SetupVCS   func(ctx context.Context, env *Environment) error

	store           storage.Store
	queue           *tasks.Queue
	notifier        notify.Sender
	vcs             Checkouter
	builder         Builder
	events          *eventstore.Emitter
	recorder        metrics.Recorder
	notifyOnSuccess bool
}

// NewUpdateDocsTask creates the task with its default hooks.
func NewUpdateDocsTask(store storage.Store, queue *tasks.Queue, notifier notify.Sender) *UpdateDocsTask {
	t := &UpdateDocsTask{
		store:    store,
		queue:    queue,
		notifier: notifier,
		recorder: metrics.NoopRecorder{},
	}
	t.GetProject = t.getProject
	t.GetVersion = t.getVersion
	t.GetBuild = t.getBuild
	t.SetupVCS = t.setupVCS
	return t
}

// WithVCS sets the checkout client used by the default SetupVCS hook.
func (t *UpdateDocsTask) WithVCS(c Checkouter) *UpdateDocsTask {
	t.vcs = c
	return t
}

// WithBuilder sets the documentation builder.
func (t *UpdateDocsTask) WithBuilder(b Builder) *UpdateDocsTask {
	t.builder = b
	return t
}

// WithEventEmitter records lifecycle events in the build event log.
func (t *UpdateDocsTask) WithEventEmitter(e *eventstore.Emitter) *UpdateDocsTask {
	t.events = e
	return t
}

// WithRecorder injects a metrics recorder.
func (t *UpdateDocsTask) WithRecorder(r metrics.Recorder) *UpdateDocsTask {
	if r != nil {
		t.recorder = r
	}
	return t
}

// WithNotifyOnSuccess sends notifications for successful builds as well.
func (t *UpdateDocsTask) WithNotifyOnSuccess(v bool) *UpdateDocsTask {
	t.notifyOnSuccess = v
	return t
}

// Delay queues the task. The result's value is the build outcome as a bool.
func (t *UpdateDocsTask) Delay(ctx context.Context, projectID int64, opts Options) *tasks.AsyncResult {
	return t.queue.Delay(ctx, TaskName, func(ctx context.Context) (any, error) {
		ok, err := t.Run(ctx, projectID, opts)
		if err != nil {
			return nil, err
		}
		return ok, nil
	})
}

// Run executes the update pipeline and reports whether the build succeeded.
// Build failures are contained: they finish the build as failed, notify
// subscribers and return false with a nil error. Only lookup failures are
// returned as errors.
func (t *UpdateDocsTask) Run(ctx context.Context, projectID int64, opts Options) (bool, error) {
	project, err := t.GetProject(ctx, projectID)
	if err != nil {
		return false, err
	}
	ctx = observability.WithProject(ctx, project.Slug)

	version, err := t.GetVersion(ctx, project, opts.VersionID)
	if err != nil {
		return false, err
	}
	ctx = observability.WithVersion(ctx, version.Slug)

	build, err := t.GetBuild(ctx, project, version, opts)
	if err != nil {
		return false, err
	}
	ctx = observability.WithBuildID(ctx, build.ID)

	env := NewEnvironment(t.store, project, version, build, opts.Record)
	env.SetRecorder(t.recorder)

	observability.InfoContext(ctx, "Starting documentation update")
	t.emit(ctx, func() error {
		return t.events.BuildStarted(ctx, build.ID, eventstore.BuildStartedPayload{
			Project: project.Slug,
			Version: version.Slug,
			TaskID:  observability.GetContext(ctx).TaskID,
		})
	})

	_ = env.Run(ctx, "setup", models.BuildStateCloning, func(ctx context.Context) error {
		if project.Skip {
			return dherrors.ProjectBuildsSkipped(project.Slug)
		}
		return t.SetupVCS(ctx, env)
	})
	if !env.Failed() {
		env.SetState(ctx, models.BuildStateInstalling)
		_ = env.Run(ctx, "build", models.BuildStateBuilding, func(ctx context.Context) error {
			if t.builder == nil {
				return dherrors.InternalError("no documentation builder configured", nil)
			}
			return t.builder.Build(ctx, Request{
				Project:      project,
				Version:      version,
				Build:        build,
				CheckoutPath: env.CheckoutPath,
				Intersphinx:  opts.Intersphinx,
				Force:        opts.Force,
			})
		})
	}

	return t.finish(ctx, env), nil
}

func (t *UpdateDocsTask) finish(ctx context.Context, env *Environment) bool {
	ok := env.Finish(ctx)
	build := env.Build

	outcome := metrics.BuildOutcomeSuccess
	if !ok {
		outcome = metrics.BuildOutcomeFailed
		if env.Project.Skip {
			outcome = metrics.BuildOutcomeSkipped
		}
	}
	t.recorder.IncBuildOutcome(outcome)
	t.recorder.ObserveBuildDuration(build.Length)

	t.emit(ctx, func() error {
		return t.events.BuildFinished(ctx, build.ID, ok, build.Error, build.Commit, build.Length)
	})

	if ok {
		observability.InfoContext(ctx, "Documentation update finished", logfields.DurationMS(float64(build.Length)/float64(time.Millisecond)))
	} else {
		observability.WarnContext(ctx, "Documentation update failed", slog.String(logfields.KeyError, build.Error))
	}

	if !ok || t.notifyOnSuccess {
		t.sendNotifications(ctx, env)
	}
	return ok
}

func (t *UpdateDocsTask) sendNotifications(ctx context.Context, env *Environment) {
	if t.notifier == nil {
		return
	}
	if env.Build.ID == 0 {
		observability.DebugContext(ctx, "Skipping notifications for unrecorded build")
		return
	}
	if err := t.notifier.SendNotifications(ctx, env.Version.ID, env.Build.ID); err != nil {
		observability.ErrorContext(ctx, "Failed to send build notifications", logfields.Error(err))
	}
}

func (t *UpdateDocsTask) emit(ctx context.Context, fn func() error) {
	if err := fn(); err != nil {
		observability.WarnContext(ctx, "Failed to record build event", logfields.Error(err))
	}
}

func (t *UpdateDocsTask) getProject(ctx context.Context, projectID int64) (*models.Project, error) {
	return t.store.GetProject(ctx, projectID)
}

func (t *UpdateDocsTask) getVersion(ctx context.Context, project *models.Project, versionID int64) (*models.Version, error) {
	if versionID != 0 {
		v, err := t.store.GetVersion(ctx, versionID)
		if err != nil {
			return nil, err
		}
		if v.ProjectID != project.ID {
			return nil, dherrors.NotFound("version", versionID).WithContext("project", project.Slug)
		}
		return v, nil
	}

	versions, err := t.store.ListVersions(ctx, project.ID)
	if err != nil {
		return nil, err
	}
	var firstActive *models.Version
	for _, v := range versions {
		if !v.Active {
			continue
		}
		if v.Identifier == project.DefaultBranch {
			return v, nil
		}
		if firstActive == nil {
			firstActive = v
		}
	}
	if firstActive == nil {
		return nil, dherrors.NotFound("version", 0).WithContext("project", project.Slug)
	}
	return firstActive, nil
}

func (t *UpdateDocsTask) getBuild(ctx context.Context, project *models.Project, version *models.Version, opts Options) (*models.Build, error) {
	if opts.BuildID != 0 {
		return t.store.GetBuild(ctx, opts.BuildID)
	}
	b := &models.Build{
		ProjectID: project.ID,
		VersionID: version.ID,
		Type:      models.BuildTypeHTML,
		State:     models.BuildStateTriggered,
		Date:      time.Now(),
	}
	if !opts.Record {
		return b, nil
	}
	if err := t.store.CreateBuild(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (t *UpdateDocsTask) setupVCS(ctx context.Context, env *Environment) error {
	if t.vcs == nil {
		return dherrors.InternalError("no version control client configured", nil)
	}
	co, err := t.vcs.Checkout(ctx, env.Project.RepoURL, env.Version.Identifier, env.Project.Slug, env.Version.Slug)
	if err != nil {
		return err
	}
	env.CheckoutPath = co.Path
	env.SetCommit(ctx, co.Commit)
	return nil
}
