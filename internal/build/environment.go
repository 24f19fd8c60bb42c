package build

import (
	"context"
	"errors"
	"fmt"
	"time"

	dherrors "git.home.luguber.info/inful/dochost/internal/errors"
	"git.home.luguber.info/inful/dochost/internal/logfields"
	"git.home.luguber.info/inful/dochost/internal/metrics"
	"git.home.luguber.info/inful/dochost/internal/models"
	"git.home.luguber.info/inful/dochost/internal/observability"
	"git.home.luguber.info/inful/dochost/internal/storage"
)

// GenericFailureMessage is stored on builds that failed for an unclassified reason.
const GenericFailureMessage = "There was a problem with the documentation build. Please report this to us with your build id (%d)."

// InactivityMessage is stored on builds terminated by the inactivity sweep.
const InactivityMessage = "This build was terminated due to inactivity."

type exitCoder interface {
	ExitCode() int
}

// Environment runs build stages for one build, keeping the build record in
// step with the pipeline. It contains any error or panic raised by a stage
// and remembers the first failure until Finish.
type Environment struct {
	Project      *models.Project
	Version      *models.Version
	Build        *models.Build
	CheckoutPath string

	store    storage.Store
	record   bool
	recorder metrics.Recorder
	start    time.Time
	failure  error
}

// NewEnvironment creates an environment for build. When record is false the
// build is only updated in memory.
func NewEnvironment(store storage.Store, project *models.Project, version *models.Version, build *models.Build, record bool) *Environment {
	return &Environment{
		Project:  project,
		Version:  version,
		Build:    build,
		store:    store,
		record:   record,
		recorder: metrics.NoopRecorder{},
		start:    time.Now(),
	}
}

// SetRecorder injects a metrics recorder.
func (e *Environment) SetRecorder(r metrics.Recorder) {
	if r != nil {
		e.recorder = r
	}
}

// Failed reports whether a stage has failed.
func (e *Environment) Failed() bool {
	return e.failure != nil
}

// Failure returns the first stage failure.
func (e *Environment) Failure() error {
	return e.failure
}

// SetCommit stores the checked-out commit on the build.
func (e *Environment) SetCommit(ctx context.Context, commit string) {
	e.Build.Commit = commit
	e.persist(ctx)
}

// SetState moves the build to state.
func (e *Environment) SetState(ctx context.Context, state models.BuildState) {
	e.Build.State = state
	e.persist(ctx)
}

// Run executes fn as the named stage after moving the build to state.
// A returned error or a panic inside fn is recorded as the build failure and
// returned. Run does nothing once a previous stage failed.
func (e *Environment) Run(ctx context.Context, stage string, state models.BuildState, fn func(ctx context.Context) error) error {
	if e.failure != nil {
		return e.failure
	}

	ctx = observability.WithStage(ctx, stage)
	e.SetState(ctx, state)

	stageStart := time.Now()
	err := runContained(ctx, fn)
	e.recorder.ObserveStageDuration(stage, time.Since(stageStart))
	if err == nil {
		e.recorder.IncStageResult(stage, metrics.ResultSuccess)
		return nil
	}

	result := metrics.ResultFatal
	if errors.Is(err, context.Canceled) {
		result = metrics.ResultCanceled
	}
	e.recorder.IncStageResult(stage, result)

	var ec exitCoder
	if errors.As(err, &ec) {
		e.Build.ExitCode = ec.ExitCode()
	} else if e.Build.ExitCode == 0 {
		e.Build.ExitCode = 1
	}

	observability.ErrorContext(ctx, "Build stage failed", logfields.Error(err))
	e.failure = err
	return err
}

func runContained(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}

// Finish marks the build finished, successful unless a stage failed, and
// returns whether it succeeded.
func (e *Environment) Finish(ctx context.Context) bool {
	e.Build.State = models.BuildStateFinished
	e.Build.Length = time.Since(e.start)
	e.Build.Success = e.failure == nil
	if e.failure != nil {
		e.Build.Error = FailureMessage(e.failure, e.Build.ID)
	} else {
		e.Build.Error = ""
	}
	e.persist(ctx)
	return e.Build.Success
}

// FailureMessage returns the user-facing error for a failed build. Categorized
// errors keep their message; anything else gets the generic message.
func FailureMessage(err error, buildID int64) string {
	if dhe, ok := dherrors.As(err); ok {
		if dhe.Cause != nil {
			return fmt.Sprintf("%s: %v", dhe.Message, dhe.Cause)
		}
		return dhe.Message
	}
	return fmt.Sprintf(GenericFailureMessage, buildID)
}

func (e *Environment) persist(ctx context.Context) {
	if !e.record || e.store == nil || e.Build.ID == 0 {
		return
	}
	if err := e.store.UpdateBuild(ctx, e.Build); err != nil {
		observability.WarnContext(ctx, "Failed to persist build state", logfields.Error(err))
	}
}
