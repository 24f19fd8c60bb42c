// Package tasks runs named units of work either inline (eager mode) or on a
// bounded pool of background workers, handing callers an AsyncResult.
package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	dherrors "git.home.luguber.info/inful/dochost/internal/errors"
	"git.home.luguber.info/inful/dochost/internal/logfields"
	"git.home.luguber.info/inful/dochost/internal/metrics"
	"git.home.luguber.info/inful/dochost/internal/observability"
)

// Func is a unit of work. The returned value becomes AsyncResult.Result.
type Func func(ctx context.Context) (any, error)

// Config controls how a Queue executes tasks.
type Config struct {
	// AlwaysEager runs every task inline in the caller of Delay.
	AlwaysEager bool `yaml:"always_eager"`
	Workers     int  `yaml:"workers"`
	QueueSize   int  `yaml:"queue_size"`
	HistorySize int  `yaml:"history_size"`
}

type job struct {
	ctx    context.Context
	fn     Func
	result *AsyncResult
}

// Queue dispatches tasks to workers.
type Queue struct {
	cfg      Config
	jobs     chan *job
	mu       sync.RWMutex
	active   map[string]*AsyncResult
	history  []*AsyncResult
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	recorder metrics.Recorder
}

// New creates a queue. Zero values in cfg fall back to defaults.
func New(cfg Config) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 50
	}
	return &Queue{
		cfg:      cfg,
		jobs:     make(chan *job, cfg.QueueSize),
		active:   make(map[string]*AsyncResult),
		stopChan: make(chan struct{}),
		recorder: metrics.NoopRecorder{},
	}
}

// NewEager returns a queue that runs every task inline.
func NewEager() *Queue {
	return New(Config{AlwaysEager: true})
}

// SetRecorder injects a metrics recorder.
func (q *Queue) SetRecorder(r metrics.Recorder) {
	if r == nil {
		r = metrics.NoopRecorder{}
	}
	q.recorder = r
}

// Eager reports whether tasks run inline.
func (q *Queue) Eager() bool {
	return q.cfg.AlwaysEager
}

// Start launches the workers. It is a no-op in eager mode.
func (q *Queue) Start(ctx context.Context) {
	if q.cfg.AlwaysEager {
		return
	}
	slog.Info("Starting task queue", "workers", q.cfg.Workers, "max_size", q.cfg.QueueSize)
	for i := range q.cfg.Workers {
		q.wg.Add(1)
		go q.worker(ctx, fmt.Sprintf("worker-%d", i))
	}
}

// Stop signals the workers to exit and waits for running tasks to return.
// Tasks still queued are failed.
func (q *Queue) Stop(_ context.Context) {
	q.stopOnce.Do(func() { close(q.stopChan) })
	q.wg.Wait()

	for {
		select {
		case j := <-q.jobs:
			j.result.complete(nil, dherrors.New(dherrors.CategoryTask, dherrors.SeverityError, "task queue stopped"))
		default:
			return
		}
	}
}

// Length returns the number of tasks waiting for a worker.
func (q *Queue) Length() int {
	return len(q.jobs)
}

// Delay schedules fn under name and returns its result handle. In eager mode
// fn has already completed when Delay returns. When the queue is full the
// returned result has already failed.
func (q *Queue) Delay(ctx context.Context, name string, fn Func) *AsyncResult {
	res := newResult(uuid.NewString(), name)

	if q.cfg.AlwaysEager {
		q.run(ctx, fn, res, "eager")
		return res
	}

	j := &job{ctx: context.WithoutCancel(ctx), fn: fn, result: res}
	select {
	case q.jobs <- j:
	default:
		err := dherrors.New(dherrors.CategoryTask, dherrors.SeverityError, "task queue is full").
			WithContext("task", name)
		res.complete(nil, err)
		q.recorder.IncTaskResult(name, false)
		slog.Warn("Task rejected", logfields.TaskName(name), logfields.TaskID(res.ID), logfields.Error(err))
	}
	return res
}

// Get returns the result for a running or recently completed task.
func (q *Queue) Get(id string) (*AsyncResult, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if r, ok := q.active[id]; ok {
		return r, true
	}
	for _, r := range q.history {
		if r.ID == id {
			return r, true
		}
	}
	return nil, false
}

func (q *Queue) worker(ctx context.Context, workerID string) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.stopChan:
			return
		case j := <-q.jobs:
			if j == nil {
				continue
			}
			jobCtx, cancel := context.WithCancel(j.ctx)
			stop := context.AfterFunc(ctx, cancel)
			q.run(jobCtx, j.fn, j.result, workerID)
			stop()
			cancel()
		}
	}
}

func (q *Queue) run(ctx context.Context, fn Func, res *AsyncResult, workerID string) {
	ctx = observability.WithTaskID(ctx, res.ID)

	q.mu.Lock()
	q.active[res.ID] = res
	q.mu.Unlock()
	res.markStarted()

	observability.DebugContext(ctx, "Task started",
		logfields.TaskName(res.Name), logfields.Worker(workerID))

	value, err := q.execute(ctx, fn, res.Name)
	res.complete(value, err)

	q.mu.Lock()
	delete(q.active, res.ID)
	q.addToHistory(res)
	q.mu.Unlock()

	q.recorder.IncTaskResult(res.Name, err == nil)
	attrs := []slog.Attr{
		logfields.TaskName(res.Name),
		logfields.TaskStatus(string(res.Status())),
		logfields.DurationMS(float64(res.Duration()) / float64(time.Millisecond)),
	}
	if err != nil {
		observability.ErrorContext(ctx, "Task failed", append(attrs, logfields.Error(err))...)
		return
	}
	observability.InfoContext(ctx, "Task completed", attrs...)
}

func (q *Queue) execute(ctx context.Context, fn Func, name string) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = dherrors.InternalError(fmt.Sprintf("task %s panicked: %v", name, r), nil)
		}
	}()
	return fn(ctx)
}

func (q *Queue) addToHistory(res *AsyncResult) {
	q.history = append(q.history, res)
	if len(q.history) > q.cfg.HistorySize {
		copy(q.history, q.history[len(q.history)-q.cfg.HistorySize:])
		q.history = q.history[:q.cfg.HistorySize]
	}
}
