package tasks

import (
	"context"
	"sync"
	"time"
)

// Status is the lifecycle position of a queued task.
type Status string

const (
	StatusPending Status = "pending"
	StatusStarted Status = "started"
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// AsyncResult is the handle returned by Delay. It is safe for concurrent use.
type AsyncResult struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`

	mu          sync.RWMutex
	status      Status
	value       any
	err         error
	startedAt   time.Time
	completedAt time.Time
	done        chan struct{}
}

func newResult(id, name string) *AsyncResult {
	return &AsyncResult{
		ID:        id,
		Name:      name,
		CreatedAt: time.Now(),
		status:    StatusPending,
		done:      make(chan struct{}),
	}
}

func (r *AsyncResult) markStarted() {
	r.mu.Lock()
	r.status = StatusStarted
	r.startedAt = time.Now()
	r.mu.Unlock()
}

func (r *AsyncResult) complete(value any, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status == StatusSuccess || r.status == StatusFailure {
		return
	}
	r.value = value
	r.err = err
	r.completedAt = time.Now()
	if err != nil {
		r.status = StatusFailure
	} else {
		r.status = StatusSuccess
	}
	close(r.done)
}

// Wait blocks until the task completes or ctx is done.
func (r *AsyncResult) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done returns a channel closed when the task completes.
func (r *AsyncResult) Done() <-chan struct{} {
	return r.done
}

// Ready reports whether the task has completed.
func (r *AsyncResult) Ready() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// Successful reports whether the task completed without returning an error.
// A task that returned a falsy value is still successful.
func (r *AsyncResult) Successful() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status == StatusSuccess
}

// Result returns the value produced by the task, or nil while pending or on failure.
func (r *AsyncResult) Result() any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.value
}

// Err returns the task failure, if any.
func (r *AsyncResult) Err() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.err
}

// Status returns the current task status.
func (r *AsyncResult) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

// Duration returns how long the task ran; zero until completed.
func (r *AsyncResult) Duration() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.startedAt.IsZero() || r.completedAt.IsZero() {
		return 0
	}
	return r.completedAt.Sub(r.startedAt)
}
