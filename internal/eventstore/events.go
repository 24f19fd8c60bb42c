package eventstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Event type names.
const (
	TypeBuildStarted       = "BuildStarted"
	TypeBuildFinished      = "BuildFinished"
	TypeNotificationSent   = "NotificationSent"
	TypeNotificationFailed = "NotificationFailed"
)

// BuildStartedPayload is recorded when the update task picks up a build.
type BuildStartedPayload struct {
	Project string `json:"project"`
	Version string `json:"version"`
	TaskID  string `json:"task_id,omitempty"`
}

// BuildFinishedPayload is recorded when a build reaches the finished state.
type BuildFinishedPayload struct {
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
	Commit     string `json:"commit,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

// NotificationPayload is recorded per delivery attempt.
type NotificationPayload struct {
	Channel string `json:"channel"`
	Target  string `json:"target"`
	Error   string `json:"error,omitempty"`
}

// Emitter appends typed events to a Store. A nil Emitter or nil Store is a no-op.
type Emitter struct {
	store Store
}

// NewEmitter wraps store.
func NewEmitter(store Store) *Emitter {
	return &Emitter{store: store}
}

// BuildStarted records a BuildStarted event.
func (e *Emitter) BuildStarted(ctx context.Context, buildID int64, p BuildStartedPayload) error {
	return e.append(ctx, buildID, TypeBuildStarted, p, nil)
}

// BuildFinished records a BuildFinished event.
func (e *Emitter) BuildFinished(ctx context.Context, buildID int64, success bool, errMsg, commit string, d time.Duration) error {
	return e.append(ctx, buildID, TypeBuildFinished, BuildFinishedPayload{
		Success:    success,
		Error:      errMsg,
		Commit:     commit,
		DurationMS: d.Milliseconds(),
	}, nil)
}

// NotificationDelivered records the outcome of one delivery attempt.
func (e *Emitter) NotificationDelivered(ctx context.Context, buildID int64, channel, target string, deliveryErr error) error {
	p := NotificationPayload{Channel: channel, Target: target}
	eventType := TypeNotificationSent
	if deliveryErr != nil {
		p.Error = deliveryErr.Error()
		eventType = TypeNotificationFailed
	}
	return e.append(ctx, buildID, eventType, p, map[string]string{"channel": channel})
}

func (e *Emitter) append(ctx context.Context, buildID int64, eventType string, payload any, meta map[string]string) error {
	if e == nil || e.store == nil {
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return e.store.Append(ctx, buildID, eventType, data, meta)
}
