package notify

import (
	"context"

	"git.home.luguber.info/inful/dochost/internal/tasks"
)

// TaskName is the task queue name of a notification dispatch.
const TaskName = "send_notifications"

// Deferred dispatches notifications as their own task on a queue.
type Deferred struct {
	sender Sender
	queue  *tasks.Queue
}

// NewDeferred wraps sender so SendNotifications runs on queue.
func NewDeferred(sender Sender, queue *tasks.Queue) *Deferred {
	return &Deferred{sender: sender, queue: queue}
}

// Delay queues the notification task and returns its handle.
func (d *Deferred) Delay(ctx context.Context, versionID, buildID int64) *tasks.AsyncResult {
	return d.queue.Delay(ctx, TaskName, func(ctx context.Context) (any, error) {
		return nil, d.sender.SendNotifications(ctx, versionID, buildID)
	})
}

// SendNotifications queues the task. In eager mode the task has run by the
// time it returns and its error is returned; otherwise only rejection by the
// queue is reported.
func (d *Deferred) SendNotifications(ctx context.Context, versionID, buildID int64) error {
	res := d.Delay(ctx, versionID, buildID)
	if res.Ready() {
		return res.Err()
	}
	return nil
}
