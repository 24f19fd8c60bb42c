package notify

import (
	"context"
	"sync"
)

// Message is an outbound email.
type Message struct {
	ID      string
	From    string
	To      []string
	Subject string
	Text    string
	HTML    string
}

// Mailer delivers email messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// Outbox is an in-memory Mailer that keeps every message it is handed.
type Outbox struct {
	mu       sync.Mutex
	messages []Message
	err      error
}

// NewOutbox returns an empty outbox.
func NewOutbox() *Outbox {
	return &Outbox{}
}

// Send stores msg, or returns the error configured with FailWith.
func (o *Outbox) Send(_ context.Context, msg Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return o.err
	}
	o.messages = append(o.messages, msg)
	return nil
}

// FailWith makes subsequent sends fail with err. A nil err restores delivery.
func (o *Outbox) FailWith(err error) {
	o.mu.Lock()
	o.err = err
	o.mu.Unlock()
}

// Messages returns a copy of the delivered messages.
func (o *Outbox) Messages() []Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Message, len(o.messages))
	copy(out, o.messages)
	return out
}

// Len returns the number of delivered messages.
func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.messages)
}

// Reset empties the outbox.
func (o *Outbox) Reset() {
	o.mu.Lock()
	o.messages = nil
	o.mu.Unlock()
}
