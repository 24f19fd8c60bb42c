package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/dochost/internal/retry"
)

// stubJetStream answers Publish from a list of canned errors. Other
// JetStream methods are not used by NATSPublisher.
type stubJetStream struct {
	jetstream.JetStream

	mu       sync.Mutex
	failures []error
	subjects []string
	payloads [][]byte
}

func (s *stubJetStream) Publish(_ context.Context, subject string, payload []byte, _ ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subjects = append(s.subjects, subject)
	s.payloads = append(s.payloads, payload)
	if len(s.failures) > 0 {
		err := s.failures[0]
		s.failures = s.failures[1:]
		if err != nil {
			return nil, err
		}
	}
	return &jetstream.PubAck{Stream: "DOCHOST_BUILDS", Sequence: uint64(len(s.subjects))}, nil
}

func fastRetry(retries int) retry.Policy {
	return retry.Policy{Mode: retry.ModeFixed, Initial: time.Millisecond, Max: time.Millisecond, MaxRetries: retries}
}

func TestNATSPublisherPublishesEvent(t *testing.T) {
	js := &stubJetStream{}
	pub := &NATSPublisher{js: js, subject: "dochost.builds", retry: fastRetry(0)}

	require.NoError(t, pub.Publish(t.Context(), BuildNotification{Project: "pip", Version: "latest", BuildID: 5}))

	require.Equal(t, []string{"dochost.builds"}, js.subjects)
	var got BuildNotification
	require.NoError(t, json.Unmarshal(js.payloads[0], &got))
	assert.Equal(t, "pip", got.Project)
	assert.Equal(t, int64(5), got.BuildID)
	assert.False(t, got.Success)
}

func TestNATSPublisherRetriesTransientFailures(t *testing.T) {
	js := &stubJetStream{failures: []error{errors.New("nats: timeout"), errors.New("nats: timeout")}}
	pub := &NATSPublisher{js: js, subject: "dochost.builds", retry: fastRetry(2)}

	require.NoError(t, pub.Publish(t.Context(), BuildNotification{Project: "pip", BuildID: 1}))
	assert.Len(t, js.subjects, 3)
}

func TestNATSPublisherGivesUpAfterRetries(t *testing.T) {
	down := errors.New("nats: no responders available for request")
	js := &stubJetStream{failures: []error{down, down, down}}
	pub := &NATSPublisher{js: js, subject: "dochost.builds", retry: fastRetry(1)}

	err := pub.Publish(t.Context(), BuildNotification{Project: "pip", BuildID: 1})
	require.ErrorIs(t, err, down)
	assert.Len(t, js.subjects, 2)
}

func TestNATSPublisherStopsOnCanceledContext(t *testing.T) {
	js := &stubJetStream{failures: []error{errors.New("timeout")}}
	pub := &NATSPublisher{js: js, subject: "dochost.builds", retry: retry.Policy{Mode: retry.ModeFixed, Initial: time.Hour, Max: time.Hour, MaxRetries: 3}}

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	err := pub.Publish(ctx, BuildNotification{Project: "pip", BuildID: 1})
	require.ErrorIs(t, err, context.Canceled)
	assert.Len(t, js.subjects, 1)
}

func TestNewNATSPublisherRequiresSubject(t *testing.T) {
	_, err := NewNATSPublisher(t.Context(), NATSConfig{URL: "nats://127.0.0.1:4222"})
	assert.Error(t, err)
}

func TestNATSPublisherCloseWithoutConnection(t *testing.T) {
	assert.NoError(t, (&NATSPublisher{}).Close())
}
