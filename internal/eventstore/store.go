// Package eventstore keeps an append-only log of build lifecycle and
// notification delivery events.
package eventstore

import "context"

// Store defines the interface for persisting and retrieving events.
type Store interface {
	// Append adds a new event to the store.
	Append(ctx context.Context, buildID int64, eventType string, payload []byte, metadata map[string]string) error

	// GetByBuildID retrieves all events for a specific build, oldest first.
	GetByBuildID(ctx context.Context, buildID int64) ([]Event, error)

	Close() error
}
