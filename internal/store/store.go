// Package store defines the replicated document store the game core runs on.
//
// A store is a shared JSON tree. Clients commit atomic multi-path patches,
// read single paths, subscribe to a path and receive its value every time it
// changes, and register patches the store applies on their behalf once their
// connection drops.
package store

import (
	"context"
	"errors"

	"outbreak/internal/doc"
)

var (
	// ErrUnavailable indicates the store could not be reached. Callers may retry.
	ErrUnavailable = errors.New("store unavailable")

	// ErrClosed indicates the connection was closed by this client.
	ErrClosed = errors.New("store connection closed")
)

// Store is one client's connection to the shared document.
type Store interface {
	// Update commits every write of the patch atomically.
	Update(ctx context.Context, patch doc.Patch) error

	// Get returns a deep copy of the node at path, nil when absent.
	Get(ctx context.Context, path string) (any, error)

	// Observe subscribes to path. The current value is delivered first.
	Observe(ctx context.Context, path string) (*Subscription, error)

	// OnDisconnect registers a patch applied when this connection drops.
	OnDisconnect(ctx context.Context, patch doc.Patch) error

	// CancelDisconnect drops every patch registered by OnDisconnect.
	CancelDisconnect(ctx context.Context) error
}

// Event carries the value of a subscribed path after a change.
type Event struct {
	Path  string
	Value any
}

// Subscription delivers events for one path until closed.
type Subscription struct {
	C      <-chan Event
	cancel func()
}

// NewSubscription wraps a channel and its cancel function.
func NewSubscription(c <-chan Event, cancel func()) *Subscription {
	return &Subscription{C: c, cancel: cancel}
}

// Close stops delivery. The channel is closed once pending delivery stops.
func (s *Subscription) Close() {
	if s.cancel != nil {
		s.cancel()
	}
}

// IsRetryable reports whether err is a transient store failure.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnavailable) ||
		errors.Is(err, context.DeadlineExceeded)
}
