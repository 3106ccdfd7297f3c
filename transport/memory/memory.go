// Package memory implements the in-process transport the harness substitutes
// for a real broker connection. Delivery is synchronous and always succeeds
// at the transport layer; any failure happens inside the handler.
package memory

import (
	"context"
	"sync"

	"github.com/epalmerini/burrow/dispatch"
	"github.com/epalmerini/burrow/envelope"
)

// Transport stores subscriptions and delivers published envelopes to them
// inside the caller's call stack. No network I/O, no serialization round
// trips, no retries.
type Transport struct {
	router *dispatch.Router

	mu   sync.RWMutex
	subs map[string][]dispatch.Handler
}

// New returns an empty in-memory transport dispatching through router.
func New(router *dispatch.Router) *Transport {
	return &Transport{
		router: router,
		subs:   make(map[string][]dispatch.Handler),
	}
}

// Subscribe registers h on the destination key. Handlers on the same key are
// kept in registration order.
func (t *Transport) Subscribe(destination string, h dispatch.Handler) error {
	if destination == "" {
		return envelope.ErrEmptyDestination
	}
	if h == nil {
		return dispatch.ErrNilHandler
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.subs[destination] = append(t.subs[destination], h)
	return nil
}

// Publish delivers env synchronously to every handler subscribed to its
// destination, in registration order. Handler outcomes are captured by the
// router and discarded here; an envelope with no subscribers is dropped.
func (t *Transport) Publish(ctx context.Context, env *envelope.Envelope) error {
	if env == nil || env.Destination == "" {
		return envelope.ErrEmptyDestination
	}

	t.mu.RLock()
	handlers := make([]dispatch.Handler, len(t.subs[env.Destination]))
	copy(handlers, t.subs[env.Destination])
	t.mu.RUnlock()

	for _, h := range handlers {
		t.router.Dispatch(ctx, h, env)
	}
	return nil
}

// Subscribers returns how many handlers are registered on destination.
func (t *Transport) Subscribers(destination string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.subs[destination])
}

// Destinations returns how many destination keys have at least one handler.
func (t *Transport) Destinations() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.subs)
}

// Reset drops every subscription.
func (t *Transport) Reset() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subs = make(map[string][]dispatch.Handler)
	return nil
}

// Close is a no-op for the in-memory transport; it exists to satisfy the
// transport interface the real connection implements.
func (t *Transport) Close() error {
	return t.Reset()
}
