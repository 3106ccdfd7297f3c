// Package transport defines the boundary between the broker and whatever
// carries its messages, so an in-memory substitute and a real AMQP
// connection are interchangeable to application code.
package transport

import (
	"context"

	"github.com/epalmerini/burrow/dispatch"
	"github.com/epalmerini/burrow/envelope"
)

// Transport carries envelopes from publishers to subscribed handlers.
type Transport interface {
	// Publish delivers env to every handler subscribed to its destination
	// key. Delivery failures inside handlers are a handler concern, not a
	// transport error.
	Publish(ctx context.Context, env *envelope.Envelope) error

	// Subscribe registers h on a destination key. Multiple handlers may
	// share a key; each receives the full envelope in registration order.
	Subscribe(destination string, h dispatch.Handler) error

	// Reset drops all subscriptions, returning the transport to its
	// just-constructed state. Used by fixture teardown between tests.
	Reset() error

	// Close releases the transport's resources.
	Close() error
}
