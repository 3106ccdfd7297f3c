package burrow

import (
	"time"

	"github.com/epalmerini/burrow/dispatch"
	"github.com/epalmerini/burrow/journal"
	"github.com/epalmerini/burrow/transport"
)

// TransportFactory builds the transport a Broker publishes through. The
// broker hands it the router so deliveries dispatch through the same capture
// path as direct invocations.
type TransportFactory func(router *dispatch.Router) (transport.Transport, error)

type brokerOptions struct {
	timeout   time.Duration
	transport TransportFactory
	store     journal.Store
	ownsStore bool
}

// Option configures a Broker at construction.
type Option func(*brokerOptions)

// WithTimeout sets the broker-wide default RPC timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *brokerOptions) {
		o.timeout = d
	}
}

// WithTransport substitutes the transport. Without it the broker uses the
// in-memory one.
func WithTransport(f TransportFactory) Option {
	return func(o *brokerOptions) {
		o.transport = f
	}
}

// WithJournal records every published envelope to store. The caller keeps
// ownership of the store; the broker only opens and ends its own session.
func WithJournal(store journal.Store) Option {
	return func(o *brokerOptions) {
		o.store = store
	}
}

// withOwnedJournal is WithJournal for stores the broker opened itself and
// must close. Used by the config-driven constructor.
func withOwnedJournal(store journal.Store) Option {
	return func(o *brokerOptions) {
		o.store = store
		o.ownsStore = true
	}
}

type publishConfig struct {
	headers      map[string]string
	expectReply  bool
	replyTo      string
	timeout      time.Duration
	timeoutSet   bool
	raiseTimeout bool
}

// PublishOption configures a single publish call.
type PublishOption func(*publishConfig)

// WithHeaders attaches headers to the published envelope.
func WithHeaders(h map[string]string) PublishOption {
	return func(c *publishConfig) {
		c.headers = h
	}
}

// ExpectReply makes the publish an RPC request: it blocks for the reply or
// the timeout, whichever comes first.
func ExpectReply() PublishOption {
	return func(c *publishConfig) {
		c.expectReply = true
	}
}

// WithCallTimeout overrides the RPC timeout for this call only. A zero or
// negative timeout checks for an already-resolved reply and gives up
// immediately otherwise.
func WithCallTimeout(d time.Duration) PublishOption {
	return func(c *publishConfig) {
		c.timeout = d
		c.timeoutSet = true
	}
}

// WithReplyTo routes the handler's result to an explicit destination instead
// of waiting for it. Mutually exclusive with ExpectReply.
func WithReplyTo(destination string) PublishOption {
	return func(c *publishConfig) {
		c.replyTo = destination
	}
}

// RaiseOnTimeout makes an elapsed RPC wait return ErrTimeout instead of an
// absent result.
func RaiseOnTimeout() PublishOption {
	return func(c *publishConfig) {
		c.raiseTimeout = true
	}
}
