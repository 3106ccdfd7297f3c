// Package burrow is an in-process message-broker test harness. It runs the
// full dispatch path of code written against a publish/subscribe abstraction
// — publishing, subscription matching, request/reply correlation, handler
// invocation — synchronously and deterministically, with an in-memory
// transport substituted for the real broker connection.
package burrow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/epalmerini/burrow/dispatch"
	"github.com/epalmerini/burrow/envelope"
	"github.com/epalmerini/burrow/internal/randutil"
	"github.com/epalmerini/burrow/journal"
	"github.com/epalmerini/burrow/transport"
	"github.com/epalmerini/burrow/transport/memory"
)

// DefaultTimeout is how long an RPC publish waits for a reply unless
// overridden per broker or per call.
const DefaultTimeout = 30 * time.Second

var (
	// ErrReplyToWithRPC is returned when a publish combines an explicit
	// reply-to destination with an RPC wait; the two are mutually exclusive.
	ErrReplyToWithRPC = errors.New("reply-to and expect-reply are mutually exclusive")

	// ErrTimeout is returned by an RPC publish that elapsed without a reply,
	// when the caller asked timeouts to surface as errors.
	ErrTimeout = errors.New("rpc timed out awaiting reply")
)

// Broker wires a transport, the dispatch router and the RPC correlator into
// one harness instance. Each test constructs its own Broker (or shares one
// through a Fixture); no process-wide state is kept.
type Broker struct {
	router  *dispatch.Router
	tr      transport.Transport
	builder *envelope.Builder
	calls   *correlator

	replyTo string
	timeout time.Duration

	store     journal.Store
	ownsStore bool
	writer    *journal.Writer
	sessionID int64
}

// New constructs a Broker. Without options it uses the in-memory transport
// and the default RPC timeout.
func New(opts ...Option) (*Broker, error) {
	b := &Broker{
		router:  dispatch.NewRouter(),
		calls:   newCorrelator(),
		replyTo: "burrow.reply." + randutil.RandomSuffix(),
		timeout: DefaultTimeout,
	}
	b.builder = envelope.NewBuilder(b.replyTo)

	var o brokerOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.timeout > 0 {
		b.timeout = o.timeout
	}
	b.store = o.store
	b.ownsStore = o.ownsStore

	if o.transport == nil {
		b.tr = memory.New(b.router)
	} else {
		tr, err := o.transport(b.router)
		if err != nil {
			return nil, fmt.Errorf("failed to build transport: %w", err)
		}
		b.tr = tr
	}

	// Replies route through the transport like any other envelope; the
	// correlator listens on a per-broker destination.
	if err := b.tr.Subscribe(b.replyTo, b.calls.handle); err != nil {
		return nil, errors.Join(fmt.Errorf("failed to subscribe reply destination: %w", err), b.tr.Close())
	}

	if b.store != nil {
		id, err := b.store.CreateSession(context.Background(), b.replyTo)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("failed to create journal session: %w", err), b.tr.Close())
		}
		b.sessionID = id
		b.writer = journal.NewWriter(b.store, id)
	}

	return b, nil
}

// ReplyTo returns the broker's reply destination key. RPC request envelopes
// built by this broker carry it.
func (b *Broker) ReplyTo() string {
	return b.replyTo
}

// SessionID returns the journal session this broker records under, or 0
// when journaling is not configured.
func (b *Broker) SessionID() int64 {
	return b.sessionID
}

// Subscribe registers h on a destination key, exactly as application wiring
// code would against the real broker. When an RPC request reaches h and h
// returns a value, the value is published back to the request's reply-to
// destination; a handler error produces no reply.
func (b *Broker) Subscribe(destination string, h dispatch.Handler) error {
	if destination == "" {
		return envelope.ErrEmptyDestination
	}
	if h == nil {
		return dispatch.ErrNilHandler
	}
	return b.tr.Subscribe(destination, b.replying(h))
}

// replying wraps h so the value of a successful dispatch answers the RPC
// request that triggered it. Reply delivery is treated as always-succeeds
// once a handler value is obtained.
func (b *Broker) replying(h dispatch.Handler) dispatch.Handler {
	return func(ctx context.Context, env *envelope.Envelope) (any, error) {
		value, err := h(ctx, env)
		if err != nil {
			return nil, err
		}
		if env.IsRPC() {
			if reply, rerr := b.builder.Reply(env, value); rerr == nil {
				_ = b.tr.Publish(ctx, reply)
			}
		}
		return value, nil
	}
}

// Publish sends body to a destination key. Without ExpectReply it returns
// (nil, nil) as soon as the transport has delivered, never touching the
// correlator. With ExpectReply it blocks until a reply envelope with the
// request's correlation id arrives or the timeout elapses; a timeout yields
// (nil, nil) unless RaiseOnTimeout was given.
//
// Handler failures are swallowed on this path: a publish against a handler
// that errors observes only an absent result. Use Invoke with Reraise to
// assert on handler failure modes.
func (b *Broker) Publish(ctx context.Context, destination string, body any, opts ...PublishOption) (*envelope.Envelope, error) {
	var cfg publishConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.expectReply && cfg.replyTo != "" {
		return nil, ErrReplyToWithRPC
	}

	var env *envelope.Envelope
	var err error
	if cfg.replyTo != "" {
		env, err = b.builder.BuildWithReplyTo(destination, body, cfg.headers, cfg.replyTo)
	} else {
		env, err = b.builder.Build(destination, body, cfg.headers, cfg.expectReply)
	}
	if err != nil {
		return nil, err
	}

	b.record(env)

	if !cfg.expectReply {
		return nil, b.tr.Publish(ctx, env)
	}

	timeout := b.timeout
	if cfg.timeoutSet {
		timeout = cfg.timeout
	}

	ch := b.calls.register(env.CorrelationID)
	defer b.calls.unregister(env.CorrelationID)

	if err := b.tr.Publish(ctx, env); err != nil {
		return nil, err
	}

	reply, ok := b.calls.wait(ctx, ch, timeout)
	if !ok {
		if cfg.raiseTimeout {
			return nil, ErrTimeout
		}
		return nil, nil
	}
	return reply, nil
}

// record journals a published envelope, when journaling is configured.
func (b *Broker) record(env *envelope.Envelope) {
	if b.writer == nil {
		return
	}
	b.writer.Save(&journal.Record{
		Destination:   env.Destination,
		Body:          env.Body,
		ContentType:   env.ContentType,
		Headers:       env.Headers,
		CorrelationID: env.CorrelationID,
		ReplyTo:       env.ReplyTo,
		MessageID:     env.MessageID,
		Timestamp:     env.Timestamp,
	})
}

// Stats is a point-in-time snapshot of broker state, mainly for asserting
// that fixture teardown left nothing behind.
type Stats struct {
	Destinations int // destination keys with at least one handler, if the transport reports it
	PendingCalls int // in-flight RPC requests
}

// Stats snapshots the broker.
func (b *Broker) Stats() Stats {
	s := Stats{PendingCalls: b.calls.size()}
	if in, ok := b.tr.(interface{ Destinations() int }); ok {
		s.Destinations = in.Destinations()
	}
	return s
}

// Reset clears every handler registration and pending RPC request, keeping
// the broker usable. Fixtures call it between tests so nothing leaks from
// one test into the next.
func (b *Broker) Reset() error {
	b.calls.reset()
	if err := b.tr.Reset(); err != nil {
		return fmt.Errorf("failed to reset transport: %w", err)
	}
	return b.tr.Subscribe(b.replyTo, b.calls.handle)
}

// Close flushes the journal, ends its session and releases the transport.
func (b *Broker) Close() error {
	var errs error
	if b.writer != nil {
		b.writer.Close()
		errs = b.store.EndSession(context.Background(), b.sessionID)
		if b.ownsStore {
			errs = errors.Join(errs, b.store.Close())
		}
	}
	b.calls.reset()
	return errors.Join(errs, b.tr.Close())
}
