package burrow

import (
	"context"
	"sync"
	"time"

	"github.com/epalmerini/burrow/envelope"
)

// correlator tracks in-flight RPC requests. Each pending request is a
// single-slot channel keyed by correlation id; the first reply to arrive
// wins it and later replies for the same id are discarded without error.
type correlator struct {
	mu      sync.Mutex
	pending map[string]chan *envelope.Envelope
}

func newCorrelator() *correlator {
	return &correlator{pending: make(map[string]chan *envelope.Envelope)}
}

// register creates the pending slot for a correlation id.
func (c *correlator) register(id string) <-chan *envelope.Envelope {
	ch := make(chan *envelope.Envelope, 1)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()
	return ch
}

// unregister destroys the pending slot, resolved or not.
func (c *correlator) unregister(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// resolve hands a reply envelope to its waiting request. Unknown correlation
// ids and already-resolved requests are dropped.
func (c *correlator) resolve(env *envelope.Envelope) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch, ok := c.pending[env.CorrelationID]
	if !ok {
		return false
	}
	select {
	case ch <- env:
		return true
	default:
		// At most one winner per correlation id.
		return false
	}
}

// handle is the handler subscribed on the broker's reply destination.
func (c *correlator) handle(_ context.Context, env *envelope.Envelope) (any, error) {
	c.resolve(env)
	return nil, nil
}

// wait blocks until the pending slot resolves, the timeout elapses or ctx is
// done. With a zero or negative timeout it only checks for a reply that is
// already there.
func (c *correlator) wait(ctx context.Context, ch <-chan *envelope.Envelope, timeout time.Duration) (*envelope.Envelope, bool) {
	if timeout <= 0 {
		select {
		case reply := <-ch:
			return reply, true
		default:
			return nil, false
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case reply := <-ch:
		return reply, true
	case <-timer.C:
		return nil, false
	case <-ctx.Done():
		return nil, false
	}
}

// size returns the number of in-flight requests.
func (c *correlator) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// reset drops every pending request. Waiters, if any, fall through to their
// timeout path.
func (c *correlator) reset() {
	c.mu.Lock()
	c.pending = make(map[string]chan *envelope.Envelope)
	c.mu.Unlock()
}
