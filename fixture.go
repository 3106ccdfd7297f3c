package burrow

import "sync"

// Fixture yields one configured Broker for reuse across a batch of tests. A
// host test framework calls Broker in setup, Reset between tests and Close
// in teardown; Reset guarantees registrations and pending RPC requests from
// one test are gone before the next.
type Fixture struct {
	opts []Option

	mu     sync.Mutex
	broker *Broker
}

// NewFixture creates a fixture; the broker itself is built lazily on first
// use with the given options.
func NewFixture(opts ...Option) *Fixture {
	return &Fixture{opts: opts}
}

// Broker returns the shared broker, constructing it on first call.
func (f *Fixture) Broker() (*Broker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.broker == nil {
		b, err := New(f.opts...)
		if err != nil {
			return nil, err
		}
		f.broker = b
	}
	return f.broker, nil
}

// Reset clears the shared broker between tests. A fixture whose broker was
// never built has nothing to clear.
func (f *Fixture) Reset() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.broker == nil {
		return nil
	}
	return f.broker.Reset()
}

// Close tears the shared broker down.
func (f *Fixture) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.broker == nil {
		return nil
	}
	err := f.broker.Close()
	f.broker = nil
	return err
}
