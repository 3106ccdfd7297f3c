// Package envelope defines the canonical in-memory message record the harness
// moves between publishers, transports and handlers.
package envelope

import (
	"encoding/json"
	"fmt"
	"time"
)

// Content types stamped by the builder based on the body's Go type.
const (
	ContentBytes = "application/octet-stream"
	ContentText  = "text/plain"
	ContentJSON  = "application/json"
)

// Envelope is one unit of data in flight. It is built once, at publish time or
// by a direct invocation, and must not be mutated after that: handlers on the
// same destination all receive the same instance.
//
// On a request, CorrelationID and ReplyTo are either both set (an RPC
// request) or both empty; the builder enforces this. A reply carries the
// request's CorrelationID and no ReplyTo.
type Envelope struct {
	Destination   string
	Body          []byte
	ContentType   string
	Headers       map[string]string
	CorrelationID string
	ReplyTo       string
	MessageID     string
	Timestamp     time.Time
}

// Header returns the named header, or "" if unset.
func (e *Envelope) Header(key string) string {
	return e.Headers[key]
}

// Text returns the body as a string.
func (e *Envelope) Text() string {
	return string(e.Body)
}

// Decode unmarshals a JSON body into v.
func (e *Envelope) Decode(v any) error {
	if err := json.Unmarshal(e.Body, v); err != nil {
		return fmt.Errorf("failed to decode body: %w", err)
	}
	return nil
}

// IsRPC reports whether the envelope is a request expecting a reply.
func (e *Envelope) IsRPC() bool {
	return e.CorrelationID != "" && e.ReplyTo != ""
}
