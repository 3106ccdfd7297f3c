package envelope

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrEmptyDestination is returned when building or publishing without a
// destination key.
var ErrEmptyDestination = errors.New("destination key must not be empty")

// Builder constructs envelopes the way a publish call would, so the publish
// path and direct invocation observe identical message shape. The reply-to
// key is fixed per Builder (one per broker instance).
type Builder struct {
	replyTo string
	now     func() time.Time
	newID   func() string
}

// NewBuilder returns a Builder whose RPC envelopes carry replyTo.
func NewBuilder(replyTo string) *Builder {
	return &Builder{
		replyTo: replyTo,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// Build creates an envelope for destination carrying body. If expectReply is
// true a fresh correlation id and the builder's reply-to key are stamped.
// Headers are copied; the caller's map is not retained.
func (b *Builder) Build(destination string, body any, headers map[string]string, expectReply bool) (*Envelope, error) {
	if destination == "" {
		return nil, ErrEmptyDestination
	}

	raw, contentType, err := EncodeBody(body)
	if err != nil {
		return nil, err
	}

	env := &Envelope{
		Destination: destination,
		Body:        raw,
		ContentType: contentType,
		MessageID:   b.newID(),
		Timestamp:   b.now(),
	}

	if len(headers) > 0 {
		env.Headers = make(map[string]string, len(headers))
		for k, v := range headers {
			env.Headers[k] = v
		}
	}

	if expectReply {
		env.CorrelationID = b.newID()
		env.ReplyTo = b.replyTo
	}

	return env, nil
}

// BuildWithReplyTo creates an envelope whose handler result should be
// published to an explicit destination rather than awaited by the caller. A
// correlation id is still stamped so the envelope shape matches an RPC
// request.
func (b *Builder) BuildWithReplyTo(destination string, body any, headers map[string]string, replyTo string) (*Envelope, error) {
	if replyTo == "" {
		return nil, ErrEmptyDestination
	}
	env, err := b.Build(destination, body, headers, false)
	if err != nil {
		return nil, err
	}
	env.CorrelationID = b.newID()
	env.ReplyTo = replyTo
	return env, nil
}

// Reply creates the response envelope for an RPC request, carrying the
// request's correlation id to its reply-to destination. Replies carry no
// reply-to of their own: a reply must never read as another request, or
// delivering it to a replying handler would cascade.
func (b *Builder) Reply(req *Envelope, body any) (*Envelope, error) {
	raw, contentType, err := EncodeBody(body)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		Destination:   req.ReplyTo,
		Body:          raw,
		ContentType:   contentType,
		CorrelationID: req.CorrelationID,
		MessageID:     b.newID(),
		Timestamp:     b.now(),
	}, nil
}

// EncodeBody serializes a publishable body. Bytes pass through untouched,
// strings become text/plain, anything else is JSON encoded.
func EncodeBody(body any) ([]byte, string, error) {
	switch v := body.(type) {
	case nil:
		return nil, ContentBytes, nil
	case []byte:
		return v, ContentBytes, nil
	case string:
		return []byte(v), ContentText, nil
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, "", fmt.Errorf("failed to encode body: %w", err)
		}
		return raw, ContentJSON, nil
	}
}
