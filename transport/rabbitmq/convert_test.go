package rabbitmq

import (
	"bytes"
	"testing"
	"time"

	"github.com/epalmerini/burrow/envelope"
	amqp "github.com/rabbitmq/amqp091-go"
)

func TestToPublishing(t *testing.T) {
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	env := &envelope.Envelope{
		Destination:   "greet",
		Body:          []byte("hi"),
		ContentType:   envelope.ContentText,
		Headers:       map[string]string{"k": "v"},
		CorrelationID: "corr-1",
		ReplyTo:       "reply.abc",
		MessageID:     "msg-1",
		Timestamp:     ts,
	}

	pub := ToPublishing(env)

	if !bytes.Equal(pub.Body, []byte("hi")) {
		t.Errorf("body = %q, want %q", pub.Body, "hi")
	}
	if pub.ContentType != envelope.ContentText {
		t.Errorf("content type = %q, want %q", pub.ContentType, envelope.ContentText)
	}
	if pub.CorrelationId != "corr-1" || pub.ReplyTo != "reply.abc" {
		t.Errorf("correlation metadata = %q / %q", pub.CorrelationId, pub.ReplyTo)
	}
	if pub.MessageId != "msg-1" {
		t.Errorf("message id = %q, want %q", pub.MessageId, "msg-1")
	}
	if !pub.Timestamp.Equal(ts) {
		t.Errorf("timestamp = %v, want %v", pub.Timestamp, ts)
	}
	if pub.Headers["k"] != "v" {
		t.Errorf("headers = %v", pub.Headers)
	}
}

func TestToPublishing_NoHeaders(t *testing.T) {
	pub := ToPublishing(&envelope.Envelope{Destination: "greet"})
	if pub.Headers != nil {
		t.Errorf("headers = %v, want nil", pub.Headers)
	}
}

func TestFromDelivery(t *testing.T) {
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	msg := amqp.Delivery{
		RoutingKey:    "greet",
		Body:          []byte("hi"),
		ContentType:   envelope.ContentText,
		Headers:       amqp.Table{"k": "v", "n": int32(7)},
		CorrelationId: "corr-1",
		ReplyTo:       "reply.abc",
		MessageId:     "msg-1",
		Timestamp:     ts,
	}

	env := FromDelivery(msg)

	if env.Destination != "greet" {
		t.Errorf("destination = %q, want %q", env.Destination, "greet")
	}
	if env.Text() != "hi" {
		t.Errorf("body = %q, want %q", env.Text(), "hi")
	}
	if env.CorrelationID != "corr-1" || env.ReplyTo != "reply.abc" {
		t.Errorf("correlation metadata = %q / %q", env.CorrelationID, env.ReplyTo)
	}
	if !env.IsRPC() {
		t.Error("delivery with correlation metadata does not report IsRPC")
	}
	if env.Header("k") != "v" {
		t.Errorf("header k = %q, want %q", env.Header("k"), "v")
	}
	// Non-string header values are stringified
	if env.Header("n") != "7" {
		t.Errorf("header n = %q, want %q", env.Header("n"), "7")
	}
}

func TestRoundTrip(t *testing.T) {
	env := &envelope.Envelope{
		Destination:   "greet",
		Body:          []byte(`{"a":1}`),
		ContentType:   envelope.ContentJSON,
		Headers:       map[string]string{"k": "v"},
		CorrelationID: "corr-1",
		ReplyTo:       "reply.abc",
		MessageID:     "msg-1",
		Timestamp:     time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	pub := ToPublishing(env)
	got := FromDelivery(amqp.Delivery{
		RoutingKey:    env.Destination,
		Body:          pub.Body,
		ContentType:   pub.ContentType,
		Headers:       pub.Headers,
		CorrelationId: pub.CorrelationId,
		ReplyTo:       pub.ReplyTo,
		MessageId:     pub.MessageId,
		Timestamp:     pub.Timestamp,
	})

	if got.Destination != env.Destination ||
		!bytes.Equal(got.Body, env.Body) ||
		got.ContentType != env.ContentType ||
		got.CorrelationID != env.CorrelationID ||
		got.ReplyTo != env.ReplyTo ||
		got.MessageID != env.MessageID ||
		!got.Timestamp.Equal(env.Timestamp) ||
		got.Header("k") != "v" {
		t.Errorf("round trip mismatch: %+v vs %+v", got, env)
	}
}
