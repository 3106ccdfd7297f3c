// Package rabbitmq implements the transport interface over a real RabbitMQ
// connection. It is the production-side counterpart the in-memory transport
// substitutes for; both expose the same publish/subscribe surface.
package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/epalmerini/burrow/dispatch"
	"github.com/epalmerini/burrow/envelope"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Config selects the connection and declaration behavior.
type Config struct {
	URL      string
	Exchange string
	Durable  bool // Declare persistent queues
}

// Transport carries envelopes over AMQP. Destination keys map to queue names
// (and routing keys when an exchange is configured).
type Transport struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	config  Config
	router  *dispatch.Router

	mu     sync.Mutex
	cancel context.CancelFunc
	ctx    context.Context
	tags   []string
	wg     sync.WaitGroup
}

// Dial connects to RabbitMQ and opens a channel.
func Dial(cfg Config, router *dispatch.Router) (*Transport, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to open channel: %w", err), conn.Close())
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Transport{
		conn:    conn,
		channel: ch,
		config:  cfg,
		router:  router,
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Subscribe declares the destination queue, binds it to the configured
// exchange if any, and consumes from it in a background goroutine that
// dispatches each delivery through the router.
func (t *Transport) Subscribe(destination string, h dispatch.Handler) error {
	if destination == "" {
		return envelope.ErrEmptyDestination
	}
	if h == nil {
		return dispatch.ErrNilHandler
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	q, err := t.channel.QueueDeclare(
		destination,
		t.config.Durable,  // durable
		!t.config.Durable, // auto-delete
		false,             // exclusive
		false,             // no-wait
		nil,               // args
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	if t.config.Exchange != "" {
		if err := t.channel.QueueBind(q.Name, destination, t.config.Exchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue: %w", err)
		}
	}

	tag := fmt.Sprintf("burrow-%s-%d", destination, len(t.tags))
	msgs, err := t.channel.Consume(
		q.Name,
		tag,
		true,  // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}
	t.tags = append(t.tags, tag)

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		for {
			select {
			case <-t.ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				t.router.Dispatch(t.ctx, h, FromDelivery(msg))
			}
		}
	}()

	return nil
}

// Publish sends env to its destination key, via the configured exchange or
// the default exchange when none is set.
func (t *Transport) Publish(ctx context.Context, env *envelope.Envelope) error {
	if env == nil || env.Destination == "" {
		return envelope.ErrEmptyDestination
	}
	if err := t.channel.PublishWithContext(
		ctx,
		t.config.Exchange,
		env.Destination,
		false, // mandatory
		false, // immediate
		ToPublishing(env),
	); err != nil {
		return fmt.Errorf("failed to publish: %w", err)
	}
	return nil
}

// Reset cancels every consumer started by Subscribe. The connection and
// channel stay open so the transport can be reused.
func (t *Transport) Reset() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var errs []error
	for _, tag := range t.tags {
		if err := t.channel.Cancel(tag, false); err != nil {
			errs = append(errs, fmt.Errorf("failed to cancel consumer %s: %w", tag, err))
		}
	}
	t.tags = nil
	return errors.Join(errs...)
}

// Close cancels consumers and closes the channel and connection.
func (t *Transport) Close() error {
	err := t.Reset()
	t.cancel()
	t.wg.Wait()

	if t.channel != nil {
		err = errors.Join(err, t.channel.Close())
	}
	if t.conn != nil {
		err = errors.Join(err, t.conn.Close())
	}
	return err
}

// ToPublishing converts an envelope to its AMQP wire form.
func ToPublishing(env *envelope.Envelope) amqp.Publishing {
	var headers amqp.Table
	if len(env.Headers) > 0 {
		headers = make(amqp.Table, len(env.Headers))
		for k, v := range env.Headers {
			headers[k] = v
		}
	}
	return amqp.Publishing{
		Headers:       headers,
		ContentType:   env.ContentType,
		CorrelationId: env.CorrelationID,
		ReplyTo:       env.ReplyTo,
		MessageId:     env.MessageID,
		Timestamp:     env.Timestamp,
		Body:          env.Body,
	}
}

// FromDelivery converts an AMQP delivery back into an envelope. Non-string
// header values are stringified.
func FromDelivery(msg amqp.Delivery) *envelope.Envelope {
	env := &envelope.Envelope{
		Destination:   msg.RoutingKey,
		Body:          msg.Body,
		ContentType:   msg.ContentType,
		CorrelationID: msg.CorrelationId,
		ReplyTo:       msg.ReplyTo,
		MessageID:     msg.MessageId,
		Timestamp:     msg.Timestamp,
	}
	if len(msg.Headers) > 0 {
		env.Headers = make(map[string]string, len(msg.Headers))
		for k, v := range msg.Headers {
			if s, ok := v.(string); ok {
				env.Headers[k] = s
			} else {
				env.Headers[k] = fmt.Sprint(v)
			}
		}
	}
	return env
}
