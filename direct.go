package burrow

import (
	"context"

	"github.com/epalmerini/burrow/dispatch"
	"github.com/epalmerini/burrow/envelope"
)

type invokeConfig struct {
	reraise bool
}

// InvokeOption configures a direct invocation.
type InvokeOption func(*invokeConfig)

// Reraise lets a handler failure propagate to the Invoke caller unmodified
// instead of being swallowed into an absent result.
func Reraise() InvokeOption {
	return func(c *invokeConfig) {
		c.reraise = true
	}
}

// BuildMessage constructs an envelope exactly as Publish would, without
// sending it. Feed the result to Invoke to call a handler as if the message
// had been delivered.
func (b *Broker) BuildMessage(destination string, body any, opts ...PublishOption) (*envelope.Envelope, error) {
	var cfg publishConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.expectReply && cfg.replyTo != "" {
		return nil, ErrReplyToWithRPC
	}
	if cfg.replyTo != "" {
		return b.builder.BuildWithReplyTo(destination, body, cfg.headers, cfg.replyTo)
	}
	return b.builder.Build(destination, body, cfg.headers, cfg.expectReply)
}

// Invoke calls h with env directly, bypassing transport subscription
// matching. By default it behaves like a normal dispatch: handler failures
// are swallowed and the caller sees (nil, nil). With Reraise the handler's
// error (or recovered panic, as a *dispatch.PanicError) comes back verbatim,
// which is the supported way to assert on handler failure modes — the
// publish path is blind to them.
func (b *Broker) Invoke(ctx context.Context, h dispatch.Handler, env *envelope.Envelope, opts ...InvokeOption) (any, error) {
	var cfg invokeConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	res := b.router.Dispatch(ctx, h, env)
	if res.Err != nil {
		if cfg.reraise {
			return nil, res.Err
		}
		return nil, nil
	}
	return res.Value, nil
}
