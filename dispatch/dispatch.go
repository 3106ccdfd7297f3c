// Package dispatch invokes handlers with envelopes and captures their
// outcome, so callers decide whether handler failures surface or stay
// swallowed.
package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/epalmerini/burrow/envelope"
)

// ErrNilHandler is returned when a nil handler is registered or dispatched.
var ErrNilHandler = errors.New("handler must not be nil")

// Handler is the uniform callable unit of application logic. The returned
// value, if any, becomes the RPC reply body; a non-nil error counts as a
// handler failure.
type Handler func(ctx context.Context, env *envelope.Envelope) (any, error)

// PanicError wraps a value recovered from a panicking handler.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("handler panicked: %v", e.Value)
}

// Result is the captured outcome of one dispatch. Exactly one of Value and
// Err is meaningful: a failed dispatch carries Err and a nil Value.
type Result struct {
	Value any
	Err   error
}

// OK reports whether the handler completed without error.
func (r Result) OK() bool {
	return r.Err == nil
}

// Router invokes handlers. It always captures the outcome, including
// panics; publishing code discards Result.Err (failures are not a debugging
// channel there), while direct invocation may hand it back to the caller.
type Router struct{}

// NewRouter returns a Router.
func NewRouter() *Router {
	return &Router{}
}

// Dispatch invokes h with env and captures its outcome. A panic inside the
// handler is recovered into a *PanicError rather than unwinding the caller.
func (r *Router) Dispatch(ctx context.Context, h Handler, env *envelope.Envelope) (res Result) {
	if h == nil {
		return Result{Err: ErrNilHandler}
	}

	defer func() {
		if v := recover(); v != nil {
			res = Result{Err: &PanicError{Value: v}}
		}
	}()

	value, err := h(ctx, env)
	if err != nil {
		return Result{Err: err}
	}
	return Result{Value: value}
}
