package engine

import (
	"context"
)

// Invocation is one top-level call flowing through the middleware chain.
type Invocation struct {
	// Method is the operation name, e.g. "addResource" or "provision".
	Method string

	Inputs  *Inputs
	Context *Context
	EnvInfo *EnvInfo

	// Result holds the value returned by the operation, if any.
	Result interface{}
}

// Handler runs an invocation.
type Handler func(ctx context.Context, inv *Invocation) error

// Middleware wraps a Handler.
type Middleware func(next Handler) Handler

// Chain composes middlewares so the first one is outermost.
func Chain(h Handler, mws ...Middleware) Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
