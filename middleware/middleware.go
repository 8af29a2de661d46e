// Package middleware implements the onion model middleware chain used to
// instrument the diode pipeline. Where mini-RPC wrapped a request handler,
// here each middleware wraps a BlockFunc — a step that consumes one block on
// its way through the sender's encoder or the receiver's dispatcher — adding
// cross-cutting concerns (logging, metrics, pacing) without the step itself
// knowing they exist.
//
// Onion model execution order:
//
//	Chain(A, B, C)(step)  →  A(B(C(step)))
//
//	Call:    A.before → B.before → C.before → step
//	Return:  step → C.after → B.after → A.after
package middleware

import (
	"github.com/r3dlight/godiode/protocol"
)

// BlockFunc processes one block and reports whether the pipeline should
// continue to the next stage. A middleware may short-circuit by returning
// without calling the wrapped BlockFunc.
type BlockFunc func(b protocol.Block) error

// Middleware wraps a BlockFunc with additional behavior.
type Middleware func(next BlockFunc) BlockFunc

// Chain composes middlewares into one, with the first middleware in the
// list as the outermost layer.
func Chain(middlewares ...Middleware) Middleware {
	return func(next BlockFunc) BlockFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
