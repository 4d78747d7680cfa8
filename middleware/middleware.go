// Package middleware implements the onion model middleware chain for the
// piping relay's HTTP handler.
//
// Middleware wraps the business handler to add cross-cutting concerns
// (logging, panic recovery) without modifying the handler itself.
//
// Onion model execution order:
//
//	Chain(A, B, C)(handler)  →  A(B(C(handler)))
//
//	Request:   A.before → B.before → C.before → handler
//	Response:  handler → C.after → B.after → A.after
//
// Each middleware can:
//   - Do pre-processing (before calling next)
//   - Call next.ServeHTTP(w, r) to pass to the next layer
//   - Do post-processing (after next returns)
//   - Short-circuit by returning early without calling next
package middleware

import "net/http"

// Middleware takes a handler and returns a new handler that wraps it.
type Middleware func(next http.Handler) http.Handler

// Chain composes multiple middlewares into a single middleware. It builds
// the chain from right to left so that the first middleware in the list is
// the outermost layer (executed first on request, last on response).
//
// Example:
//
//	chain := Chain(Recover(log), Logging(log))
//	handler := chain(businessHandler)
//	// Execution: Recover → Logging → businessHandler → Logging → Recover
func Chain(middlewares ...Middleware) Middleware {
	return func(next http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
