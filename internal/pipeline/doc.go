// Package pipeline provides the ordered handler stack and its dispatch engine.
//
// # Ordering
//
// A Stack holds Layers. Each layer names a phase and a position within it;
// the stack asks its Ranker (normally a phase.Registry) to turn those into a
// sort key and keeps the layers sorted by (key, registration sequence) after
// every insertion and every phase change.
//
// # Dispatch
//
// Dispatch is continuation passing. A handler does its work and then calls
// next exactly once, or not at all when it finished the response itself:
//
//	func(c *pipeline.Context, next pipeline.NextFunc) {
//	    c.Set("X-Frame-Options", "DENY")
//	    next(nil)
//	}
//
// next must be called before the handler returns; a handler may block while
// another goroutine calls it. A call after the handler returned, or a second
// call, is ignored and logged to the stack's logger.
//
// Calling next with an error skips every following handler that is not an
// ErrorHandler, including the rest of the current phase. The error reaches
// the dispatch's done callback unchanged when nothing consumes it.
//
// # Scopes
//
// Layers carry a scope.Scope. A scoped layer sees the request path with the
// matched prefix moved into Context.BaseURL; Context.OriginalURL never
// changes.
package pipeline
