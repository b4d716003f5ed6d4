package pipeline

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
)

// ErrUnsupportedHandler is returned when a value has none of the handler shapes.
var ErrUnsupportedHandler = errors.New("unsupported handler")

var (
	// ErrNextAfterReturn reports a continuation called once its handler had
	// returned. The call is ignored.
	ErrNextAfterReturn = errors.New("next called after handler returned")
	// ErrNextCalledTwice reports a second call to the same continuation. The
	// call is ignored.
	ErrNextCalledTwice = errors.New("next called more than once")
)

// NextFunc continues dispatch. A nil error proceeds to the next normal
// handler; a non-nil error skips ahead to the next error handler.
type NextFunc func(err error)

// Handler is a normal pipeline handler. It must call next at most once, and
// before returning; not calling it at all ends the dispatch. A handler may
// block while another goroutine calls next. Later or repeated calls are
// ignored and logged by the stack, since the response may already be
// finished by then.
type Handler interface {
	ServePipeline(c *Context, next NextFunc)
}

// ErrorHandler receives an error propagated by an earlier handler. Having this
// method is what makes a handler eligible to consume errors.
type ErrorHandler interface {
	ServeError(err error, c *Context, next NextFunc)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(c *Context, next NextFunc)

func (f HandlerFunc) ServePipeline(c *Context, next NextFunc) { f(c, next) }

// ErrorHandlerFunc adapts a function to ErrorHandler.
type ErrorHandlerFunc func(err error, c *Context, next NextFunc)

func (f ErrorHandlerFunc) ServeError(err error, c *Context, next NextFunc) { f(err, c, next) }

// Wrapper is implemented by handlers that decorate another handler, for
// example with instrumentation. Unwrap returns the decorated value as it was
// originally registered.
type Wrapper interface {
	Unwrap() any
}

// Unwrap returns the handler h decorates, or nil when h is not a Wrapper.
// It unwraps exactly one level.
func Unwrap(h any) any {
	if w, ok := h.(Wrapper); ok {
		return w.Unwrap()
	}
	return nil
}

type serveFunc func(c *Context, next NextFunc)

type serveErrorFunc func(err error, c *Context, next NextFunc)

// adapt compiles h into its normal and error entry points. At least one is non-nil.
//
// Accepted shapes: Handler, ErrorHandler (both at once is allowed),
// func(*Context, NextFunc), func(error, *Context, NextFunc),
// func(http.Handler) http.Handler, http.Handler and
// func(http.ResponseWriter, *http.Request).
func adapt(h any) (serveFunc, serveErrorFunc, error) {
	if h == nil {
		return nil, nil, fmt.Errorf("%w: nil", ErrUnsupportedHandler)
	}

	var serve serveFunc
	var serveError serveErrorFunc
	if v, ok := h.(Handler); ok {
		serve = v.ServePipeline
	}
	if v, ok := h.(ErrorHandler); ok {
		serveError = v.ServeError
	}
	if serve != nil || serveError != nil {
		return serve, serveError, nil
	}

	switch v := h.(type) {
	case func(*Context, NextFunc):
		return v, nil, nil
	case func(error, *Context, NextFunc):
		return nil, v, nil
	case func(http.Handler) http.Handler:
		return FromMiddleware(v).ServePipeline, nil, nil
	case http.Handler:
		return Terminal(v).ServePipeline, nil, nil
	case func(http.ResponseWriter, *http.Request):
		return Terminal(http.HandlerFunc(v)).ServePipeline, nil, nil
	}
	return nil, nil, fmt.Errorf("%w: %T", ErrUnsupportedHandler, h)
}

// Adapt compiles h into its normal and error entry points; either may be nil
// but not both. Decorators use it to wrap a handler of any accepted shape
// without changing which kinds of dispatch it takes part in.
func Adapt(h any) (Handler, ErrorHandler, error) {
	serve, serveError, err := adapt(h)
	if err != nil {
		return nil, nil, err
	}
	var (
		nh Handler
		eh ErrorHandler
	)
	if serve != nil {
		nh = HandlerFunc(serve)
	}
	if serveError != nil {
		eh = ErrorHandlerFunc(serveError)
	}
	return nh, eh, nil
}

// FromMiddleware adapts a standard net/http middleware. The rest of the
// pipeline runs as the middleware's next handler, so work the middleware does
// after calling next happens once downstream handlers are done. A middleware
// that never calls next ends the dispatch.
func FromMiddleware(mw func(http.Handler) http.Handler) Handler {
	return HandlerFunc(func(c *Context, next NextFunc) {
		inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c.Response = w
			c.Request = r
			next(nil)
		})
		mw(inner).ServeHTTP(c.Response, c.Request)
	})
}

// Terminal adapts an http.Handler that owns the response. It never continues.
func Terminal(h http.Handler) Handler {
	return HandlerFunc(func(c *Context, _ NextFunc) {
		h.ServeHTTP(c.Response, c.Request)
	})
}

// sameHandler reports identity for comparable handler values. Plain funcs are
// not comparable in Go, so they never match.
func sameHandler(a, b any) (same bool) {
	if a == nil || b == nil {
		return false
	}
	t := reflect.TypeOf(a)
	if t != reflect.TypeOf(b) || !t.Comparable() {
		return false
	}
	// interface-typed fields can still hold uncomparable values
	defer func() {
		if recover() != nil {
			same = false
		}
	}()
	return a == b
}
