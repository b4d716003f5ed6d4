// Package telemetry sets up tracing and decorates pipeline handlers with spans.
package telemetry

import (
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tjfontaine/phasemux/internal/pipeline"
)

// Instrument returns a hook for app.WithInstrumentation that wraps every
// registered handler in a span. A span ends when its handler continues or
// returns, so it covers the handler's own work and not what runs after it.
// Wrapped handlers unwrap to the value that was registered.
func Instrument(tracer trace.Tracer) func(h any) (any, error) {
	return func(h any) (any, error) {
		serve, serveError, err := pipeline.Adapt(h)
		if err != nil {
			return nil, err
		}
		s := &span{tracer: tracer, name: fmt.Sprintf("handler %T", h), orig: h}
		switch {
		case serve != nil && serveError != nil:
			return &tracedBoth{tracedHandler: &tracedHandler{span: s, h: serve}, eh: serveError}, nil
		case serve != nil:
			return &tracedHandler{span: s, h: serve}, nil
		}
		return &tracedErrorHandler{span: s, eh: serveError}, nil
	}
}

type span struct {
	tracer trace.Tracer
	name   string
	orig   any
}

// Unwrap returns the handler as it was registered.
func (s *span) Unwrap() any { return s.orig }

func (s *span) run(c *pipeline.Context, in error, next pipeline.NextFunc, call func(pipeline.NextFunc)) {
	_, sp := s.tracer.Start(c.Request.Context(), s.name, trace.WithAttributes(
		attribute.String("url.path", c.Path()),
		attribute.String("phasemux.base_url", c.BaseURL),
		attribute.Bool("phasemux.error_handler", in != nil),
	))
	var once sync.Once
	end := func() { once.Do(func() { sp.End() }) }
	defer end()

	call(func(err error) {
		if err != nil {
			sp.RecordError(err)
			sp.SetStatus(codes.Error, err.Error())
		}
		end()
		next(err)
	})
}

type tracedHandler struct {
	*span
	h pipeline.Handler
}

func (t *tracedHandler) ServePipeline(c *pipeline.Context, next pipeline.NextFunc) {
	t.run(c, nil, next, func(next pipeline.NextFunc) { t.h.ServePipeline(c, next) })
}

type tracedErrorHandler struct {
	*span
	eh pipeline.ErrorHandler
}

func (t *tracedErrorHandler) ServeError(err error, c *pipeline.Context, next pipeline.NextFunc) {
	t.run(c, err, next, func(next pipeline.NextFunc) { t.eh.ServeError(err, c, next) })
}

type tracedBoth struct {
	*tracedHandler
	eh pipeline.ErrorHandler
}

func (t *tracedBoth) ServeError(err error, c *pipeline.Context, next pipeline.NextFunc) {
	t.run(c, err, next, func(next pipeline.NextFunc) { t.eh.ServeError(err, c, next) })
}
