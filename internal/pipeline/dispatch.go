package pipeline

import "log/slog"

// Handle dispatches c through the stack's current order and calls done with
// the error left over once every layer had its chance, or with nil when the
// last handler continued without one. done is not called when a handler ends
// the dispatch by not continuing.
//
// Each layer runs only when its scope matches the path as rewritten so far.
// While a scoped layer runs, the consumed prefix is moved from the request
// path into BaseURL; both are restored when the layer continues.
func (s *Stack) Handle(c *Context, done func(err error)) {
	d := &dispatch{c: c, layers: s.Layers(), done: done, logger: s.Logger()}
	d.next(nil)
}

// dispatch is the state of one request walking one stack.
type dispatch struct {
	c       *Context
	layers  []*Layer
	ix      int
	restore func()
	done    func(err error)
	logger  *slog.Logger
}

// misuse logs a continuation that could not be honoured.
func (d *dispatch) misuse(l *Layer, err error) {
	d.logger.Error("pipeline continuation misuse",
		slog.String("layer", l.String()),
		slog.String("path", d.c.OriginalURL),
		slog.String("error", err.Error()),
	)
}

func (d *dispatch) next(err error) {
	if d.restore != nil {
		d.restore()
		d.restore = nil
	}

	for d.ix < len(d.layers) {
		l := d.layers[d.ix]
		d.ix++

		if !l.eligible(err) {
			continue
		}
		m, ok := l.Scope.Match(d.c.Path())
		if !ok {
			continue
		}
		d.restore = d.c.enter(m)
		l.invoke(d, err)
		return
	}

	if d.done != nil {
		d.done(err)
	}
}
