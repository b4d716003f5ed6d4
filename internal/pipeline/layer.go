package pipeline

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"sync/atomic"

	"github.com/tjfontaine/phasemux/internal/phase"
	"github.com/tjfontaine/phasemux/internal/scope"
)

// Layer is one registration on a Stack: the handler plus the metadata the
// stack sorts and scopes it by. Layers must not be modified once inserted.
type Layer struct {
	// Name describes the layer in logs and introspection.
	Name string
	// Handler is the value as it was registered.
	Handler any
	// Phase is empty for unordered registrations.
	Phase    string
	Position phase.Position
	Scope    scope.Scope
	// Builtin layers run ahead of every phase.
	Builtin bool
	// Seq is assigned by Stack.Insert and breaks ties between equal ranks.
	Seq uint64

	serve      serveFunc
	serveError serveErrorFunc
}

// NewLayer creates an unscoped, unordered layer for h.
func NewLayer(h any) (*Layer, error) {
	serve, serveError, err := adapt(h)
	if err != nil {
		return nil, err
	}
	return &Layer{
		Name:       fmt.Sprintf("%T", h),
		Handler:    h,
		Scope:      scope.None,
		Position:   phase.Main,
		serve:      serve,
		serveError: serveError,
	}, nil
}

// PhaseSpec renders the phase and position the way they are registered, as in "routes:before".
func (l *Layer) PhaseSpec() string {
	switch {
	case l.Builtin:
		return "builtin"
	case l.Phase == "":
		return ""
	case l.Position == phase.Before:
		return l.Phase + phase.Separator + "before"
	case l.Position == phase.After:
		return l.Phase + phase.Separator + "after"
	}
	return l.Phase
}

// HandlesErrors reports whether the layer may consume a propagating error.
func (l *Layer) HandlesErrors() bool {
	return l.serveError != nil
}

func (l *Layer) String() string {
	return fmt.Sprintf("%s[%s %s #%d]", l.Name, l.PhaseSpec(), l.Scope, l.Seq)
}

func (l *Layer) eligible(err error) bool {
	if err != nil {
		return l.serveError != nil
	}
	return l.serve != nil
}

// invoke runs the layer, turning a panic into a *PanicError on the error channel.
func (l *Layer) invoke(d *dispatch, err error) {
	st := &step{d: d, layer: l}
	defer func() {
		v := recover()
		if v == nil {
			st.state.CompareAndSwap(stepPending, stepReturned)
			return
		}
		// Panics escaping the rest of the pipeline belong to whoever called it.
		if v == http.ErrAbortHandler || st.inNext {
			panic(v)
		}
		pe := &PanicError{Value: v, Stack: debug.Stack()}
		if !st.state.CompareAndSwap(stepPending, stepReturned) {
			d.misuse(l, pe)
			return
		}
		d.next(pe)
	}()

	if err != nil {
		l.serveError(err, d.c, st.next)
		return
	}
	l.serve(d.c, st.next)
}

const (
	stepPending int32 = iota
	stepContinued
	stepReturned
)

// step is the continuation handed to one layer invocation. It lets the
// dispatch continue once, and only while the handler has not returned.
type step struct {
	d      *dispatch
	layer  *Layer
	state  atomic.Int32
	inNext bool
}

func (s *step) next(err error) {
	if s.state.CompareAndSwap(stepPending, stepContinued) {
		s.inNext = true
		s.d.next(err)
		s.inNext = false
		return
	}
	misuse := ErrNextAfterReturn
	if s.state.Load() == stepContinued {
		misuse = ErrNextCalledTwice
	}
	if err != nil {
		misuse = fmt.Errorf("%w (dropped error: %w)", misuse, err)
	}
	s.d.misuse(s.layer, misuse)
}
