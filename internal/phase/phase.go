// Package phase maintains the ordered list of request-handling phases an
// application dispatches through.
//
// Phases are declared by name. Every handler registered into a phase is placed
// by the phase's index in the registry, then by its position inside the phase
// (before, main, after). Handlers registered without a phase are anchored to
// the Routes phase, after "routes:before" and ahead of the routes' own handlers.
//
// Each application owns its own Registry; there is no process-wide phase list.
package phase

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Well-known phase names.
const (
	Initial    = "initial"
	Session    = "session"
	Auth       = "auth"
	ParsePhase = "parse"
	Routes     = "routes"
	Files      = "files"
	Final      = "final"
)

// DefaultPhases is the order a new Registry starts with.
var DefaultPhases = []string{Initial, Session, Auth, ParsePhase, Routes, Files, Final}

// Separator splits a phase name from its position, as in "auth:before".
const Separator = ":"

var (
	// ErrUnknownPhase is returned when a handler names a phase that was never declared.
	ErrUnknownPhase = errors.New("unknown phase")
	// ErrInvalidPhaseName is returned for empty names or malformed position suffixes.
	ErrInvalidPhaseName = errors.New("invalid phase name")
	// ErrDuplicatePhase is returned when one list declares the same phase twice.
	ErrDuplicatePhase = errors.New("duplicate phase")
)

// ConflictError reports two phases whose relative order disagrees between
// the registry and a list being merged into it.
type ConflictError struct {
	// Phase could not be placed after After.
	Phase string
	After string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("ordering conflict: cannot add %q after %q, because the opposite order was already specified",
		e.Phase, e.After)
}

// Registry holds the declared phase order.
type Registry struct {
	mu    sync.RWMutex
	names []string
}

// New creates a Registry holding DefaultPhases.
func New() *Registry {
	return &Registry{names: append([]string(nil), DefaultPhases...)}
}

// NewWithPhases creates a Registry with a custom order. Routes is appended when
// missing since unphased handlers are anchored to it.
func NewWithPhases(names ...string) (*Registry, error) {
	if err := validateList(names); err != nil {
		return nil, err
	}
	r := &Registry{names: append([]string(nil), names...)}
	if r.index(Routes) < 0 {
		r.names = append(r.names, Routes)
	}
	return r, nil
}

// Names returns a copy of the current order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.names...)
}

// Has reports whether name is a declared phase.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.index(name) >= 0
}

// Add declares a single phase immediately before Routes. Adding a phase that
// already exists is a no-op.
func (r *Registry) Add(name string) error {
	if err := validateName(name); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.index(name) >= 0 {
		return nil
	}
	at := r.index(Routes)
	names := make([]string, 0, len(r.names)+1)
	names = append(names, r.names[:at]...)
	names = append(names, name)
	names = append(names, r.names[at:]...)
	r.names = names
	return nil
}

// Merge reconciles the registry with an ordered list of phases so that both
// relative orders hold in the result. Unknown names are placed right after
// their predecessor in the list (or at the very start when the list begins
// with one). A name already known but positioned before the merge cursor is
// a *ConflictError. The registry is unchanged when an error is returned.
func (r *Registry) Merge(names []string) error {
	if err := validateList(names); err != nil {
		return err
	}
	if len(names) == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	merged, err := merge(r.names, names)
	if err != nil {
		return err
	}
	r.names = merged
	return nil
}

func merge(current, incoming []string) ([]string, error) {
	target := append([]string(nil), current...)

	cursor := indexFrom(target, incoming[0], 0)
	if cursor < 0 {
		target = insertAt(target, 0, incoming[0])
		cursor = 0
	}

	for i := 1; i < len(incoming); i++ {
		name, prev := incoming[i], incoming[i-1]

		if found := indexFrom(target, name, cursor); found >= 0 {
			cursor = found
			continue
		}
		if indexFrom(target, name, 0) >= 0 {
			return nil, &ConflictError{Phase: name, After: prev}
		}
		cursor = indexFrom(target, prev, 0) + 1
		target = insertAt(target, cursor, name)
	}
	return target, nil
}

func (r *Registry) index(name string) int {
	return indexFrom(r.names, name, 0)
}

func indexFrom(names []string, name string, from int) int {
	for i := from; i < len(names); i++ {
		if names[i] == name {
			return i
		}
	}
	return -1
}

func insertAt(names []string, at int, name string) []string {
	out := make([]string, 0, len(names)+1)
	out = append(out, names[:at]...)
	out = append(out, name)
	return append(out, names[at:]...)
}

func validateName(name string) error {
	if name == "" || strings.Contains(name, Separator) {
		return fmt.Errorf("%w: %q", ErrInvalidPhaseName, name)
	}
	return nil
}

func validateList(names []string) error {
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if err := validateName(name); err != nil {
			return err
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicatePhase, name)
		}
		seen[name] = struct{}{}
	}
	return nil
}
