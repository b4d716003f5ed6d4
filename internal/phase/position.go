package phase

import (
	"fmt"
	"strings"
)

// Position places a handler inside its phase.
type Position int

const (
	// Before runs ahead of the phase's own handlers.
	Before Position = iota
	// Unordered is reserved for handlers registered without a phase. It only
	// occurs within Routes.
	Unordered
	// Main is the phase itself.
	Main
	// After runs once the phase's own handlers are done.
	After
)

func (p Position) String() string {
	switch p {
	case Before:
		return "before"
	case Unordered:
		return "unordered"
	case Main:
		return "main"
	case After:
		return "after"
	default:
		return fmt.Sprintf("Position(%d)", int(p))
	}
}

// Rank is the sort key of a handler: phase index first, position second.
type Rank struct {
	Phase    int
	Position Position
}

// BuiltinRank sorts ahead of every declared phase.
var BuiltinRank = Rank{Phase: -1}

// Compare orders two ranks, returning -1, 0 or +1.
func (r Rank) Compare(o Rank) int {
	switch {
	case r.Phase < o.Phase:
		return -1
	case r.Phase > o.Phase:
		return 1
	case r.Position < o.Position:
		return -1
	case r.Position > o.Position:
		return 1
	}
	return 0
}

// Parse splits "auth", "auth:before" or "auth:after" into the phase name and position.
func Parse(spec string) (string, Position, error) {
	name, suffix, found := strings.Cut(spec, Separator)
	if name == "" {
		return "", Main, fmt.Errorf("%w: %q", ErrInvalidPhaseName, spec)
	}
	if !found {
		return name, Main, nil
	}
	switch suffix {
	case "before":
		return name, Before, nil
	case "after":
		return name, After, nil
	}
	return "", Main, fmt.Errorf("%w: %q", ErrInvalidPhaseName, spec)
}

// Rank resolves a phase name and position into a sort key. An empty name is
// an unordered handler and ranks inside Routes.
func (r *Registry) Rank(name string, pos Position) (Rank, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if name == "" {
		return Rank{Phase: r.index(Routes), Position: Unordered}, nil
	}
	ix := r.index(name)
	if ix < 0 {
		return Rank{}, fmt.Errorf("%w: %q", ErrUnknownPhase, name)
	}
	return Rank{Phase: ix, Position: pos}, nil
}
