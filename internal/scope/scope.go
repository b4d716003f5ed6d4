// Package scope decides whether a handler applies to a request path and
// computes the sub-path the handler sees.
//
// A scope consumes a leading part of the path. The consumed part becomes the
// handler's base path and the remainder becomes its request path, the same
// way a sub-router mounted at a prefix sees only the rest of the URL.
package scope

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidScope is returned by From and Parse for values that cannot describe a scope.
var ErrInvalidScope = errors.New("invalid scope")

// Match is the result of a successful scope match.
type Match struct {
	// Consumed is the leading part of the path claimed by the scope.
	Consumed string
	// Rest is the path the handler sees. It always starts with "/".
	Rest string
}

// Scope restricts a handler to some request paths.
type Scope interface {
	Match(path string) (Match, bool)
	String() string
}

// None matches every path without rewriting it.
var None Scope = none{}

type none struct{}

func (none) Match(path string) (Match, bool) { return Match{Rest: path}, true }
func (none) String() string                  { return "" }

// Prefix matches a literal path prefix on a segment boundary.
type Prefix string

// Match reports whether path equals the prefix or continues it with "/".
func (p Prefix) Match(path string) (Match, bool) {
	prefix := strings.TrimRight(string(p), "/")
	if prefix == "" {
		return Match{Rest: path}, true
	}
	if !strings.HasPrefix(path, prefix) {
		return Match{}, false
	}
	rest := path[len(prefix):]
	if rest != "" && rest[0] != '/' {
		return Match{}, false
	}
	if rest == "" {
		rest = "/"
	}
	return Match{Consumed: prefix, Rest: rest}, true
}

func (p Prefix) String() string { return string(p) }

// Pattern matches a regular expression against the start of the path.
type Pattern struct {
	re *regexp.Regexp
}

// NewPattern wraps a compiled expression.
func NewPattern(re *regexp.Regexp) Pattern {
	return Pattern{re: re}
}

// Match requires the leftmost match to start at the beginning of the path.
// The matched text is consumed only when it ends on a segment boundary.
func (p Pattern) Match(path string) (Match, bool) {
	loc := p.re.FindStringIndex(path)
	if loc == nil || loc[0] != 0 {
		return Match{}, false
	}
	rest := path[loc[1]:]
	switch {
	case rest == "":
		return Match{Consumed: path[:loc[1]], Rest: "/"}, true
	case rest[0] == '/' && loc[1] > 0:
		return Match{Consumed: path[:loc[1]], Rest: rest}, true
	}
	return Match{Rest: path}, true
}

func (p Pattern) String() string { return p.re.String() }

// List matches when any of its scopes does; the first match wins.
type List []Scope

func (l List) Match(path string) (Match, bool) {
	for _, s := range l {
		if m, ok := s.Match(path); ok {
			return m, true
		}
	}
	return Match{}, false
}

func (l List) String() string {
	parts := make([]string, len(l))
	for i, s := range l {
		parts[i] = s.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Parse builds a scope from its textual form. Strings starting with "^" are
// regular expressions, anything else is a literal prefix.
func Parse(s string) (Scope, error) {
	if !strings.HasPrefix(s, "^") {
		return Prefix(s), nil
	}
	re, err := regexp.Compile(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScope, err)
	}
	return NewPattern(re), nil
}

// From converts the loosely typed scope values found in configuration and
// registration calls: nil, string, *regexp.Regexp, Scope, or slices of those.
func From(v any) (Scope, error) {
	switch s := v.(type) {
	case nil:
		return None, nil
	case Scope:
		return s, nil
	case string:
		return Parse(s)
	case *regexp.Regexp:
		if s == nil {
			return nil, fmt.Errorf("%w: nil pattern", ErrInvalidScope)
		}
		return NewPattern(s), nil
	case []string:
		list := make(List, 0, len(s))
		for _, item := range s {
			sc, err := Parse(item)
			if err != nil {
				return nil, err
			}
			list = append(list, sc)
		}
		return list, nil
	case []any:
		list := make(List, 0, len(s))
		for _, item := range s {
			sc, err := From(item)
			if err != nil {
				return nil, err
			}
			list = append(list, sc)
		}
		return list, nil
	}
	return nil, fmt.Errorf("%w: unsupported type %T", ErrInvalidScope, v)
}

// MountPath returns the path a scope mounts at, as reported to a mounted
// application: the first literal prefix found, or "/".
func MountPath(s Scope) string {
	switch v := s.(type) {
	case Prefix:
		if p := strings.TrimRight(string(v), "/"); p != "" {
			return p
		}
	case Pattern:
		return v.String()
	case List:
		if len(v) > 0 {
			return MountPath(v[0])
		}
	}
	return "/"
}
