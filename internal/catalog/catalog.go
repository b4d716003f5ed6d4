// Package catalog provides the named optional middlewares that configuration
// refers to. Each application owns its own Catalog; there is no process-wide
// registry.
package catalog

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

// ErrUnknownMiddleware is returned when a name has no registered factory.
var ErrUnknownMiddleware = errors.New("unknown middleware")

// Factory builds a handler from the params of a middleware declaration. The
// returned value may be any shape the pipeline accepts.
type Factory func(params ...any) (any, error)

// Catalog maps middleware names to factories.
type Catalog struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// New creates an empty catalog.
func New() *Catalog {
	return &Catalog{factories: make(map[string]Factory)}
}

// Default creates a catalog holding the built-in middlewares plus a
// not-installed placeholder for every middleware that needs a separate
// implementation.
func Default(logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	c := New()
	for name, f := range builtins(logger) {
		c.Register(name, f)
	}
	for _, name := range placeholders {
		c.Register(name, NotInstalled(name))
	}
	return c
}

// Register adds or replaces the factory for name.
func (c *Catalog) Register(name string, f Factory) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.factories[name] = f
}

// Lookup returns the factory registered for name.
func (c *Catalog) Lookup(name string) (Factory, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMiddleware, name)
	}
	return f, nil
}

// Names returns the registered names in sorted order.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.factories))
	for name := range c.factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
