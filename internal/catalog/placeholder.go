package catalog

import (
	"fmt"

	"github.com/tjfontaine/phasemux/internal/pipeline"
)

// placeholders are the middlewares that ship without an implementation.
var placeholders = []string{
	"session",
	"cookieSession",
	"cookieParser",
	"csrf",
	"methodOverride",
	"favicon",
	"directory",
	"vhost",
}

// NotInstalledError is sent through the pipeline by a placeholder middleware.
type NotInstalledError struct {
	Name string
}

func (e *NotInstalledError) Error() string {
	return fmt.Sprintf("middleware %q is not installed; register an implementation with Catalog.Register(%q, ...)", e.Name, e.Name)
}

// NotInstalled returns a factory for a middleware with no implementation.
// Registration succeeds; every request reaching the handler fails with a
// *NotInstalledError.
func NotInstalled(name string) Factory {
	return func(...any) (any, error) {
		return pipeline.HandlerFunc(func(c *pipeline.Context, next pipeline.NextFunc) {
			next(&NotInstalledError{Name: name})
		}), nil
	}
}
