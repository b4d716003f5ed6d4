package app

import (
	"log/slog"
	"slices"

	"github.com/tjfontaine/phasemux/internal/pipeline"
)

// ServePipeline runs the application as a handler of an enclosing one. What
// the outer pipeline exposed on the context is saved on entry and put back
// before the outer pipeline continues, whether this application finished
// with an error or not. An application that never completes never continues
// the outer one.
func (a *App) ServePipeline(c *pipeline.Context, next pipeline.NextFunc) {
	saved := pipeline.SaveMount(c)
	a.stack.Handle(c, func(err error) {
		saved.Restore()
		next(err)
	})
}

// OnMount registers fn to run when the application is first mounted.
func (a *App) OnMount(fn func(parent *App)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onMount = append(a.onMount, fn)
}

// Parent returns the application this one was last mounted in, or nil.
func (a *App) Parent() *App {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.parent
}

// MountPath returns the path the application was last mounted at; "/" when
// it was mounted unscoped or not at all.
func (a *App) MountPath() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.mountPath
}

func (a *App) mount(parent *App, path string) {
	a.mu.Lock()
	a.parent = parent
	a.mountPath = path
	listeners := slices.Clone(a.onMount)
	a.mu.Unlock()

	parent.logger.Debug("application mounted", slog.String("mount_path", path))
	a.mounted.Do(func() {
		for _, fn := range listeners {
			fn(parent)
		}
	})
}

// hasAncestor reports whether other is a or one of the applications a is
// mounted in.
func (a *App) hasAncestor(other *App) bool {
	for app := a; app != nil; app = app.Parent() {
		if app == other {
			return true
		}
	}
	return false
}
