// Package app provides App, an HTTP application whose handlers are
// registered into named phases.
//
// Registration order does not decide dispatch order. Every handler belongs to
// a phase ("initial", "session", "auth", "parse", "routes", "files", "final"
// by default) and a position within it, and the application keeps its stack
// sorted by phase, then position, then registration order:
//
//	a, _ := app.New()
//	a.Middleware("files", catalog.Static("./public"))
//	a.Get("/users/{id}", showUser)     // routes run before files
//	a.Middleware("auth:before", limit) // and after auth:before
//
// Applications nest: registering an *App as a handler mounts it.
package app

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/tjfontaine/phasemux/internal/catalog"
	"github.com/tjfontaine/phasemux/internal/phase"
	"github.com/tjfontaine/phasemux/internal/pipeline"
	"github.com/tjfontaine/phasemux/internal/scope"
)

// ErrMissingPhase is returned when a phased registration names no phase.
var ErrMissingPhase = errors.New("phase is required")

// Instrumenter decorates handlers as they are registered. A decorator should
// implement pipeline.Wrapper so FindLayer can still resolve the original.
type Instrumenter func(h any) (any, error)

// App is an HTTP application with a phase-ordered handler stack. Register
// handlers before serving; dispatch itself is safe for concurrent use.
type App struct {
	phases     *phase.Registry
	stack      *pipeline.Stack
	catalog    *catalog.Catalog
	logger     *slog.Logger
	instrument Instrumenter

	mu        sync.RWMutex
	settings  map[string]any
	parent    *App
	mountPath string
	onMount   []func(parent *App)
	mounted   sync.Once
}

// Option is a functional option for configuring an App.
type Option func(*App) error

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(a *App) error {
		if logger == nil {
			return fmt.Errorf("logger must not be nil")
		}
		a.logger = logger
		return nil
	}
}

// WithPhases replaces the default phase list. "routes" is appended when
// missing since unordered handlers run there.
func WithPhases(names ...string) Option {
	return func(a *App) error {
		reg, err := phase.NewWithPhases(names...)
		if err != nil {
			return fmt.Errorf("phases: %w", err)
		}
		a.phases = reg
		return nil
	}
}

// WithInstrumentation decorates every handler registered from now on.
func WithInstrumentation(fn Instrumenter) Option {
	return func(a *App) error {
		a.instrument = fn
		return nil
	}
}

// WithCatalog replaces the default middleware catalog.
func WithCatalog(c *catalog.Catalog) Option {
	return func(a *App) error {
		a.catalog = c
		return nil
	}
}

// New creates an App with the default phases.
func New(opts ...Option) (*App, error) {
	a := &App{
		phases:    phase.New(),
		logger:    slog.Default(),
		settings:  make(map[string]any),
		mountPath: "/",
	}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}
	if a.catalog == nil {
		a.catalog = catalog.Default(a.logger)
	}

	a.stack = pipeline.NewStack(a.phases)
	a.stack.SetLogger(a.logger)
	builtin, err := pipeline.NewLayer(pipeline.HandlerFunc(a.enter))
	if err != nil {
		return nil, err
	}
	builtin.Name = "init"
	builtin.Builtin = true
	if err := a.stack.Insert(builtin); err != nil {
		return nil, err
	}
	return a, nil
}

// enter installs this application's capabilities on the context.
func (a *App) enter(c *pipeline.Context, next pipeline.NextFunc) {
	c.SetCapabilities(pipeline.Capabilities{App: a, Settings: a})
	next(nil)
}

// Middleware registers h in phase, written as "name", "name:before" or
// "name:after".
func (a *App) Middleware(phaseSpec string, h any) error {
	return a.MiddlewareAt(phaseSpec, nil, h)
}

// MiddlewareAt registers h in phase for the requests matching paths. paths is
// anything scope.From accepts: nil, a prefix, a "^" pattern string, a
// *regexp.Regexp, a scope.Scope or a list of those.
func (a *App) MiddlewareAt(phaseSpec string, paths any, h any) error {
	if phaseSpec == "" {
		return ErrMissingPhase
	}
	name, pos, err := phase.Parse(phaseSpec)
	if err != nil {
		return err
	}
	sc, err := scope.From(paths)
	if err != nil {
		return err
	}
	return a.register(name, pos, sc, h)
}

// Use registers h without a phase. Unordered handlers run in the routes
// phase, after routes:before and ahead of routes themselves.
func (a *App) Use(h any) error {
	return a.register("", phase.Main, scope.None, h)
}

// UseAt registers h without a phase for the requests matching paths.
func (a *App) UseAt(paths any, h any) error {
	sc, err := scope.From(paths)
	if err != nil {
		return err
	}
	return a.register("", phase.Main, sc, h)
}

func (a *App) register(name string, pos phase.Position, sc scope.Scope, h any) error {
	child, isApp := h.(*App)
	if isApp && a.hasAncestor(child) {
		return fmt.Errorf("%w: application cannot be mounted inside itself", pipeline.ErrUnsupportedHandler)
	}

	registered := h
	if a.instrument != nil {
		var err error
		if registered, err = a.instrument(h); err != nil {
			return fmt.Errorf("instrument %T: %w", h, err)
		}
	}

	l, err := pipeline.NewLayer(registered)
	if err != nil {
		return err
	}
	if isApp {
		l.Name = "mount " + scope.MountPath(sc)
	}
	l.Phase = name
	l.Position = pos
	l.Scope = sc
	if err := a.stack.Insert(l); err != nil {
		return err
	}

	if isApp {
		child.mount(a, scope.MountPath(sc))
	}
	return nil
}

// DefinePhase adds a phase immediately before "routes". Defining an
// existing phase is a no-op.
func (a *App) DefinePhase(name string) error {
	if err := a.phases.Add(name); err != nil {
		return err
	}
	a.logger.Debug("phase defined", slog.String("phase", name), slog.Any("phases", a.phases.Names()))
	return a.stack.Resort()
}

// DefinePhases merges an ordered list of phases into the current order. A
// list that contradicts the existing order fails with *phase.ConflictError
// and changes nothing.
func (a *App) DefinePhases(names []string) error {
	if err := a.phases.Merge(names); err != nil {
		return err
	}
	a.logger.Debug("phases merged", slog.Any("phases", a.phases.Names()))
	return a.stack.Resort()
}

// Phases returns the current phase order.
func (a *App) Phases() []string {
	return a.phases.Names()
}

// Layers returns the dispatch order, the builtin init layer first.
func (a *App) Layers() []*pipeline.Layer {
	return a.stack.Layers()
}

// FindLayer returns the layer h was registered as, looking through one level
// of instrumentation. Handlers are matched by ==, so only comparable values
// such as pointers or struct values can be found; func values never match.
func (a *App) FindLayer(h any) *pipeline.Layer {
	return a.stack.Find(h)
}

// Catalog returns the application's middleware catalog.
func (a *App) Catalog() *catalog.Catalog {
	return a.catalog
}

// Logger returns the application's logger.
func (a *App) Logger() *slog.Logger {
	return a.logger
}

// Set stores an application setting.
func (a *App) Set(key string, value any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.settings[key] = value
}

// Setting looks key up here and then in the applications this one is
// mounted in.
func (a *App) Setting(key string) (any, bool) {
	for app := a; app != nil; app = app.Parent() {
		app.mu.RLock()
		v, ok := app.settings[key]
		app.mu.RUnlock()
		if ok {
			return v, true
		}
	}
	return nil, false
}

// Handle dispatches c through the stack. done receives the error nothing
// handled, or nil; it is not called if a handler ended the dispatch.
func (a *App) Handle(c *pipeline.Context, done func(err error)) {
	a.stack.Handle(c, done)
}

// ServeHTTP makes App an http.Handler. Requests nothing answered get a 404;
// unhandled errors are logged and answered with their status, or 500.
//
// The response is finished once ServeHTTP returns, so handlers must continue
// before they return. A continuation called later is ignored and logged
// rather than run against a finished response.
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c := pipeline.NewContext(w, r)
	a.Handle(c, func(err error) { a.finish(c, err) })
}

func (a *App) finish(c *pipeline.Context, err error) {
	if err == nil {
		if !c.Written() {
			_ = c.JSON(http.StatusNotFound, catalog.ErrorBody{Error: catalog.ErrorDetail{
				StatusCode: http.StatusNotFound,
				Name:       http.StatusText(http.StatusNotFound),
				Message:    fmt.Sprintf("Cannot %s %s", c.Request.Method, c.OriginalURL),
			}})
		}
		return
	}

	status := pipeline.StatusOf(err)
	attrs := []any{
		slog.String("request_id", catalog.GetRequestID(c.Request.Context())),
		slog.String("method", c.Request.Method),
		slog.String("path", c.OriginalURL),
		slog.Int("status", status),
		slog.String("error", err.Error()),
	}
	var pe *pipeline.PanicError
	if errors.As(err, &pe) {
		attrs = append(attrs, slog.String("stack", string(pe.Stack)))
	}
	a.logger.Error("unhandled error", attrs...)

	if c.Written() {
		return
	}
	message := err.Error()
	if status >= http.StatusInternalServerError {
		message = http.StatusText(status)
	}
	_ = c.JSON(status, catalog.ErrorBody{Error: catalog.ErrorDetail{
		StatusCode: status,
		Name:       http.StatusText(status),
		Message:    message,
	}})
}
