package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tjfontaine/phasemux/internal/phase"
	"github.com/tjfontaine/phasemux/internal/pipeline"
	"github.com/tjfontaine/phasemux/internal/scope"
)

// Get registers h for GET requests matching a chi pattern such as
// "/users/{id}". Routes are unordered registrations: they run in the routes
// phase, so a "files" handler runs after them whichever was declared first.
func (a *App) Get(pattern string, h any) error { return a.Route(http.MethodGet, pattern, h) }

// Post registers h for POST requests matching pattern.
func (a *App) Post(pattern string, h any) error { return a.Route(http.MethodPost, pattern, h) }

// Put registers h for PUT requests matching pattern.
func (a *App) Put(pattern string, h any) error { return a.Route(http.MethodPut, pattern, h) }

// Patch registers h for PATCH requests matching pattern.
func (a *App) Patch(pattern string, h any) error { return a.Route(http.MethodPatch, pattern, h) }

// Delete registers h for DELETE requests matching pattern.
func (a *App) Delete(pattern string, h any) error { return a.Route(http.MethodDelete, pattern, h) }

// Head registers h for HEAD requests matching pattern.
func (a *App) Head(pattern string, h any) error { return a.Route(http.MethodHead, pattern, h) }

// Options registers h for OPTIONS requests matching pattern.
func (a *App) Options(pattern string, h any) error { return a.Route(http.MethodOptions, pattern, h) }

// All registers h for requests of any method matching pattern.
func (a *App) All(pattern string, h any) error { return a.Route("", pattern, h) }

// Route registers h for method and pattern; an empty method matches all.
// Requests the route does not match continue down the pipeline.
func (a *App) Route(method, pattern string, h any) error {
	registered := h
	if a.instrument != nil {
		var err error
		if registered, err = a.instrument(h); err != nil {
			return fmt.Errorf("instrument %T: %w", h, err)
		}
	}
	serve, _, err := pipeline.Adapt(registered)
	if err != nil {
		return err
	}
	if serve == nil {
		return fmt.Errorf("%w: route handler %T cannot serve requests", pipeline.ErrUnsupportedHandler, h)
	}

	rt := &route{method: method, pattern: pattern, handler: h, serve: serve}
	if err := rt.compile(); err != nil {
		return err
	}

	l, err := pipeline.NewLayer(rt)
	if err != nil {
		return err
	}
	l.Name = rt.String()
	l.Position = phase.Main
	l.Scope = scope.None
	return a.stack.Insert(l)
}

type routeHitKey struct{}

// routeHit carries the match result out of chi, which recycles its route
// context once ServeHTTP returns.
type routeHit struct {
	matched bool
	params  map[string]string
}

// route is a single-route chi.Mux acting as one pipeline layer.
type route struct {
	method  string
	pattern string
	handler any
	serve   pipeline.Handler
	mux     *chi.Mux
}

func (rt *route) compile() (err error) {
	// chi reports invalid patterns by panicking
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("route %s: %v", rt, v)
		}
	}()

	mux := chi.NewMux()
	record := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit, _ := r.Context().Value(routeHitKey{}).(*routeHit)
		if hit == nil {
			return
		}
		hit.matched = true
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			hit.params = make(map[string]string, len(rctx.URLParams.Keys))
			for i, key := range rctx.URLParams.Keys {
				hit.params[key] = rctx.URLParams.Values[i]
			}
		}
	})
	if rt.method == "" {
		mux.Handle(rt.pattern, record)
	} else {
		mux.Method(rt.method, rt.pattern, record)
	}
	noMatch := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
	mux.NotFound(noMatch)
	mux.MethodNotAllowed(noMatch)
	rt.mux = mux
	return nil
}

func (rt *route) ServePipeline(c *pipeline.Context, next pipeline.NextFunc) {
	hit := &routeHit{}
	// drop any route context left by an enclosing chi router
	ctx := context.WithValue(c.Request.Context(), chi.RouteCtxKey, nil)
	ctx = context.WithValue(ctx, routeHitKey{}, hit)
	rt.mux.ServeHTTP(discard{}, c.Request.WithContext(ctx))

	if !hit.matched {
		next(nil)
		return
	}
	prev := c.SetParams(hit.params)
	rt.serve.ServePipeline(c, func(err error) {
		c.SetParams(prev)
		next(err)
	})
}

// Unwrap returns the handler the route was registered with.
func (rt *route) Unwrap() any { return rt.handler }

func (rt *route) String() string {
	method := rt.method
	if method == "" {
		method = "ALL"
	}
	return method + " " + rt.pattern
}

// discard is handed to chi so matching never writes to the real response.
type discard struct{}

func (discard) Header() http.Header         { return http.Header{} }
func (discard) Write(b []byte) (int, error) { return len(b), nil }
func (discard) WriteHeader(int)             {}
