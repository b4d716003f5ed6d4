package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tjfontaine/phasemux/internal/catalog"
	"github.com/tjfontaine/phasemux/internal/phase"
	"github.com/tjfontaine/phasemux/internal/pipeline"
)

func newApp(t *testing.T, opts ...Option) *App {
	t.Helper()
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	a, err := New(opts...)
	require.NoError(t, err)
	return a
}

// steps records the order handlers ran in.
type steps struct {
	mu    sync.Mutex
	names []string
}

func (s *steps) add(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.names = append(s.names, name)
}

func (s *steps) handler(name string) pipeline.HandlerFunc {
	return func(c *pipeline.Context, next pipeline.NextFunc) {
		s.add(name)
		next(nil)
	}
}

func (s *steps) list() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.names...)
}

type outcome struct {
	rec  *httptest.ResponseRecorder
	err  error
	done bool
}

// dispatch runs a request through a without the final handler of ServeHTTP.
func dispatch(t *testing.T, a *App, method, path string) outcome {
	t.Helper()
	out := outcome{rec: httptest.NewRecorder()}
	c := pipeline.NewContext(out.rec, httptest.NewRequest(method, path, nil))
	a.Handle(c, func(err error) {
		out.err = err
		out.done = true
	})
	return out
}

func TestApp_DispatchFollowsPhaseOrder(t *testing.T) {
	specs := []string{"initial", "session", "auth", "parse", "routes", "files", "final"}
	rng := rand.New(rand.NewSource(1))

	for round := 0; round < 10; round++ {
		t.Run(fmt.Sprintf("shuffle %d", round), func(t *testing.T) {
			a := newApp(t)
			rec := &steps{}
			shuffled := append([]string(nil), specs...)
			rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

			for _, name := range shuffled {
				require.NoError(t, a.Middleware(name, rec.handler(name)))
			}
			out := dispatch(t, a, http.MethodGet, "/")
			require.True(t, out.done)
			assert.Equal(t, specs, rec.list())
		})
	}
}

func TestApp_StableWithinPhase(t *testing.T) {
	a := newApp(t)
	rec := &steps{}

	var want []string
	for i := 0; i < 25; i++ {
		name := fmt.Sprintf("auth-%02d", i)
		want = append(want, name)
		require.NoError(t, a.Middleware("auth", rec.handler(name)))

		// unrelated registrations re-sort the whole stack
		require.NoError(t, a.Use(func(c *pipeline.Context, next pipeline.NextFunc) { next(nil) }))
		require.NoError(t, a.Get(fmt.Sprintf("/r%d", i), func(c *pipeline.Context, next pipeline.NextFunc) { next(nil) }))
		require.NoError(t, a.DefinePhase(fmt.Sprintf("custom-%d", i)))
	}

	dispatch(t, a, http.MethodGet, "/")
	assert.Equal(t, want, rec.list())
}

func TestApp_SubPositions(t *testing.T) {
	a := newApp(t)
	rec := &steps{}

	var want []string
	for _, p := range phase.DefaultPhases {
		want = append(want, p+":before", p, p+":after")
	}
	// register in reverse so call order never matches dispatch order
	for i := len(want) - 1; i >= 0; i-- {
		require.NoError(t, a.Middleware(want[i], rec.handler(want[i])))
	}

	dispatch(t, a, http.MethodGet, "/")
	assert.Equal(t, want, rec.list())
}

func TestApp_UnorderedRunsBeforeRoutes(t *testing.T) {
	a := newApp(t)
	rec := &steps{}

	require.NoError(t, a.Middleware("routes:after", rec.handler("routes:after")))
	require.NoError(t, a.Middleware("routes", rec.handler("routes")))
	require.NoError(t, a.Use(rec.handler("use")))
	require.NoError(t, a.Middleware("routes:before", rec.handler("routes:before")))
	require.NoError(t, a.Middleware("parse", rec.handler("parse")))

	dispatch(t, a, http.MethodGet, "/")
	assert.Equal(t, []string{"parse", "routes:before", "use", "routes", "routes:after"}, rec.list())
}

func TestApp_ScopedToPrefix(t *testing.T) {
	a := newApp(t)
	var seen []string
	require.NoError(t, a.MiddlewareAt("initial", "/scope", func(c *pipeline.Context, next pipeline.NextFunc) {
		seen = append(seen, c.OriginalURL+" -> "+c.Path())
		next(nil)
	}))

	for _, path := range []string{"/", "/scope", "/scope/item", "/other", "/scopes", "/scope/id"} {
		dispatch(t, a, http.MethodGet, path)
	}
	assert.Equal(t, []string{"/scope -> /", "/scope/item -> /item", "/scope/id -> /id"}, seen)
}

func TestApp_ScopedToList(t *testing.T) {
	a := newApp(t)
	rec := &steps{}
	require.NoError(t, a.MiddlewareAt("initial", []any{"/scope", regexp.MustCompile(`^/(a|b)`)}, func(c *pipeline.Context, next pipeline.NextFunc) {
		rec.add(c.OriginalURL)
		next(nil)
	}))
	require.NoError(t, a.MiddlewareAt("initial", []string{"/b", "/scope"}, func(c *pipeline.Context, next pipeline.NextFunc) {
		rec.add("second " + c.OriginalURL)
		next(nil)
	}))

	for _, path := range []string{"/", "/a", "/b", "/c", "/scope", "/other"} {
		dispatch(t, a, http.MethodGet, path)
	}
	assert.Equal(t, []string{"/a", "/b", "second /b", "/scope", "second /scope"}, rec.list())
}

func TestApp_ErrorReachesLegacyErrorHandler(t *testing.T) {
	a := newApp(t)
	expected := errors.New("expected error")
	var got error

	require.NoError(t, a.Middleware("initial", func(c *pipeline.Context, next pipeline.NextFunc) {
		next(expected)
	}))
	require.NoError(t, a.Use(func(err error, c *pipeline.Context, next pipeline.NextFunc) {
		got = err
		next(nil)
	}))

	out := dispatch(t, a, http.MethodGet, "/")
	require.True(t, out.done)
	assert.NoError(t, out.err)
	assert.Same(t, expected, got)
}

func TestApp_UnhandledErrorReachesDone(t *testing.T) {
	a := newApp(t)
	expected := errors.New("expected error")
	rec := &steps{}

	require.NoError(t, a.Middleware("initial", func(c *pipeline.Context, next pipeline.NextFunc) {
		next(expected)
	}))
	require.NoError(t, a.Middleware("final", rec.handler("final")))

	out := dispatch(t, a, http.MethodGet, "/")
	require.True(t, out.done)
	assert.Same(t, expected, out.err)
	assert.Empty(t, rec.list())
}

func TestApp_ErrorHandledInSamePhase(t *testing.T) {
	a := newApp(t)
	rec := &steps{}
	expected := errors.New("this should be handled by middleware")

	require.NoError(t, a.Middleware("initial", func(c *pipeline.Context, next pipeline.NextFunc) {
		rec.add("raise")
		next(expected)
	}))
	require.NoError(t, a.Middleware("session", rec.handler("session")))
	require.NoError(t, a.Middleware("initial", func(err error, c *pipeline.Context, next pipeline.NextFunc) {
		assert.Same(t, expected, err)
		rec.add("handled")
		next(nil)
	}))

	out := dispatch(t, a, http.MethodGet, "/")
	require.True(t, out.done)
	assert.NoError(t, out.err)
	assert.Equal(t, []string{"raise", "handled", "session"}, rec.list())
}

func TestApp_DefinePhasesConflict(t *testing.T) {
	a := newApp(t)
	require.NoError(t, a.DefinePhases([]string{"first", "second"}))
	before := a.Phases()

	err := a.DefinePhases([]string{"second", "first"})
	var conflict *phase.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Contains(t, err.Error(), `"first"`)
	assert.Contains(t, err.Error(), `"second"`)
	assert.Equal(t, before, a.Phases())
}

func TestApp_DefinePhases(t *testing.T) {
	a := newApp(t)
	rec := &steps{}

	require.NoError(t, a.Middleware("initial", rec.handler("initial")))
	require.NoError(t, a.DefinePhases([]string{"first", "initial", "second"}))
	require.NoError(t, a.Middleware("second", rec.handler("second")))
	require.NoError(t, a.Middleware("first", rec.handler("first")))
	require.NoError(t, a.DefinePhase("custom"))
	require.NoError(t, a.Middleware("custom", rec.handler("custom")))
	require.NoError(t, a.Get("/", rec.handler("route")))

	assert.Equal(t,
		[]string{"first", "initial", "second", "session", "auth", "parse", "custom", "routes", "files", "final"},
		a.Phases())
	dispatch(t, a, http.MethodGet, "/")
	assert.Equal(t, []string{"first", "initial", "second", "custom", "route"}, rec.list())
}

func TestApp_RegistrationErrorsLeaveStackUntouched(t *testing.T) {
	a := newApp(t)
	before := a.Layers()

	err := a.Middleware("unknown", func(c *pipeline.Context, next pipeline.NextFunc) { next(nil) })
	assert.ErrorIs(t, err, phase.ErrUnknownPhase)

	err = a.Middleware("auth:during", func(c *pipeline.Context, next pipeline.NextFunc) { next(nil) })
	assert.ErrorIs(t, err, phase.ErrInvalidPhaseName)

	assert.ErrorIs(t, a.Middleware("", func(c *pipeline.Context, next pipeline.NextFunc) { next(nil) }), ErrMissingPhase)
	assert.ErrorIs(t, a.Middleware("auth", "not a handler"), pipeline.ErrUnsupportedHandler)
	assert.Error(t, a.MiddlewareAt("auth", 42, func(c *pipeline.Context, next pipeline.NextFunc) { next(nil) }))
	assert.Error(t, a.Get("no-slash", func(c *pipeline.Context, next pipeline.NextFunc) { next(nil) }))

	assert.Equal(t, before, a.Layers())
}

func TestApp_RegisteredDuringRegistrationRunsFirst(t *testing.T) {
	a := newApp(t)
	rec := &steps{}

	factory := func(...any) (any, error) {
		require.NoError(t, a.Middleware("routes", rec.handler("inner")))
		return rec.handler("outer"), nil
	}
	require.NoError(t, a.MiddlewareFromConfig(factory, cfg("routes")))

	dispatch(t, a, http.MethodGet, "/")
	assert.Equal(t, []string{"inner", "outer"}, rec.list())
}

// named is a comparable handler, so layers can be looked up by it.
type named struct {
	rec  *steps
	name string
}

func (n *named) ServePipeline(c *pipeline.Context, next pipeline.NextFunc) {
	n.rec.add(n.name)
	next(nil)
}

// tagged stands in for third-party instrumentation.
type tagged struct {
	inner any
	serve pipeline.Handler
}

func (t *tagged) ServePipeline(c *pipeline.Context, next pipeline.NextFunc) {
	t.serve.ServePipeline(c, next)
}

func (t *tagged) Unwrap() any { return t.inner }

func tag(h any) (any, error) {
	serve, _, err := pipeline.Adapt(h)
	if err != nil || serve == nil {
		return h, err
	}
	return &tagged{inner: h, serve: serve}, nil
}

func TestApp_FindLayerThroughInstrumentation(t *testing.T) {
	a := newApp(t, WithInstrumentation(tag))
	rec := &steps{}

	mw := &named{rec: rec, name: "mw"}
	require.NoError(t, a.MiddlewareAt("auth:after", "/api", mw))
	rt := &named{rec: rec, name: "route"}
	require.NoError(t, a.Get("/items", rt))

	l := a.FindLayer(mw)
	require.NotNil(t, l)
	assert.IsType(t, &tagged{}, l.Handler)
	assert.Equal(t, "auth:after", l.PhaseSpec())
	assert.Equal(t, "/api", l.Scope.String())

	l = a.FindLayer(rt)
	require.NotNil(t, l)
	assert.Equal(t, "GET /items", l.Name)
	assert.Equal(t, "", l.PhaseSpec())

	assert.Nil(t, a.FindLayer(&named{}))

	dispatch(t, a, http.MethodGet, "/items")
	dispatch(t, a, http.MethodGet, "/api/x")
	assert.Equal(t, []string{"route", "mw"}, rec.list())
}

func TestApp_FindLayerByValue(t *testing.T) {
	a := newApp(t)
	rec := &steps{}

	ptr := &named{rec: rec, name: "ptr"}
	fn := rec.handler("fn")
	require.NoError(t, a.Middleware("parse", ptr))
	require.NoError(t, a.Middleware("parse", fn))

	l := a.FindLayer(ptr)
	require.NotNil(t, l)
	assert.Equal(t, "parse", l.PhaseSpec())

	// func values cannot be compared, so they are not looked up
	assert.Nil(t, a.FindLayer(fn))
}

func TestApp_ContextHelpers(t *testing.T) {
	a := newApp(t)
	a.Set(pipeline.SettingJSONSpaces, 2)
	require.NoError(t, a.MiddlewareAt("routes", "/test", func(c *pipeline.Context, next pipeline.NextFunc) {
		assert.Same(t, a, c.App())
		assert.Equal(t, "/test", c.BaseURL)
		assert.Equal(t, "/test/url?q=1", c.OriginalURL)
		assert.Equal(t, "/url", c.Path())
		assert.Equal(t, "1", c.Query("q"))
		_ = c.JSON(http.StatusOK, map[string]string{"ok": "yes"})
	}))

	rec := httptest.NewRecorder()
	a.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test/url?q=1", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "{\n  \"ok\": \"yes\"\n}\n", rec.Body.String())
}

func TestApp_ServeHTTPFinalHandling(t *testing.T) {
	a := newApp(t)
	require.NoError(t, a.Get("/forbidden", func(c *pipeline.Context, next pipeline.NextFunc) {
		next(pipeline.NewHTTPError(http.StatusForbidden, "no entry"))
	}))
	require.NoError(t, a.Get("/broken", func(c *pipeline.Context, next pipeline.NextFunc) {
		next(errors.New("database password is hunter2"))
	}))
	require.NoError(t, a.Get("/panic", func(c *pipeline.Context, next pipeline.NextFunc) {
		panic("boom")
	}))

	tests := []struct {
		path        string
		wantStatus  int
		wantMessage string
	}{
		{"/missing", http.StatusNotFound, "Cannot GET /missing"},
		{"/forbidden", http.StatusForbidden, "no entry"},
		{"/broken", http.StatusInternalServerError, "Internal Server Error"},
		{"/panic", http.StatusInternalServerError, "Internal Server Error"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			a.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			var body catalog.ErrorBody
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantStatus, body.Error.StatusCode)
			assert.Equal(t, tt.wantMessage, body.Error.Message)
		})
	}
}

func TestApp_ConcurrentDispatch(t *testing.T) {
	a := newApp(t)
	require.NoError(t, a.MiddlewareAt("initial", "/scope", func(c *pipeline.Context, next pipeline.NextFunc) {
		c.Locals["base"] = c.BaseURL
		next(nil)
	}))
	require.NoError(t, a.Get("/scope/{id}", func(c *pipeline.Context, next pipeline.NextFunc) {
		_ = c.Send(http.StatusOK, c.Param("id"))
	}))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := httptest.NewRecorder()
			a.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/scope/%d", i), nil))
			assert.Equal(t, fmt.Sprint(i), rec.Body.String())
		}(i)
	}
	wg.Wait()
}
