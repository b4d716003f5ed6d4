package pipeline

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/tjfontaine/phasemux/internal/scope"
)

// Settings is the read side of an application's settings.
type Settings interface {
	Setting(key string) (any, bool)
}

// Capabilities is the augmentation set of the pipeline a context currently
// runs in: the owning application and its settings. Context helpers read it,
// so handlers inside a mounted application observe that application's set.
type Capabilities struct {
	App      any
	Settings Settings
}

// SettingJSONSpaces is the setting holding the indent width used by Context.JSON.
const SettingJSONSpaces = "json spaces"

// Context carries one request through a dispatch.
type Context struct {
	Request  *http.Request
	Response http.ResponseWriter

	// BaseURL is the path prefix consumed by scopes so far.
	BaseURL string
	// OriginalURL is the request URI as received. Scopes never change it.
	OriginalURL string

	// Locals is request-scoped data shared between handlers.
	Locals map[string]any

	caps   Capabilities
	params map[string]string
	writer *responseWriter
}

// NewContext wraps a request/response pair for dispatch.
func NewContext(w http.ResponseWriter, r *http.Request) *Context {
	rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
	return &Context{
		Request:     r,
		Response:    rw,
		OriginalURL: r.URL.RequestURI(),
		Locals:      make(map[string]any),
		writer:      rw,
	}
}

// Path is the request path relative to BaseURL.
func (c *Context) Path() string {
	if c.Request.URL.Path == "" {
		return "/"
	}
	return c.Request.URL.Path
}

// Capabilities returns the current augmentation set.
func (c *Context) Capabilities() Capabilities { return c.caps }

// SetCapabilities installs the augmentation set of the pipeline being entered.
func (c *Context) SetCapabilities(caps Capabilities) { c.caps = caps }

// App returns the application the current handler is registered on.
func (c *Context) App() any { return c.caps.App }

// Setting looks key up in the current application's settings.
func (c *Context) Setting(key string) (any, bool) {
	if c.caps.Settings == nil {
		return nil, false
	}
	return c.caps.Settings.Setting(key)
}

// Param returns a route parameter of the route being served.
func (c *Context) Param(name string) string {
	return c.params[name]
}

// Params returns a copy of the route parameters.
func (c *Context) Params() map[string]string {
	out := make(map[string]string, len(c.params))
	for k, v := range c.params {
		out[k] = v
	}
	return out
}

// SetParams replaces the route parameters and returns the previous set.
func (c *Context) SetParams(params map[string]string) map[string]string {
	prev := c.params
	c.params = params
	return prev
}

// Query returns the first value of a query string parameter.
func (c *Context) Query(name string) string {
	return c.Request.URL.Query().Get(name)
}

// Get returns a request header.
func (c *Context) Get(header string) string {
	return c.Request.Header.Get(header)
}

// Set sets a response header.
func (c *Context) Set(header, value string) {
	c.Response.Header().Set(header, value)
}

// Status writes the response status line.
func (c *Context) Status(code int) {
	c.Response.WriteHeader(code)
}

// JSON writes v as a JSON response, indented per the "json spaces" setting.
func (c *Context) JSON(status int, v any) error {
	c.Set("Content-Type", "application/json; charset=utf-8")
	c.Status(status)
	enc := json.NewEncoder(c.Response)
	if spaces, ok := c.Setting(SettingJSONSpaces); ok {
		if n, ok := spaces.(int); ok && n > 0 {
			enc.SetIndent("", strings.Repeat(" ", n))
		}
	}
	return enc.Encode(v)
}

// Send writes a plain text response.
func (c *Context) Send(status int, body string) error {
	if c.Response.Header().Get("Content-Type") == "" {
		c.Set("Content-Type", "text/plain; charset=utf-8")
	}
	c.Status(status)
	_, err := c.Response.Write([]byte(body))
	return err
}

// Redirect replies with a redirect to target.
func (c *Context) Redirect(status int, target string) {
	http.Redirect(c.Response, c.Request, target, status)
}

// Cookie adds a Set-Cookie header.
func (c *Context) Cookie(cookie *http.Cookie) {
	http.SetCookie(c.Response, cookie)
}

// Written reports whether the response status has been sent.
func (c *Context) Written() bool {
	return c.writer != nil && c.writer.wroteHeader
}

// StatusCode returns the status sent so far, http.StatusOK if none was.
func (c *Context) StatusCode() int {
	if c.writer == nil {
		return http.StatusOK
	}
	return c.writer.statusCode
}

// enter applies a scope match and returns the function undoing it.
func (c *Context) enter(m scope.Match) func() {
	if m.Consumed == "" {
		return nil
	}
	prevURL := c.Request.URL
	prevBase := c.BaseURL

	u := *prevURL
	u.Path = m.Rest
	u.RawPath = ""
	c.Request = withURL(c.Request, &u)
	c.BaseURL = prevBase + m.Consumed

	return func() {
		c.BaseURL = prevBase
		if c.Request.URL != prevURL {
			c.Request = withURL(c.Request, prevURL)
		}
	}
}

// withURL returns a shallow copy of r pointing at u; context values set by
// earlier handlers are kept.
func withURL(r *http.Request, u *url.URL) *http.Request {
	r2 := r.WithContext(r.Context())
	r2.URL = u
	return r2
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.wroteHeader = true
	}
	return rw.ResponseWriter.Write(b)
}

// Flush forwards Flush to the underlying ResponseWriter if it supports http.Flusher,
// preserving streaming support (e.g., for SSE).
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
