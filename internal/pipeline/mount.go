package pipeline

import "net/http"

// MountContext is a snapshot of what the outer pipeline exposed on a context
// before a nested pipeline was entered. Restore reasserts it once the nested
// pipeline completes, so handlers later in the outer pipeline see the outer
// capabilities, params, response and path. Values the nested pipeline added
// to the request context stay visible.
type MountContext struct {
	c        *Context
	request  *http.Request
	response http.ResponseWriter
	baseURL  string
	caps     Capabilities
	params   map[string]string
}

// SaveMount captures the outer state of c.
func SaveMount(c *Context) *MountContext {
	return &MountContext{
		c:        c,
		request:  c.Request,
		response: c.Response,
		baseURL:  c.BaseURL,
		caps:     c.caps,
		params:   c.params,
	}
}

// Restore puts the captured state back on the context, carrying over the
// current request context.
func (m *MountContext) Restore() {
	if m.c.Request != m.request {
		m.c.Request = m.request.WithContext(m.c.Request.Context())
	}
	m.c.Response = m.response
	m.c.BaseURL = m.baseURL
	m.c.caps = m.caps
	m.c.params = m.params
}
