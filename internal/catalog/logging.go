package catalog

import (
	"log/slog"
	"time"

	"github.com/tjfontaine/phasemux/internal/pipeline"
)

const logFieldsLocal = "catalog.logFields"

// Logger logs each request twice: when it reaches the logger and once the
// handlers after it are done, with the final status and any fields added
// through AddLogField on the way.
func Logger(logger *slog.Logger) pipeline.HandlerFunc {
	return func(c *pipeline.Context, next pipeline.NextFunc) {
		start := time.Now()
		fields := make(map[string]string)
		c.Locals[logFieldsLocal] = fields

		r := c.Request
		requestID := GetRequestID(r.Context())
		logger.Debug("request started",
			slog.String("request_id", requestID),
			slog.String("method", r.Method),
			slog.String("path", c.OriginalURL),
			slog.String("remote_addr", r.RemoteAddr),
		)

		next(nil)

		attrs := []slog.Attr{
			slog.String("request_id", requestID),
			slog.String("method", r.Method),
			slog.String("path", c.OriginalURL),
			slog.Int("status", c.StatusCode()),
			slog.Bool("answered", c.Written()),
			slog.Duration("duration", time.Since(start)),
		}
		for k, v := range fields {
			attrs = append(attrs, slog.String(k, v))
		}
		logger.LogAttrs(r.Context(), slog.LevelInfo, "request completed", attrs...)
	}
}

// AddLogField attaches a key/value to the request log written by Logger.
// No-op when no Logger runs ahead of the caller.
func AddLogField(c *pipeline.Context, key, value string) {
	if value == "" {
		return
	}
	if fields, ok := c.Locals[logFieldsLocal].(map[string]string); ok {
		fields[key] = value
	}
}

// AddError attaches an error message to the request log. No-op if err is nil.
func AddError(c *pipeline.Context, err error) {
	if err == nil {
		return
	}
	AddLogField(c, "error", err.Error())
}
