package catalog

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/tjfontaine/phasemux/internal/pipeline"
)

// Status replies with the process start time and uptime in seconds.
func Status(started time.Time) pipeline.HandlerFunc {
	return func(c *pipeline.Context, next pipeline.NextFunc) {
		_ = c.JSON(http.StatusOK, map[string]any{
			"started": started.UTC().Format(time.RFC3339),
			"uptime":  time.Since(started).Seconds(),
		})
	}
}

// URLNotFound turns any request reaching it into a 404 error.
func URLNotFound() pipeline.HandlerFunc {
	return func(c *pipeline.Context, next pipeline.NextFunc) {
		next(pipeline.NewHTTPError(http.StatusNotFound,
			fmt.Sprintf("Cannot %s %s", c.Request.Method, c.OriginalURL)))
	}
}

// ErrorBody is the JSON shape written by ErrorHandler.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes a failed request.
type ErrorDetail struct {
	StatusCode int    `json:"statusCode"`
	Name       string `json:"name"`
	Message    string `json:"message"`
	Stack      string `json:"stack,omitempty"`
}

// ErrorHandler writes propagated errors as JSON. Server errors only expose
// their message and stack when debug is set.
func ErrorHandler(logger *slog.Logger, debug bool) pipeline.ErrorHandlerFunc {
	return func(err error, c *pipeline.Context, next pipeline.NextFunc) {
		status := pipeline.StatusOf(err)
		AddError(c, err)

		if status >= http.StatusInternalServerError {
			logger.Error("request failed",
				slog.String("request_id", GetRequestID(c.Request.Context())),
				slog.String("path", c.OriginalURL),
				slog.Int("status", status),
				slog.String("error", err.Error()),
			)
		}
		if c.Written() {
			return
		}

		detail := ErrorDetail{
			StatusCode: status,
			Name:       http.StatusText(status),
			Message:    err.Error(),
		}
		if status >= http.StatusInternalServerError && !debug {
			detail.Message = http.StatusText(status)
		}
		var pe *pipeline.PanicError
		if debug && errors.As(err, &pe) {
			detail.Stack = string(pe.Stack)
		}
		_ = c.JSON(status, ErrorBody{Error: detail})
	}
}

func errorHandlerFactory(logger *slog.Logger) Factory {
	return func(params ...any) (any, error) {
		debug := false
		if v, ok := option(params, 0, "debug"); ok {
			b, ok := v.(bool)
			if !ok {
				return nil, fmt.Errorf("errorHandler: debug: want bool, got %T", v)
			}
			debug = b
		} else if len(params) > 0 {
			b, ok := params[0].(bool)
			if !ok {
				return nil, fmt.Errorf("errorHandler: want bool or options, got %T", params[0])
			}
			debug = b
		}
		return ErrorHandler(logger, debug), nil
	}
}
