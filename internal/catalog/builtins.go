package catalog

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func builtins(logger *slog.Logger) map[string]Factory {
	started := time.Now()
	return map[string]Factory{
		"requestID": requestIDFactory,
		"logger": func(...any) (any, error) {
			return Logger(logger), nil
		},
		"timeout": timeoutFactory,
		"compress": func(params ...any) (any, error) {
			level, err := intParam(params, 0, 5)
			if err != nil {
				return nil, err
			}
			types, err := stringsParam(params, 1)
			if err != nil {
				return nil, err
			}
			return middleware.Compress(level, types...), nil
		},
		"recover": func(...any) (any, error) {
			return middleware.Recoverer, nil
		},
		"realIP": func(...any) (any, error) {
			return middleware.RealIP, nil
		},
		"noCache": func(...any) (any, error) {
			return middleware.NoCache, nil
		},
		"heartbeat": func(params ...any) (any, error) {
			path, err := stringParam(params, 0, "/ping")
			if err != nil {
				return nil, err
			}
			return middleware.Heartbeat(path), nil
		},
		"tracing": func(params ...any) (any, error) {
			operation, err := stringParam(params, 0, "phasemux")
			if err != nil {
				return nil, err
			}
			return func(next http.Handler) http.Handler {
				return otelhttp.NewHandler(next, operation)
			}, nil
		},
		"responseTime": func(params ...any) (any, error) {
			header, err := stringParam(params, 0, "X-Response-Time")
			if err != nil {
				return nil, err
			}
			return ResponseTime(header), nil
		},
		"status": func(...any) (any, error) {
			return Status(started), nil
		},
		"urlNotFound": func(...any) (any, error) {
			return URLNotFound(), nil
		},
		"errorHandler": errorHandlerFactory(logger),
		"static":       staticFactory,
		"bearerAuth":   bearerAuthFactory,
	}
}

// ResponseTime reports how long the rest of the pipeline took to produce the
// response headers.
func ResponseTime(header string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(&timedWriter{ResponseWriter: w, header: header, start: time.Now()}, r)
		})
	}
}

// timedWriter stamps the elapsed time just before the headers go out.
type timedWriter struct {
	http.ResponseWriter
	header  string
	start   time.Time
	stamped bool
}

func (w *timedWriter) stamp() {
	if w.stamped {
		return
	}
	w.stamped = true
	ms := float64(time.Since(w.start).Microseconds()) / 1000
	w.Header().Set(w.header, strconv.FormatFloat(ms, 'f', 3, 64)+"ms")
}

func (w *timedWriter) WriteHeader(code int) {
	w.stamp()
	w.ResponseWriter.WriteHeader(code)
}

func (w *timedWriter) Write(b []byte) (int, error) {
	w.stamp()
	return w.ResponseWriter.Write(b)
}

func (w *timedWriter) Flush() {
	w.stamp()
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *timedWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
