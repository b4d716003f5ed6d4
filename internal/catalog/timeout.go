package catalog

import (
	"context"
	"net/http"
	"time"
)

// Timeout puts a deadline on the request context. It does not interrupt
// handlers; they are expected to watch ctx.Done().
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func timeoutFactory(params ...any) (any, error) {
	d, err := durationParam(params, 0, 30*time.Second)
	if err != nil {
		return nil, err
	}
	return Timeout(d), nil
}
