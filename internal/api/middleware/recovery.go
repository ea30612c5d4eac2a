package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"runtime/debug"
)

// Recovery creates a middleware that recovers from panics, logs the stack and
// answers with a 500 problem response.
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func(ctx context.Context) {
				if err := recover(); err != nil {
					logger.Error("HTTP request panic recovered",
						slog.String("method", r.Method),
						slog.String("path", r.URL.Path),
						slog.String("correlation_id", GetCorrelationID(ctx)),
						slog.Any("panic", err),
						slog.String("stack_trace", string(debug.Stack())),
					)

					writeProblem(w, r, logger, http.StatusInternalServerError,
						"An unexpected error occurred while processing the request")
				}
			}(r.Context())

			next.ServeHTTP(w, r)
		})
	}
}
