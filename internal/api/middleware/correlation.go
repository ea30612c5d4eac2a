package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// CorrelationIDHeader carries the request correlation ID in both directions.
const CorrelationIDHeader = "X-Correlation-ID"

const maxCorrelationIDLength = 128

type correlationIDKey struct{}

// CorrelationID creates a middleware that adds a correlation ID to each request.
// A well-formed incoming X-Correlation-ID is reused, otherwise a UUID is generated.
func CorrelationID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			correlationID := r.Header.Get(CorrelationIDHeader)
			if !validCorrelationID(correlationID) {
				correlationID = uuid.NewString()
			}

			w.Header().Set(CorrelationIDHeader, correlationID)

			ctx := context.WithValue(r.Context(), correlationIDKey{}, correlationID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetCorrelationID extracts the correlation ID from the request context.
func GetCorrelationID(ctx context.Context) string {
	if correlationID, ok := ctx.Value(correlationIDKey{}).(string); ok {
		return correlationID
	}

	return "unknown"
}

// validCorrelationID accepts printable ASCII up to maxCorrelationIDLength so
// that client-supplied IDs cannot inject into logs or headers.
func validCorrelationID(id string) bool {
	if id == "" || len(id) > maxCorrelationIDLength {
		return false
	}

	for i := range len(id) {
		if id[i] < 0x21 || id[i] > 0x7e {
			return false
		}
	}

	return true
}
