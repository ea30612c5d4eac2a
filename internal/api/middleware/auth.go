package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/bhm-spectra/specviewer/internal/storage"
)

// publicEndpoints bypass authentication. Only probes and metrics belong here.
var (
	publicEndpoints   = map[string]bool{} //nolint: gochecknoglobals
	publicEndpointsMu sync.RWMutex        //nolint: gochecknoglobals
)

// RegisterPublicEndpoint registers an endpoint that bypasses authentication.
// Call it during route setup, never for endpoints that return spectra.
//
//	middleware.RegisterPublicEndpoint("/ping")
//	middleware.RegisterPublicEndpoint("/metrics")
func RegisterPublicEndpoint(endpoint string) {
	publicEndpointsMu.Lock()
	defer publicEndpointsMu.Unlock()

	publicEndpoints[endpoint] = true
}

func isPublicEndpoint(path string) bool {
	publicEndpointsMu.RLock()
	defer publicEndpointsMu.RUnlock()

	return publicEndpoints[path]
}

// AuthError represents an authentication error with a specific type.
type AuthError struct {
	Type    error
	Message string
}

// Authentication error types.
var (
	// ErrMissingAPIKey is returned when no API key is provided in headers.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidAPIKey is returned for malformed or unknown keys. The two cases
	// share one error so that responses do not reveal which keys exist.
	ErrInvalidAPIKey = errors.New("invalid API key")

	// ErrAPIKeyExpired is returned when the API key has expired.
	ErrAPIKeyExpired = errors.New("API key expired")

	// ErrAPIKeyInactive is returned when the API key was revoked.
	ErrAPIKeyInactive = errors.New("API key inactive")

	// ErrPermissionDenied is returned when an authenticated client lacks a permission.
	ErrPermissionDenied = errors.New("permission denied")
)

func (e *AuthError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("authentication failed: %s: %s", e.Type.Error(), e.Message)
	}

	return "authentication failed: " + e.Type.Error()
}

func (e *AuthError) Unwrap() error {
	return e.Type
}

// extractAPIKey reads the key from X-Api-Key, falling back to
// "Authorization: Bearer". X-Api-Key wins when both are set.
func extractAPIKey(r *http.Request) (string, bool) {
	if apiKey := r.Header.Get("X-Api-Key"); apiKey != "" {
		return cleanAPIKey(apiKey)
	}

	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return cleanAPIKey(token)
	}

	return "", false
}

// cleanAPIKey rejects header values containing line breaks and trims whitespace.
func cleanAPIKey(key string) (string, bool) {
	if strings.ContainsAny(key, "\r\n") {
		return "", false
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return "", false
	}

	return key, true
}

// performDummyBcryptComparison keeps failed lookups as slow as hashed ones.
func performDummyBcryptComparison() {
	_ = bcrypt.CompareHashAndPassword([]byte("dummy"), []byte("dummy"))
}

func authenticateRequest(
	ctx context.Context,
	store storage.APIKeyStore,
	apiKey string,
	logger *slog.Logger,
) (*storage.APIKey, error) {
	invalid := &AuthError{Type: ErrInvalidAPIKey, Message: "Invalid or missing API key"}

	parsedKey, err := storage.ParseAPIKey(apiKey)
	if err != nil {
		performDummyBcryptComparison()

		logger.Error("authentication failed: invalid key format",
			slog.String("error", err.Error()),
			slog.String("correlation_id", GetCorrelationID(ctx)),
			slog.String("failure_type", "format_validation"),
		)

		return nil, invalid
	}

	foundKey, exists := store.FindByKey(ctx, parsedKey)
	if !exists {
		performDummyBcryptComparison()

		logger.Error("authentication failed: key not found",
			slog.String("correlation_id", GetCorrelationID(ctx)),
			slog.String("failure_type", "key_not_found"),
		)

		return nil, invalid
	}

	if !foundKey.Active {
		logger.Error("authentication failed: key inactive",
			slog.String("key_id", foundKey.ID),
			slog.String("client_id", foundKey.ClientID),
			slog.String("correlation_id", GetCorrelationID(ctx)),
			slog.String("failure_type", "key_inactive"),
		)

		return nil, &AuthError{Type: ErrAPIKeyInactive, Message: "API key is inactive"}
	}

	if foundKey.Expired(time.Now()) {
		logger.Error("authentication failed: key expired",
			slog.String("key_id", foundKey.ID),
			slog.String("client_id", foundKey.ClientID),
			slog.Time("expired_at", *foundKey.ExpiresAt),
			slog.String("correlation_id", GetCorrelationID(ctx)),
			slog.String("failure_type", "key_expired"),
		)

		return nil, &AuthError{Type: ErrAPIKeyExpired, Message: "API key has expired"}
	}

	return foundKey, nil
}

// Authenticate validates the request API key against store and attaches a
// ClientContext to the request. Public endpoints pass through untouched.
func Authenticate(store storage.APIKeyStore, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublicEndpoint(r.URL.Path) {
				next.ServeHTTP(w, r)

				return
			}

			authStart := time.Now()

			apiKey, found := extractAPIKey(r)
			if !found {
				writeAuthError(w, r, logger, &AuthError{Type: ErrMissingAPIKey, Message: "Missing API key"})

				return
			}

			authenticated, err := authenticateRequest(r.Context(), store, apiKey, logger)
			if err != nil {
				writeAuthError(w, r, logger, err)

				return
			}

			clientCtx := ClientContext{
				ClientID:    authenticated.ClientID,
				Name:        authenticated.Name,
				Permissions: authenticated.Permissions,
				KeyID:       authenticated.ID,
				AuthTime:    time.Now(),
			}

			logger.Info("API key authenticated",
				slog.String("client_id", clientCtx.ClientID),
				slog.String("key_id", clientCtx.KeyID),
				slog.String("key", storage.MaskKey(apiKey)),
				slog.Duration("auth_latency", time.Since(authStart)),
				slog.String("correlation_id", GetCorrelationID(r.Context())),
				slog.String("endpoint", r.URL.Path),
			)

			next.ServeHTTP(w, r.WithContext(SetClientContext(r.Context(), clientCtx)))
		})
	}
}

// RequirePermission rejects authenticated clients that lack permission.
// Requests without a ClientContext pass, so the check is inert when
// authentication is disabled.
func RequirePermission(permission string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientCtx, ok := GetClientContext(r.Context())
			if ok && !clientCtx.HasPermission(permission) {
				writeAuthError(w, r, logger, &AuthError{
					Type:    ErrPermissionDenied,
					Message: "API key lacks " + permission,
				})

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// writeAuthError maps authentication failures to 401 or 403 problem responses.
func writeAuthError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	correlationID := GetCorrelationID(r.Context())

	statusCode := http.StatusUnauthorized
	if errors.Is(err, ErrAPIKeyInactive) || errors.Is(err, ErrPermissionDenied) {
		statusCode = http.StatusForbidden
	}

	logger.Warn("Authentication failed",
		slog.String("reason", err.Error()),
		slog.String("correlation_id", correlationID),
		slog.String("endpoint", r.URL.Path),
		slog.String("remote_addr", r.RemoteAddr),
		slog.String("user_agent", r.UserAgent()),
	)

	writeProblem(w, r, logger, statusCode, err.Error())
}
