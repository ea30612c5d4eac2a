// Package middleware provides the HTTP middleware of the spectra relay API.
package middleware

import (
	"context"
	"slices"
	"time"
)

type clientContextKey struct{}

// ClientContext describes the authenticated client of a request. The
// authentication middleware attaches it after a successful key check.
type ClientContext struct {
	// ClientID identifies the client application (e.g. "bhm-dashboard")
	ClientID string

	// Name is the human-readable key name
	Name string

	// Permissions are the scopes granted to the key
	Permissions []string

	// KeyID is the ID of the key used, for audit logging
	KeyID string

	AuthTime time.Time
}

// HasPermission reports whether the client was granted permission.
func (c ClientContext) HasPermission(permission string) bool {
	return slices.Contains(c.Permissions, permission)
}

// GetClientContext extracts the client context. The boolean is false for
// unauthenticated requests.
//
//	clientCtx, authenticated := middleware.GetClientContext(r.Context())
//	if authenticated {
//	    logger.Info("request", slog.String("client_id", clientCtx.ClientID))
//	}
func GetClientContext(ctx context.Context) (ClientContext, bool) {
	clientCtx, ok := ctx.Value(clientContextKey{}).(ClientContext)

	return clientCtx, ok
}

// SetClientContext returns a copy of ctx carrying clientCtx.
func SetClientContext(ctx context.Context, clientCtx ClientContext) context.Context {
	return context.WithValue(ctx, clientContextKey{}, clientCtx)
}
