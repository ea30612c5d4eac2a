package middleware

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientContext_RoundTrip(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	_, found := GetClientContext(context.Background())
	assert.False(t, found)

	expected := ClientContext{
		ClientID:    "bhm-dashboard",
		Name:        "BHM dashboard",
		Permissions: []string{"spectra:read"},
		KeyID:       "key-123",
		AuthTime:    time.Now(),
	}

	actual, found := GetClientContext(SetClientContext(context.Background(), expected))
	require.True(t, found)
	assert.Equal(t, expected, actual)
}

func TestClientContext_LastSetWins(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	ctx := SetClientContext(context.Background(), ClientContext{ClientID: "first"})
	ctx = SetClientContext(ctx, ClientContext{ClientID: "second"})

	actual, found := GetClientContext(ctx)
	require.True(t, found)
	assert.Equal(t, "second", actual.ClientID)
}

func TestClientContext_HasPermission(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	clientCtx := ClientContext{Permissions: []string{"spectra:read"}}

	assert.True(t, clientCtx.HasPermission("spectra:read"))
	assert.False(t, clientCtx.HasPermission("catalog:read"))
	assert.False(t, ClientContext{}.HasPermission("spectra:read"))
}
