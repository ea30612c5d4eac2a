package middleware

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countAllowed(rl RateLimiter, clientID string, n int) int {
	allowed := 0

	for range n {
		if rl.Allow(clientID) {
			allowed++
		}
	}

	return allowed
}

func TestInMemoryRateLimiter_Tiers(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		name     string
		config   Config
		clientID string
		attempts int
		want     int
	}{
		{
			name:     "global limit wins over a looser client limit",
			config:   Config{GlobalRPS: 10, GlobalBurst: 10, ClientRPS: 50, UnAuthRPS: 2},
			clientID: "bhm-dashboard",
			attempts: 11,
			want:     10,
		},
		{
			name:     "client limit",
			config:   Config{GlobalRPS: 100, ClientRPS: 5, ClientBurst: 5, UnAuthRPS: 2},
			clientID: "bhm-dashboard",
			attempts: 6,
			want:     5,
		},
		{
			name:     "unauthenticated limit",
			config:   Config{GlobalRPS: 100, ClientRPS: 50, UnAuthRPS: 2, UnAuthBurst: 2},
			attempts: 3,
			want:     2,
		},
		{
			name:     "burst defaults to twice the rate",
			config:   Config{GlobalRPS: 100, ClientRPS: 5, UnAuthRPS: 2},
			clientID: "bhm-dashboard",
			attempts: 20,
			want:     10,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rl := NewInMemoryRateLimiter(&tt.config)
			defer rl.Close()

			assert.Equal(t, tt.want, countAllowed(rl, tt.clientID, tt.attempts))
		})
	}
}

func TestInMemoryRateLimiter_ClientIsolation(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	rl := NewInMemoryRateLimiter(&Config{GlobalRPS: 100, ClientRPS: 5, ClientBurst: 5, UnAuthRPS: 2})
	defer rl.Close()

	assert.Equal(t, 5, countAllowed(rl, "client-1", 6))
	assert.Equal(t, 5, countAllowed(rl, "client-2", 5), "second client has its own bucket")
}

func TestInMemoryRateLimiter_ConcurrentAccess(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	rl := NewInMemoryRateLimiter(&Config{GlobalRPS: 100, ClientRPS: 50, UnAuthRPS: 10, MaxClients: 100})
	defer rl.Close()

	var wg sync.WaitGroup

	for i := range 10 {
		wg.Add(1)

		go func(clientID string) {
			defer wg.Done()

			for range 10 {
				_ = rl.Allow(clientID)
			}
		}(fmt.Sprintf("client-%d", i))
	}

	wg.Wait()

	rl.mu.RLock()
	defer rl.mu.RUnlock()

	assert.Len(t, rl.perClient, 10)
}

func TestInMemoryRateLimiter_CleanupRemovesIdleClients(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	rl := NewInMemoryRateLimiter(&Config{
		GlobalRPS:   100,
		ClientRPS:   50,
		UnAuthRPS:   10,
		IdleTimeout: 100 * time.Millisecond,
		MaxClients:  100,
	})
	defer rl.Close()

	require.True(t, rl.Allow("stale-client"))
	require.True(t, rl.Allow("active-client"))

	time.Sleep(150 * time.Millisecond)

	require.True(t, rl.Allow("active-client"))

	rl.cleanup()

	rl.mu.RLock()
	_, staleExists := rl.perClient["stale-client"]
	_, activeExists := rl.perClient["active-client"]
	rl.mu.RUnlock()

	assert.False(t, staleExists, "idle client should be removed")
	assert.True(t, activeExists, "active client should be kept")
}

func TestInMemoryRateLimiter_CloseTwice(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	rl := NewInMemoryRateLimiter(&Config{GlobalRPS: 1, ClientRPS: 1, UnAuthRPS: 1})

	assert.NotPanics(t, func() {
		rl.Close()
		rl.Close()
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	rl := NewInMemoryRateLimiter(&Config{
		GlobalRPS:   100,
		ClientRPS:   3,
		ClientBurst: 3,
		UnAuthRPS:   1,
		UnAuthBurst: 1,
		MaxClients:  100,
	})
	defer rl.Close()

	calls := 0
	handler := RateLimit(rl, slog.New(slog.DiscardHandler))(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			calls++

			w.WriteHeader(http.StatusOK)
		}),
	)

	serve := func(clientID string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/spectra", nil)
		if clientID != "" {
			req = req.WithContext(SetClientContext(req.Context(), ClientContext{ClientID: clientID}))
		}

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		return rec
	}

	assert.Equal(t, http.StatusOK, serve("").Code)

	blocked := serve("")
	assert.Equal(t, http.StatusTooManyRequests, blocked.Code)
	assert.Equal(t, contentTypeProblemJSON, blocked.Header().Get("Content-Type"))
	assert.Equal(t, "1", blocked.Header().Get("Retry-After"))

	var problem map[string]any
	require.NoError(t, json.Unmarshal(blocked.Body.Bytes(), &problem))
	assert.Equal(t, "https://specviewer.sdss.org/problems/429", problem["type"])
	assert.Equal(t, "Too Many Requests", problem["title"])
	assert.Equal(t, "/api/v1/spectra", problem["instance"])

	for i := range 3 {
		assert.Equal(t, http.StatusOK, serve("bhm-dashboard").Code, "authenticated request %d", i+1)
	}

	assert.Equal(t, http.StatusTooManyRequests, serve("bhm-dashboard").Code)
	assert.Equal(t, 4, calls)
}

func TestConfig_Validate(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	valid := Config{GlobalRPS: 100, ClientRPS: 50, UnAuthRPS: 20}
	require.NoError(t, valid.Validate())

	invalid := valid
	invalid.ClientRPS = 0
	require.ErrorIs(t, invalid.Validate(), ErrInvalidRateLimit)
}

func TestLoadConfig_FromEnvironment(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	t.Setenv("SPECVIEWER_CLIENT_RPS", "7")
	t.Setenv("SPECVIEWER_RATE_LIMIT_IDLE_TIMEOUT", "10m")

	cfg := LoadConfig()

	assert.Equal(t, defaultGlobalRPS, cfg.GlobalRPS)
	assert.Equal(t, 7, cfg.ClientRPS)
	assert.Equal(t, 10*time.Minute, cfg.IdleTimeout)
	assert.Equal(t, maxClients, cfg.MaxClients)
}
