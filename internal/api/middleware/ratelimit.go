package middleware

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	burstCapacityMultiplier    int     = 2
	maxClients                 int     = 100
	defaultGlobalRPS           int     = 100
	defaultClientRPS           int     = 50
	defaultUnAuthRPS           int     = 20
	thresholdMultiplier        float64 = 0.8
	thresholdPercentage        int     = 80
	rateLimiterCleanupInterval         = 5 * time.Minute
	rateLimiterIdleTimeout             = 1 * time.Hour
)

type (
	// RateLimiter decides whether a request may proceed.
	RateLimiter interface {
		// Allow reports whether a request is allowed. clientID is empty for
		// unauthenticated requests.
		Allow(clientID string) bool
	}

	// InMemoryRateLimiter implements RateLimiter with token buckets from
	// golang.org/x/time/rate.
	//
	// Three tiers apply: a global bucket for every request, then either a
	// per-client bucket or the shared unauthenticated bucket. Client buckets
	// idle longer than IdleTimeout are dropped by a background sweep.
	InMemoryRateLimiter struct {
		global          *rate.Limiter
		perClient       map[string]*clientLimiter
		unauthenticated *rate.Limiter
		mu              sync.RWMutex
		cleanupTicker   *time.Ticker
		done            chan struct{}
		closeOnce       sync.Once

		clientRPS       int
		clientBurst     int
		cleanupInterval time.Duration
		idleTimeout     time.Duration
		maxClients      int
	}

	clientLimiter struct {
		limiter    *rate.Limiter
		lastAccess time.Time
		mu         sync.Mutex
	}
)

// NewInMemoryRateLimiter creates a rate limiter and starts its cleanup
// goroutine. Call Close when done.
//
//	rl := NewInMemoryRateLimiter(&Config{GlobalRPS: 100, ClientRPS: 50, UnAuthRPS: 20})
//	defer rl.Close()
func NewInMemoryRateLimiter(config *Config) *InMemoryRateLimiter {
	rl := &InMemoryRateLimiter{
		global:          rate.NewLimiter(rate.Limit(config.GlobalRPS), computeBurstCapacity(config.GlobalRPS, config.GlobalBurst)),
		perClient:       make(map[string]*clientLimiter),
		unauthenticated: rate.NewLimiter(rate.Limit(config.UnAuthRPS), computeBurstCapacity(config.UnAuthRPS, config.UnAuthBurst)),
		done:            make(chan struct{}),
		clientRPS:       config.ClientRPS,
		clientBurst:     computeBurstCapacity(config.ClientRPS, config.ClientBurst),
		cleanupInterval: config.CleanupInterval,
		idleTimeout:     config.IdleTimeout,
		maxClients:      config.MaxClients,
	}

	rl.startCleanup()

	return rl
}

// computeBurstCapacity returns burstOverride when set, otherwise 2 × rate.
func computeBurstCapacity(rate, burstOverride int) int {
	if burstOverride > 0 {
		return burstOverride
	}

	return rate * burstCapacityMultiplier
}

// Allow implements RateLimiter.
func (rl *InMemoryRateLimiter) Allow(clientID string) bool {
	if !rl.global.Allow() {
		return false
	}

	if clientID == "" {
		return rl.unauthenticated.Allow()
	}

	cl := rl.clientLimiter(clientID)

	cl.mu.Lock()
	cl.lastAccess = time.Now()
	cl.mu.Unlock()

	return cl.limiter.Allow()
}

// clientLimiter returns the bucket of clientID, creating it on first use.
func (rl *InMemoryRateLimiter) clientLimiter(clientID string) *clientLimiter {
	rl.mu.RLock()
	cl, ok := rl.perClient[clientID]
	rl.mu.RUnlock()

	if ok {
		return cl
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if cl, ok = rl.perClient[clientID]; ok {
		return cl
	}

	cl = &clientLimiter{
		limiter:    rate.NewLimiter(rate.Limit(rl.clientRPS), rl.clientBurst),
		lastAccess: time.Now(),
	}
	rl.perClient[clientID] = cl

	if count, threshold := len(rl.perClient), int(float64(rl.maxClients)*thresholdMultiplier); count >= threshold {
		slog.Warn("rate limiter approaching max clients limit",
			"current_clients", count,
			"max_clients", rl.maxClients,
			"threshold_percent", thresholdPercentage,
		)
	}

	return cl
}

// Close stops the cleanup goroutine. It is safe to call more than once.
func (rl *InMemoryRateLimiter) Close() {
	rl.closeOnce.Do(func() {
		if rl.cleanupTicker != nil {
			rl.cleanupTicker.Stop()
		}

		close(rl.done)
	})
}

func (rl *InMemoryRateLimiter) startCleanup() {
	cleanupInterval := rl.cleanupInterval
	if cleanupInterval == 0 {
		cleanupInterval = rateLimiterCleanupInterval
	}

	rl.cleanupTicker = time.NewTicker(cleanupInterval)

	go func() {
		for {
			select {
			case <-rl.cleanupTicker.C:
				rl.cleanup()
			case <-rl.done:
				return
			}
		}
	}()
}

// cleanup removes client limiters that haven't been accessed recently.
func (rl *InMemoryRateLimiter) cleanup() {
	idleTimeout := rl.idleTimeout
	if idleTimeout == 0 {
		idleTimeout = rateLimiterIdleTimeout
	}

	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	for clientID, cl := range rl.perClient {
		cl.mu.Lock()
		lastAccess := cl.lastAccess
		cl.mu.Unlock()

		if now.Sub(lastAccess) > idleTimeout {
			delete(rl.perClient, clientID)
		}
	}
}

// RateLimit returns a middleware that answers 429 when limiter refuses a
// request. It must run after authentication to see the ClientContext.
// Public endpoints are not limited so that probes keep working under load.
func RateLimit(limiter RateLimiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublicEndpoint(r.URL.Path) {
				next.ServeHTTP(w, r)

				return
			}

			clientID := ""
			if clientCtx, ok := GetClientContext(r.Context()); ok {
				clientID = clientCtx.ClientID
			}

			if !limiter.Allow(clientID) {
				logger.Warn("rate limit exceeded",
					slog.String("client_id", clientID),
					slog.String("path", r.URL.Path),
					slog.String("correlation_id", GetCorrelationID(r.Context())),
				)

				w.Header().Set("Retry-After", "1")
				writeProblem(w, r, logger, http.StatusTooManyRequests,
					"Rate limit exceeded. Please retry after some time.")

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
