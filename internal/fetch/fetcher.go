// Package fetch downloads archive files over HTTP.
//
// HTTPFetcher adds basic auth for the access-controlled area only, paces
// outbound requests, gives every attempt its own deadline and retries
// connection faults a bounded number of times. Memo layers per-URL in-flight
// deduplication and a small response cache on top of any Fetcher.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
)

// Fetcher returns the body of a successful GET for url.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Doer executes HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// CredentialProvider supplies basic auth credentials for the access-controlled area.
type CredentialProvider interface {
	BasicAuth() (username, password string, ok bool)
}

// HTTPFetcher is the archive transport.
type HTTPFetcher struct {
	config  *Config
	client  Doer
	creds   CredentialProvider
	limiter *rate.Limiter
	metrics *Metrics
	logger  *slog.Logger
}

// NewHTTPFetcher creates a transport. client defaults to a plain http.Client and
// creds may be nil when only public releases are read.
func NewHTTPFetcher(
	cfg *Config,
	client Doer,
	creds CredentialProvider,
	metrics *Metrics,
	logger *slog.Logger,
) (*HTTPFetcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid fetch config: %w", err)
	}

	if client == nil {
		client = &http.Client{}
	}

	return &HTTPFetcher{
		config:  cfg,
		client:  client,
		creds:   creds,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		metrics: metrics,
		logger:  logger,
	}, nil
}

// Fetch downloads url. Connection faults and per-attempt timeouts are retried
// up to Config.MaxAttempts times; a connection reset mid-transfer is retried
// once. HTTP error statuses are returned immediately as *HTTPError.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	start := time.Now()

	var (
		attempts  int
		resets    int
		lastFault faultKind
	)

	operation := func() ([]byte, error) {
		attempts++

		body, err := f.attempt(ctx, url)
		if err == nil {
			return body, nil
		}

		lastFault = classify(ctx, err)

		switch lastFault {
		case faultConnect:
			return nil, err
		case faultReset:
			resets++
			if resets > 1 {
				return nil, backoff.Permanent(err)
			}

			return nil, err
		default:
			return nil, backoff.Permanent(err)
		}
	}

	notify := func(err error, wait time.Duration) {
		f.metrics.observeRetry(lastFault)
		f.logger.Warn("Archive fetch attempt failed, retrying",
			slog.String("url", url),
			slog.Int("attempt", attempts),
			slog.String("fault", lastFault.String()),
			slog.Duration("wait", wait),
			slog.String("error", err.Error()),
		)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(f.config.RetryBackoff), uint64(f.config.MaxAttempts-1)), //nolint:gosec
		ctx,
	)

	body, err := backoff.RetryNotifyWithData(operation, policy, notify)
	if err != nil && lastFault != faultPermanent && ctx.Err() == nil {
		err = fmt.Errorf("%w: %s after %d attempts: %w", ErrRetriesExhausted, url, attempts, err)
	}

	f.metrics.observeResult(outcomeLabel(err), time.Since(start).Seconds(), len(body))

	if err != nil {
		return nil, err
	}

	f.logger.Debug("Archive fetch complete",
		slog.String("url", url),
		slog.Int("attempts", attempts),
		slog.Int("bytes", len(body)),
		slog.Duration("duration", time.Since(start)),
	)

	return body, nil
}

func (f *HTTPFetcher) attempt(ctx context.Context, url string) ([]byte, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("archive rate limiter: %w", err)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, f.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	if f.requiresAuth(url) && f.creds != nil {
		if username, password, ok := f.creds.BasicAuth(); ok {
			req.SetBasicAuth(username, password)
		}
	}

	f.metrics.observeAttempt()

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

		return nil, &HTTPError{URL: url, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.config.MaxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if int64(len(body)) > f.config.MaxResponseBytes {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrResponseTooLarge, url, f.config.MaxResponseBytes)
	}

	return body, nil
}

func (f *HTTPFetcher) requiresAuth(url string) bool {
	return f.config.AuthBase != "" && strings.HasPrefix(url, f.config.AuthBase)
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case IsNotFound(err):
		return "not_found"
	case StatusCode(err) != 0:
		return "http_error"
	case errors.Is(err, ErrRetriesExhausted):
		return "exhausted"
	default:
		return "error"
	}
}
