package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
)

var (
	// ErrNotFound matches any HTTPError whose status means the file does not exist.
	ErrNotFound = errors.New("resource not found")

	// ErrRetriesExhausted is returned when every connection attempt failed.
	ErrRetriesExhausted = errors.New("connection retries exhausted")

	// ErrResponseTooLarge is returned when a body exceeds Config.MaxResponseBytes.
	ErrResponseTooLarge = errors.New("response body too large")
)

// HTTPError reports a non-2xx archive response.
type HTTPError struct {
	URL        string
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("archive returned %d %s for %s", e.StatusCode, http.StatusText(e.StatusCode), e.URL)
}

// Is lets errors.Is(err, ErrNotFound) match 404 and 410 responses.
func (e *HTTPError) Is(target error) bool {
	return target == ErrNotFound && (e.StatusCode == http.StatusNotFound || e.StatusCode == http.StatusGone)
}

// IsNotFound reports whether err means the requested file does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// StatusCode extracts the HTTP status from err, or 0 when err is not an HTTPError.
func StatusCode(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}

	return 0
}

type faultKind int

const (
	faultPermanent faultKind = iota
	faultConnect
	faultReset
)

// classify decides whether an attempt error is worth another try. parent is the
// caller's context; a deadline on it is final, a deadline on the attempt is not.
func classify(parent context.Context, err error) faultKind {
	if parent.Err() != nil {
		return faultPermanent
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) || errors.Is(err, ErrResponseTooLarge) {
		return faultPermanent
	}

	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, io.ErrUnexpectedEOF) {
		return faultReset
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, syscall.ECONNREFUSED) {
		return faultConnect
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return faultConnect
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return faultConnect
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return faultConnect
	}

	return faultPermanent
}

func (k faultKind) String() string {
	switch k {
	case faultConnect:
		return "connect"
	case faultReset:
		return "reset"
	default:
		return "permanent"
	}
}
