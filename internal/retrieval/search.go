package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bhm-spectra/specviewer/internal/archive"
	"github.com/bhm-spectra/specviewer/internal/fetch"
	"github.com/bhm-spectra/specviewer/internal/identifier"
	"github.com/bhm-spectra/specviewer/internal/spectrum"
)

// ErrResolutionFailed is the parent of every exhausted fallback search.
var ErrResolutionFailed = errors.New("spectrum resolution failed")

// Outcome classifies one branch attempt.
type Outcome int

const (
	// OutcomeFound means the branch served a parseable spectrum.
	OutcomeFound Outcome = iota
	// OutcomeNotFound means the archive has no file at the branch URL.
	OutcomeNotFound
	// OutcomeFault covers every other failure: transport, auth, parse.
	OutcomeFault
)

// String returns the label used in logs and metrics.
func (o Outcome) String() string {
	switch o {
	case OutcomeFound:
		return "found"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeFault:
		return "fault"
	default:
		return "unknown"
	}
}

// Attempt records one branch tried by the fallback search.
type Attempt struct {
	Branch  string
	URL     string
	Outcome Outcome
	Err     error
}

// ResolutionError reports that no candidate branch produced a usable spectrum.
type ResolutionError struct {
	ID       string
	Attempts []Attempt
}

func (e *ResolutionError) Error() string {
	branches := make([]string, 0, len(e.Attempts))

	for _, a := range e.Attempts {
		branches = append(branches, a.Branch+"="+a.Outcome.String())
	}

	return fmt.Sprintf("%s: %s (tried %s)", ErrResolutionFailed, e.ID, strings.Join(branches, ", "))
}

// Unwrap exposes ErrResolutionFailed and the causes of faulted attempts.
func (e *ResolutionError) Unwrap() []error {
	errs := []error{ErrResolutionFailed}

	for _, a := range e.Attempts {
		if a.Outcome == OutcomeFault && a.Err != nil {
			errs = append(errs, a.Err)
		}
	}

	return errs
}

// Faulted reports whether any attempt failed for a reason other than a missing file.
func (e *ResolutionError) Faulted() bool {
	for _, a := range e.Attempts {
		if a.Outcome == OutcomeFault {
			return true
		}
	}

	return false
}

// Result is a resolved spectrum and the path that led to it.
type Result struct {
	Spectrum *spectrum.Spectrum
	Branch   string
	URL      string
	Attempts []Attempt
}

// Searcher walks the candidate branches of an identifier until one of them
// yields a parseable spectrum.
type Searcher struct {
	policy  *archive.Policy
	fetcher fetch.Fetcher
	parser  *spectrum.Parser
	metrics *Metrics
	logger  *slog.Logger
}

// NewSearcher creates a fallback search over fetcher.
func NewSearcher(
	policy *archive.Policy,
	fetcher fetch.Fetcher,
	parser *spectrum.Parser,
	metrics *Metrics,
	logger *slog.Logger,
) *Searcher {
	return &Searcher{
		policy:  policy,
		fetcher: fetcher,
		parser:  parser,
		metrics: metrics,
		logger:  logger,
	}
}

// Candidates returns the branches Search would try for id, in order.
func (s *Searcher) Candidates(id identifier.ID, branch string) []string {
	return s.policy.Candidates(id, branch)
}

// Search tries each candidate branch in order and returns the first success.
//
// Missing files continue the search silently. Any other fault is logged and
// the search still continues. Only cancellation of ctx stops it early. When
// every candidate fails the error is a *ResolutionError.
func (s *Searcher) Search(ctx context.Context, id identifier.ID, branch string) (*Result, error) {
	candidates := s.policy.Candidates(id, branch)
	attempts := make([]Attempt, 0, len(candidates))

	for _, b := range candidates {
		url, err := archive.Resolve(id, b)
		if err != nil {
			return nil, err
		}

		spec, err := s.try(ctx, id, b, url)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		attempt := Attempt{Branch: b, URL: url, Outcome: OutcomeFound, Err: err}

		switch {
		case err == nil:
			attempts = append(attempts, attempt)
			s.metrics.observeAttempt(OutcomeFound)
			s.metrics.observeSearch(true)

			return &Result{Spectrum: spec, Branch: b, URL: url, Attempts: attempts}, nil
		case fetch.IsNotFound(err):
			attempt.Outcome = OutcomeNotFound
			s.logger.Debug("Spectrum not on branch",
				slog.String("id", id.String()),
				slog.String("branch", b))
		default:
			attempt.Outcome = OutcomeFault
			s.logger.Warn("Spectrum fetch failed, trying next branch",
				slog.String("id", id.String()),
				slog.String("branch", b),
				slog.String("url", url),
				slog.String("error", err.Error()))
		}

		s.metrics.observeAttempt(attempt.Outcome)
		attempts = append(attempts, attempt)
	}

	s.metrics.observeSearch(false)

	return nil, &ResolutionError{ID: id.String(), Attempts: attempts}
}

func (s *Searcher) try(ctx context.Context, id identifier.ID, branch, url string) (*spectrum.Spectrum, error) {
	data, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}

	return s.parser.Parse(data, expectation(id, branch))
}

// expectation derives what the file header should say about itself. The
// master alias carries no concrete RUN2D, so it is not checked.
func expectation(id identifier.ID, branch string) spectrum.Expectation {
	var expect spectrum.Expectation

	if branch != archive.SelectorMaster {
		expect.Branch = branch
	}

	switch id.Field.Sentinel {
	case identifier.AllEpochAPO:
		expect.Observatory = "APO"
	case identifier.AllEpochLCO:
		expect.Observatory = "LCO"
	}

	return expect
}
