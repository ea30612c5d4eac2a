package retrieval

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/bhm-spectra/specviewer/internal/identifier"
	"github.com/bhm-spectra/specviewer/internal/spectrum"
)

// Trace names used for the all-epoch stacks.
const (
	PlateStackName = "allplate"
	FPSStackName   = "allFPS"
)

var (
	// ErrNoData is the parent of every NoDataError.
	ErrNoData = errors.New("no spectra found")

	// ErrNoIndex is returned when an aggregation needs the catalog index and none is configured.
	ErrNoIndex = errors.New("catalog index not configured")
)

// NoDataError reports a valid identifier for which nothing could be retrieved.
type NoDataError struct {
	ID    string
	Cause error
}

func (e *NoDataError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s for %s", ErrNoData, e.ID)
	}

	return fmt.Sprintf("%s for %s: %v", ErrNoData, e.ID, e.Cause)
}

// Unwrap exposes ErrNoData and the cause.
func (e *NoDataError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrNoData}
	}

	return []error{ErrNoData, e.Cause}
}

// Kind distinguishes single-epoch traces from stacks and comparison spectra.
type Kind string

const (
	KindEpoch Kind = "epoch"
	KindStack Kind = "stack"
	KindExtra Kind = "extra"
)

// Trace is one plotted spectrum.
type Trace struct {
	Name        string          `json:"name"`
	Kind        Kind            `json:"kind"`
	Object      string          `json:"object"`
	Field       string          `json:"field"`
	MJD         int             `json:"mjd"`
	Branch      string          `json:"branch"`
	URL         string          `json:"url"`
	Observatory string          `json:"observatory"`
	Wavelength  spectrum.Series `json:"wavelength"`
	Flux        spectrum.Series `json:"flux"`
	Error       spectrum.Series `json:"error"`

	metadata spectrum.Metadata
}

func newTrace(name string, kind Kind, id identifier.ID, res *Result) Trace {
	return Trace{
		Name:        name,
		Kind:        kind,
		Object:      id.Object,
		Field:       id.Field.Key(),
		MJD:         id.MJD,
		Branch:      res.Branch,
		URL:         res.URL,
		Observatory: res.Spectrum.Metadata.Observatory,
		Wavelength:  res.Spectrum.Wavelength,
		Flux:        res.Spectrum.Flux,
		Error:       res.Spectrum.Error,
		metadata:    res.Spectrum.Metadata,
	}
}

// Bundle is the result of one aggregation. Cached bundles are shared between
// callers and must be treated as read-only.
type Bundle struct {
	Identifier string            `json:"identifier"`
	Metadata   spectrum.Metadata `json:"metadata"`
	Traces     []Trace           `json:"traces"`
}

// Names returns the trace names in order.
func (b *Bundle) Names() []string {
	names := make([]string, len(b.Traces))
	for i := range b.Traces {
		names[i] = b.Traces[i].Name
	}

	return names
}

// sortTraces orders traces by epoch with stacks last. The sort is stable so
// equal keys keep their retrieval order.
func sortTraces(traces []Trace) {
	slices.SortStableFunc(traces, func(a, b Trace) int {
		if c := cmp.Compare(stackRank(a), stackRank(b)); c != 0 {
			return c
		}

		if c := cmp.Compare(a.MJD, b.MJD); c != 0 {
			return c
		}

		return strings.Compare(a.Name, b.Name)
	})
}

func stackRank(t Trace) int {
	if t.Kind == KindStack {
		return 1
	}

	return 0
}

// representative picks the metadata of the chronologically latest single-epoch
// trace, linked objects included, falling back to a stack. Extras are
// comparison spectra and never supply metadata.
func representative(traces []Trace) spectrum.Metadata {
	preferences := []func(Trace) bool{
		func(t Trace) bool { return t.Kind == KindEpoch },
		func(t Trace) bool { return t.Kind == KindStack },
	}

	for _, match := range preferences {
		best := -1

		for i := range traces {
			if !match(traces[i]) {
				continue
			}

			if best < 0 || traces[i].MJD >= traces[best].MJD {
				best = i
			}
		}

		if best >= 0 {
			return traces[best].metadata
		}
	}

	return spectrum.UnknownMetadata()
}
