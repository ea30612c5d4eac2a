// Package retrieval turns user identifiers into bundles of plotted spectra.
//
// A Searcher resolves one identifier by walking its candidate reduction
// branches. The Engine builds on it: a pinned (field, mjd, object) yields one
// trace, while an object requested for all fields expands through the catalog
// index into every known epoch plus the all-epoch stacks. Bundles are cached
// by every input that affects them, and concurrent requests for the same
// bundle share one computation.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/bhm-spectra/specviewer/internal/archive"
	"github.com/bhm-spectra/specviewer/internal/cache"
	"github.com/bhm-spectra/specviewer/internal/catalog"
	"github.com/bhm-spectra/specviewer/internal/fetch"
	"github.com/bhm-spectra/specviewer/internal/identifier"
	"github.com/bhm-spectra/specviewer/internal/spectrum"
)

const (
	resultOK      = "ok"
	resultNoData  = "no_data"
	resultInvalid = "invalid"
	resultError   = "error"
)

// Request holds the raw aggregation inputs.
type Request struct {
	Field  string
	MJD    string
	Object string

	// Extras is a comma-separated list of "field-mjd-object[@branch]" comparison spectra.
	Extras string

	// CrossRef adds the epochs of objects linked to Object in the catalog index.
	CrossRef bool

	// Branch restricts or reorders the candidate branches. Empty means master.
	Branch string
}

// Candidate is one resolved location of an identifier.
type Candidate struct {
	Branch string `json:"branch"`
	URL    string `json:"url"`
}

// Engine aggregates spectra for objects.
//
// Thread Safety:
//
//	Engine is safe for concurrent use. Epochs within one aggregation are
//	fetched sequentially so trace order and logs are deterministic.
type Engine struct {
	searcher *Searcher
	index    catalog.Index
	settings *archive.Settings
	results  *cache.Memo[*Bundle]
	metrics  *Metrics
	logger   *slog.Logger
}

// NewEngine creates an aggregation engine. fetcher is typically a *fetch.Memo so
// that every URL is downloaded at most once at a time. index may be nil, in
// which case only pinned identifiers can be aggregated.
func NewEngine(
	cfg *Config,
	settings *archive.Settings,
	fetcher fetch.Fetcher,
	index catalog.Index,
	metrics *Metrics,
	logger *slog.Logger,
) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid retrieval config: %w", err)
	}

	if settings == nil {
		settings = archive.DefaultSettings()
	}

	searcher := NewSearcher(
		archive.NewPolicy(settings.Branches),
		fetcher,
		spectrum.NewParser(logger),
		metrics,
		logger,
	)

	return &Engine{
		searcher: searcher,
		index:    index,
		settings: settings,
		results:  cache.New[*Bundle](cfg.ResultCacheSize),
		metrics:  metrics,
		logger:   logger,
	}, nil
}

// Searcher returns the engine's fallback search.
func (e *Engine) Searcher() *Searcher {
	return e.searcher
}

// CacheStats returns the result cache counters.
func (e *Engine) CacheStats() cache.Stats {
	return e.results.Stats()
}

// Candidates normalizes an identifier and renders every URL the fallback
// search would try for it, without any network access.
func (e *Engine) Candidates(field, mjd, object, branch string) ([]Candidate, error) {
	id, err := identifier.Normalize(field, mjd, object)
	if err != nil {
		return nil, err
	}

	branches := e.searcher.Candidates(id, branch)
	candidates := make([]Candidate, 0, len(branches))

	for _, b := range branches {
		url, err := archive.Resolve(id, b)
		if err != nil {
			return nil, err
		}

		candidates = append(candidates, Candidate{Branch: b, URL: url})
	}

	return candidates, nil
}

// Aggregate returns the bundle for req.
//
// Invalid identifiers fail with identifier.ErrInvalidIdentifier before any
// network access. A valid identifier with nothing retrievable fails with a
// *NoDataError. Bundles are cached; errors are not.
func (e *Engine) Aggregate(ctx context.Context, req Request) (*Bundle, error) {
	id, err := identifier.Normalize(req.Field, req.MJD, req.Object)
	if err != nil {
		e.metrics.observeAggregation(resultInvalid, 0)

		return nil, err
	}

	extras, err := identifier.ParseExtras(req.Extras)
	if err != nil {
		e.metrics.observeAggregation(resultInvalid, 0)

		return nil, err
	}

	branch := archive.NormalizeBranch(req.Branch)
	key := cacheKey(id, extras, req.CrossRef, branch)

	bundle, err := e.results.Do(ctx, key, func(ctx context.Context) (*Bundle, error) {
		b, err := e.aggregate(ctx, id, extras, req.CrossRef, branch)

		switch {
		case err == nil:
			e.metrics.observeAggregation(resultOK, len(b.Traces))
		case errors.Is(err, ErrNoData):
			e.metrics.observeAggregation(resultNoData, 0)
		default:
			e.metrics.observeAggregation(resultError, 0)
		}

		return b, err
	})
	if err != nil {
		return nil, err
	}

	return bundle, nil
}

func cacheKey(id identifier.ID, extras []identifier.Extra, crossRef bool, branch string) string {
	names := make([]string, len(extras))
	for i, x := range extras {
		names[i] = x.String()
	}

	return strings.Join([]string{
		id.String(),
		strings.Join(names, ","),
		strconv.FormatBool(crossRef),
		branch,
	}, "|")
}

func (e *Engine) aggregate(
	ctx context.Context,
	id identifier.ID,
	extras []identifier.Extra,
	crossRef bool,
	branch string,
) (*Bundle, error) {
	var traces []Trace

	if id.HasMJD() && !id.Field.IsAll() {
		res, err := e.searcher.Search(ctx, id, branch)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}

			return nil, &NoDataError{ID: id.String(), Cause: err}
		}

		traces = append(traces, newTrace(pinnedName(id), pinnedKind(id), id, res))
	} else {
		indexed, err := e.indexedTraces(ctx, id, crossRef, branch)
		if err != nil {
			return nil, err
		}

		traces = append(traces, indexed...)
	}

	if len(traces) == 0 {
		return nil, &NoDataError{ID: id.String()}
	}

	for _, extra := range extras {
		extraBranch := extra.Branch
		if extraBranch == "" {
			extraBranch = branch
		}

		res, err := e.searcher.Search(ctx, extra.ID, extraBranch)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}

			e.logger.Warn("Skipping comparison spectrum",
				slog.String("extra", extra.String()),
				slog.String("error", err.Error()))

			continue
		}

		traces = append(traces, newTrace(extra.String(), KindExtra, extra.ID, res))
	}

	sortTraces(traces)

	e.logger.Info("Aggregated spectra",
		slog.String("id", id.String()),
		slog.Int("traces", len(traces)),
		slog.Bool("crossref", crossRef))

	return &Bundle{
		Identifier: id.String(),
		Metadata:   representative(traces),
		Traces:     traces,
	}, nil
}

// indexedTraces expands an object through the catalog index. Linked objects
// are added when crossRef is set; an object missing from the index only fails
// the aggregation when it is the primary one.
func (e *Engine) indexedTraces(ctx context.Context, id identifier.ID, crossRef bool, branch string) ([]Trace, error) {
	if e.index == nil {
		return nil, &NoDataError{ID: id.String(), Cause: ErrNoIndex}
	}

	traces, err := e.objectTraces(ctx, id, id.Object, branch)
	if err != nil {
		if errors.Is(err, catalog.ErrUnknownObject) {
			return nil, &NoDataError{ID: id.String(), Cause: err}
		}

		return nil, err
	}

	if !crossRef {
		return traces, nil
	}

	linked, err := e.index.Linked(ctx, id.Object)
	if err != nil {
		return nil, err
	}

	for _, other := range linked {
		if other == id.Object {
			continue
		}

		more, err := e.objectTraces(ctx, id, other, branch)
		if err != nil {
			if errors.Is(err, catalog.ErrUnknownObject) {
				e.logger.Warn("Linked object missing from index",
					slog.String("object", id.Object),
					slog.String("linked", other))

				continue
			}

			return nil, err
		}

		traces = append(traces, more...)
	}

	return traces, nil
}

// objectTraces fetches the epochs of one object, in index order, followed by
// its stacks. filter carries the requested field and MJD: a stack sentinel
// keeps only that stack, and an MJD keeps only that epoch and drops stacks.
func (e *Engine) objectTraces(ctx context.Context, filter identifier.ID, object, branch string) ([]Trace, error) {
	epochs, err := e.index.Epochs(ctx, object)
	if err != nil {
		return nil, err
	}

	var traces []Trace

	if !filter.Field.IsStack() {
		for _, epoch := range epochs {
			if filter.HasMJD() && int(epoch.MJD) != filter.MJD {
				continue
			}

			id := identifier.ID{Field: identifier.Field{Number: int(epoch.Field)}, MJD: int(epoch.MJD), Object: object}

			res, err := e.searcher.Search(ctx, id, branch)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}

				e.logger.Warn("Skipping epoch",
					slog.String("id", id.String()),
					slog.String("error", err.Error()))

				continue
			}

			traces = append(traces, newTrace(epoch.Label(), KindEpoch, id, res))
		}
	}

	if filter.HasMJD() {
		return traces, nil
	}

	stacks, err := e.stackTraces(ctx, filter.Field, object, epochs, traces, branch)
	if err != nil {
		return nil, err
	}

	return append(traces, stacks...), nil
}

// stackTraces fetches the plate and FPS all-epoch stacks of object. Only
// SDSS-V epochs contribute; each stack is named after the latest MJD of its
// set. The FPS stack is looked up under the observatory of the latest FPS
// trace, or under both observatories when that is unknown.
func (e *Engine) stackTraces(
	ctx context.Context,
	want identifier.Field,
	object string,
	epochs []catalog.Epoch,
	fetched []Trace,
	branch string,
) ([]Trace, error) {
	plateMJD, fpsMJD := 0, 0

	for _, epoch := range epochs {
		if identifier.ClassifyEra(int(epoch.Field)) != identifier.EraSDSSV {
			continue
		}

		mjd := int(epoch.MJD)
		if mjd < e.settings.FPSCutoffMJD {
			plateMJD = max(plateMJD, mjd)
		} else {
			fpsMJD = max(fpsMJD, mjd)
		}
	}

	var traces []Trace

	if plateMJD > 0 && (want.IsAll() || want.Sentinel == identifier.AllEpoch) {
		id := identifier.ID{Field: identifier.Field{Sentinel: identifier.AllEpoch}, MJD: plateMJD, Object: object}

		trace, ok, err := e.searchStack(ctx, []identifier.ID{id}, PlateStackName, branch)
		if err != nil {
			return nil, err
		}

		if ok {
			traces = append(traces, trace)
		}
	}

	if fpsMJD > 0 && (want.IsAll() || want.Sentinel == identifier.AllEpochAPO || want.Sentinel == identifier.AllEpochLCO) {
		var ids []identifier.ID

		for _, site := range e.fpsSites(want, fetched) {
			ids = append(ids, identifier.ID{Field: identifier.Field{Sentinel: site}, MJD: fpsMJD, Object: object})
		}

		trace, ok, err := e.searchStack(ctx, ids, FPSStackName, branch)
		if err != nil {
			return nil, err
		}

		if ok {
			traces = append(traces, trace)
		}
	}

	return traces, nil
}

func (e *Engine) fpsSites(want identifier.Field, fetched []Trace) []string {
	if want.IsStack() {
		return []string{want.Sentinel}
	}

	latest := -1

	for i := range fetched {
		if fetched[i].MJD < e.settings.FPSCutoffMJD || siteSentinel(fetched[i].Observatory) == "" {
			continue
		}

		if latest < 0 || fetched[i].MJD >= fetched[latest].MJD {
			latest = i
		}
	}

	if latest >= 0 {
		return []string{siteSentinel(fetched[latest].Observatory)}
	}

	return []string{identifier.AllEpochAPO, identifier.AllEpochLCO}
}

func siteSentinel(observatory string) string {
	switch strings.ToUpper(observatory) {
	case "APO":
		return identifier.AllEpochAPO
	case "LCO":
		return identifier.AllEpochLCO
	default:
		return ""
	}
}

// searchStack returns the first of ids that resolves. A missing stack is not an error.
func (e *Engine) searchStack(ctx context.Context, ids []identifier.ID, name, branch string) (Trace, bool, error) {
	for _, id := range ids {
		res, err := e.searcher.Search(ctx, id, branch)
		if err == nil {
			return newTrace(name, KindStack, id, res), true, nil
		}

		if ctx.Err() != nil {
			return Trace{}, false, ctx.Err()
		}

		e.logger.Warn("Skipping stack",
			slog.String("id", id.String()),
			slog.String("error", err.Error()))
	}

	return Trace{}, false, nil
}

func pinnedName(id identifier.ID) string {
	switch id.Field.Sentinel {
	case identifier.AllEpoch:
		return PlateStackName
	case identifier.AllEpochAPO, identifier.AllEpochLCO:
		return FPSStackName
	default:
		return strconv.Itoa(id.MJD)
	}
}

func pinnedKind(id identifier.ID) Kind {
	if id.Field.IsStack() {
		return KindStack
	}

	return KindEpoch
}

// Verify fetches the configured known-good spectrum once. It is used at
// startup to check credentials; callers log the error rather than exit.
func (e *Engine) Verify(ctx context.Context) error {
	target := e.settings.Verification

	id, err := identifier.Normalize(target.Field, target.MJD, target.Object)
	if err != nil {
		return fmt.Errorf("invalid verification target: %w", err)
	}

	res, err := e.searcher.Search(ctx, id, "")
	if err != nil {
		e.logger.Error("Archive verification failed",
			slog.String("id", id.String()),
			slog.String("error", err.Error()))

		return err
	}

	e.logger.Info("Archive verification succeeded",
		slog.String("id", id.String()),
		slog.String("branch", res.Branch))

	return nil
}
