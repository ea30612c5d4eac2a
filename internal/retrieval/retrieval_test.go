package retrieval

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bhm-spectra/specviewer/internal/archive"
	"github.com/bhm-spectra/specviewer/internal/catalog"
	"github.com/bhm-spectra/specviewer/internal/fetch"
	"github.com/bhm-spectra/specviewer/internal/identifier"
	"github.com/bhm-spectra/specviewer/internal/spectrum"
	"github.com/bhm-spectra/specviewer/internal/spectrum/spectrumtest"
)

// fakeArchive serves registered files and 404s everything else, counting every call.
type fakeArchive struct {
	mu     sync.Mutex
	files  map[string][]byte
	faults map[string]error
	calls  map[string]int
	order  []string
	delay  time.Duration
}

func newFakeArchive() *fakeArchive {
	return &fakeArchive{
		files:  make(map[string][]byte),
		faults: make(map[string]error),
		calls:  make(map[string]int),
	}
}

func (f *fakeArchive) Fetch(_ context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	f.calls[url]++
	f.order = append(f.order, url)
	data, ok := f.files[url]
	fault := f.faults[url]
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	if fault != nil {
		return nil, fault
	}

	if !ok {
		return nil, &fetch.HTTPError{URL: url, StatusCode: 404}
	}

	return data, nil
}

func (f *fakeArchive) serve(url string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.files[url] = data
}

func (f *fakeArchive) callsTo(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.calls[url]
}

func (f *fakeArchive) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.order)
}

func (f *fakeArchive) fetched() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.order...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustID(t *testing.T, field, mjd, object string) identifier.ID {
	t.Helper()

	id, err := identifier.Normalize(field, mjd, object)
	require.NoError(t, err)

	return id
}

func mustURL(t *testing.T, id identifier.ID, branch string) string {
	t.Helper()

	url, err := archive.Resolve(id, branch)
	require.NoError(t, err)

	return url
}

func candidateURLs(t *testing.T, id identifier.ID) []string {
	t.Helper()

	var urls []string
	for _, b := range archive.NewPolicy(archive.BranchLists{}).Candidates(id, "") {
		urls = append(urls, mustURL(t, id, b))
	}

	return urls
}

func specFile(field, mjd int32, object int64, run2d, obs string) []byte {
	return spectrumtest.MustEncode(spectrumtest.Default(field, mjd, object, run2d, obs))
}

func newSearcher(fetcher fetch.Fetcher, metrics *Metrics) *Searcher {
	return NewSearcher(
		archive.NewPolicy(archive.BranchLists{}),
		fetcher,
		spectrum.NewParser(discardLogger()),
		metrics,
		discardLogger(),
	)
}

func newEngine(t *testing.T, fetcher fetch.Fetcher, index catalog.Index) *Engine {
	t.Helper()

	engine, err := NewEngine(&Config{ResultCacheSize: 16}, archive.DefaultSettings(), fetcher, index, nil, discardLogger())
	require.NoError(t, err)

	return engine
}

func TestSearcher_FallbackOrder(t *testing.T) {
	fake := newFakeArchive()
	id := mustID(t, "101126", "60477", "63050394846126565")
	urls := candidateURLs(t, id)
	require.Greater(t, len(urls), 4)

	fake.serve(mustURL(t, id, "v6_1_3"), specFile(101126, 60477, 63050394846126565, "v6_1_3", "APO"))

	metrics := NewMetrics(nil)

	res, err := newSearcher(fake, metrics).Search(context.Background(), id, "")
	require.NoError(t, err)

	assert.Equal(t, "v6_1_3", res.Branch)
	assert.Equal(t, urls[:4], fake.fetched(), "candidates are tried in order until the first success")
	require.Len(t, res.Attempts, 4)

	for _, a := range res.Attempts[:3] {
		assert.Equal(t, OutcomeNotFound, a.Outcome)
	}

	assert.Equal(t, OutcomeFound, res.Attempts[3].Outcome)
	assert.Equal(t, "v6_1_3", res.Spectrum.Metadata.Run2D)
	assert.InDelta(t, 3.0, testutil.ToFloat64(metrics.attempts.WithLabelValues("not_found")), 0)
	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.searches.WithLabelValues("found")), 0)
}

func TestSearcher_Exhausted(t *testing.T) {
	fake := newFakeArchive()
	id := mustID(t, "15171", "59281", "4350951054")
	urls := candidateURLs(t, id)

	_, err := newSearcher(fake, nil).Search(context.Background(), id, "")
	require.ErrorIs(t, err, ErrResolutionFailed)

	var resErr *ResolutionError
	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, id.String(), resErr.ID)
	assert.Len(t, resErr.Attempts, len(urls))
	assert.False(t, resErr.Faulted())

	for _, url := range urls {
		assert.Equal(t, 1, fake.callsTo(url), url)
	}
}

func TestSearcher_FaultsContinueSearch(t *testing.T) {
	fake := newFakeArchive()
	id := mustID(t, "101126", "60477", "63050394846126565")
	urls := candidateURLs(t, id)

	boom := errors.New("connection refused")
	fake.faults[urls[0]] = boom
	fake.serve(urls[1], []byte("not a fits file"))
	fake.serve(urls[2], specFile(101126, 60477, 63050394846126565, "v6_2_0", "APO"))

	res, err := newSearcher(fake, nil).Search(context.Background(), id, "")
	require.NoError(t, err)

	require.Len(t, res.Attempts, 3)
	assert.Equal(t, OutcomeFault, res.Attempts[0].Outcome)
	assert.ErrorIs(t, res.Attempts[0].Err, boom)
	assert.Equal(t, OutcomeFault, res.Attempts[1].Outcome)
	assert.ErrorIs(t, res.Attempts[1].Err, spectrum.ErrMalformed)
	assert.Equal(t, urls[2], res.URL)
}

func TestSearcher_FaultedExhaustionKeepsCauses(t *testing.T) {
	fake := newFakeArchive()
	id := mustID(t, "3606", "55182", "42")

	for _, url := range candidateURLs(t, id) {
		fake.faults[url] = fetch.ErrRetriesExhausted
	}

	_, err := newSearcher(fake, nil).Search(context.Background(), id, "")
	require.ErrorIs(t, err, ErrResolutionFailed)
	assert.ErrorIs(t, err, fetch.ErrRetriesExhausted)

	var resErr *ResolutionError
	require.ErrorAs(t, err, &resErr)
	assert.True(t, resErr.Faulted())
}

func TestSearcher_ExplicitBranch(t *testing.T) {
	fake := newFakeArchive()
	id := mustID(t, "101126", "60477", "63050394846126565")

	_, err := newSearcher(fake, nil).Search(context.Background(), id, "V6_1_1")
	require.Error(t, err)

	assert.Equal(t, []string{mustURL(t, id, "v6_1_1")}, fake.fetched())
}

func TestSearcher_StopsOnCancel(t *testing.T) {
	fake := newFakeArchive()
	id := mustID(t, "101126", "60477", "63050394846126565")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newSearcher(fake, nil).Search(ctx, id, "")
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, fake.total())
}

func TestExpectation(t *testing.T) {
	assert.Equal(t, spectrum.Expectation{}, expectation(mustID(t, "101126", "60477", "1"), "master"))
	assert.Equal(t, spectrum.Expectation{Branch: "v6_1_3"}, expectation(mustID(t, "101126", "60477", "1"), "v6_1_3"))
	assert.Equal(t, spectrum.Expectation{Branch: "v6_2_0", Observatory: "LCO"},
		expectation(mustID(t, "allepoch_lco", "60000", "1"), "v6_2_0"))
	assert.Equal(t, spectrum.Expectation{Observatory: "APO"},
		expectation(mustID(t, "allepoch_apo", "60000", "1"), "master"))
}

func TestEngine_KnownGoodObject(t *testing.T) {
	fake := newFakeArchive()
	id := mustID(t, "101126", "60477", "63050394846126565")
	fake.serve(mustURL(t, id, "v6_1_3"), specFile(101126, 60477, 63050394846126565, "v6_1_3", "APO"))

	engine := newEngine(t, fetch.NewMemo(fake, 8), nil)

	bundle, err := engine.Aggregate(context.Background(), Request{
		Field:  "101126",
		MJD:    "60477",
		Object: "63050394846126565",
	})
	require.NoError(t, err)

	require.Len(t, bundle.Traces, 1)
	trace := bundle.Traces[0]
	assert.Equal(t, "60477", trace.Name)
	assert.Equal(t, KindEpoch, trace.Kind)
	assert.Equal(t, "v6_1_3", trace.Branch)
	assert.Len(t, trace.Wavelength, 3)
	assert.Equal(t, len(trace.Wavelength), len(trace.Flux))
	assert.Equal(t, len(trace.Wavelength), len(trace.Error))

	assert.Equal(t, "101126-60477-63050394846126565", bundle.Identifier)
	assert.Equal(t, "63050394846126565", bundle.Metadata.CatalogID)
	assert.Equal(t, "SDSS J123456.89+012345.6", bundle.Metadata.IAUName)
	assert.Equal(t, "v6_1_3", bundle.Metadata.Run2D)
}

func TestEngine_InvalidIdentifierMakesNoRequests(t *testing.T) {
	fake := newFakeArchive()
	engine := newEngine(t, fake, nil)

	tests := []struct {
		name string
		req  Request
	}{
		{name: "non-numeric object", req: Request{Field: "101126", MJD: "60477", Object: "abc"}},
		{name: "missing object", req: Request{Field: "101126", MJD: "60477"}},
		{name: "missing mjd", req: Request{Field: "101126", Object: "1"}},
		{name: "bad field", req: Request{Field: "x12", MJD: "60477", Object: "1"}},
		{name: "bad extra", req: Request{Field: "101126", MJD: "60477", Object: "1", Extras: "101126-60477"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.Aggregate(context.Background(), tt.req)
			require.ErrorIs(t, err, identifier.ErrInvalidIdentifier)
			assert.NotErrorIs(t, err, ErrNoData)
		})
	}

	assert.Equal(t, 0, fake.total())
}

func TestEngine_ExhaustedFallbackIsNoData(t *testing.T) {
	fake := newFakeArchive()
	engine := newEngine(t, fake, nil)
	id := mustID(t, "15171", "59281", "4350951054")

	_, err := engine.Aggregate(context.Background(), Request{Field: "15171", MJD: "59281", Object: "4350951054"})
	require.ErrorIs(t, err, ErrNoData)
	assert.ErrorIs(t, err, ErrResolutionFailed)

	var noData *NoDataError
	require.ErrorAs(t, err, &noData)
	assert.Equal(t, id.String(), noData.ID)

	for _, url := range candidateURLs(t, id) {
		assert.Equal(t, 1, fake.callsTo(url), url)
	}
}

func TestEngine_ErrorsAreNotCached(t *testing.T) {
	fake := newFakeArchive()
	engine := newEngine(t, fake, nil)
	id := mustID(t, "15171", "59281", "4350951054")
	req := Request{Field: "15171", MJD: "59281", Object: "4350951054"}

	_, err := engine.Aggregate(context.Background(), req)
	require.ErrorIs(t, err, ErrNoData)

	fake.serve(mustURL(t, id, "master"), specFile(15171, 59281, 4350951054, "master", "APO"))

	first, err := engine.Aggregate(context.Background(), req)
	require.NoError(t, err)

	calls := fake.total()

	second, err := engine.Aggregate(context.Background(), req)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, calls, fake.total(), "cached bundles make no requests")
}

func TestEngine_ConcurrentAggregationsFetchEachURLOnce(t *testing.T) {
	fake := newFakeArchive()
	fake.delay = 20 * time.Millisecond

	id := mustID(t, "101126", "60477", "63050394846126565")
	extra := mustID(t, "15171", "59281", "4350951054")

	fake.serve(mustURL(t, id, "master"), specFile(101126, 60477, 63050394846126565, "master", "APO"))
	fake.serve(mustURL(t, extra, "master"), specFile(15171, 59281, 4350951054, "master", "APO"))

	engine := newEngine(t, fetch.NewMemo(fake, 64), nil)

	requests := []Request{
		{Field: "101126", MJD: "60477", Object: "63050394846126565"},
		{Field: "101126", MJD: "60477", Object: "63050394846126565", Extras: "15171-59281-4350951054"},
	}

	const workers = 16

	bundles := make([]*Bundle, workers)

	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			b, err := engine.Aggregate(context.Background(), requests[i%len(requests)])
			assert.NoError(t, err)

			bundles[i] = b
		}(i)
	}

	wg.Wait()

	for url, n := range fake.calls {
		assert.Equal(t, 1, n, url)
	}

	for i := range bundles {
		assert.Equal(t, bundles[i%len(requests)], bundles[i])
	}

	require.Len(t, bundles[1].Traces, 2)
	assert.Equal(t, KindExtra, bundles[1].Traces[0].Kind, "extras sort by epoch with the object's own traces")
	assert.Equal(t, "15171-59281-4350951054", bundles[1].Traces[0].Name)
	assert.Equal(t, "63050394846126565", bundles[1].Metadata.CatalogID)
}

func TestEngine_PinnedStack(t *testing.T) {
	fake := newFakeArchive()
	id := mustID(t, "allepoch_lco", "60000", "63050395106956948")
	fake.serve(mustURL(t, id, "master"), specFile(0, 60000, 63050395106956948, "master", "LCO"))

	bundle, err := newEngine(t, fake, nil).Aggregate(context.Background(), Request{
		Field: "allepoch_lco", MJD: "60000", Object: "63050395106956948",
	})
	require.NoError(t, err)

	require.Len(t, bundle.Traces, 1)
	assert.Equal(t, FPSStackName, bundle.Traces[0].Name)
	assert.Equal(t, KindStack, bundle.Traces[0].Kind)
	assert.Equal(t, "LCO", bundle.Metadata.Observatory)
}

const indexJSON = `[
  {"bhm_rm": [15171, 15172, 101126, "all"]},
  {"bhm_rm-all": [4350951054], "15171": [4350951054]},
  {
    "4350951054": [[15171, 59281, 17.2, 59281.25], [15172, 59290, 17.4, 59290.5], [101126, 60400, 17.1, 60400]],
    "27021600949438682": [[112359, 60500, 18.0, 60500]]
  },
  {"4350951054": [27021600949438682, 99]}
]`

func newIndex(t *testing.T) *catalog.MemoryIndex {
	t.Helper()

	d, err := catalog.Decode(strings.NewReader(indexJSON))
	require.NoError(t, err)

	return catalog.NewMemoryIndex(d, discardLogger())
}

// serveObject registers the epochs and stacks of 4350951054, except the 15172 epoch.
func serveObject(t *testing.T, fake *fakeArchive) {
	t.Helper()

	const object = 4350951054

	fake.serve(mustURL(t, mustID(t, "15171", "59281", "4350951054"), "master"),
		specFile(15171, 59281, object, "master", "APO"))
	fake.serve(mustURL(t, mustID(t, "101126", "60400", "4350951054"), "master"),
		specFile(101126, 60400, object, "master", "LCO"))
	fake.serve(mustURL(t, mustID(t, "allepoch", "59290", "4350951054"), "master"),
		specFile(0, 59290, object, "master", "APO"))
	fake.serve(mustURL(t, mustID(t, "allepoch_lco", "60400", "4350951054"), "master"),
		specFile(0, 60400, object, "master", "LCO"))
}

func TestEngine_IndexMode(t *testing.T) {
	fake := newFakeArchive()
	serveObject(t, fake)

	bundle, err := newEngine(t, fake, newIndex(t)).Aggregate(context.Background(), Request{
		Field: "all", Object: "4350951054",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"59281.25", "60400", PlateStackName, FPSStackName}, bundle.Names(),
		"failed epochs are skipped and stacks come last")
	assert.Equal(t, 59290, bundle.Traces[2].MJD, "the plate stack is named after the latest plate epoch")
	assert.Equal(t, identifier.AllEpochLCO, bundle.Traces[3].Field)

	require.NotNil(t, bundle.Metadata.MJD)
	assert.Equal(t, int64(60400), *bundle.Metadata.MJD, "metadata comes from the latest single epoch")

	apo := mustURL(t, mustID(t, "allepoch_apo", "60400", "4350951054"), "master")
	assert.Zero(t, fake.callsTo(apo), "the FPS stack follows the latest FPS observatory")
}

func TestEngine_IndexModeStackOnly(t *testing.T) {
	fake := newFakeArchive()
	serveObject(t, fake)

	bundle, err := newEngine(t, fake, newIndex(t)).Aggregate(context.Background(), Request{
		Field: "allepoch", Object: "4350951054",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{PlateStackName}, bundle.Names())
}

func TestEngine_IndexModeEpochFilter(t *testing.T) {
	fake := newFakeArchive()
	serveObject(t, fake)

	bundle, err := newEngine(t, fake, newIndex(t)).Aggregate(context.Background(), Request{
		Field: "all", MJD: "60400", Object: "4350951054",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"60400"}, bundle.Names())
}

func TestEngine_FPSStackWithUnknownObservatory(t *testing.T) {
	fake := newFakeArchive()

	fake.serve(mustURL(t, mustID(t, "allepoch_lco", "60400", "4350951054"), "master"),
		specFile(0, 60400, 4350951054, "master", "LCO"))

	bundle, err := newEngine(t, fake, newIndex(t)).Aggregate(context.Background(), Request{
		Field: "all", Object: "4350951054",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{FPSStackName}, bundle.Names())
	assert.Equal(t, 1, fake.callsTo(mustURL(t, mustID(t, "allepoch_apo", "60400", "4350951054"), "master")),
		"both observatories are tried when no FPS epoch resolved")
}

func TestEngine_CrossReference(t *testing.T) {
	fake := newFakeArchive()
	serveObject(t, fake)

	linked := mustID(t, "112359", "60500", "27021600949438682")
	fake.serve(mustURL(t, linked, "master"), specFile(112359, 60500, 27021600949438682, "master", "APO"))

	engine := newEngine(t, fake, newIndex(t))

	plain, err := engine.Aggregate(context.Background(), Request{Field: "all", Object: "4350951054"})
	require.NoError(t, err)

	crossed, err := engine.Aggregate(context.Background(), Request{Field: "all", Object: "4350951054", CrossRef: true})
	require.NoError(t, err)

	assert.NotSame(t, plain, crossed, "the cross-reference flag is part of the cache key")
	assert.Equal(t, []string{"59281.25", "60400", "60500", PlateStackName, FPSStackName}, crossed.Names())
	assert.Equal(t, "27021600949438682", crossed.Traces[2].Object)

	require.NotNil(t, crossed.Metadata.MJD)
	assert.Equal(t, int64(60500), *crossed.Metadata.MJD, "a later linked epoch supplies the metadata")
	assert.Equal(t, "27021600949438682", crossed.Metadata.CatalogID)

	require.NotNil(t, plain.Metadata.MJD)
	assert.Equal(t, int64(60400), *plain.Metadata.MJD)
}

func TestEngine_IndexErrors(t *testing.T) {
	t.Run("unknown object", func(t *testing.T) {
		_, err := newEngine(t, newFakeArchive(), newIndex(t)).Aggregate(context.Background(), Request{
			Field: "all", Object: "12345",
		})
		require.ErrorIs(t, err, ErrNoData)
		assert.ErrorIs(t, err, catalog.ErrUnknownObject)
	})

	t.Run("no index configured", func(t *testing.T) {
		fake := newFakeArchive()

		_, err := newEngine(t, fake, nil).Aggregate(context.Background(), Request{Object: "4350951054"})
		require.ErrorIs(t, err, ErrNoData)
		assert.ErrorIs(t, err, ErrNoIndex)
		assert.Equal(t, 0, fake.total())
	})

	t.Run("nothing resolves", func(t *testing.T) {
		_, err := newEngine(t, newFakeArchive(), newIndex(t)).Aggregate(context.Background(), Request{
			Field: "all", Object: "4350951054",
		})
		require.ErrorIs(t, err, ErrNoData)
	})
}

func TestEngine_Candidates(t *testing.T) {
	engine := newEngine(t, newFakeArchive(), nil)
	id := mustID(t, "101126", "60477", "63050394846126565")

	candidates, err := engine.Candidates("101126", "60477", "63050394846126565", "")
	require.NoError(t, err)

	urls := candidateURLs(t, id)
	require.Len(t, candidates, len(urls))

	for i, c := range candidates {
		assert.Equal(t, urls[i], c.URL)
	}

	assert.Equal(t, archive.SelectorMaster, candidates[0].Branch)

	_, err = engine.Candidates("all", "", "1", "")
	assert.ErrorIs(t, err, archive.ErrUnresolvable)

	_, err = engine.Candidates("101126", "", "1", "")
	assert.ErrorIs(t, err, identifier.ErrInvalidIdentifier)
}

func TestEngine_Verify(t *testing.T) {
	fake := newFakeArchive()
	engine := newEngine(t, fake, nil)

	require.Error(t, engine.Verify(context.Background()))

	target := archive.DefaultSettings().Verification
	id := mustID(t, target.Field, target.MJD, target.Object)
	fake.serve(mustURL(t, id, "master"), specFile(112359, 60086, 27021600949438682, "master", "APO"))

	require.NoError(t, engine.Verify(context.Background()))
}

func TestSortTraces(t *testing.T) {
	traces := []Trace{
		{Name: FPSStackName, Kind: KindStack, MJD: 60400},
		{Name: "b", Kind: KindEpoch, MJD: 59290},
		{Name: PlateStackName, Kind: KindStack, MJD: 59290},
		{Name: "a", Kind: KindEpoch, MJD: 59290},
		{Name: "c", Kind: KindExtra, MJD: 59000},
	}

	sortTraces(traces)

	names := make([]string, len(traces))
	for i := range traces {
		names[i] = traces[i].Name
	}

	assert.Equal(t, []string{"c", "a", "b", PlateStackName, FPSStackName}, names)
}

func TestRepresentative(t *testing.T) {
	withMJD := func(mjd int64, catalogID string) spectrum.Metadata {
		meta := spectrum.UnknownMetadata()
		meta.MJD = &mjd
		meta.CatalogID = catalogID

		return meta
	}

	tests := []struct {
		name   string
		traces []Trace
		want   string
	}{
		{
			name: "latest epoch across primary and linked objects",
			traces: []Trace{
				{Kind: KindEpoch, MJD: 59281, Object: "1", metadata: withMJD(59281, "1")},
				{Kind: KindEpoch, MJD: 60500, Object: "2", metadata: withMJD(60500, "2")},
				{Kind: KindStack, MJD: 60600, Object: "1", metadata: withMJD(60600, "stack")},
			},
			want: "2",
		},
		{
			name: "extras never supply metadata",
			traces: []Trace{
				{Kind: KindEpoch, MJD: 59281, Object: "1", metadata: withMJD(59281, "1")},
				{Kind: KindExtra, MJD: 60900, Object: "9", metadata: withMJD(60900, "9")},
			},
			want: "1",
		},
		{
			name: "stack when no epoch resolved",
			traces: []Trace{
				{Kind: KindExtra, MJD: 60900, Object: "9", metadata: withMJD(60900, "9")},
				{Kind: KindStack, MJD: 60400, Object: "1", metadata: withMJD(60400, "stack")},
			},
			want: "stack",
		},
		{
			name:   "only extras",
			traces: []Trace{{Kind: KindExtra, MJD: 60900, Object: "9", metadata: withMJD(60900, "9")}},
			want:   spectrum.Unknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, representative(tt.traces).CatalogID)
		})
	}
}

func TestConfig(t *testing.T) {
	assert.NoError(t, (&Config{}).Validate())
	assert.ErrorIs(t, (&Config{ResultCacheSize: -1}).Validate(), ErrInvalidCacheSize)

	t.Setenv("SPECVIEWER_RESULT_CACHE_SIZE", "7")
	assert.Equal(t, 7, LoadConfig().ResultCacheSize)

	_, err := NewEngine(&Config{ResultCacheSize: -1}, nil, newFakeArchive(), nil, nil, discardLogger())
	assert.ErrorIs(t, err, ErrInvalidCacheSize)
}
