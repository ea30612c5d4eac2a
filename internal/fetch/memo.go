package fetch

import (
	"context"

	"github.com/bhm-spectra/specviewer/internal/cache"
)

// Memo wraps a Fetcher with per-URL in-flight deduplication and a bounded
// response cache. At most one request per URL is outstanding at a time.
//
// Returned slices are shared between callers and must not be modified.
type Memo struct {
	next  Fetcher
	cache *cache.Memo[[]byte]
}

// NewMemo wraps next. size bounds the cached responses; 0 means unbounded.
func NewMemo(next Fetcher, size int) *Memo {
	return &Memo{
		next:  next,
		cache: cache.New[[]byte](size),
	}
}

// Fetch returns the cached body for url or fetches it once for all concurrent callers.
func (m *Memo) Fetch(ctx context.Context, url string) ([]byte, error) {
	return m.cache.Do(ctx, url, func(ctx context.Context) ([]byte, error) {
		return m.next.Fetch(ctx, url)
	})
}

// Forget drops url from the cache.
func (m *Memo) Forget(url string) {
	m.cache.Remove(url)
}

// Stats returns the memo counters.
func (m *Memo) Stats() cache.Stats {
	return m.cache.Stats()
}
