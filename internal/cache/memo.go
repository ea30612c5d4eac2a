// Package cache provides the in-memory memo shared by the fetch and retrieval layers.
//
// A Memo combines a bounded LRU with per-key in-flight deduplication: at most
// one computation per key runs at a time, later callers wait for it and then
// read the stored value. Failed computations are never stored.
package cache

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// Stats is a snapshot of memo counters.
type Stats struct {
	Hits      int64
	Misses    int64
	Shared    int64
	Evictions int64
	Entries   int
}

// Memo is a concurrency-safe LRU keyed by string.
//
// Thread Safety:
//
//	Memo is safe for concurrent use. The entry map and LRU list are guarded by
//	one mutex; computations run outside it.
type Memo[V any] struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*list.Element
	lru      *list.List
	flight   singleflight.Group

	hits      atomic.Int64
	misses    atomic.Int64
	shared    atomic.Int64
	evictions atomic.Int64
}

type entry[V any] struct {
	key   string
	value V
}

// New creates a memo holding at most capacity entries. Zero or negative means unbounded.
func New[V any](capacity int) *Memo[V] {
	return &Memo[V]{
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		lru:      list.New(),
	}
}

// Get returns the stored value for key and marks it most recently used.
func (m *Memo[V]) Get(key string) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	elem, ok := m.entries[key]
	if !ok {
		var zero V

		return zero, false
	}

	m.lru.MoveToFront(elem)

	return elem.Value.(*entry[V]).value, true //nolint:forcetypeassert
}

// Add stores value under key, evicting the least recently used entry when full.
func (m *Memo[V]) Add(key string, value V) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if elem, ok := m.entries[key]; ok {
		elem.Value.(*entry[V]).value = value //nolint:forcetypeassert
		m.lru.MoveToFront(elem)

		return
	}

	m.entries[key] = m.lru.PushFront(&entry[V]{key: key, value: value})

	for m.capacity > 0 && m.lru.Len() > m.capacity {
		oldest := m.lru.Back()
		m.lru.Remove(oldest)
		delete(m.entries, oldest.Value.(*entry[V]).key) //nolint:forcetypeassert
		m.evictions.Add(1)
	}
}

// Remove drops key from the memo.
func (m *Memo[V]) Remove(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if elem, ok := m.entries[key]; ok {
		m.lru.Remove(elem)
		delete(m.entries, key)
	}
}

// Len returns the number of stored entries.
func (m *Memo[V]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.lru.Len()
}

// Do returns the stored value for key, or runs compute exactly once across all
// concurrent callers and stores its result.
//
// compute receives a context detached from any single caller's cancellation so
// that one caller giving up does not fail the others. Each caller still stops
// waiting when its own ctx is done.
func (m *Memo[V]) Do(ctx context.Context, key string, compute func(context.Context) (V, error)) (V, error) {
	if value, ok := m.Get(key); ok {
		m.hits.Add(1)

		return value, nil
	}

	detached := context.WithoutCancel(ctx)

	ch := m.flight.DoChan(key, func() (interface{}, error) {
		// A flight that finished between our Get and DoChan already stored the value.
		if value, ok := m.Get(key); ok {
			m.hits.Add(1)

			return value, nil
		}

		m.misses.Add(1)

		value, err := compute(detached)
		if err != nil {
			return nil, err
		}

		m.Add(key, value)

		return value, nil
	})

	select {
	case res := <-ch:
		if res.Shared {
			m.shared.Add(1)
		}

		if res.Err != nil {
			var zero V

			return zero, res.Err
		}

		return res.Val.(V), nil //nolint:forcetypeassert
	case <-ctx.Done():
		var zero V

		return zero, ctx.Err()
	}
}

// Stats returns a snapshot of the memo counters.
func (m *Memo[V]) Stats() Stats {
	return Stats{
		Hits:      m.hits.Load(),
		Misses:    m.misses.Load(),
		Shared:    m.shared.Load(),
		Evictions: m.evictions.Load(),
		Entries:   m.Len(),
	}
}
