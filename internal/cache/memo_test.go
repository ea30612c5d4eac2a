package cache

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemo_AddGet(t *testing.T) {
	memo := New[string](2)

	memo.Add("a", "1")
	memo.Add("b", "2")

	got, ok := memo.Get("a")
	require.True(t, ok)
	assert.Equal(t, "1", got)

	// "b" is now least recently used and gets evicted.
	memo.Add("c", "3")

	_, ok = memo.Get("b")
	assert.False(t, ok)

	_, ok = memo.Get("a")
	assert.True(t, ok)

	_, ok = memo.Get("c")
	assert.True(t, ok)

	assert.Equal(t, 2, memo.Len())
	assert.Equal(t, int64(1), memo.Stats().Evictions)
}

func TestMemo_Unbounded(t *testing.T) {
	memo := New[int](0)

	for i := range 1000 {
		memo.Add(strconv.Itoa(i), i)
	}

	assert.Equal(t, 1000, memo.Len())
	assert.Zero(t, memo.Stats().Evictions)
}

func TestMemo_AddOverwrites(t *testing.T) {
	memo := New[int](1)

	memo.Add("a", 1)
	memo.Add("a", 2)

	got, ok := memo.Get("a")
	require.True(t, ok)
	assert.Equal(t, 2, got)
	assert.Equal(t, 1, memo.Len())
}

func TestMemo_Remove(t *testing.T) {
	memo := New[int](4)
	memo.Add("a", 1)
	memo.Remove("a")
	memo.Remove("missing")

	_, ok := memo.Get("a")
	assert.False(t, ok)
}

func TestMemo_DoComputesOnce(t *testing.T) {
	memo := New[int](8)

	var calls atomic.Int32

	compute := func(context.Context) (int, error) {
		calls.Add(1)

		return 42, nil
	}

	for range 3 {
		got, err := memo.Do(context.Background(), "k", compute)
		require.NoError(t, err)
		assert.Equal(t, 42, got)
	}

	assert.Equal(t, int32(1), calls.Load())

	stats := memo.Stats()
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(2), stats.Hits)
}

func TestMemo_DoConcurrentCallersShareOneComputation(t *testing.T) {
	memo := New[[]int](8)

	var calls atomic.Int32

	release := make(chan struct{})
	compute := func(context.Context) ([]int, error) {
		calls.Add(1)
		<-release

		return []int{1, 2, 3}, nil
	}

	const callers = 16

	var (
		wg      sync.WaitGroup
		results = make([][]int, callers)
		errs    = make([]error, callers)
		started sync.WaitGroup
	)

	started.Add(callers)

	for i := range callers {
		wg.Add(1)

		go func() {
			defer wg.Done()
			started.Done()

			results[i], errs[i] = memo.Do(context.Background(), "k", compute)
		}()
	}

	started.Wait()
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())

	for i := range callers {
		require.NoError(t, errs[i])
		assert.Equal(t, []int{1, 2, 3}, results[i])
	}
}

func TestMemo_DoDoesNotStoreErrors(t *testing.T) {
	memo := New[int](8)
	boom := errors.New("boom")

	var calls atomic.Int32

	failing := func(context.Context) (int, error) {
		calls.Add(1)

		return 0, boom
	}

	_, err := memo.Do(context.Background(), "k", failing)
	require.ErrorIs(t, err, boom)

	_, err = memo.Do(context.Background(), "k", failing)
	require.ErrorIs(t, err, boom)

	assert.Equal(t, int32(2), calls.Load())
	assert.Zero(t, memo.Len())
}

func TestMemo_DoCallerCancellation(t *testing.T) {
	memo := New[int](8)
	release := make(chan struct{})

	var computeErr atomic.Value

	compute := func(ctx context.Context) (int, error) {
		<-release

		if ctx.Err() != nil {
			computeErr.Store(ctx.Err())
		}

		return 7, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		_, err := memo.Do(ctx, "k", compute)
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	close(release)

	// The detached computation still completes and stores its value.
	require.Eventually(t, func() bool {
		_, ok := memo.Get("k")

		return ok
	}, time.Second, 5*time.Millisecond)

	assert.Nil(t, computeErr.Load())
}
