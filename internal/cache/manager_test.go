package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/packfinderz-storefront/pkg/metrics"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestManager(t *testing.T, ttl time.Duration, maxSize int) (*Manager[string], *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	mgr, err := New[string](Options{Name: "test", TTL: ttl, MaxSize: maxSize, Now: clock.Now})
	require.NoError(t, err)
	return mgr, clock
}

func countingProducer(calls *int32, value string) Producer[string] {
	return func(context.Context) (string, error) {
		atomic.AddInt32(calls, 1)
		return value, nil
	}
}

func TestFetchWithCacheCallsProducerOncePerWindow(t *testing.T) {
	t.Parallel()

	mgr, clock := newTestManager(t, 5*time.Minute, 0)
	var calls int32
	producer := countingProducer(&calls, "listing")

	for i := 0; i < 5; i++ {
		got, err := mgr.FetchWithCache(context.Background(), "products:page=1", producer)
		require.NoError(t, err)
		assert.Equal(t, "listing", got)
		clock.Advance(time.Minute - time.Second)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	clock.Advance(time.Minute)
	_, err := mgr.FetchWithCache(context.Background(), "products:page=1", producer)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))

	_, err = mgr.FetchWithCache(context.Background(), "products:page=1", producer)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestFetchWithCacheExpiresExactlyAtTTL(t *testing.T) {
	t.Parallel()

	mgr, clock := newTestManager(t, 3*time.Minute, 0)
	var calls int32
	producer := countingProducer(&calls, "favs")

	_, err := mgr.FetchWithCache(context.Background(), "favorites:7", producer)
	require.NoError(t, err)

	clock.Advance(3 * time.Minute)
	_, err = mgr.FetchWithCache(context.Background(), "favorites:7", producer)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestFetchWithCacheDoesNotCacheErrors(t *testing.T) {
	t.Parallel()

	mgr, _ := newTestManager(t, time.Minute, 0)
	boom := errors.New("backend down")
	var calls int32

	_, err := mgr.FetchWithCache(context.Background(), "k", func(context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "", boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, mgr.Len())

	got, err := mgr.FetchWithCache(context.Background(), "k", countingProducer(&calls, "ok"))
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestInvalidateForcesProducer(t *testing.T) {
	t.Parallel()

	mgr, _ := newTestManager(t, time.Minute, 0)
	var calls int32

	_, err := mgr.FetchWithCache(context.Background(), "favorites:1", countingProducer(&calls, "a"))
	require.NoError(t, err)
	mgr.Invalidate("favorites:1")

	got, err := mgr.FetchWithCache(context.Background(), "favorites:1", countingProducer(&calls, "b"))
	require.NoError(t, err)
	assert.Equal(t, "b", got)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestInvalidateDuringProducerSkipsStore(t *testing.T) {
	t.Parallel()

	mgr, _ := newTestManager(t, time.Minute, 0)

	got, err := mgr.FetchWithCache(context.Background(), "favorites:1", func(context.Context) (string, error) {
		mgr.Invalidate("favorites:1")
		return "stale", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "stale", got)

	_, ok := mgr.Get("favorites:1")
	assert.False(t, ok)
}

func TestInvalidateOtherKeyKeepsRunningProducerResult(t *testing.T) {
	t.Parallel()

	mgr, _ := newTestManager(t, time.Minute, 0)
	mgr.Set("favorites:b", "b")

	var calls int32
	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := mgr.FetchWithCache(context.Background(), "favorites:a", func(context.Context) (string, error) {
			atomic.AddInt32(&calls, 1)
			close(started)
			<-release
			return "a", nil
		})
		assert.NoError(t, err)
	}()

	<-started
	mgr.Invalidate("favorites:b")
	close(release)
	<-done

	got, err := mgr.FetchWithCache(context.Background(), "favorites:a", countingProducer(&calls, "a2"))
	require.NoError(t, err)
	assert.Equal(t, "a", got)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	_, ok := mgr.Get("favorites:b")
	assert.False(t, ok)
}

func TestInvalidatePrefixDuringProducerSkipsStore(t *testing.T) {
	t.Parallel()

	mgr, _ := newTestManager(t, time.Minute, 0)

	_, err := mgr.FetchWithCache(context.Background(), "products:seller:7", func(context.Context) (string, error) {
		mgr.InvalidatePrefix("products:")
		return "stale", nil
	})
	require.NoError(t, err)
	_, ok := mgr.Get("products:seller:7")
	assert.False(t, ok)

	_, err = mgr.FetchWithCache(context.Background(), "favorites:1", func(context.Context) (string, error) {
		mgr.InvalidatePrefix("products:")
		return "kept", nil
	})
	require.NoError(t, err)
	got, ok := mgr.Get("favorites:1")
	require.True(t, ok)
	assert.Equal(t, "kept", got)
}

func TestInvalidatePrefix(t *testing.T) {
	t.Parallel()

	mgr, _ := newTestManager(t, time.Minute, 0)
	mgr.Set("products:a", "1")
	mgr.Set("products:b", "2")
	mgr.Set("favorites:1", "3")

	mgr.InvalidatePrefix("products:")

	assert.Equal(t, 1, mgr.Len())
	_, ok := mgr.Get("favorites:1")
	assert.True(t, ok)
}

func TestPurgeDropsOnlyExpiredEntries(t *testing.T) {
	t.Parallel()

	mgr, clock := newTestManager(t, time.Minute, 0)
	mgr.Set("old", "1")
	clock.Advance(45 * time.Second)
	mgr.Set("fresh", "2")
	clock.Advance(30 * time.Second)

	assert.Equal(t, 1, mgr.Purge())
	assert.Equal(t, 1, mgr.Len())
	_, ok := mgr.Get("fresh")
	assert.True(t, ok)
	assert.Equal(t, 0, mgr.Purge())
	assert.Equal(t, "test", mgr.Name())
}

func TestLRUEviction(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	clock := &fakeClock{now: time.Unix(0, 0)}
	mgr, err := New[string](Options{
		Name:    "products",
		TTL:     time.Hour,
		MaxSize: 2,
		Now:     clock.Now,
		Metrics: metrics.NewCacheMetrics(reg),
	})
	require.NoError(t, err)

	mgr.Set("a", "1")
	mgr.Set("b", "2")
	_, ok := mgr.Get("a")
	require.True(t, ok)

	mgr.Set("c", "3")

	assert.Equal(t, 2, mgr.Len())
	_, ok = mgr.Get("b")
	assert.False(t, ok, "least recently used entry should be evicted")
	_, ok = mgr.Get("a")
	assert.True(t, ok)
	_, ok = mgr.Get("c")
	assert.True(t, ok)

	families, err := reg.Gather()
	require.NoError(t, err)
	var evictions float64
	for _, family := range families {
		if family.GetName() == "storefront_cache_evictions_total" {
			evictions = family.GetMetric()[0].GetCounter().GetValue()
		}
	}
	assert.Equal(t, float64(1), evictions)
}

func TestConcurrentMissesShareResult(t *testing.T) {
	t.Parallel()

	mgr, _ := newTestManager(t, time.Minute, 0)
	var calls int32
	release := make(chan struct{})
	producer := func(context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return "shared", nil
	}

	const workers = 8
	results := make([]string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := mgr.FetchWithCache(context.Background(), "k", producer)
			if err == nil {
				results[i] = v
			}
		}(i)
	}
	close(release)
	wg.Wait()

	for _, v := range results {
		assert.Equal(t, "shared", v)
	}
	assert.LessOrEqual(t, atomic.LoadInt32(&calls), int32(workers))
	assert.Equal(t, 1, mgr.Len())
}

func TestNewRejectsInvalidOptions(t *testing.T) {
	t.Parallel()

	_, err := New[int](Options{Name: "x"})
	assert.Error(t, err)
	_, err = New[int](Options{Name: "x", TTL: time.Second, MaxSize: -1})
	assert.Error(t, err)
}
