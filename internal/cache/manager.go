// Package cache provides the TTL-bounded read-through cache used for product
// listings and favorites.
package cache

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"golang.org/x/sync/singleflight"

	"github.com/angelmondragon/packfinderz-storefront/pkg/logger"
	"github.com/angelmondragon/packfinderz-storefront/pkg/metrics"
)

// Producer loads the value for a key on a miss.
type Producer[T any] func(ctx context.Context) (T, error)

// Options configures a Manager.
type Options struct {
	// Name labels metrics and log entries.
	Name string
	TTL  time.Duration
	// MaxSize bounds the number of entries; zero means unbounded.
	MaxSize int
	Now     func() time.Time
	Metrics *metrics.CacheMetrics
	Logger  *logger.Logger
}

type prefixStamp struct {
	prefix string
	at     uint64
}

type entry[T any] struct {
	value    T
	storedAt time.Time
	ttl      time.Duration
}

func (e entry[T]) live(now time.Time) bool {
	return now.Before(e.storedAt.Add(e.ttl))
}

// Manager is a string-keyed TTL cache with least-recently-used eviction.
// Concurrent misses for the same key share a single producer call.
type Manager[T any] struct {
	opts Options

	mu      sync.Mutex
	entries *simplelru.LRU[string, entry[T]]
	// While producers run, stamps and prefixes record the clock value of each
	// invalidation. A producer that read clock before a matching stamp must not
	// store its result. Both are reset once no producer is running.
	stamps   map[string]uint64
	prefixes []prefixStamp
	clock    uint64
	inflight int

	group singleflight.Group
}

// New builds a Manager. TTL must be positive.
func New[T any](opts Options) (*Manager[T], error) {
	if opts.TTL <= 0 {
		return nil, fmt.Errorf("cache %q: ttl must be positive", opts.Name)
	}
	if opts.MaxSize < 0 {
		return nil, fmt.Errorf("cache %q: max size must not be negative", opts.Name)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	size := opts.MaxSize
	if size == 0 {
		size = math.MaxInt32
	}
	entries, err := simplelru.NewLRU[string, entry[T]](size, nil)
	if err != nil {
		return nil, fmt.Errorf("cache %q: %w", opts.Name, err)
	}
	return &Manager[T]{
		opts:    opts,
		entries: entries,
		stamps:  make(map[string]uint64),
	}, nil
}

// FetchWithCache returns the live value for key or calls producer, stores its
// result with a fresh timestamp and returns it. Producer errors are not cached.
// Invalidating key while producer runs keeps the result out of the cache;
// invalidating other keys does not.
func (m *Manager[T]) FetchWithCache(ctx context.Context, key string, producer Producer[T]) (T, error) {
	if value, ok := m.Get(key); ok {
		m.opts.Metrics.IncHit(m.opts.Name)
		return value, nil
	}

	result, err, _ := m.group.Do(key, func() (any, error) {
		m.mu.Lock()
		if value, ok := m.lookup(key); ok {
			m.mu.Unlock()
			return value, nil
		}
		started := m.clock
		m.inflight++
		m.mu.Unlock()

		m.opts.Metrics.IncMiss(m.opts.Name)
		value, err := producer(ctx)

		m.mu.Lock()
		defer m.mu.Unlock()
		if err == nil && !m.invalidatedSince(key, started) {
			m.store(key, value)
		}
		m.inflight--
		if m.inflight == 0 {
			clear(m.stamps)
			m.prefixes = nil
		}
		return value, err
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result.(T), nil
}

// Get returns the live value for key without calling a producer.
func (m *Manager[T]) Get(key string) (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lookup(key)
}

// Set stores value under key with a fresh timestamp.
func (m *Manager[T]) Set(key string, value T) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store(key, value)
}

// Invalidate forces the next read of key to call its producer.
func (m *Manager[T]) Invalidate(key string) {
	m.mu.Lock()
	m.invalidate(key)
	m.mu.Unlock()
	m.group.Forget(key)
}

// InvalidatePrefix drops every entry whose key starts with prefix. Producers
// already running for keys with that prefix do not store their result.
func (m *Manager[T]) InvalidatePrefix(prefix string) {
	m.mu.Lock()
	var dropped []string
	for _, key := range m.entries.Keys() {
		if strings.HasPrefix(key, prefix) {
			dropped = append(dropped, key)
		}
	}
	for _, key := range dropped {
		m.entries.Remove(key)
	}
	if m.inflight > 0 {
		m.clock++
		m.prefixes = append(m.prefixes, prefixStamp{prefix: prefix, at: m.clock})
	}
	m.mu.Unlock()
	for _, key := range dropped {
		m.group.Forget(key)
	}
}

// Purge drops every expired entry and reports how many were removed.
func (m *Manager[T]) Purge() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.opts.Now()
	removed := 0
	for _, key := range m.entries.Keys() {
		if ent, ok := m.entries.Peek(key); ok && !ent.live(now) {
			m.entries.Remove(key)
			removed++
		}
	}
	return removed
}

// Name returns the label the cache reports metrics under.
func (m *Manager[T]) Name() string {
	return m.opts.Name
}

// Len reports the number of stored entries, live or not yet reaped.
func (m *Manager[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries.Len()
}

// lookup expects mu to be held.
func (m *Manager[T]) lookup(key string) (T, bool) {
	ent, ok := m.entries.Get(key)
	if !ok {
		var zero T
		return zero, false
	}
	if !ent.live(m.opts.Now()) {
		m.entries.Remove(key)
		var zero T
		return zero, false
	}
	return ent.value, true
}

// store expects mu to be held.
func (m *Manager[T]) store(key string, value T) {
	evicted := m.entries.Add(key, entry[T]{value: value, storedAt: m.opts.Now(), ttl: m.opts.TTL})
	if evicted {
		m.opts.Metrics.IncEviction(m.opts.Name)
		m.opts.Logger.Debug(m.opts.Logger.WithField(context.Background(), "cache", m.opts.Name), "cache.evicted")
	}
}

// invalidate expects mu to be held.
func (m *Manager[T]) invalidate(key string) {
	m.entries.Remove(key)
	if m.inflight > 0 {
		m.clock++
		m.stamps[key] = m.clock
	}
}

// invalidatedSince expects mu to be held.
func (m *Manager[T]) invalidatedSince(key string, started uint64) bool {
	if m.stamps[key] > started {
		return true
	}
	for _, p := range m.prefixes {
		if p.at > started && strings.HasPrefix(key, p.prefix) {
			return true
		}
	}
	return false
}
