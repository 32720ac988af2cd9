package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/packfinderz-storefront/internal/checkout"
	"github.com/angelmondragon/packfinderz-storefront/internal/favorites"
	"github.com/angelmondragon/packfinderz-storefront/internal/orders"
	"github.com/angelmondragon/packfinderz-storefront/internal/products"
	pkgerrors "github.com/angelmondragon/packfinderz-storefront/pkg/errors"
	"github.com/angelmondragon/packfinderz-storefront/pkg/kvstore"
)

type noopFavorites struct{}

func (noopFavorites) Toggle(context.Context, int64) error { return nil }

func (noopFavorites) List(context.Context) ([]products.Product, error) {
	return []products.Product{}, nil
}

type flakyStore struct {
	*kvstore.MemoryStore
	fail atomic.Bool
}

func (f *flakyStore) Set(ctx context.Context, namespace string, value []byte) error {
	if f.fail.Load() {
		return errors.New("disk full")
	}
	return f.MemoryStore.Set(ctx, namespace, value)
}

func newTestManager(t *testing.T, store kvstore.KeyValueStore) *Manager {
	t.Helper()
	return newClockedManager(t, store, nil)
}

func newClockedManager(t *testing.T, store kvstore.KeyValueStore, now func() time.Time) *Manager {
	t.Helper()
	svc, err := orders.NewMemoryService(orders.MemoryOptions{PaymentBaseURL: "https://pay.example.com/checkout"})
	require.NoError(t, err)
	mgr, err := NewManager(Params{
		Store:     store,
		Orders:    func(string) checkout.OrderService { return svc },
		Favorites: func(string) favorites.Service { return noopFavorites{} },
		Now:       now,
	})
	require.NoError(t, err)
	return mgr
}

var widget = products.Product{ID: 1, Name: "Widget", Price: decimal.NewFromInt(25000), Stock: 5, SellerID: 7}

func TestGetReturnsSameSession(t *testing.T) {
	mgr := newTestManager(t, kvstore.NewMemoryStore())

	var wg sync.WaitGroup
	got := make([]*Session, 4)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sess, err := mgr.Get(context.Background(), "buyer")
			if err == nil {
				got[i] = sess
			}
		}(i)
	}
	wg.Wait()

	for _, sess := range got {
		require.NotNil(t, sess)
		assert.Same(t, got[0], sess)
	}
	assert.Equal(t, 1, mgr.Len())
}

func TestGetRequiresUserID(t *testing.T) {
	mgr := newTestManager(t, kvstore.NewMemoryStore())
	_, err := mgr.Get(context.Background(), "  ")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))
}

func TestSessionRestoresSnapshot(t *testing.T) {
	store := kvstore.NewMemoryStore()
	ctx := context.Background()

	first := newTestManager(t, store)
	sess, err := first.Get(ctx, "buyer")
	require.NoError(t, err)
	require.NoError(t, sess.Cart.Add(ctx, widget, 2))
	_, err = sess.Favorites.Toggle(ctx, widget)
	require.NoError(t, err)
	require.NoError(t, first.Close(ctx))

	second := newTestManager(t, store)
	restored, err := second.Get(ctx, "buyer")
	require.NoError(t, err)
	assert.Equal(t, 2, restored.Cart.ItemQuantity(widget.ID))
	assert.True(t, restored.Favorites.IsFavorite(widget.ID))

	other, err := second.Get(ctx, "someone-else")
	require.NoError(t, err)
	assert.Equal(t, 0, other.Cart.UniqueItemCount())
}

func TestSessionCheckoutAndRedirect(t *testing.T) {
	mgr := newTestManager(t, kvstore.NewMemoryStore())
	ctx := context.Background()
	sess, err := mgr.Get(ctx, "buyer")
	require.NoError(t, err)
	require.NoError(t, sess.Cart.Add(ctx, widget, 1))

	result, err := sess.Checkout(ctx, "")
	require.NoError(t, err)
	require.True(t, result.PaymentRequired)

	_, ok := sess.Result(result.IdempotencyKey)
	assert.True(t, ok)

	url, err := sess.CompleteRedirect(ctx, result.IdempotencyKey)
	require.NoError(t, err)
	assert.Equal(t, result.PrimaryPaymentURL, url)
	assert.Equal(t, 0, sess.Cart.UniqueItemCount())

	_, err = sess.CompleteRedirect(ctx, "unknown")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	_, err = sess.CompleteRedirect(ctx, "")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestRememberKeepsMostRecentResults(t *testing.T) {
	sess := &Session{results: make(map[string]*checkout.Result)}
	for i := 0; i < maxRetainedResults+2; i++ {
		sess.remember(&checkout.Result{IdempotencyKey: string(rune('a' + i))})
	}
	_, ok := sess.Result("a")
	assert.False(t, ok)
	_, ok = sess.Result(string(rune('a' + maxRetainedResults + 1)))
	assert.True(t, ok)
	assert.Len(t, sess.results, maxRetainedResults)
}

func TestFlushCollectsErrors(t *testing.T) {
	store := &flakyStore{MemoryStore: kvstore.NewMemoryStore()}
	mgr := newTestManager(t, store)
	ctx := context.Background()

	for _, user := range []string{"a", "b"} {
		sess, err := mgr.Get(ctx, user)
		require.NoError(t, err)
		require.NoError(t, sess.Cart.Add(ctx, widget, 1))
	}

	store.fail.Store(true)
	err := mgr.Flush(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flush a")
	assert.Contains(t, err.Error(), "flush b")

	store.fail.Store(false)
	assert.NoError(t, mgr.Flush(ctx))
}

func TestNewManagerValidates(t *testing.T) {
	_, err := NewManager(Params{})
	assert.Error(t, err)
}

func TestEvictIdleForgetsQuietSessions(t *testing.T) {
	store := &flakyStore{MemoryStore: kvstore.NewMemoryStore()}
	var mu sync.Mutex
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		now = now.Add(d)
		mu.Unlock()
	}

	mgr := newClockedManager(t, store, clock)
	ctx := context.Background()

	quiet, err := mgr.Get(ctx, "quiet")
	require.NoError(t, err)
	require.NoError(t, quiet.Cart.Add(ctx, widget, 2))
	_, err = mgr.Get(ctx, "busy")
	require.NoError(t, err)

	advance(20 * time.Minute)
	_, err = mgr.Get(ctx, "busy")
	require.NoError(t, err)
	advance(15 * time.Minute)

	store.fail.Store(true)
	evicted, err := mgr.EvictIdle(ctx, 30*time.Minute)
	require.Error(t, err)
	assert.Equal(t, 0, evicted)
	assert.Equal(t, 2, mgr.Len())

	store.fail.Store(false)
	evicted, err = mgr.EvictIdle(ctx, 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, evicted)
	assert.Equal(t, 1, mgr.Len())

	reloaded, err := mgr.Get(ctx, "quiet")
	require.NoError(t, err)
	assert.NotSame(t, quiet, reloaded)
	assert.Equal(t, 2, reloaded.Cart.ItemQuantity(widget.ID))

	_, err = mgr.EvictIdle(ctx, 0)
	assert.Error(t, err)
}
