package favorites

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/multierr"

	"github.com/angelmondragon/packfinderz-storefront/internal/cache"
	"github.com/angelmondragon/packfinderz-storefront/internal/products"
	pkgerrors "github.com/angelmondragon/packfinderz-storefront/pkg/errors"
	"github.com/angelmondragon/packfinderz-storefront/pkg/logger"
	"github.com/angelmondragon/packfinderz-storefront/pkg/metrics"
)

const defaultRefreshAttempts = 3

// Params groups dependencies for a favorites State.
type Params struct {
	UserID    string
	Service   Service
	Persister Persister
	// Cache holds the backend list; nil reads the backend every time.
	Cache           *cache.Manager[[]products.Product]
	RefreshAttempts int
	Metrics         *metrics.CheckoutMetrics
	Logger          *logger.Logger
}

// RevertDetails is attached to STATE_REVERTED errors.
type RevertDetails struct {
	ProductID int64 `json:"productId"`
	Favorite  bool  `json:"favorite"`
}

// State is one user's favorite set. ids and items always have the same
// length and order.
type State struct {
	params Params

	mu    sync.RWMutex
	ids   []int64
	items []products.Product
	// pending counts toggles per product whose backend call has not returned.
	pending map[int64]int
	// settled advances whenever a toggle's backend call returns.
	settled uint64
	// tail is closed when the most recently queued toggle finishes.
	tail chan struct{}

	notifyMu sync.Mutex
	subsMu   sync.Mutex
	subs     map[int]func(Event)
	nextSub  int
}

func NewState(params Params) (*State, error) {
	if params.Service == nil {
		return nil, fmt.Errorf("favorites service required")
	}
	if params.UserID == "" {
		return nil, fmt.Errorf("user id required")
	}
	if params.RefreshAttempts <= 0 {
		params.RefreshAttempts = defaultRefreshAttempts
	}
	done := make(chan struct{})
	close(done)
	return &State{
		params:  params,
		pending: make(map[int64]int),
		tail:    done,
		subs:    make(map[int]func(Event)),
	}, nil
}

// Load restores the persisted favorites.
func (s *State) Load(ctx context.Context) error {
	if s.params.Persister == nil {
		return nil
	}
	ids, items, err := s.params.Persister.LoadFavorites(ctx)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load favorites")
	}
	ids, items = dedupe(ids, items)

	s.mu.Lock()
	s.ids, s.items = ids, items
	s.notifyMu.Lock()
	event := Event{Kind: EventLoaded, IDs: append([]int64{}, ids...)}
	s.mu.Unlock()
	s.publish(event)
	return nil
}

// Toggle flips membership of product locally, then asks the backend to do
// the same. Backend calls run one at a time in the order toggles were made.
// If the call fails the local flip is undone and a STATE_REVERTED error is
// returned. The returned bool is the membership this toggle set.
func (s *State) Toggle(ctx context.Context, product products.Product) (bool, error) {
	if product.ID <= 0 {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "product id must be positive")
	}
	ctx = s.params.Logger.WithFields(ctx, map[string]any{"user_id": s.params.UserID, "product_id": product.ID})

	s.mu.Lock()
	ids, items, favorite := flip(s.ids, s.items, product)
	if err := s.persist(ctx, ids, items); err != nil {
		s.mu.Unlock()
		return !favorite, err
	}
	s.ids, s.items = ids, items
	s.pending[product.ID]++
	prev := s.tail
	done := make(chan struct{})
	s.tail = done
	s.notifyMu.Lock()
	event := Event{Kind: EventToggled, ProductID: product.ID, IDs: append([]int64{}, ids...)}
	s.mu.Unlock()
	s.publish(event)

	var callErr error
	select {
	case <-prev:
		callErr = s.params.Service.Toggle(ctx, product.ID)
		close(done)
	case <-ctx.Done():
		callErr = ctx.Err()
		go func() {
			<-prev
			close(done)
		}()
	}

	if callErr == nil {
		s.mu.Lock()
		if s.params.Cache != nil {
			s.params.Cache.Invalidate(CacheKey(s.params.UserID))
		}
		s.settle(product.ID)
		s.mu.Unlock()
		return favorite, nil
	}
	return !favorite, s.revert(ctx, product, callErr)
}

// revert undoes one toggle by flipping membership again.
func (s *State) revert(ctx context.Context, product products.Product, cause error) error {
	s.mu.Lock()
	s.settle(product.ID)
	ids, items, favorite := flip(s.ids, s.items, product)
	persistErr := s.persist(ctx, ids, items)
	s.ids, s.items = ids, items
	s.notifyMu.Lock()
	event := Event{Kind: EventReverted, ProductID: product.ID, IDs: append([]int64{}, ids...)}
	s.mu.Unlock()
	s.publish(event)

	s.params.Metrics.IncFavoriteRevert()
	s.params.Logger.Warn(ctx, "favorites.toggle_reverted")

	netErr := pkgerrors.Wrap(pkgerrors.CodeDependency, cause, "favorites toggle failed")
	return pkgerrors.Wrap(pkgerrors.CodeStateReverted, multierr.Append(netErr, persistErr), "favorite change reverted").
		WithDetails(RevertDetails{ProductID: product.ID, Favorite: favorite})
}

// FetchFromBackend replaces the local set with the backend list. Products
// with toggles still in flight keep their local membership. When a toggle
// returns while the list is being fetched the result is discarded and the
// list fetched again; after the configured attempts a CONFLICT is returned.
func (s *State) FetchFromBackend(ctx context.Context) error {
	ctx = s.params.Logger.WithUserID(ctx, s.params.UserID)
	key := CacheKey(s.params.UserID)

	for attempt := 1; attempt <= s.params.RefreshAttempts; attempt++ {
		s.mu.RLock()
		startSettled := s.settled
		s.mu.RUnlock()

		remote, err := s.list(ctx, key)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch favorites")
		}

		s.mu.Lock()
		if s.settled != startSettled {
			s.mu.Unlock()
			if s.params.Cache != nil {
				s.params.Cache.Invalidate(key)
			}
			s.params.Logger.Info(s.params.Logger.WithField(ctx, "attempt", attempt), "favorites.refresh_raced")
			continue
		}
		ids, items := s.merge(remote)
		if err := s.persist(ctx, ids, items); err != nil {
			s.mu.Unlock()
			return err
		}
		s.ids, s.items = ids, items
		s.notifyMu.Lock()
		event := Event{Kind: EventRefreshed, IDs: append([]int64{}, ids...)}
		s.mu.Unlock()
		s.publish(event)
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeConflict, "favorites changed during refresh")
}

func (s *State) list(ctx context.Context, key string) ([]products.Product, error) {
	if s.params.Cache == nil {
		return s.params.Service.List(ctx)
	}
	list, err := s.params.Cache.FetchWithCache(ctx, key, s.params.Service.List)
	if err != nil {
		return nil, err
	}
	return products.CloneAll(list), nil
}

// merge expects mu to be held. Backend order wins; products with pending
// toggles keep their local membership and, when locally present but absent
// remotely, are appended.
func (s *State) merge(remote []products.Product) ([]int64, []products.Product) {
	local := make(map[int64]products.Product, len(s.items))
	for _, p := range s.items {
		local[p.ID] = p
	}

	ids := make([]int64, 0, len(remote))
	items := make([]products.Product, 0, len(remote))
	seen := make(map[int64]struct{}, len(remote))
	for _, p := range remote {
		if _, dup := seen[p.ID]; dup || p.ID <= 0 {
			continue
		}
		seen[p.ID] = struct{}{}
		if s.pending[p.ID] > 0 {
			if _, ok := local[p.ID]; !ok {
				continue
			}
		}
		ids = append(ids, p.ID)
		items = append(items, p.Clone())
	}
	for _, id := range s.ids {
		if _, ok := seen[id]; ok || s.pending[id] == 0 {
			continue
		}
		ids = append(ids, id)
		items = append(items, local[id].Clone())
	}
	return ids, items
}

// settle expects mu to be held.
func (s *State) settle(productID int64) {
	s.settled++
	if s.pending[productID] <= 1 {
		delete(s.pending, productID)
		return
	}
	s.pending[productID]--
}

// persist expects mu to be held.
func (s *State) persist(ctx context.Context, ids []int64, items []products.Product) error {
	if s.params.Persister == nil {
		return nil
	}
	if err := s.params.Persister.SaveFavorites(ctx, ids, items); err != nil {
		s.params.Logger.Error(ctx, "favorites.persist_failed", err)
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist favorites")
	}
	return nil
}

func (s *State) IsFavorite(productID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return indexOf(s.ids, productID) >= 0
}

func (s *State) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}

func (s *State) IDs() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]int64{}, s.ids...)
}

func (s *State) Products() []products.Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return products.CloneAll(s.items)
}

// Pending reports how many toggles are awaiting the backend.
func (s *State) Pending() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, n := range s.pending {
		total += n
	}
	return total
}

// Subscribe registers fn for every committed change. fn must not call Toggle
// or FetchFromBackend.
func (s *State) Subscribe(fn func(Event)) (unsubscribe func()) {
	s.subsMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subsMu.Lock()
			delete(s.subs, id)
			s.subsMu.Unlock()
		})
	}
}

// publish expects notifyMu to be held and releases it.
func (s *State) publish(event Event) {
	defer s.notifyMu.Unlock()

	s.subsMu.Lock()
	subs := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.subsMu.Unlock()

	for _, fn := range subs {
		fn(event)
	}
}

// flip returns copies of ids and items with product's membership inverted and
// the resulting membership.
func flip(ids []int64, items []products.Product, product products.Product) ([]int64, []products.Product, bool) {
	idx := indexOf(ids, product.ID)
	if idx >= 0 {
		nextIDs := make([]int64, 0, len(ids)-1)
		nextIDs = append(nextIDs, ids[:idx]...)
		nextIDs = append(nextIDs, ids[idx+1:]...)
		nextItems := make([]products.Product, 0, len(items)-1)
		nextItems = append(nextItems, items[:idx]...)
		nextItems = append(nextItems, items[idx+1:]...)
		return nextIDs, nextItems, false
	}
	nextIDs := append(append(make([]int64, 0, len(ids)+1), ids...), product.ID)
	nextItems := append(append(make([]products.Product, 0, len(items)+1), items...), product.Clone())
	return nextIDs, nextItems, true
}

func dedupe(ids []int64, items []products.Product) ([]int64, []products.Product) {
	if len(ids) != len(items) {
		return []int64{}, []products.Product{}
	}
	outIDs := make([]int64, 0, len(ids))
	outItems := make([]products.Product, 0, len(items))
	seen := make(map[int64]struct{}, len(ids))
	for i, id := range ids {
		if _, dup := seen[id]; dup || id != items[i].ID {
			continue
		}
		seen[id] = struct{}{}
		outIDs = append(outIDs, id)
		outItems = append(outItems, items[i].Clone())
	}
	return outIDs, outItems
}

func indexOf(ids []int64, id int64) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}
