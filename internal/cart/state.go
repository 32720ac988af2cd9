// Package cart holds the in-memory cart of one session.
package cart

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/packfinderz-storefront/internal/products"
	pkgerrors "github.com/angelmondragon/packfinderz-storefront/pkg/errors"
	"github.com/angelmondragon/packfinderz-storefront/pkg/logger"
)

// Persister stores the cart between sessions.
type Persister interface {
	LoadCart(ctx context.Context) ([]Item, error)
	SaveCart(ctx context.Context, items []Item) error
}

// Snapshot is a consistent view of the cart taken under one lock.
type Snapshot struct {
	Items      []Item
	TotalPrice decimal.Decimal
}

// IsEmpty reports whether the snapshot has no items.
func (s Snapshot) IsEmpty() bool {
	return len(s.Items) == 0
}

// State is the authoritative cart for one session. Every mutation is applied
// to a copy, persisted, and only then made visible.
type State struct {
	persist Persister
	logg    *logger.Logger

	mu    sync.RWMutex
	items []Item

	// notifyMu keeps subscriber delivery in commit order.
	notifyMu sync.Mutex
	subsMu   sync.Mutex
	subs     map[int]func(Event)
	nextSub  int
}

// NewState builds an empty cart. A nil persister keeps the cart in memory only.
func NewState(persist Persister, logg *logger.Logger) *State {
	return &State{
		persist: persist,
		logg:    logg,
		subs:    make(map[int]func(Event)),
	}
}

// Load replaces the cart with the persisted one. Lines that no longer satisfy
// the quantity invariant are dropped.
func (s *State) Load(ctx context.Context) error {
	if s.persist == nil {
		return nil
	}
	loaded, err := s.persist.LoadCart(ctx)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart")
	}

	items := make([]Item, 0, len(loaded))
	seen := make(map[int64]struct{}, len(loaded))
	for _, item := range loaded {
		if _, dup := seen[item.ProductID]; dup || !item.valid() {
			s.logg.Warn(s.logg.WithField(ctx, "product_id", item.ProductID), "cart.load_dropped_item")
			continue
		}
		seen[item.ProductID] = struct{}{}
		items = append(items, item.clone())
	}

	s.mu.Lock()
	s.items = items
	s.notifyMu.Lock()
	event := Event{Kind: EventLoaded, Items: cloneItems(items)}
	s.mu.Unlock()
	s.publish(event)
	return nil
}

// Add puts quantity units of product in the cart, merging with an existing
// line. The merged quantity may not exceed product.Stock.
func (s *State) Add(ctx context.Context, product products.Product, quantity int) error {
	if product.ID <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "product id must be positive")
	}
	if quantity <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	return s.mutate(ctx, EventItemAdded, product.ID, func(items []Item) ([]Item, error) {
		idx := indexOf(items, product.ID)
		existing := 0
		if idx >= 0 {
			existing = items[idx].Quantity
		}
		requested := existing + quantity
		if requested > product.Stock {
			return nil, stockExceeded(product.Stock, requested)
		}
		if idx >= 0 {
			items[idx].Quantity = requested
			items[idx].refreshFrom(product)
			return items, nil
		}
		item := Item{ProductID: product.ID, Quantity: requested}
		item.refreshFrom(product)
		return append(items, item), nil
	})
}

// Remove drops the line for productID; absent lines are ignored.
func (s *State) Remove(ctx context.Context, productID int64) error {
	s.mu.RLock()
	present := indexOf(s.items, productID) >= 0
	s.mu.RUnlock()
	if !present {
		return nil
	}
	return s.mutate(ctx, EventItemRemoved, productID, func(items []Item) ([]Item, error) {
		return removeAt(items, indexOf(items, productID)), nil
	})
}

// UpdateQuantity sets the quantity of an existing line. A non-positive
// quantity removes it; a quantity above the recorded stock fails and leaves
// the line unchanged.
func (s *State) UpdateQuantity(ctx context.Context, productID int64, quantity int) error {
	if quantity <= 0 {
		return s.Remove(ctx, productID)
	}
	return s.mutate(ctx, EventItemUpdated, productID, func(items []Item) ([]Item, error) {
		idx := indexOf(items, productID)
		if idx < 0 {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
		}
		if quantity > items[idx].StockAtAddTime {
			return nil, stockExceeded(items[idx].StockAtAddTime, quantity)
		}
		items[idx].Quantity = quantity
		return items, nil
	})
}

// Clear empties the cart.
func (s *State) Clear(ctx context.Context) error {
	return s.mutate(ctx, EventCleared, 0, func([]Item) ([]Item, error) {
		return []Item{}, nil
	})
}

// RemoveOrdered takes the quantities of ordered out of the cart. Lines added
// or raised after ordered was captured keep the difference.
func (s *State) RemoveOrdered(ctx context.Context, ordered []Item) error {
	return s.mutate(ctx, EventCheckedOut, 0, func(items []Item) ([]Item, error) {
		taken := make(map[int64]int, len(ordered))
		for _, item := range ordered {
			taken[item.ProductID] += item.Quantity
		}
		kept := items[:0]
		for _, item := range items {
			item.Quantity -= taken[item.ProductID]
			if item.Quantity > 0 {
				kept = append(kept, item)
			}
		}
		return kept, nil
	})
}

// Items returns a copy of the cart lines in insertion order.
func (s *State) Items() []Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneItems(s.items)
}

// Snapshot returns the lines and their total as of one instant.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := cloneItems(s.items)
	return Snapshot{Items: items, TotalPrice: TotalOf(items)}
}

func (s *State) TotalPrice() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return TotalOf(s.items)
}

func (s *State) TotalItems() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, item := range s.items {
		total += item.Quantity
	}
	return total
}

func (s *State) UniqueItemCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// ItemQuantity returns zero for products not in the cart.
func (s *State) ItemQuantity(productID int64) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if idx := indexOf(s.items, productID); idx >= 0 {
		return s.items[idx].Quantity
	}
	return 0
}

// Subscribe registers fn for every committed mutation. fn runs synchronously
// after the change is visible and must not mutate the cart.
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

func (s *State) mutate(ctx context.Context, kind EventKind, productID int64, apply func([]Item) ([]Item, error)) error {
	s.mu.Lock()
	next, err := apply(cloneItems(s.items))
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if s.persist != nil {
		if err := s.persist.SaveCart(ctx, cloneItems(next)); err != nil {
			s.mu.Unlock()
			s.logg.Error(s.logg.WithField(ctx, "event", string(kind)), "cart.persist_failed", err)
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist cart")
		}
	}
	s.items = next
	s.notifyMu.Lock()
	event := Event{Kind: kind, ProductID: productID, Items: cloneItems(next)}
	s.mu.Unlock()

	s.publish(event)
	return nil
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

func stockExceeded(available, requested int) error {
	return pkgerrors.New(pkgerrors.CodeStockExceeded, "requested quantity exceeds available stock").
		WithDetails(StockExceededDetails{Available: available, Requested: requested})
}

func indexOf(items []Item, productID int64) int {
	for idx, item := range items {
		if item.ProductID == productID {
			return idx
		}
	}
	return -1
}

func removeAt(items []Item, idx int) []Item {
	if idx < 0 {
		return items
	}
	return append(items[:idx], items[idx+1:]...)
}
