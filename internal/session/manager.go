// Package session owns the per-user storefront state: cart, favorites and the
// checkout orchestrator, all restored from the user's snapshot on first use.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/packfinderz-storefront/internal/cache"
	"github.com/angelmondragon/packfinderz-storefront/internal/cart"
	"github.com/angelmondragon/packfinderz-storefront/internal/checkout"
	"github.com/angelmondragon/packfinderz-storefront/internal/favorites"
	"github.com/angelmondragon/packfinderz-storefront/internal/products"
	"github.com/angelmondragon/packfinderz-storefront/internal/snapshot"
	pkgerrors "github.com/angelmondragon/packfinderz-storefront/pkg/errors"
	"github.com/angelmondragon/packfinderz-storefront/pkg/kvstore"
	"github.com/angelmondragon/packfinderz-storefront/pkg/logger"
	"github.com/angelmondragon/packfinderz-storefront/pkg/metrics"
)

// OrderServiceFactory returns the order service acting for userID.
type OrderServiceFactory func(userID string) checkout.OrderService

// FavoritesServiceFactory returns the favorites service acting for userID.
type FavoritesServiceFactory func(userID string) favorites.Service

// Params groups dependencies for a Manager.
type Params struct {
	Store           kvstore.KeyValueStore
	Orders          OrderServiceFactory
	Favorites       FavoritesServiceFactory
	FavoritesCache  *cache.Manager[[]products.Product]
	RefreshAttempts int
	Metrics         *metrics.CheckoutMetrics
	Logger          *logger.Logger
	Now             func() time.Time
}

// Manager hands out one Session per user id.
type Manager struct {
	params Params

	mu       sync.Mutex
	sessions map[string]*Session
	// loading serializes the first load of each user so two requests cannot
	// restore the same snapshot twice.
	loading map[string]*sync.Mutex
}

func NewManager(params Params) (*Manager, error) {
	if params.Store == nil {
		return nil, fmt.Errorf("key value store required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order service factory required")
	}
	if params.Favorites == nil {
		return nil, fmt.Errorf("favorites service factory required")
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	return &Manager{
		params:   params,
		sessions: make(map[string]*Session),
		loading:  make(map[string]*sync.Mutex),
	}, nil
}

// Get returns the session for userID, building and loading it on first use.
func (m *Manager) Get(ctx context.Context, userID string) (*Session, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user id required")
	}

	m.mu.Lock()
	if sess, ok := m.sessions[userID]; ok {
		sess.touch(m.params.Now())
		m.mu.Unlock()
		return sess, nil
	}
	gate, ok := m.loading[userID]
	if !ok {
		gate = &sync.Mutex{}
		m.loading[userID] = gate
	}
	m.mu.Unlock()

	gate.Lock()
	defer gate.Unlock()

	m.mu.Lock()
	if sess, ok := m.sessions[userID]; ok {
		sess.touch(m.params.Now())
		m.mu.Unlock()
		return sess, nil
	}
	m.mu.Unlock()

	sess, err := m.build(ctx, userID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	sess.touch(m.params.Now())
	m.sessions[userID] = sess
	delete(m.loading, userID)
	m.mu.Unlock()

	m.params.Logger.Info(m.params.Logger.WithUserID(ctx, userID), "session.loaded")
	return sess, nil
}

func (m *Manager) build(ctx context.Context, userID string) (*Session, error) {
	ctx = m.params.Logger.WithUserID(ctx, userID)

	store, err := snapshot.New(m.params.Store, snapshot.NamespaceFor(userID), m.params.Logger)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "open snapshot")
	}

	c := cart.NewState(store, m.params.Logger)
	if err := c.Load(ctx); err != nil {
		return nil, err
	}

	favs, err := favorites.NewState(favorites.Params{
		UserID:          userID,
		Service:         m.params.Favorites(userID),
		Persister:       store,
		Cache:           m.params.FavoritesCache,
		RefreshAttempts: m.params.RefreshAttempts,
		Metrics:         m.params.Metrics,
		Logger:          m.params.Logger,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build favorites")
	}
	if err := favs.Load(ctx); err != nil {
		return nil, err
	}

	orch, err := checkout.NewOrchestrator(checkout.Params{
		Cart:    c,
		Orders:  m.params.Orders(userID),
		Metrics: m.params.Metrics,
		Logger:  m.params.Logger,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build checkout")
	}

	return &Session{
		UserID:       userID,
		Cart:         c,
		Favorites:    favs,
		Orchestrator: orch,
		snapshot:     store,
		results:      make(map[string]*checkout.Result),
	}, nil
}

// Len reports the number of loaded sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Flush rewrites every loaded snapshot. Failures are collected so one user's
// store error does not skip the rest.
func (m *Manager) Flush(ctx context.Context) error {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		sessions = append(sessions, sess)
	}
	m.mu.Unlock()

	var errs error
	for _, sess := range sessions {
		if err := sess.snapshot.Flush(ctx); err != nil {
			m.params.Logger.Error(m.params.Logger.WithUserID(ctx, sess.UserID), "session.flush_failed", err)
			errs = multierr.Append(errs, fmt.Errorf("flush %s: %w", sess.UserID, err))
		}
	}
	return errs
}

// EvictIdle flushes and forgets sessions not requested for idleFor. Sessions
// with a checkout or favorite toggle in flight are kept, as are sessions whose
// flush fails. A later Get reloads an evicted user from the store.
func (m *Manager) EvictIdle(ctx context.Context, idleFor time.Duration) (int, error) {
	if idleFor <= 0 {
		return 0, fmt.Errorf("idle duration must be positive")
	}
	cutoff := m.params.Now().Add(-idleFor)

	m.mu.Lock()
	var idle []*Session
	for _, sess := range m.sessions {
		if sess.idleSince(cutoff) && !sess.busy() {
			idle = append(idle, sess)
		}
	}
	m.mu.Unlock()

	var errs error
	evicted := 0
	for _, sess := range idle {
		if err := sess.snapshot.Flush(ctx); err != nil {
			m.params.Logger.Error(m.params.Logger.WithUserID(ctx, sess.UserID), "session.flush_failed", err)
			errs = multierr.Append(errs, fmt.Errorf("flush %s: %w", sess.UserID, err))
			continue
		}
		m.mu.Lock()
		if current, ok := m.sessions[sess.UserID]; ok && current == sess && sess.idleSince(cutoff) && !sess.busy() {
			delete(m.sessions, sess.UserID)
			evicted++
		}
		m.mu.Unlock()
	}
	if evicted > 0 {
		m.params.Logger.Info(m.params.Logger.WithField(ctx, "evicted", evicted), "session.idle_evicted")
	}
	return evicted, errs
}

// Close flushes every session and forgets them.
func (m *Manager) Close(ctx context.Context) error {
	err := m.Flush(ctx)
	m.mu.Lock()
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	return err
}
