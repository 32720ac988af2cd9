package session

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/angelmondragon/packfinderz-storefront/internal/cart"
	"github.com/angelmondragon/packfinderz-storefront/internal/checkout"
	"github.com/angelmondragon/packfinderz-storefront/internal/favorites"
	"github.com/angelmondragon/packfinderz-storefront/internal/snapshot"
	pkgerrors "github.com/angelmondragon/packfinderz-storefront/pkg/errors"
)

// maxRetainedResults bounds how many checkout results a session remembers
// for a later redirect.
const maxRetainedResults = 8

// Session is one user's storefront state.
type Session struct {
	UserID       string
	Cart         *cart.State
	Favorites    *favorites.State
	Orchestrator *checkout.Orchestrator

	snapshot *snapshot.Store
	// lastUsed is the unix nano time of the most recent Manager.Get.
	lastUsed atomic.Int64

	mu      sync.Mutex
	results map[string]*checkout.Result
	order   []string
}

// Checkout runs the orchestrator and remembers a result that still needs a
// payment redirect, keyed by its idempotency key.
func (s *Session) Checkout(ctx context.Context, note string) (*checkout.Result, error) {
	result, err := s.Orchestrator.Checkout(ctx, note)
	if err != nil {
		return nil, err
	}
	if result.PaymentRequired && result.IdempotencyKey != "" {
		s.remember(result)
	}
	return result, nil
}

// CompleteRedirect finishes the checkout identified by key and returns the
// URL the buyer should be sent to.
func (s *Session) CompleteRedirect(ctx context.Context, key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "checkout key required")
	}
	s.mu.Lock()
	result, ok := s.results[key]
	s.mu.Unlock()
	if !ok {
		return "", pkgerrors.New(pkgerrors.CodeNotFound, "checkout not found")
	}
	return s.Orchestrator.CompleteRedirect(ctx, result)
}

// Result returns the remembered checkout for key.
func (s *Session) Result(key string) (*checkout.Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result, ok := s.results[key]
	return result, ok
}

func (s *Session) remember(result *checkout.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.results[result.IdempotencyKey]; !ok {
		s.order = append(s.order, result.IdempotencyKey)
	}
	s.results[result.IdempotencyKey] = result
	for len(s.order) > maxRetainedResults {
		delete(s.results, s.order[0])
		s.order = s.order[1:]
	}
}

func (s *Session) touch(now time.Time) {
	s.lastUsed.Store(now.UnixNano())
}

func (s *Session) idleSince(cutoff time.Time) bool {
	return s.lastUsed.Load() < cutoff.UnixNano()
}

func (s *Session) busy() bool {
	return s.Orchestrator.IsProcessing() || s.Favorites.Pending() > 0
}
