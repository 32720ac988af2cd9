// Package snapshot persists a session's cart and favorites as one record in a
// KeyValueStore.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/angelmondragon/packfinderz-storefront/internal/cart"
	"github.com/angelmondragon/packfinderz-storefront/internal/products"
	"github.com/angelmondragon/packfinderz-storefront/pkg/kvstore"
	"github.com/angelmondragon/packfinderz-storefront/pkg/logger"
)

// Record is the serialized form. Derived values such as totals are not stored.
type Record struct {
	CartItems        []cart.Item        `json:"cartItems"`
	FavoriteProducts []products.Product `json:"favoriteProducts"`
	FavoriteIDs      []int64            `json:"favoriteIds"`
}

// Store reads and writes the record under a single namespace. Writes of the
// cart and favorites halves are read-modify-write against the last record.
type Store struct {
	kv        kvstore.KeyValueStore
	namespace string
	logg      *logger.Logger

	mu     sync.Mutex
	record *Record
}

// NamespaceFor returns the key a user's snapshot is stored under.
func NamespaceFor(userID string) string {
	return "user:" + userID
}

func New(kv kvstore.KeyValueStore, namespace string, logg *logger.Logger) (*Store, error) {
	if kv == nil {
		return nil, fmt.Errorf("key value store required")
	}
	if namespace == "" {
		return nil, fmt.Errorf("snapshot namespace required")
	}
	return &Store{kv: kv, namespace: namespace, logg: logg}, nil
}

// Load returns a copy of the stored record; a missing record is empty.
func (s *Store) Load(ctx context.Context) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.current(ctx)
	if err != nil {
		return Record{}, err
	}
	return rec.clone(), nil
}

func (s *Store) LoadCart(ctx context.Context) ([]cart.Item, error) {
	rec, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	return rec.CartItems, nil
}

func (s *Store) SaveCart(ctx context.Context, items []cart.Item) error {
	return s.update(ctx, func(rec *Record) {
		rec.CartItems = append([]cart.Item{}, items...)
	})
}

func (s *Store) LoadFavorites(ctx context.Context) ([]int64, []products.Product, error) {
	rec, err := s.Load(ctx)
	if err != nil {
		return nil, nil, err
	}
	if len(rec.FavoriteIDs) != len(rec.FavoriteProducts) {
		s.logg.Warn(s.logg.WithField(ctx, "namespace", s.namespace), "snapshot.favorites_mismatch")
		return nil, nil, nil
	}
	return rec.FavoriteIDs, rec.FavoriteProducts, nil
}

func (s *Store) SaveFavorites(ctx context.Context, ids []int64, favorites []products.Product) error {
	if len(ids) != len(favorites) {
		return fmt.Errorf("favorites snapshot: %d ids for %d products", len(ids), len(favorites))
	}
	return s.update(ctx, func(rec *Record) {
		rec.FavoriteIDs = append([]int64{}, ids...)
		rec.FavoriteProducts = products.CloneAll(favorites)
	})
}

// Flush rewrites the last known record.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.record == nil {
		return nil
	}
	return s.write(ctx, s.record)
}

func (s *Store) update(ctx context.Context, fn func(*Record)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.current(ctx)
	if err != nil {
		return err
	}
	next := rec.clone()
	fn(&next)
	if err := s.write(ctx, &next); err != nil {
		return err
	}
	s.record = &next
	return nil
}

// current expects mu to be held.
func (s *Store) current(ctx context.Context) (*Record, error) {
	if s.record != nil {
		return s.record, nil
	}
	raw, err := s.kv.Get(ctx, s.namespace)
	if errors.Is(err, kvstore.ErrNotFound) {
		s.record = &Record{}
		return s.record, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot %q: %w", s.namespace, err)
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		s.logg.Error(s.logg.WithField(ctx, "namespace", s.namespace), "snapshot.decode_failed", err)
		rec = Record{}
	}
	s.record = &rec
	return s.record, nil
}

func (s *Store) write(ctx context.Context, rec *Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := s.kv.Set(ctx, s.namespace, raw); err != nil {
		return fmt.Errorf("write snapshot %q: %w", s.namespace, err)
	}
	return nil
}

func (r *Record) clone() Record {
	out := Record{
		CartItems:        append([]cart.Item{}, r.CartItems...),
		FavoriteProducts: products.CloneAll(r.FavoriteProducts),
		FavoriteIDs:      append([]int64{}, r.FavoriteIDs...),
	}
	if out.FavoriteProducts == nil {
		out.FavoriteProducts = []products.Product{}
	}
	return out
}
