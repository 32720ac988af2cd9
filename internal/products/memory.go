package products

import (
	"context"
	"sort"
	"strings"
	"sync"

	pkgerrors "github.com/angelmondragon/packfinderz-storefront/pkg/errors"
)

// MemoryLister serves a fixed product set; used by the dev server and tests.
type MemoryLister struct {
	mu       sync.RWMutex
	products map[int64]Product
}

func NewMemoryLister(seed ...Product) *MemoryLister {
	l := &MemoryLister{products: make(map[int64]Product, len(seed))}
	for _, p := range seed {
		l.products[p.ID] = p.Clone()
	}
	return l
}

// Put inserts or replaces a product.
func (l *MemoryLister) Put(p Product) {
	l.mu.Lock()
	l.products[p.ID] = p.Clone()
	l.mu.Unlock()
}

func (l *MemoryLister) GetProduct(_ context.Context, id int64) (*Product, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.products[id]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	clone := p.Clone()
	return &clone, nil
}

func (l *MemoryLister) ListProducts(_ context.Context, params ListParams) (*Page, error) {
	l.mu.RLock()
	matched := make([]Product, 0, len(l.products))
	query := strings.ToLower(strings.TrimSpace(params.Query))
	for _, p := range l.products {
		if params.SellerID > 0 && p.SellerID != params.SellerID {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(p.Name), query) {
			continue
		}
		matched = append(matched, p.Clone())
	}
	l.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })

	pg := params.Pagination.Normalize()
	start := pg.Offset()
	if start > len(matched) {
		start = len(matched)
	}
	end := start + pg.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return &Page{
		Items: matched[start:end],
		Page:  pg.Page,
		Limit: pg.Limit,
		Total: len(matched),
	}, nil
}
