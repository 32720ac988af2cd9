package favorites

import (
	"context"
	"sync"

	"github.com/angelmondragon/packfinderz-storefront/internal/products"
)

// ProductSource resolves the products a favorite set refers to.
type ProductSource interface {
	GetProduct(ctx context.Context, id int64) (*products.Product, error)
}

// MemoryService is an in-process backend of record for favorites, keyed by
// user. Used when no backend URL is configured.
type MemoryService struct {
	source ProductSource

	mu   sync.Mutex
	sets map[string][]int64
}

func NewMemoryService(source ProductSource) *MemoryService {
	return &MemoryService{source: source, sets: make(map[string][]int64)}
}

// ForUser scopes the service to userID.
func (m *MemoryService) ForUser(userID string) Service {
	return memoryUser{svc: m, userID: userID}
}

type memoryUser struct {
	svc    *MemoryService
	userID string
}

func (u memoryUser) Toggle(ctx context.Context, productID int64) error {
	if _, err := u.svc.source.GetProduct(ctx, productID); err != nil {
		return err
	}
	u.svc.mu.Lock()
	defer u.svc.mu.Unlock()
	ids := u.svc.sets[u.userID]
	if idx := indexOf(ids, productID); idx >= 0 {
		u.svc.sets[u.userID] = append(ids[:idx:idx], ids[idx+1:]...)
		return nil
	}
	u.svc.sets[u.userID] = append(ids, productID)
	return nil
}

// List resolves every stored id; products that no longer exist are skipped.
func (u memoryUser) List(ctx context.Context) ([]products.Product, error) {
	u.svc.mu.Lock()
	ids := append([]int64{}, u.svc.sets[u.userID]...)
	u.svc.mu.Unlock()

	out := make([]products.Product, 0, len(ids))
	for _, id := range ids {
		p, err := u.svc.source.GetProduct(ctx, id)
		if err != nil {
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}
