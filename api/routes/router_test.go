package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/packfinderz-storefront/internal/cache"
	"github.com/angelmondragon/packfinderz-storefront/internal/checkout"
	"github.com/angelmondragon/packfinderz-storefront/internal/favorites"
	"github.com/angelmondragon/packfinderz-storefront/internal/orders"
	"github.com/angelmondragon/packfinderz-storefront/internal/products"
	"github.com/angelmondragon/packfinderz-storefront/internal/session"
	"github.com/angelmondragon/packfinderz-storefront/pkg/config"
	"github.com/angelmondragon/packfinderz-storefront/pkg/kvstore"
	"github.com/angelmondragon/packfinderz-storefront/pkg/metrics"
)

type stubPinger struct {
	err error
}

func (p stubPinger) Ping(context.Context) error {
	return p.err
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type harness struct {
	server *httptest.Server
	orders *orders.MemoryService
}

func newHarness(t *testing.T, store stubPinger) *harness {
	t.Helper()
	reg := prometheus.NewRegistry()
	cacheMetrics := metrics.NewCacheMetrics(reg)
	checkoutMetrics := metrics.NewCheckoutMetrics(reg)

	lister := products.NewMemoryLister(
		products.Product{ID: 1, Name: "Blue Dream", Price: decimal.NewFromInt(25000), Stock: 5, SellerID: 7, SellerName: "North"},
		products.Product{ID: 2, Name: "Sour Diesel", Price: decimal.NewFromInt(800), Stock: 10, SellerID: 8, SellerName: "South"},
	)
	listings, err := cache.New[*products.Page](cache.Options{Name: "product_listings", TTL: 5 * time.Minute, Metrics: cacheMetrics})
	require.NoError(t, err)
	items, err := cache.New[*products.Product](cache.Options{Name: "products", TTL: 5 * time.Minute, Metrics: cacheMetrics})
	require.NoError(t, err)
	favCache, err := cache.New[[]products.Product](cache.Options{Name: "favorites", TTL: 3 * time.Minute, Metrics: cacheMetrics})
	require.NoError(t, err)
	catalog, err := products.NewCatalog(lister, listings, items, nil)
	require.NoError(t, err)

	orderSvc, err := orders.NewMemoryService(orders.MemoryOptions{PaymentBaseURL: "https://pay.example.com/checkout"})
	require.NoError(t, err)
	favSvc := favorites.NewMemoryService(lister)
	sessions, err := session.NewManager(session.Params{
		Store:          kvstore.NewMemoryStore(),
		Orders:         func(string) checkout.OrderService { return orderSvc },
		Favorites:      favSvc.ForUser,
		FavoritesCache: favCache,
		Metrics:        checkoutMetrics,
	})
	require.NoError(t, err)

	cfg := &config.Config{
		App:   config.AppConfig{Env: "test"},
		HTTP:  config.HTTPConfig{CORSOrigins: []string{"http://localhost:3000"}},
		Store: config.StoreConfig{Driver: "memory"},
	}
	handler := NewRouter(Deps{
		Config:   cfg,
		Store:    store,
		Catalog:  catalog,
		Sessions: sessions,
		Gatherer: reg,
	})
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return &harness{server: server, orders: orderSvc}
}

func (h *harness) do(t *testing.T, method, path, userID string, body any) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, h.server.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	resp, err := h.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	_ = json.NewDecoder(resp.Body).Decode(&env)
	return resp.StatusCode, env
}

func TestHealthRoutes(t *testing.T) {
	h := newHarness(t, stubPinger{})
	status, env := h.do(t, http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"status":"live"}`, string(env.Data))

	status, _ = h.do(t, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, status)

	down := newHarness(t, stubPinger{err: errors.New("connection refused")})
	status, env = down.do(t, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "DEPENDENCY_ERROR", env.Error.Code)
}

func TestProductRoutes(t *testing.T) {
	h := newHarness(t, stubPinger{})

	status, env := h.do(t, http.MethodGet, "/api/v1/products?limit=1&page=2", "", nil)
	require.Equal(t, http.StatusOK, status)
	var page products.Page
	require.NoError(t, json.Unmarshal(env.Data, &page))
	assert.Equal(t, 2, page.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, int64(2), page.Items[0].ID)

	status, env = h.do(t, http.MethodGet, "/api/v1/products/99", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)

	status, _ = h.do(t, http.MethodGet, "/api/v1/products?limit=500", "", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestUserRoutesRequireUserHeader(t *testing.T) {
	h := newHarness(t, stubPinger{})
	status, env := h.do(t, http.MethodGet, "/api/v1/cart/", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", env.Error.Code)
}

func TestCartRoutes(t *testing.T) {
	h := newHarness(t, stubPinger{})

	status, env := h.do(t, http.MethodPost, "/api/v1/cart/items", "buyer", map[string]any{"productId": 1, "quantity": 2})
	require.Equal(t, http.StatusCreated, status)
	var view struct {
		TotalPrice      decimal.Decimal `json:"totalPrice"`
		TotalItems      int             `json:"totalItems"`
		UniqueItemCount int             `json:"uniqueItemCount"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.True(t, view.TotalPrice.Equal(decimal.NewFromInt(50000)))
	assert.Equal(t, 2, view.TotalItems)

	status, env = h.do(t, http.MethodPost, "/api/v1/cart/items", "buyer", map[string]any{"productId": 1, "quantity": 9})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "STOCK_EXCEEDED", env.Error.Code)

	status, env = h.do(t, http.MethodPost, "/api/v1/cart/items", "buyer", map[string]any{"productId": 2})
	require.Equal(t, http.StatusCreated, status)
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.Equal(t, 2, view.UniqueItemCount)

	status, env = h.do(t, http.MethodPatch, "/api/v1/cart/items/2", "buyer", map[string]any{"quantity": 0})
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.Equal(t, 1, view.UniqueItemCount)

	status, env = h.do(t, http.MethodGet, "/api/v1/cart/", "someone-else", nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.Equal(t, 0, view.UniqueItemCount)

	status, env = h.do(t, http.MethodDelete, "/api/v1/cart/", "buyer", nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.Equal(t, 0, view.TotalItems)
}

func TestFavoritesRoutes(t *testing.T) {
	h := newHarness(t, stubPinger{})

	status, env := h.do(t, http.MethodPost, "/api/v1/favorites/1/toggle", "buyer", nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"productId":1,"favorite":true}`, string(env.Data))

	status, env = h.do(t, http.MethodPost, "/api/v1/favorites/refresh", "buyer", nil)
	require.Equal(t, http.StatusOK, status)
	var view struct {
		IDs   []int64 `json:"ids"`
		Count int     `json:"count"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.Equal(t, []int64{1}, view.IDs)

	status, _ = h.do(t, http.MethodPost, "/api/v1/favorites/abc/toggle", "buyer", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestCheckoutRoutes(t *testing.T) {
	h := newHarness(t, stubPinger{})

	status, env := h.do(t, http.MethodPost, "/api/v1/checkout", "buyer", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "EMPTY_CART", env.Error.Code)

	status, _ = h.do(t, http.MethodPost, "/api/v1/cart/items", "buyer", map[string]any{"productId": 1, "quantity": 1})
	require.Equal(t, http.StatusCreated, status)
	status, _ = h.do(t, http.MethodPost, "/api/v1/cart/items", "buyer", map[string]any{"productId": 2, "quantity": 3})
	require.Equal(t, http.StatusCreated, status)

	status, env = h.do(t, http.MethodPost, "/api/v1/checkout", "buyer", map[string]any{"note": "leave at door"})
	require.Equal(t, http.StatusCreated, status)
	var result struct {
		Orders []struct {
			ID int64 `json:"id"`
		} `json:"orders"`
		SellerCount       int    `json:"sellerCount"`
		PaymentRequired   bool   `json:"paymentRequired"`
		PrimaryPaymentURL string `json:"primaryPaymentUrl"`
		IdempotencyKey    string `json:"idempotencyKey"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, 2, result.SellerCount)
	require.Len(t, result.Orders, 2)
	require.True(t, result.PaymentRequired)

	status, env = h.do(t, http.MethodPost, "/api/v1/checkout/"+result.IdempotencyKey+"/redirect", "buyer", nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"paymentUrl":"`+result.PrimaryPaymentURL+`"}`, string(env.Data))

	status, env = h.do(t, http.MethodGet, "/api/v1/cart/", "buyer", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(env.Data), `"uniqueItemCount":0`)

	cancelPath := "/api/v1/orders/" + jsonInt(result.Orders[1].ID) + "/cancel"
	status, _ = h.do(t, http.MethodPost, cancelPath, "buyer", nil)
	assert.Equal(t, http.StatusOK, status)
	status, env = h.do(t, http.MethodPost, cancelPath, "buyer", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "STATE_CONFLICT", env.Error.Code)
}

func TestMetricsRoute(t *testing.T) {
	h := newHarness(t, stubPinger{})
	h.do(t, http.MethodGet, "/api/v1/products", "", nil)

	resp, err := h.server.Client().Get(h.server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), "storefront_cache_misses_total")
}

func TestRequestIDEchoed(t *testing.T) {
	h := newHarness(t, stubPinger{})
	req, err := http.NewRequest(http.MethodGet, h.server.URL+"/health/live", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-Id", "req-123")
	resp, err := h.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "req-123", resp.Header.Get("X-Request-Id"))
}

func TestMalformedRequestIDIsReplaced(t *testing.T) {
	h := newHarness(t, stubPinger{})
	req, err := http.NewRequest(http.MethodGet, h.server.URL+"/health/live", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-Id", "bad id with spaces")
	resp, err := h.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	got := resp.Header.Get("X-Request-Id")
	assert.NotEmpty(t, got)
	assert.NotEqual(t, "bad id with spaces", got)
}

func jsonInt(v int64) string {
	raw, _ := json.Marshal(v)
	return string(raw)
}
