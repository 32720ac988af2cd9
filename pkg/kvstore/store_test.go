package kvstore

import (
	"context"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-storefront/pkg/config"
	"github.com/angelmondragon/packfinderz-storefront/pkg/db/models"
	"github.com/angelmondragon/packfinderz-storefront/pkg/redis"
)

func exerciseStore(t *testing.T, store KeyValueStore) {
	t.Helper()
	ctx := context.Background()

	_, err := store.Get(ctx, "user-1")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Set(ctx, "user-1", []byte(`{"cartItems":[1]}`)))
	got, err := store.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"cartItems":[1]}`, string(got))

	require.NoError(t, store.Set(ctx, "user-1", []byte(`{"cartItems":[]}`)))
	got, err = store.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"cartItems":[]}`, string(got))

	_, err = store.Get(ctx, "user-2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestMemoryStoreCopiesValues(t *testing.T) {
	store := NewMemoryStore()
	value := []byte("abc")
	require.NoError(t, store.Set(context.Background(), "ns", value))
	value[0] = 'z'

	got, err := store.Get(context.Background(), "ns")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	raw := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = raw.Close() })

	store, err := NewRedisStore(redis.NewFromRaw(raw, "sf"))
	require.NoError(t, err)
	exerciseStore(t, store)

	assert.True(t, mr.Exists("sf:snapshot:user-1"))
}

func TestGormStore(t *testing.T) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.KVRecord{}))

	store, err := NewGormStore(conn)
	require.NoError(t, err)
	exerciseStore(t, store)

	var count int64
	require.NoError(t, conn.Model(&models.KVRecord{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestOpenMemoryDriver(t *testing.T) {
	backend, err := Open(context.Background(), &config.Config{Store: config.StoreConfig{Driver: "memory"}}, nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, backend.Store)
	assert.NoError(t, backend.Close())
}

func TestOpenSQLiteDriver(t *testing.T) {
	cfg := &config.Config{
		Store: config.StoreConfig{Driver: "sqlite", AutoMigrate: true},
		DB:    config.DBConfig{DSN: fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())},
	}
	backend, err := Open(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })

	assert.IsType(t, &GormStore{}, backend.Store)
	require.NoError(t, backend.Pinger.Ping(context.Background()))
	exerciseStore(t, backend.Store)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), &config.Config{Store: config.StoreConfig{Driver: "etcd"}}, nil)
	assert.Error(t, err)
}
