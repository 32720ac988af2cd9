package kvstore

import (
	"context"
	"fmt"

	"github.com/angelmondragon/packfinderz-storefront/pkg/config"
	"github.com/angelmondragon/packfinderz-storefront/pkg/db"
	"github.com/angelmondragon/packfinderz-storefront/pkg/enums"
	"github.com/angelmondragon/packfinderz-storefront/pkg/logger"
	"github.com/angelmondragon/packfinderz-storefront/pkg/migrate"
	"github.com/angelmondragon/packfinderz-storefront/pkg/redis"
)

// Backend is an opened store plus the handle that releases its connection.
type Backend struct {
	Store  KeyValueStore
	Pinger interface {
		Ping(ctx context.Context) error
	}
	close func() error
}

// Close releases the underlying connection, if any.
func (b *Backend) Close() error {
	if b == nil || b.close == nil {
		return nil
	}
	return b.close()
}

// Open builds the store selected by cfg.Store.Driver.
func Open(ctx context.Context, cfg *config.Config, logg *logger.Logger) (*Backend, error) {
	driver, err := cfg.Store.Kind()
	if err != nil {
		return nil, err
	}
	ctx = logg.WithField(ctx, "store_driver", driver.String())

	switch driver {
	case enums.StoreDriverMemory:
		logg.Warn(ctx, "snapshots are kept in memory and will not survive restarts")
		return &Backend{Store: NewMemoryStore()}, nil

	case enums.StoreDriverRedis:
		client, err := redis.New(ctx, cfg.Redis, cfg.Store.Namespace, logg)
		if err != nil {
			return nil, err
		}
		store, err := NewRedisStore(client)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		return &Backend{Store: store, Pinger: client, close: client.Close}, nil

	case enums.StoreDriverSQLite, enums.StoreDriverPostgres:
		client, err := db.New(ctx, driver, cfg.DB, logg)
		if err != nil {
			return nil, err
		}
		if err := migrate.MaybeRun(ctx, cfg.Store.AutoMigrate, driver, logg, client); err != nil {
			_ = client.Close()
			return nil, err
		}
		store, err := NewGormStore(client.DB())
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		return &Backend{Store: store, Pinger: client, close: client.Close}, nil
	}
	return nil, fmt.Errorf("unsupported store driver %q", driver)
}
