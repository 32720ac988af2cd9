package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/packfinderz-storefront/pkg/db"
	"github.com/angelmondragon/packfinderz-storefront/pkg/enums"
	"github.com/angelmondragon/packfinderz-storefront/pkg/logger"
)

// MaybeRun applies pending migrations on boot unless auto-migration is
// disabled, in which case cmd/migrate is expected to have run them.
func MaybeRun(ctx context.Context, enabled bool, driver enums.StoreDriver, logg *logger.Logger, client *db.Client) error {
	if !enabled {
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}

	ctx = logg.WithField(ctx, "driver", driver.String())
	logg.Info(ctx, "running goose migrations")

	if err := Up(ctx, sqlDB, driver); err != nil {
		return fmt.Errorf("running goose up: %w", err)
	}

	logg.Info(ctx, "goose migrations completed")
	return nil
}
