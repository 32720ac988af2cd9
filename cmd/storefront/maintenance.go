package main

import (
	"github.com/angelmondragon/packfinderz-storefront/internal/cron"
	"github.com/angelmondragon/packfinderz-storefront/internal/session"
	"github.com/angelmondragon/packfinderz-storefront/pkg/config"
	"github.com/angelmondragon/packfinderz-storefront/pkg/logger"
	"github.com/angelmondragon/packfinderz-storefront/pkg/metrics"
)

func buildMaintenance(
	cfg *config.Config,
	logg *logger.Logger,
	jobMetrics *metrics.MaintenanceMetrics,
	sessions *session.Manager,
	expirer cron.PendingOrderExpirer,
	caches ...cron.Sweeper,
) (*cron.Service, error) {
	flush, err := cron.NewSessionFlushJob(sessions)
	if err != nil {
		return nil, err
	}
	idle, err := cron.NewIdleSessionJob(sessions, cfg.Maintenance.SessionIdleTTL)
	if err != nil {
		return nil, err
	}
	sweep, err := cron.NewCacheSweepJob(logg, caches...)
	if err != nil {
		return nil, err
	}
	registry, err := cron.NewRegistry(flush, idle, sweep)
	if err != nil {
		return nil, err
	}

	if expirer != nil {
		expiry, err := cron.NewOrderExpiryJob(cron.OrderExpiryParams{
			Logger: logg,
			Orders: expirer,
			TTL:    cfg.Maintenance.PendingOrderTTL,
		})
		if err != nil {
			return nil, err
		}
		if err := registry.Register(expiry); err != nil {
			return nil, err
		}
	}

	return cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   registry,
		Lock:       cron.NewLocalLock(),
		Metrics:    jobMetrics,
		Interval:   cfg.Maintenance.Interval,
		JobTimeout: cfg.Maintenance.JobTimeout,
	})
}
