package cron

import (
	"context"
	"errors"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/packfinderz-storefront/pkg/logger"
)

// Flusher persists every open session snapshot.
type Flusher interface {
	Flush(ctx context.Context) error
}

// Sweeper drops expired cache entries.
type Sweeper interface {
	Name() string
	Purge() int
}

// IdleEvictor drops sessions nobody has used for a while.
type IdleEvictor interface {
	EvictIdle(ctx context.Context, idleFor time.Duration) (int, error)
}

// PendingOrderExpirer cancels unpaid orders created before cutoff.
type PendingOrderExpirer interface {
	ExpirePending(ctx context.Context, cutoff time.Time) ([]int64, error)
}

type sessionFlushJob struct {
	sessions Flusher
}

// NewSessionFlushJob persists open session snapshots on every cycle.
func NewSessionFlushJob(sessions Flusher) (Job, error) {
	if sessions == nil {
		return nil, errors.New("session flusher required")
	}
	return &sessionFlushJob{sessions: sessions}, nil
}

func (j *sessionFlushJob) Name() string { return "session_snapshot_flush" }

func (j *sessionFlushJob) Run(ctx context.Context) error {
	return j.sessions.Flush(ctx)
}

type idleSessionJob struct {
	sessions IdleEvictor
	idleFor  time.Duration
}

// NewIdleSessionJob forgets sessions idle for longer than idleFor. Their
// snapshots are flushed first and reload on the next request.
func NewIdleSessionJob(sessions IdleEvictor, idleFor time.Duration) (Job, error) {
	if sessions == nil {
		return nil, errors.New("session evictor required")
	}
	if idleFor <= 0 {
		return nil, errors.New("session idle ttl must be positive")
	}
	return &idleSessionJob{sessions: sessions, idleFor: idleFor}, nil
}

func (j *idleSessionJob) Name() string { return "idle_session_eviction" }

func (j *idleSessionJob) Run(ctx context.Context) error {
	_, err := j.sessions.EvictIdle(ctx, j.idleFor)
	return err
}

type cacheSweepJob struct {
	logg   *logger.Logger
	caches []Sweeper
}

// NewCacheSweepJob reaps expired entries that were never read again.
func NewCacheSweepJob(logg *logger.Logger, caches ...Sweeper) (Job, error) {
	var kept []Sweeper
	for _, c := range caches {
		if c != nil {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		return nil, errors.New("at least one cache required")
	}
	return &cacheSweepJob{logg: logg, caches: kept}, nil
}

func (j *cacheSweepJob) Name() string { return "cache_sweep" }

func (j *cacheSweepJob) Run(ctx context.Context) error {
	for _, c := range j.caches {
		if err := ctx.Err(); err != nil {
			return err
		}
		if removed := c.Purge(); removed > 0 {
			j.logg.Debug(j.logg.WithFields(ctx, map[string]any{"cache": c.Name(), "removed": removed}), "cache.swept")
		}
	}
	return nil
}

// OrderExpiryParams configure the pending order expiry job.
type OrderExpiryParams struct {
	Logger *logger.Logger
	Orders PendingOrderExpirer
	TTL    time.Duration
	Now    func() time.Time
}

type orderExpiryJob struct {
	logg   *logger.Logger
	orders PendingOrderExpirer
	ttl    time.Duration
	now    func() time.Time
}

// NewOrderExpiryJob cancels PENDING orders older than TTL.
func NewOrderExpiryJob(params OrderExpiryParams) (Job, error) {
	var err error
	if params.Orders == nil {
		err = multierr.Append(err, errors.New("order expirer required"))
	}
	if params.TTL <= 0 {
		err = multierr.Append(err, errors.New("pending order ttl must be positive"))
	}
	if err != nil {
		return nil, err
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &orderExpiryJob{logg: params.Logger, orders: params.Orders, ttl: params.TTL, now: now}, nil
}

func (j *orderExpiryJob) Name() string { return "pending_order_expiry" }

func (j *orderExpiryJob) Run(ctx context.Context) error {
	cutoff := j.now().Add(-j.ttl)
	expired, err := j.orders.ExpirePending(ctx, cutoff)
	if err != nil {
		return err
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{"expired": len(expired), "cutoff": cutoff}), "orders.expiry_swept")
	return nil
}
