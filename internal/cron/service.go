// Package cron runs the storefront maintenance loop: session snapshot flushes,
// cache sweeps, idle session eviction and pending order expiry.
package cron

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/packfinderz-storefront/pkg/logger"
	"github.com/angelmondragon/packfinderz-storefront/pkg/metrics"
)

const defaultInterval = 5 * time.Minute

// ServiceParams configure the maintenance service.
type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	// Lock defaults to a LocalLock.
	Lock     Lock
	Metrics  *metrics.MaintenanceMetrics
	Interval time.Duration
	// JobTimeout bounds each job run; zero means the interval.
	JobTimeout time.Duration
	Now        func() time.Time
}

// JobResult is the outcome of one job in a cycle.
type JobResult struct {
	Name     string
	Duration time.Duration
	Err      error
}

// CycleReport summarizes one maintenance cycle.
type CycleReport struct {
	StartedAt time.Time
	// Skipped is set when a previous cycle still held the lock.
	Skipped bool
	Jobs    []JobResult
}

// Err joins the failures of every job in the cycle.
func (r CycleReport) Err() error {
	var errs error
	for _, job := range r.Jobs {
		if job.Err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", job.Name, job.Err))
		}
	}
	return errs
}

// Service runs every registered job once per interval. A failing job does not
// stop the jobs after it.
type Service struct {
	logg       *logger.Logger
	registry   *Registry
	lock       Lock
	metrics    *metrics.MaintenanceMetrics
	interval   time.Duration
	jobTimeout time.Duration
	now        func() time.Time

	mu   sync.Mutex
	last *CycleReport
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Registry == nil || len(params.Registry.Jobs()) == 0 {
		return nil, fmt.Errorf("at least one maintenance job required")
	}
	if params.Lock == nil {
		params.Lock = NewLocalLock()
	}
	if params.Interval <= 0 {
		params.Interval = defaultInterval
	}
	if params.JobTimeout <= 0 {
		params.JobTimeout = params.Interval
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	return &Service{
		logg:       params.Logger,
		registry:   params.Registry,
		lock:       params.Lock,
		metrics:    params.Metrics,
		interval:   params.Interval,
		jobTimeout: params.JobTimeout,
		now:        params.Now,
	}, nil
}

// Run cycles until ctx is done. The first cycle starts immediately.
func (s *Service) Run(ctx context.Context) error {
	ctx = s.logg.WithField(ctx, "jobs", s.registry.Names())
	s.logg.Info(ctx, "maintenance.started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if _, err := s.RunOnce(ctx); err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "maintenance.cycle_failed")
		}
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "maintenance.stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce runs one cycle and returns its report. The error joins every job
// failure, or reports a lock failure.
func (s *Service) RunOnce(ctx context.Context) (CycleReport, error) {
	report := CycleReport{StartedAt: s.now()}

	locked, err := s.lock.Acquire(ctx)
	if err != nil {
		return report, fmt.Errorf("acquire maintenance lock: %w", err)
	}
	if !locked {
		report.Skipped = true
		s.metrics.IncCycle(metrics.CycleSkipped)
		s.logg.Info(ctx, "maintenance.cycle_skipped")
		s.record(report)
		return report, nil
	}
	defer func() {
		if relErr := s.lock.Release(ctx); relErr != nil {
			s.logg.Error(ctx, "maintenance.lock_release_failed", relErr)
		}
	}()

	for _, job := range s.registry.Jobs() {
		if ctx.Err() != nil {
			break
		}
		report.Jobs = append(report.Jobs, s.runJob(ctx, job))
	}
	s.metrics.IncCycle(metrics.CycleCompleted)
	s.logg.Info(s.logg.WithField(ctx, "duration_ms", s.now().Sub(report.StartedAt).Milliseconds()), "maintenance.cycle_completed")
	s.record(report)
	return report, report.Err()
}

// LastCycle returns the report of the most recent cycle, if any.
func (s *Service) LastCycle() (CycleReport, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return CycleReport{}, false
	}
	return *s.last, true
}

func (s *Service) runJob(ctx context.Context, job Job) JobResult {
	name := job.Name()
	jobCtx, cancel := context.WithTimeout(s.logg.WithField(ctx, "job", name), s.jobTimeout)
	defer cancel()

	started := s.now()
	err := job.Run(jobCtx)
	result := JobResult{Name: name, Duration: s.now().Sub(started), Err: err}
	s.metrics.ObserveJob(name, result.Duration, err)

	jobCtx = s.logg.WithField(jobCtx, "duration_ms", result.Duration.Milliseconds())
	if err != nil {
		s.logg.Error(jobCtx, "maintenance.job_failed", err)
	} else {
		s.logg.Debug(jobCtx, "maintenance.job_completed")
	}
	return result
}

func (s *Service) record(report CycleReport) {
	s.mu.Lock()
	s.last = &report
	s.mu.Unlock()
}
