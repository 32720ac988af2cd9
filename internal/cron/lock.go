package cron

import (
	"context"
	"sync"
)

// Lock coordinates exclusive maintenance runs.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// LocalLock keeps two cycles in the same process from overlapping. Every job
// the storefront runs touches process-local state, so no cross-instance lock
// is needed.
type LocalLock struct {
	mu sync.Mutex
}

// NewLocalLock constructs an in-process lock.
func NewLocalLock() *LocalLock {
	return &LocalLock{}
}

// Acquire reports false when a cycle is already running.
func (l *LocalLock) Acquire(context.Context) (bool, error) {
	return l.mu.TryLock(), nil
}

// Release frees the lock.
func (l *LocalLock) Release(context.Context) error {
	l.mu.Unlock()
	return nil
}
