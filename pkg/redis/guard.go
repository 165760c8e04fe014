package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"

	appctx "github.com/LightningDocs/monthly-double-checker-v2/pkg/context"
	"github.com/LightningDocs/monthly-double-checker-v2/pkg/metrics"
)

const (
	// RunLockKey guards the single active reconciliation run
	RunLockKey = "double-checker:run"

	DefaultRunLockTTL = 2 * time.Hour
)

// ErrRunInProgress is returned when another process holds the run lock
var ErrRunInProgress = errors.New("another reconciliation run is in progress")

type heldLock interface {
	Release(ctx context.Context) error
	Extend(ctx context.Context, ttl time.Duration) error
}

// RunGuard allows one reconciliation run at a time across processes
type RunGuard struct {
	acquire func(ctx context.Context, key, owner string, ttl time.Duration) (heldLock, error)
	holder  func(ctx context.Context, key string) (string, error)
	ttl     time.Duration
	logger  ectologger.Logger
}

// NewRunGuard creates a guard over the locker
func NewRunGuard(locker *Locker, ttl time.Duration, logger ectologger.Logger) *RunGuard {
	if ttl <= 0 {
		ttl = DefaultRunLockTTL
	}
	return &RunGuard{
		acquire: func(ctx context.Context, key, owner string, ttl time.Duration) (heldLock, error) {
			return locker.Acquire(ctx, key, owner, ttl)
		},
		holder: locker.Holder,
		ttl:    ttl,
		logger: logger,
	}
}

// Do runs fn while holding the run lock, leased to the run ID in ctx. The lease is extended
// every third of its TTL until fn returns, then released.
func (g *RunGuard) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	lock, err := g.acquire(ctx, RunLockKey, appctx.GetRunID(ctx), g.ttl)
	if errors.Is(err, ErrLockNotAcquired) {
		metrics.RunLockContention.Inc()
		return g.contention(ctx)
	}
	if err != nil {
		return fmt.Errorf("failed to acquire run lock: %w", err)
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		g.keepAlive(ctx, lock, stop)
	}()

	defer func() {
		close(stop)
		<-done
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			g.logger.WithContext(ctx).WithError(err).Warn("Failed to release run lock")
		}
	}()

	return fn(ctx)
}

func (g *RunGuard) contention(ctx context.Context) error {
	if g.holder == nil {
		return ErrRunInProgress
	}
	owner, err := g.holder(ctx, RunLockKey)
	if err != nil || owner == "" {
		return ErrRunInProgress
	}
	return fmt.Errorf("%w: held by run %s", ErrRunInProgress, owner)
}

func (g *RunGuard) keepAlive(ctx context.Context, lock heldLock, stop <-chan struct{}) {
	ticker := time.NewTicker(g.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := lock.Extend(ctx, g.ttl); err != nil {
				g.logger.WithContext(ctx).WithError(err).Warn("Failed to extend run lock")
			}
		}
	}
}
