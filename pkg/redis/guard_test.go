package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appctx "github.com/LightningDocs/monthly-double-checker-v2/pkg/context"
)

type fakeLock struct {
	mu       sync.Mutex
	owner    string
	released bool
	extends  int
}

func (l *fakeLock) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.released = true
	return nil
}

func (l *fakeLock) Extend(ctx context.Context, ttl time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.extends++
	return nil
}

// fakeLocks hands out one lock per key until it is released
type fakeLocks struct {
	mu   sync.Mutex
	held map[string]*fakeLock
}

func (f *fakeLocks) acquire(ctx context.Context, key, owner string, ttl time.Duration) (heldLock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if lock, ok := f.held[key]; ok && !lock.released {
		return nil, ErrLockNotAcquired
	}
	lock := &fakeLock{owner: owner}
	f.held[key] = lock
	return lock, nil
}

func (f *fakeLocks) holder(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if lock, ok := f.held[key]; ok && !lock.released {
		return lock.owner, nil
	}
	return "", nil
}

func newTestGuard(locks *fakeLocks, ttl time.Duration) *RunGuard {
	return &RunGuard{
		acquire: locks.acquire,
		holder:  locks.holder,
		ttl:     ttl,
		logger:  ectologger.NewEctoLogger(func(ectologger.EctoLogMessage) {}),
	}
}

func TestRunGuardSingleRun(t *testing.T) {
	locks := &fakeLocks{held: map[string]*fakeLock{}}
	guard := newTestGuard(locks, time.Hour)

	ctx := appctx.SetRunID(context.Background(), "run-1")
	err := guard.Do(ctx, func(context.Context) error {
		inner := guard.Do(appctx.SetRunID(context.Background(), "run-2"), func(context.Context) error {
			t.Fatal("nested run must not start")
			return nil
		})
		assert.ErrorIs(t, inner, ErrRunInProgress)
		assert.ErrorContains(t, inner, "held by run run-1")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "run-1", locks.held[RunLockKey].owner)
	assert.True(t, locks.held[RunLockKey].released)

	// released lock can be taken again
	require.NoError(t, guard.Do(context.Background(), func(context.Context) error { return nil }))
}

func TestRunGuardReturnsRunError(t *testing.T) {
	locks := &fakeLocks{held: map[string]*fakeLock{}}
	guard := newTestGuard(locks, time.Hour)
	boom := errors.New("boom")

	err := guard.Do(context.Background(), func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.True(t, locks.held[RunLockKey].released)
}

func TestRunGuardExtendsLock(t *testing.T) {
	locks := &fakeLocks{held: map[string]*fakeLock{}}
	guard := newTestGuard(locks, 30*time.Millisecond)

	err := guard.Do(context.Background(), func(context.Context) error {
		time.Sleep(100 * time.Millisecond)
		return nil
	})
	require.NoError(t, err)

	lock := locks.held[RunLockKey]
	lock.mu.Lock()
	defer lock.mu.Unlock()
	assert.GreaterOrEqual(t, lock.extends, 1)
}

func TestRunGuardAcquireFailure(t *testing.T) {
	guard := &RunGuard{
		acquire: func(context.Context, string, string, time.Duration) (heldLock, error) {
			return nil, errors.New("connection refused")
		},
		ttl:    time.Hour,
		logger: ectologger.NewEctoLogger(func(ectologger.EctoLogMessage) {}),
	}

	err := guard.Do(context.Background(), func(context.Context) error { return nil })
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRunInProgress)
}

func TestOwnerOf(t *testing.T) {
	assert.Equal(t, "run-1", ownerOf("run-1|4f1c"))
	assert.Equal(t, "a|b", ownerOf("a|b|4f1c"))
	assert.Equal(t, "", ownerOf("|4f1c"))
	assert.Equal(t, "legacy", ownerOf("legacy"))
}

func TestConfigAddr(t *testing.T) {
	assert.Equal(t, "localhost:6379", Config{Host: "localhost", Port: 6379}.Addr())
	assert.Equal(t, "[::1]:6380", Config{Host: "::1", Port: 6380}.Addr())
}
