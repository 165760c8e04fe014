package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrLockNotAcquired is returned when the key is already leased
	ErrLockNotAcquired = errors.New("lock not acquired")
	// ErrLockNotHeld is returned when a lease expired or was taken over
	ErrLockNotHeld = errors.New("lock not held")
)

// ownedScript deletes the key (ARGV[2] == "0") or sets its TTL in milliseconds, but only
// while the key still carries our token.
var ownedScript = redis.NewScript(`
if redis.call("get", KEYS[1]) ~= ARGV[1] then
	return 0
end
if ARGV[2] == "0" then
	return redis.call("del", KEYS[1])
end
return redis.call("pexpire", KEYS[1], ARGV[2])
`)

const tokenSeparator = "|"

// Lease is a held lock. The stored token is "<owner>|<nonce>" so other processes can see
// which run holds it.
type Lease struct {
	client *Client
	key    string
	token  string
}

// Locker leases keys under a prefix
type Locker struct {
	client    *Client
	keyPrefix string
}

// NewLocker creates a Locker. An empty prefix defaults to "lock:".
func NewLocker(client *Client, keyPrefix string) *Locker {
	if keyPrefix == "" {
		keyPrefix = "lock:"
	}
	return &Locker{client: client, keyPrefix: keyPrefix}
}

// Acquire leases key for ttl on behalf of owner. It does not wait.
func (l *Locker) Acquire(ctx context.Context, key, owner string, ttl time.Duration) (*Lease, error) {
	fullKey := l.keyPrefix + key
	token := owner + tokenSeparator + uuid.NewString()

	ok, err := l.client.rdb.SetNX(ctx, fullKey, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to lease %s: %w", fullKey, err)
	}
	if !ok {
		return nil, ErrLockNotAcquired
	}

	l.client.logger.WithContext(ctx).WithField("owner", owner).Debugf("Leased %s for %s", fullKey, ttl)
	return &Lease{client: l.client, key: fullKey, token: token}, nil
}

// Holder returns the owner of the current lease on key, or "" when it is free
func (l *Locker) Holder(ctx context.Context, key string) (string, error) {
	token, err := l.client.rdb.Get(ctx, l.keyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return ownerOf(token), nil
}

func ownerOf(token string) string {
	if i := strings.LastIndex(token, tokenSeparator); i >= 0 {
		return token[:i]
	}
	return token
}

// Release deletes the key if the lease is still ours
func (lease *Lease) Release(ctx context.Context) error {
	if err := lease.owned(ctx, 0); err != nil {
		return err
	}
	lease.client.logger.WithContext(ctx).Debugf("Released %s", lease.key)
	return nil
}

// Extend resets the TTL if the lease is still ours
func (lease *Lease) Extend(ctx context.Context, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("invalid lease ttl %s", ttl)
	}
	return lease.owned(ctx, ttl)
}

func (lease *Lease) owned(ctx context.Context, ttl time.Duration) error {
	n, err := ownedScript.Run(ctx, lease.client.rdb, []string{lease.key}, lease.token, ttl.Milliseconds()).Int64()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLockNotHeld
	}
	return nil
}
