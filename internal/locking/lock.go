// Package locking serializes lifecycle operations per subscription.
// Renew, expire and cancel all read-modify-write the same row; the
// row-level FOR UPDATE inside the transaction is the hard guarantee
// and this advisory lock keeps concurrent webhook retries from piling
// up on it.
package locking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

var ErrLockHeld = errors.New("subscription_lock_held")

const lockReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

const (
	defaultTTL     = 30 * time.Second
	acquirePoll    = 50 * time.Millisecond
	acquireTimeout = 5 * time.Second
)

type Locker struct {
	client *redis.Client
	script *redis.Script
}

// NewLocker returns nil when no redis client is configured; callers
// treat a nil locker as "no advisory locking".
func NewLocker(client *redis.Client) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{
		client: client,
		script: redis.NewScript(lockReleaseScript),
	}
}

func subscriptionKey(id string) string {
	return fmt.Sprintf("subscription:lock:%s", id)
}

// TryLock attempts a single non-blocking acquisition.
func (l *Locker) TryLock(ctx context.Context, subscriptionID string) (string, bool, error) {
	if l == nil || l.client == nil {
		return "", true, nil
	}
	if subscriptionID == "" {
		return "", false, errors.New("lock key is empty")
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, subscriptionKey(subscriptionID), token, defaultTTL).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

// Acquire polls until the lock is held or the acquire window lapses.
func (l *Locker) Acquire(ctx context.Context, subscriptionID string) (string, error) {
	if l == nil || l.client == nil {
		return "", nil
	}

	deadline := time.Now().Add(acquireTimeout)
	for {
		token, ok, err := l.TryLock(ctx, subscriptionID)
		if err != nil {
			return "", err
		}
		if ok {
			return token, nil
		}
		if time.Now().After(deadline) {
			return "", ErrLockHeld
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(acquirePoll):
		}
	}
}

// Release frees the lock only when token still owns it.
func (l *Locker) Release(ctx context.Context, subscriptionID, token string) error {
	if l == nil || l.client == nil {
		return nil
	}
	if subscriptionID == "" || token == "" {
		return nil
	}
	return l.script.Run(ctx, l.client, []string{subscriptionKey(subscriptionID)}, token).Err()
}
