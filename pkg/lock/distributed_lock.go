package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"modelmine/pkg/interfaces"
	"modelmine/pkg/logger"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const (
	defaultLockKey      = "ledger:append-lock"
	lockTTL             = 30 * time.Second // Expiry so a crashed holder cannot wedge the lock
	lockAcquireTimeout  = 5 * time.Second  // Bound on a single SETNX round-trip
	lockExtendInterval  = 10 * time.Second // Renewal period while held
	maxLockHoldDuration = 2 * time.Minute  // Renewal stops after this
	defaultRetryDelay   = 20 * time.Millisecond
)

const unlockScript = `
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`

const renewScript = `
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("expire", KEYS[1], ARGV[2])
	else
		return 0
	end
`

// RedisDistributedLock is a SET NX EX lock with a per-instance token.
// A nil client degrades to single-instance mode where TryLock always succeeds.
type RedisDistributedLock struct {
	client       *redis.Client
	lockKey      string
	lockValue    string // Token so one instance never releases another's lock
	ttl          time.Duration
	isHeld       bool
	acquiredAt   time.Time
	stopRenew    chan struct{}
	renewStopped bool
	mu           sync.Mutex
}

// NewRedisDistributedLock creates a lock on lockKey, e.g. "ledger:append-lock" or "jobs:recover-pending"
func NewRedisDistributedLock(client *redis.Client, lockKey string) *RedisDistributedLock {
	if lockKey == "" {
		lockKey = defaultLockKey
	}
	return &RedisDistributedLock{
		client:       client,
		lockKey:      lockKey,
		lockValue:    fmt.Sprintf("%s-%s", lockKey, uuid.NewString()),
		ttl:          lockTTL,
		stopRenew:    make(chan struct{}),
		renewStopped: true,
	}
}

// TryLock attempts to take the lock once
func (l *RedisDistributedLock) TryLock(ctx context.Context) (bool, error) {
	if l.client == nil {
		l.mu.Lock()
		l.isHeld = true
		l.mu.Unlock()
		return true, nil
	}

	acquireCtx, cancel := context.WithTimeout(ctx, lockAcquireTimeout)
	defer cancel()

	acquired, err := l.client.SetNX(acquireCtx, l.lockKey, l.lockValue, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !acquired {
		logger.DebugCtx(ctx, "lock %s already held by another instance", l.lockKey)
		return false, nil
	}

	l.mu.Lock()
	l.isHeld = true
	l.acquiredAt = time.Now()
	// Fresh channel per acquisition so TryLock/Unlock can cycle
	l.stopRenew = make(chan struct{})
	l.renewStopped = false
	stop := l.stopRenew
	l.mu.Unlock()

	go l.renewLock(ctx, stop)

	logger.DebugCtx(ctx, "lock %s acquired", l.lockKey)
	return true, nil
}

// Unlock releases the lock if this instance holds it
func (l *RedisDistributedLock) Unlock(ctx context.Context) error {
	l.mu.Lock()
	if !l.isHeld {
		l.mu.Unlock()
		return nil
	}
	if l.client == nil {
		l.isHeld = false
		l.mu.Unlock()
		return nil
	}
	if !l.renewStopped {
		l.renewStopped = true
		close(l.stopRenew)
	}
	l.mu.Unlock()

	result, err := l.client.Eval(ctx, unlockScript, []string{l.lockKey}, l.lockValue).Result()
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}

	l.mu.Lock()
	l.isHeld = false
	l.mu.Unlock()

	if n, ok := result.(int64); ok && n == 1 {
		logger.DebugCtx(ctx, "lock %s released", l.lockKey)
	} else {
		logger.WarnCtx(ctx, "lock %s was already released or held by another instance", l.lockKey)
	}
	return nil
}

// IsHeld reports whether this instance holds the lock
func (l *RedisDistributedLock) IsHeld() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.isHeld
}

func (l *RedisDistributedLock) renewLock(ctx context.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(lockExtendInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.mu.Lock()
			holdDuration := time.Since(l.acquiredAt)
			l.mu.Unlock()

			if holdDuration > maxLockHoldDuration {
				logger.WarnCtx(ctx, "lock %s held for %.0f seconds, no longer renewing", l.lockKey, holdDuration.Seconds())
				l.markLost()
				return
			}

			result, err := l.client.Eval(ctx, renewScript, []string{l.lockKey}, l.lockValue, int(l.ttl.Seconds())).Result()
			if err != nil {
				logger.WarnCtx(ctx, "failed to renew lock %s: %v", l.lockKey, err)
				l.markLost()
				return
			}
			if n, ok := result.(int64); !ok || n == 0 {
				logger.WarnCtx(ctx, "lock %s renewal failed, lock lost", l.lockKey)
				l.markLost()
				return
			}
		}
	}
}

// markLost only flips the flag; channel cleanup stays with Unlock
func (l *RedisDistributedLock) markLost() {
	l.mu.Lock()
	l.isHeld = false
	l.mu.Unlock()
}

// Acquire polls TryLock until it succeeds or ctx is done.
func Acquire(ctx context.Context, l interfaces.DistributedLock, retryDelay time.Duration) error {
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}
	for {
		ok, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for lock: %w", ctx.Err())
		case <-time.After(retryDelay):
		}
	}
}
