package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestDistributedLock_SingleInstance(t *testing.T) {
	_, client := newClient(t)

	lock := NewRedisDistributedLock(client, "test-lock")
	ctx := context.Background()

	acquired, err := lock.TryLock(ctx)
	assert.NoError(t, err)
	assert.True(t, acquired)
	assert.True(t, lock.IsHeld())

	err = lock.Unlock(ctx)
	assert.NoError(t, err)
	assert.False(t, lock.IsHeld())
}

func TestDistributedLock_MultipleInstances(t *testing.T) {
	_, client := newClient(t)

	lock1 := NewRedisDistributedLock(client, "test-lock-multi")
	lock2 := NewRedisDistributedLock(client, "test-lock-multi")
	ctx := context.Background()

	acquired1, err := lock1.TryLock(ctx)
	assert.NoError(t, err)
	assert.True(t, acquired1)

	acquired2, err := lock2.TryLock(ctx)
	assert.NoError(t, err)
	assert.False(t, acquired2, "second lock should not be acquired")

	assert.NoError(t, lock1.Unlock(ctx))

	acquired2, err = lock2.TryLock(ctx)
	assert.NoError(t, err)
	assert.True(t, acquired2, "second lock should be acquired after first release")

	assert.NoError(t, lock2.Unlock(ctx))
}

func TestDistributedLock_AutoExpire(t *testing.T) {
	mr, client := newClient(t)

	lock1 := NewRedisDistributedLock(client, "test-lock-expire")
	lock2 := NewRedisDistributedLock(client, "test-lock-expire")
	ctx := context.Background()

	acquired1, err := lock1.TryLock(ctx)
	assert.NoError(t, err)
	assert.True(t, acquired1)

	mr.FastForward(lockTTL + time.Second)

	acquired2, err := lock2.TryLock(ctx)
	assert.NoError(t, err)
	assert.True(t, acquired2, "lock should be available after TTL expiration")

	// lock1 must not delete lock2's key
	assert.NoError(t, lock1.Unlock(ctx))
	assert.True(t, mr.Exists("test-lock-expire"))

	assert.NoError(t, lock2.Unlock(ctx))
	assert.False(t, mr.Exists("test-lock-expire"))
}

func TestDistributedLock_NilClient(t *testing.T) {
	lock := NewRedisDistributedLock(nil, "test-lock-nil")
	ctx := context.Background()

	acquired, err := lock.TryLock(ctx)
	assert.NoError(t, err)
	assert.True(t, acquired)
	assert.True(t, lock.IsHeld())

	assert.NoError(t, lock.Unlock(ctx))
	assert.False(t, lock.IsHeld())
}

func TestDistributedLock_RepeatedCycles(t *testing.T) {
	_, client := newClient(t)
	lock := NewRedisDistributedLock(client, "")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		acquired, err := lock.TryLock(ctx)
		require.NoError(t, err)
		require.True(t, acquired)
		require.NoError(t, lock.Unlock(ctx))
	}
}

func TestAcquire_WaitsForRelease(t *testing.T) {
	_, client := newClient(t)
	holder := NewRedisDistributedLock(client, "wait-lock")
	waiter := NewRedisDistributedLock(client, "wait-lock")
	ctx := context.Background()

	ok, err := holder.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	go func() {
		time.Sleep(50 * time.Millisecond)
		holder.Unlock(ctx)
	}()

	require.NoError(t, Acquire(ctx, waiter, 5*time.Millisecond))
	assert.True(t, waiter.IsHeld())
	assert.NoError(t, waiter.Unlock(ctx))
}

func TestAcquire_ContextDeadline(t *testing.T) {
	_, client := newClient(t)
	holder := NewRedisDistributedLock(client, "deadline-lock")
	waiter := NewRedisDistributedLock(client, "deadline-lock")

	ok, err := holder.TryLock(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	defer holder.Unlock(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err = Acquire(ctx, waiter, 5*time.Millisecond)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}
