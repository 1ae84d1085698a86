package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/blobrelay/pkg/adapters/redis"
	"github.com/aretw0/blobrelay/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisLocker_LockUnlock(t *testing.T) {
	mr, client := newClient(t)
	locker := redis.NewLocker(client, "test:lock:")
	ctx := context.Background()
	key := "resource1"

	// 1. Acquire Lock
	unlock, err := locker.Lock(ctx, key, 5*time.Second)
	require.NoError(t, err)
	require.NotNil(t, unlock)

	assert.True(t, mr.Exists("test:lock:lock:resource1"), "Lock key should be set in Redis")

	// 2. Release Lock
	require.NoError(t, unlock.Unlock(ctx))

	assert.False(t, mr.Exists("test:lock:lock:resource1"), "Lock key should be removed after unlock")
}

func TestRedisLocker_Contention(t *testing.T) {
	mr, client := newClient(t)
	locker1 := redis.NewLocker(client, "test:lock:")
	locker2 := redis.NewLocker(client, "test:lock:") // Same prefix -> contention
	ctx := context.Background()
	key := "shared-resource"

	// 1. Client 1 acquires lock
	unlock1, err := locker1.Lock(ctx, key, 5*time.Second)
	require.NoError(t, err)

	// 2. Client 2 blocks until its context times out
	ctxTimeout, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = locker2.Lock(ctxTimeout, key, 5*time.Second)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.WithinDuration(t, start.Add(500*time.Millisecond), time.Now(), 150*time.Millisecond, "Should block until timeout")

	// 3. Client 1 unlocks
	require.NoError(t, unlock1.Unlock(ctx))

	// 4. Client 2 tries again (should succeed)
	unlock2, err := locker2.Lock(ctx, key, 5*time.Second)
	require.NoError(t, err)
	defer unlock2.Unlock(ctx)

	assert.True(t, mr.Exists("test:lock:lock:shared-resource"))
}

func TestRedisLocker_StaleUnlockDoesNotReleaseNewOwner(t *testing.T) {
	mr, client := newClient(t)
	locker := redis.NewLocker(client, "test:")
	ctx := context.Background()

	unlockOld, err := locker.Lock(ctx, "k", time.Second)
	require.NoError(t, err)

	// The first lease expires and someone else takes the lock.
	mr.FastForward(2 * time.Second)
	unlockNew, err := locker.Lock(ctx, "k", 5*time.Second)
	require.NoError(t, err)

	// Releasing the expired lease must not delete the new owner's key.
	require.NoError(t, unlockOld.Unlock(ctx))
	assert.True(t, mr.Exists("test:lock:k"))

	require.NoError(t, unlockNew.Unlock(ctx))
	assert.False(t, mr.Exists("test:lock:k"))
}

func TestRedisLocker_Refresh(t *testing.T) {
	mr, client := newClient(t)
	locker := redis.NewLocker(client, "test:")
	ctx := context.Background()

	lease, err := locker.Lock(ctx, "k", time.Second)
	require.NoError(t, err)

	mr.FastForward(800 * time.Millisecond)
	require.NoError(t, lease.Refresh(ctx, 5*time.Second))
	assert.Greater(t, mr.TTL("test:lock:k"), 4*time.Second)

	// Once the lease expires and another holder takes the key, refreshing fails.
	mr.FastForward(6 * time.Second)
	other, err := locker.Lock(ctx, "k", 5*time.Second)
	require.NoError(t, err)

	assert.ErrorIs(t, lease.Refresh(ctx, 5*time.Second), domain.ErrLockLost)
	require.NoError(t, other.Unlock(ctx))
	assert.ErrorIs(t, lease.Refresh(ctx, 5*time.Second), domain.ErrLockLost)
}
