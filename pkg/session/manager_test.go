package session_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/blobrelay/pkg/adapters/memory"
	"github.com/aretw0/blobrelay/pkg/domain"
	"github.com/aretw0/blobrelay/pkg/ports"
	"github.com/aretw0/blobrelay/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingLocker records distributed lock usage.
type countingLocker struct {
	locks      atomic.Int32
	unlocks    atomic.Int32
	refreshes  atomic.Int32
	fail       error
	refreshErr error
}

type countingLease struct {
	owner      *countingLocker
	refreshErr error
}

func (l *countingLease) Refresh(ctx context.Context, ttl time.Duration) error {
	l.owner.refreshes.Add(1)
	return l.refreshErr
}

func (l *countingLease) Unlock(ctx context.Context) error {
	l.owner.unlocks.Add(1)
	return nil
}

func (c *countingLocker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.Lease, error) {
	if c.fail != nil {
		return nil, c.fail
	}
	c.locks.Add(1)
	return &countingLease{owner: c, refreshErr: c.refreshErr}, nil
}

func TestManager_WithLockSerialises(t *testing.T) {
	manager := session.NewManager(memory.NewStore())
	ctx := context.Background()

	var (
		inside  atomic.Int32
		overlap atomic.Bool
		wg      sync.WaitGroup
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := manager.WithLock(ctx, "same-instance", func(ctx context.Context) error {
				if inside.Add(1) > 1 {
					overlap.Store(true)
				}
				time.Sleep(2 * time.Millisecond)
				inside.Add(-1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.False(t, overlap.Load(), "two holders ran inside the same instance lock")
}

func TestManager_LoadOrCreate(t *testing.T) {
	store := memory.NewStore()
	manager := session.NewManager(store)
	ctx := context.Background()
	req := domain.TransferRequest{ObjectID: "report.csv", InstanceID: "atomic-init"}

	var (
		wg      sync.WaitGroup
		created atomic.Int32
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			inst, isNew, err := manager.LoadOrCreate(ctx, req, time.Now())
			assert.NoError(t, err)
			assert.NotNil(t, inst)
			if isNew {
				created.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, created.Load(), "exactly one caller must create the instance")

	inst, err := store.Load(ctx, "atomic-init")
	require.NoError(t, err)
	assert.Equal(t, domain.PhasePending, inst.Phase)
}

func TestManager_LoadOrCreateRejectsDifferentObject(t *testing.T) {
	manager := session.NewManager(memory.NewStore())
	ctx := context.Background()

	_, _, err := manager.LoadOrCreate(ctx, domain.TransferRequest{ObjectID: "a", InstanceID: "id-1"}, time.Now())
	require.NoError(t, err)

	_, _, err = manager.LoadOrCreate(ctx, domain.TransferRequest{ObjectID: "b", InstanceID: "id-1"}, time.Now())
	assert.ErrorIs(t, err, domain.ErrInstanceConflict)
}

func TestManager_DistributedLocker(t *testing.T) {
	locker := &countingLocker{}
	manager := session.NewManager(memory.NewStore(), session.WithLocker(locker))
	ctx := context.Background()

	require.NoError(t, manager.WithLock(ctx, "x", func(context.Context) error { return nil }))
	assert.EqualValues(t, 1, locker.locks.Load())
	assert.EqualValues(t, 1, locker.unlocks.Load())

	locker.fail = errors.New("redis down")
	err := manager.WithLock(ctx, "x", func(context.Context) error {
		t.Fatal("fn must not run without the distributed lock")
		return nil
	})
	assert.ErrorContains(t, err, "redis down")
}

func TestManager_RefreshesLease(t *testing.T) {
	locker := &countingLocker{}
	manager := session.NewManager(memory.NewStore(),
		session.WithLocker(locker),
		session.WithLockTTL(30*time.Millisecond),
	)

	err := manager.WithLock(context.Background(), "x", func(ctx context.Context) error {
		time.Sleep(100 * time.Millisecond)
		return ctx.Err()
	})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, locker.refreshes.Load(), int32(2))
	assert.EqualValues(t, 1, locker.unlocks.Load())
}

func TestManager_LostLeaseCancelsHolder(t *testing.T) {
	locker := &countingLocker{refreshErr: errors.New("lock taken by another holder")}
	manager := session.NewManager(memory.NewStore(),
		session.WithLocker(locker),
		session.WithLockTTL(30*time.Millisecond),
	)

	err := manager.WithLock(context.Background(), "x", func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Second):
			return errors.New("holder kept running after its lease was lost")
		}
	})
	assert.ErrorIs(t, err, domain.ErrLockLost)
	assert.EqualValues(t, 1, locker.unlocks.Load())
}

func TestManager_Delete(t *testing.T) {
	store := memory.NewStore()
	manager := session.NewManager(store)
	ctx := context.Background()

	assert.ErrorIs(t, manager.Delete(ctx, "missing"), domain.ErrInstanceNotFound)

	_, _, err := manager.LoadOrCreate(ctx, domain.TransferRequest{ObjectID: "a", InstanceID: "id-1"}, time.Now())
	require.NoError(t, err)
	require.NoError(t, manager.Delete(ctx, "id-1"))

	_, err = store.Load(ctx, "id-1")
	assert.ErrorIs(t, err, domain.ErrInstanceNotFound)
}
