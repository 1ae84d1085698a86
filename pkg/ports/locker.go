package ports

import (
	"context"
	"time"
)

// Lease is a held distributed lock.
type Lease interface {
	// Refresh extends the lease to ttl from now. It returns domain.ErrLockLost
	// when the lock expired or is now held by someone else.
	Refresh(ctx context.Context, ttl time.Duration) error

	// Unlock releases the lock. Releasing a lost lease is a no-op.
	Unlock(ctx context.Context) error
}

// DistributedLocker defines the interface for distributed concurrency control.
// It keeps one orchestration instance on a single thread of control even when
// several replicas share the same StateStore.
type DistributedLocker interface {
	// Lock attempts to acquire a distributed lock for the given key (e.g., instance ID).
	// It blocks until the lock is acquired or the context is canceled.
	// The returned Lease MUST be unlocked.
	Lock(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}
