package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/blobrelay/internal/logging"
	"github.com/aretw0/blobrelay/pkg/domain"
	"github.com/aretw0/blobrelay/pkg/ports"
)

// DefaultLockTTL bounds how long a crashed holder can block an instance.
const DefaultLockTTL = 5 * time.Minute

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager orchestrates instance access, ensuring one thread of control per
// correlation id. It uses Reference Counting to garbage collect unused locks.
type Manager struct {
	store ports.StateStore

	mu    sync.Mutex            // Global lock for the map
	locks map[string]*lockEntry // Map of active locks

	locker  ports.DistributedLocker // Optional distributed locker
	lockTTL time.Duration
	logger  *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL sets the lease of the distributed lock.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.lockTTL = ttl
		}
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a new Manager over the given persistence store.
func NewManager(store ports.StateStore, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		locks:   make(map[string]*lockEntry),
		lockTTL: DefaultLockTTL,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST Lock the entry.mu, and then call release(instanceID) after unlocking.
func (m *Manager) acquire(instanceID string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[instanceID]
	if !exists {
		entry = &lockEntry{}
		m.locks[instanceID] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(instanceID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[instanceID]
	if !exists {
		return
	}

	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, instanceID)
	}
}

// LoadOrCreate returns the stored instance for req.InstanceID, or persists a
// fresh pending one. created reports which of the two happened.
func (m *Manager) LoadOrCreate(ctx context.Context, req domain.TransferRequest, now time.Time) (inst *domain.Instance, created bool, err error) {
	err = m.WithLock(ctx, req.InstanceID, func(ctx context.Context) error {
		var loadErr error
		inst, loadErr = m.store.Load(ctx, req.InstanceID)
		if loadErr == nil {
			if inst.ObjectID != req.ObjectID {
				return fmt.Errorf("%w: %s is bound to object %q", domain.ErrInstanceConflict, req.InstanceID, inst.ObjectID)
			}
			return nil
		}

		if !errors.Is(loadErr, domain.ErrInstanceNotFound) {
			return fmt.Errorf("failed to check instance existence: %w", loadErr)
		}

		inst = domain.NewInstance(req, now)

		// Persist immediately to reserve the ID
		if err := m.store.Save(ctx, req.InstanceID, inst); err != nil {
			return fmt.Errorf("failed to initialize instance: %w", err)
		}
		created = true
		return nil
	})
	return inst, created, err
}

// Delete removes a stored instance. It returns domain.ErrInstanceNotFound
// when there is nothing to remove.
func (m *Manager) Delete(ctx context.Context, instanceID string) error {
	return m.WithLock(ctx, instanceID, func(ctx context.Context) error {
		if _, err := m.store.Load(ctx, instanceID); err != nil {
			return err
		}
		if err := m.store.Delete(ctx, instanceID); err != nil {
			return fmt.Errorf("failed to delete instance %s: %w", instanceID, err)
		}
		return nil
	})
}

// List delegates to the store.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.store.List(ctx)
}

// Store returns the underlying state store.
// Inside WithLock, use it directly: the manager's lock is not reentrant.
func (m *Manager) Store() ports.StateStore {
	return m.store
}

// WithLock executes a function while holding the lock for the instance.
// With a distributed locker the lease is refreshed every third of its TTL; if
// a refresh fails, fn's context is canceled with cause domain.ErrLockLost and
// WithLock returns that cause.
func (m *Manager) WithLock(ctx context.Context, instanceID string, fn func(context.Context) error) error {
	entry := m.acquire(instanceID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(instanceID)
	}()

	if m.locker == nil {
		return fn(ctx)
	}

	lease, err := m.locker.Lock(ctx, instanceID, m.lockTTL)
	if err != nil {
		return fmt.Errorf("failed to acquire distributed lock: %w", err)
	}
	defer func() {
		// Release even if ctx was canceled; the lease would otherwise block the instance until TTL.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := lease.Unlock(releaseCtx); err != nil {
			m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
				"instance_id", instanceID,
				"err", err,
			)
		}
	}()

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		m.keepAlive(runCtx, instanceID, lease, cancel)
	}()

	err = fn(runCtx)
	lost := context.Cause(runCtx)
	cancel(nil)
	wg.Wait()

	if errors.Is(lost, domain.ErrLockLost) {
		return lost
	}
	return err
}

// keepAlive refreshes lease until ctx is done, canceling it when a refresh fails.
func (m *Manager) keepAlive(ctx context.Context, instanceID string, lease ports.Lease, cancel context.CancelCauseFunc) {
	interval := m.lockTTL / 3
	if interval <= 0 {
		interval = m.lockTTL
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		refreshCtx, done := context.WithTimeout(ctx, interval)
		err := lease.Refresh(refreshCtx, m.lockTTL)
		done()
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		m.logger.Error("Distributed lock lost, stopping instance",
			"instance_id", instanceID,
			"err", err,
		)
		cancel(fmt.Errorf("%w: instance %s: %v", domain.ErrLockLost, instanceID, err))
		return
	}
}
