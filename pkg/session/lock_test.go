package session

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aretw0/blobrelay/pkg/domain"
)

// MockStore structure
type MockStore struct{}

func (m *MockStore) Save(ctx context.Context, instanceID string, inst *domain.Instance) error {
	return nil
}
func (m *MockStore) Load(ctx context.Context, instanceID string) (*domain.Instance, error) {
	return nil, domain.ErrInstanceNotFound
}
func (m *MockStore) Delete(ctx context.Context, instanceID string) error { return nil }
func (m *MockStore) List(ctx context.Context) ([]string, error)          { return nil, nil }

func TestManager_LockLifecycle(t *testing.T) {
	mgr := NewManager(&MockStore{})
	ctx := context.Background()
	count := 10000

	for i := 0; i < count; i++ {
		id := fmt.Sprintf("instance-%d", i)
		_, _, _ = mgr.LoadOrCreate(ctx, domain.TransferRequest{ObjectID: "o", InstanceID: id}, time.Now())
		_ = mgr.Delete(ctx, id)
	}

	lockCount := len(mgr.locks)
	if lockCount != 0 {
		t.Errorf("Memory Leak Detected: %d locks remaining in memory after Delete", lockCount)
	}
}
