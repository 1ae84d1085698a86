package ports_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/aretw0/blobrelay/pkg/domain"
	"github.com/aretw0/blobrelay/pkg/ports"
)

// MockStore keeps serialized checkpoints in a map, so every Load decodes a fresh copy.
type MockStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func NewMockStore() *MockStore {
	return &MockStore{data: make(map[string][]byte)}
}

func (m *MockStore) Save(ctx context.Context, instanceID string, inst *domain.Instance) error {
	raw, err := json.Marshal(inst)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[instanceID] = raw
	return nil
}

func (m *MockStore) Load(ctx context.Context, instanceID string) (*domain.Instance, error) {
	m.mu.Lock()
	raw, ok := m.data[instanceID]
	m.mu.Unlock()
	if !ok {
		return nil, domain.ErrInstanceNotFound
	}
	var inst domain.Instance
	if err := json.Unmarshal(raw, &inst); err != nil {
		return nil, err
	}
	return &inst, nil
}

func (m *MockStore) Delete(ctx context.Context, instanceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, instanceID)
	return nil
}

func (m *MockStore) List(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.data))
	for id := range m.data {
		ids = append(ids, id)
	}
	return ids, nil
}

var _ ports.StateStore = (*MockStore)(nil)

func TestStateStore_Contract(t *testing.T) {
	// The contract suite itself must hold for the simplest serializing store.
	ports.RunStateStoreContract(t, NewMockStore())
}
