package middleware_test

import (
	"context"

	"github.com/aretw0/blobrelay/pkg/domain"
)

// MockStore is a simple map-based store for testing middleware.
// It keeps the exact pointer it was given so tests can inspect the envelope.
type MockStore struct {
	data map[string]*domain.Instance
}

func NewMockStore() *MockStore {
	return &MockStore{
		data: make(map[string]*domain.Instance),
	}
}

func (s *MockStore) Save(ctx context.Context, instanceID string, inst *domain.Instance) error {
	s.data[instanceID] = inst
	return nil
}

func (s *MockStore) Load(ctx context.Context, instanceID string) (*domain.Instance, error) {
	inst, ok := s.data[instanceID]
	if !ok {
		return nil, domain.ErrInstanceNotFound
	}
	return inst, nil
}

func (s *MockStore) Delete(ctx context.Context, instanceID string) error {
	delete(s.data, instanceID)
	return nil
}

func (s *MockStore) List(ctx context.Context) ([]string, error) {
	ids := make([]string, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	return ids, nil
}
