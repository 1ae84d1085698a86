package ports

import (
	"context"

	"github.com/aretw0/blobrelay/pkg/domain"
)

// StateStore defines the interface for persisting orchestration checkpoints.
// Implementations must replace the record for an id atomically: a reader sees
// either the previous checkpoint or the new one, never a mix.
type StateStore interface {
	// Save persists the instance under its correlation id.
	Save(ctx context.Context, instanceID string, inst *domain.Instance) error

	// Load retrieves the instance for a correlation id.
	// Returns domain.ErrInstanceNotFound if the instance does not exist.
	Load(ctx context.Context, instanceID string) (*domain.Instance, error)

	// Delete removes the instance. Deleting a missing instance is not an error.
	Delete(ctx context.Context, instanceID string) error

	// List returns the ids of all stored instances.
	List(ctx context.Context) ([]string, error)
}
