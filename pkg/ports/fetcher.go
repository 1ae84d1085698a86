package ports

import "context"

// ContentFetcher retrieves the full content of an object from storage.
//
// Failures are reported as *domain.StepError with kind NotFound, AccessDenied
// or Transient. Partial content is never returned.
type ContentFetcher interface {
	Fetch(ctx context.Context, objectID string) ([]byte, error)
}
