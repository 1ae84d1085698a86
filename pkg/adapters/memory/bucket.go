package memory

import (
	"context"
	"sync"

	"github.com/aretw0/blobrelay/pkg/domain"
)

// Bucket implements ports.ContentFetcher over an in-memory object map.
// Safe for concurrent use.
type Bucket struct {
	mu      sync.RWMutex
	objects map[string][]byte
	fetches map[string]int
}

// NewBucket creates an empty bucket.
func NewBucket() *Bucket {
	return &Bucket{
		objects: make(map[string][]byte),
		fetches: make(map[string]int),
	}
}

// Put stores a copy of content under objectID.
func (b *Bucket) Put(objectID string, content []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[objectID] = append([]byte(nil), content...)
}

// Fetch returns a copy of the object content.
func (b *Bucket) Fetch(ctx context.Context, objectID string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.fetches[objectID]++

	content, ok := b.objects[objectID]
	if !ok {
		return nil, domain.Errorf(domain.KindNotFound, "object %q does not exist", objectID)
	}
	return append([]byte(nil), content...), nil
}

// Fetches reports how many times objectID was requested.
func (b *Bucket) Fetches(objectID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.fetches[objectID]
}
