package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"path"
	"sync"
	"time"

	"github.com/aretw0/blobrelay/pkg/domain"
)

// Remote implements ports.Deliverer by writing files into an in-memory tree.
// Safe for concurrent use.
type Remote struct {
	mu       sync.RWMutex
	basePath string
	files    map[string][]byte
	calls    int
}

// NewRemote creates a remote rooted at basePath.
func NewRemote(basePath string) *Remote {
	return &Remote{
		basePath: basePath,
		files:    make(map[string][]byte),
	}
}

// Deliver overwrites {basePath}/{destinationName} with content.
func (r *Remote) Deliver(ctx context.Context, destinationName string, content []byte) (domain.DeliveryReceipt, error) {
	if err := ctx.Err(); err != nil {
		return domain.DeliveryReceipt{}, err
	}

	remotePath := path.Join(r.basePath, destinationName)
	sum := sha256.Sum256(content)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.files[remotePath] = append([]byte(nil), content...)

	return domain.DeliveryReceipt{
		Path:        remotePath,
		Bytes:       int64(len(content)),
		SHA256:      hex.EncodeToString(sum[:]),
		DeliveredAt: time.Now().UTC(),
	}, nil
}

// ReadFile returns the content written at remotePath.
func (r *Remote) ReadFile(remotePath string) ([]byte, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	content, ok := r.files[remotePath]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), content...), true
}

// Calls reports how many deliveries were made.
func (r *Remote) Calls() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.calls
}
