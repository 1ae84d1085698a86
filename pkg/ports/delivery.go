package ports

import (
	"context"

	"github.com/aretw0/blobrelay/pkg/domain"
)

// Deliverer writes content to a remote host as {base path}/{destinationName}.
//
// Failures are reported as *domain.StepError with kind CredentialError,
// ConnectionError or RemoteWriteError. Any session opened by Deliver is closed
// before it returns.
type Deliverer interface {
	Deliver(ctx context.Context, destinationName string, content []byte) (domain.DeliveryReceipt, error)
}
