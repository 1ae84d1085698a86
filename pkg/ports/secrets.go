package ports

import "context"

// SecretStore resolves named secrets such as private key material.
// Returns domain.ErrSecretNotFound if the secret does not exist.
type SecretStore interface {
	Get(ctx context.Context, name string) (string, error)
}
