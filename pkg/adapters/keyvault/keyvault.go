// Package keyvault reads secrets from Azure Key Vault.
package keyvault

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
	"github.com/aretw0/blobrelay/pkg/domain"
)

// secretGetter is the part of *azsecrets.Client the store uses.
type secretGetter interface {
	GetSecret(ctx context.Context, name string, version string, options *azsecrets.GetSecretOptions) (azsecrets.GetSecretResponse, error)
}

// Store implements ports.SecretStore.
type Store struct {
	client secretGetter
}

// VaultURL returns the endpoint of a vault in the public cloud.
func VaultURL(vaultName string) string {
	return fmt.Sprintf("https://%s.vault.azure.net", vaultName)
}

// New authenticates with the default Azure credential chain
// (environment, workload identity, managed identity, Azure CLI).
func New(vaultName string) (*Store, error) {
	if vaultName == "" {
		return nil, errors.New("key vault name is required")
	}
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("create azure credential: %w", err)
	}
	client, err := azsecrets.NewClient(VaultURL(vaultName), cred, nil)
	if err != nil {
		return nil, fmt.Errorf("create key vault client: %w", err)
	}
	return &Store{client: client}, nil
}

// NewFromClient wraps an existing client.
func NewFromClient(client *azsecrets.Client) *Store {
	return &Store{client: client}
}

// Get returns the latest version of the named secret.
func (s *Store) Get(ctx context.Context, name string) (string, error) {
	resp, err := s.client.GetSecret(ctx, name, "", nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound {
			return "", fmt.Errorf("%w: %s", domain.ErrSecretNotFound, name)
		}
		return "", fmt.Errorf("get secret %s: %w", name, err)
	}
	if resp.Value == nil {
		return "", fmt.Errorf("%w: %s has no value", domain.ErrSecretNotFound, name)
	}
	return *resp.Value, nil
}
