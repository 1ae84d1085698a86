package keyvault

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
	"github.com/aretw0/blobrelay/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeVault struct {
	secrets map[string]string
	err     error
}

func (f *fakeVault) GetSecret(ctx context.Context, name string, version string, options *azsecrets.GetSecretOptions) (azsecrets.GetSecretResponse, error) {
	if f.err != nil {
		return azsecrets.GetSecretResponse{}, f.err
	}
	val, ok := f.secrets[name]
	if !ok {
		u, _ := url.Parse("https://vault.vault.azure.net/secrets/" + name)
		return azsecrets.GetSecretResponse{}, &azcore.ResponseError{
			ErrorCode:  "SecretNotFound",
			StatusCode: http.StatusNotFound,
			RawResponse: &http.Response{
				StatusCode: http.StatusNotFound,
				Header:     http.Header{},
				Body:       http.NoBody,
				Request:    &http.Request{Method: http.MethodGet, URL: u},
			},
		}
	}
	var resp azsecrets.GetSecretResponse
	resp.Value = &val
	return resp, nil
}

func TestStore_Get(t *testing.T) {
	store := &Store{client: &fakeVault{secrets: map[string]string{"sftp-key": "pem"}}}

	val, err := store.Get(context.Background(), "sftp-key")
	require.NoError(t, err)
	assert.Equal(t, "pem", val)

	_, err = store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrSecretNotFound)
}

func TestStore_GetFailure(t *testing.T) {
	store := &Store{client: &fakeVault{err: errors.New("token expired")}}

	_, err := store.Get(context.Background(), "sftp-key")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrSecretNotFound)
	assert.ErrorContains(t, err, "token expired")
}

func TestVaultURL(t *testing.T) {
	assert.Equal(t, "https://contoso.vault.azure.net", VaultURL("contoso"))
}
