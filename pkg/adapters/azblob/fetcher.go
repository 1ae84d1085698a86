// Package azblob fetches blob content from an Azure Storage container.
package azblob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	sdkblob "github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/aretw0/blobrelay/pkg/domain"
)

// Fetcher implements ports.ContentFetcher over one blob container.
type Fetcher struct {
	client    *sdkblob.Client
	container string
}

// New connects with a storage account connection string, the form the
// AzureWebJobsStorage setting uses.
func New(connectionString, container string) (*Fetcher, error) {
	if connectionString == "" {
		return nil, errors.New("storage connection string is required")
	}
	if container == "" {
		return nil, errors.New("blob container name is required")
	}
	client, err := sdkblob.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("create blob client: %w", err)
	}
	return &Fetcher{client: client, container: container}, nil
}

// NewFromClient wraps an existing client.
func NewFromClient(client *sdkblob.Client, container string) *Fetcher {
	return &Fetcher{client: client, container: container}
}

// Fetch downloads the whole blob named objectID.
func (f *Fetcher) Fetch(ctx context.Context, objectID string) ([]byte, error) {
	resp, err := f.client.DownloadStream(ctx, f.container, objectID, nil)
	if err != nil {
		return nil, classify(err, objectID)
	}
	defer resp.Body.Close()

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classify(err, objectID)
	}
	if resp.ContentLength != nil && int64(len(content)) != *resp.ContentLength {
		return nil, domain.Errorf(domain.KindTransient, "short read of blob %q: got %d of %d bytes", objectID, len(content), *resp.ContentLength)
	}
	return content, nil
}

// classify maps a storage error onto a step failure kind.
func classify(err error, objectID string) error {
	if domain.IsCanceled(err) {
		return err
	}
	wrapped := fmt.Errorf("blob %q: %w", objectID, err)

	switch {
	case bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound, bloberror.ResourceNotFound):
		return domain.NewError(domain.KindNotFound, wrapped)
	case bloberror.HasCode(err,
		bloberror.AuthorizationFailure,
		bloberror.AuthenticationFailed,
		bloberror.AuthorizationPermissionMismatch,
		bloberror.InsufficientAccountPermissions,
	):
		return domain.NewError(domain.KindAccessDenied, wrapped)
	}

	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.StatusCode {
		case http.StatusNotFound:
			return domain.NewError(domain.KindNotFound, wrapped)
		case http.StatusUnauthorized, http.StatusForbidden:
			return domain.NewError(domain.KindAccessDenied, wrapped)
		}
	}
	return domain.NewError(domain.KindTransient, wrapped)
}
