// Package s3 fetches object content from S3-compatible storage using minio-go.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/aretw0/blobrelay/pkg/domain"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config describes the bucket the fetcher reads from.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	Bucket    string
	UseSSL    bool
}

// Validate checks the required fields.
func (c Config) Validate() error {
	if c.Endpoint == "" {
		return errors.New("s3 endpoint is required")
	}
	if c.Bucket == "" {
		return errors.New("s3 bucket is required")
	}
	return nil
}

// Fetcher implements ports.ContentFetcher over one bucket.
type Fetcher struct {
	client *minio.Client
	bucket string
}

// New builds a minio client from cfg.
func New(cfg Config) (*Fetcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}
	return &Fetcher{client: client, bucket: cfg.Bucket}, nil
}

// NewFromClient wraps an existing client.
func NewFromClient(client *minio.Client, bucket string) (*Fetcher, error) {
	if client == nil {
		return nil, errors.New("minio client is required")
	}
	return &Fetcher{client: client, bucket: bucket}, nil
}

// Fetch reads the whole object named objectID.
func (f *Fetcher) Fetch(ctx context.Context, objectID string) ([]byte, error) {
	obj, err := f.client.GetObject(ctx, f.bucket, objectID, minio.GetObjectOptions{})
	if err != nil {
		return nil, classify(err, objectID)
	}
	defer obj.Close()

	info, err := obj.Stat()
	if err != nil {
		return nil, classify(err, objectID)
	}

	content, err := io.ReadAll(obj)
	if err != nil {
		return nil, classify(err, objectID)
	}
	if info.Size >= 0 && int64(len(content)) != info.Size {
		return nil, domain.Errorf(domain.KindTransient, "short read of %q: got %d of %d bytes", objectID, len(content), info.Size)
	}
	return content, nil
}

// classify maps a minio error onto a step failure kind.
func classify(err error, objectID string) error {
	if domain.IsCanceled(err) {
		return err
	}
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		return domain.NewError(domain.KindNotFound, fmt.Errorf("object %q: %w", objectID, err))
	case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch", "AccountProblem":
		return domain.NewError(domain.KindAccessDenied, fmt.Errorf("object %q: %w", objectID, err))
	}
	switch resp.StatusCode {
	case http.StatusNotFound:
		return domain.NewError(domain.KindNotFound, fmt.Errorf("object %q: %w", objectID, err))
	case http.StatusUnauthorized, http.StatusForbidden:
		return domain.NewError(domain.KindAccessDenied, fmt.Errorf("object %q: %w", objectID, err))
	}
	return domain.NewError(domain.KindTransient, fmt.Errorf("object %q: %w", objectID, err))
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
