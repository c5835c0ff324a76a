package objectstore

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"winivox/internal/services"
)

// GCS stores objects in Google Cloud Storage using application default
// credentials. A non-empty endpoint points the client at an emulator and
// disables authentication.
type GCS struct {
	client *storage.Client
}

// NewGCS opens a storage client.
func NewGCS(ctx context.Context, endpoint string) (*GCS, error) {
	var opts []option.ClientOption
	if endpoint = strings.TrimSpace(endpoint); endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint), option.WithoutAuthentication())
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "objectstore", "init", "create gcs client", err)
	}
	return &GCS{client: client}, nil
}

func (g *GCS) Download(ctx context.Context, bucket, key, localPath string) error {
	reader, err := g.client.Bucket(bucket).Object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		return notFound("download", bucket, key, err)
	}
	if err != nil {
		return storageError("download", bucket, key, err)
	}
	defer reader.Close()
	if err := writeAtomically(localPath, func(f *os.File) error {
		_, err := io.Copy(f, reader)
		return err
	}); err != nil {
		return storageError("download", bucket, key, err)
	}
	return nil
}

func (g *GCS) Upload(ctx context.Context, localPath, bucket, key string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return storageError("upload", bucket, key, err)
	}
	defer f.Close()

	writer := g.client.Bucket(bucket).Object(key).NewWriter(ctx)
	if _, err := io.Copy(writer, f); err != nil {
		_ = writer.Close()
		return storageError("upload", bucket, key, err)
	}
	if err := writer.Close(); err != nil {
		return storageError("upload", bucket, key, err)
	}
	return nil
}

func (g *GCS) Delete(ctx context.Context, bucket, key string) error {
	err := g.client.Bucket(bucket).Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return storageError("delete", bucket, key, err)
	}
	return nil
}

func (g *GCS) Exists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := g.client.Bucket(bucket).Object(key).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, storageError("stat", bucket, key, err)
	}
	return true, nil
}

func (g *GCS) PresignPut(_ context.Context, bucket, key, contentType string, ttl time.Duration) (string, error) {
	url, err := g.client.Bucket(bucket).SignedURL(key, &storage.SignedURLOptions{
		Method:      "PUT",
		ContentType: strings.TrimSpace(contentType),
		Expires:     time.Now().Add(ttl),
		Scheme:      storage.SigningSchemeV4,
	})
	if err != nil {
		return "", storageError("presign", bucket, key, err)
	}
	return url, nil
}

func (g *GCS) PresignGet(_ context.Context, bucket, key string, ttl time.Duration) (string, error) {
	url, err := g.client.Bucket(bucket).SignedURL(key, &storage.SignedURLOptions{
		Method:  "GET",
		Expires: time.Now().Add(ttl),
		Scheme:  storage.SigningSchemeV4,
	})
	if err != nil {
		return "", storageError("presign", bucket, key, err)
	}
	return url, nil
}

// Close releases the underlying client.
func (g *GCS) Close() error {
	return g.client.Close()
}
