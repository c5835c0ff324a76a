// Package objectstore moves audio files between the local working directory
// and bucketed object storage. Three backends share one interface: S3 (and
// S3-compatible servers such as MinIO), Google Cloud Storage, and a plain
// directory tree for single-host runs and tests.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"winivox/internal/config"
	"winivox/internal/services"
)

// Store transfers whole objects.
type Store interface {
	// Download writes bucket/key to localPath, replacing it atomically.
	Download(ctx context.Context, bucket, key, localPath string) error
	// Upload stores the file at localPath as bucket/key.
	Upload(ctx context.Context, localPath, bucket, key string) error
	// Delete removes bucket/key. Deleting a missing object is not an error.
	Delete(ctx context.Context, bucket, key string) error
	// Exists reports whether bucket/key is present.
	Exists(ctx context.Context, bucket, key string) (bool, error)
}

// Presigner is implemented by backends that can hand out time-limited URLs so
// clients transfer bytes without passing through this process.
type Presigner interface {
	PresignPut(ctx context.Context, bucket, key, contentType string, ttl time.Duration) (string, error)
	PresignGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
}

// ErrPresignUnsupported is returned by Presign when the backend cannot sign URLs.
var ErrPresignUnsupported = errors.New("presigned urls not supported by storage backend")

// New builds the backend selected by cfg.Storage.Backend.
func New(ctx context.Context, cfg *config.Config) (Store, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "objectstore", "init", "config is nil", nil)
	}
	storage := cfg.Storage
	switch strings.ToLower(strings.TrimSpace(storage.Backend)) {
	case config.StorageBackendS3, "":
		return NewS3(S3Options{
			Endpoint:  storage.Endpoint,
			Region:    storage.Region,
			AccessKey: storage.AccessKey,
			SecretKey: storage.SecretKey,
			PathStyle: storage.PathStyle,
		})
	case config.StorageBackendGCS:
		return NewGCS(ctx, storage.Endpoint)
	case config.StorageBackendLocal:
		return NewLocal(storage.LocalRoot)
	default:
		return nil, services.Wrap(services.ErrConfiguration, "objectstore", "init",
			fmt.Sprintf("unsupported storage backend %q", storage.Backend), nil)
	}
}

// Presign returns a signed URL when store supports it.
func Presign(ctx context.Context, store Store, method, bucket, key, contentType string, ttl time.Duration) (string, error) {
	signer, ok := store.(Presigner)
	if !ok {
		return "", ErrPresignUnsupported
	}
	switch method {
	case "PUT":
		return signer.PresignPut(ctx, bucket, key, contentType, ttl)
	case "GET":
		return signer.PresignGet(ctx, bucket, key, ttl)
	default:
		return "", fmt.Errorf("presign: unsupported method %q", method)
	}
}

func storageError(operation, bucket, key string, err error) error {
	return services.Wrap(services.ErrStorage, "objectstore", operation, bucket+"/"+key, err)
}

func notFound(operation, bucket, key string, err error) error {
	return services.Wrap(services.ErrNotFound, "objectstore", operation, bucket+"/"+key, err)
}

// writeAtomically creates localPath's directory, lets fill write into a
// sibling temp file, and renames it into place on success.
func writeAtomically(localPath string, fill func(*os.File) error) error {
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return fmt.Errorf("create download dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(localPath), "."+filepath.Base(localPath)+".*.part")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if err := fill(tmp); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, localPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
