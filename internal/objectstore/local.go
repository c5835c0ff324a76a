package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"winivox/internal/fileutil"
	"winivox/internal/services"
)

// Local stores objects as files under root/bucket/key.
type Local struct {
	root string
}

// NewLocal creates root if needed.
func NewLocal(root string) (*Local, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, services.Wrap(services.ErrConfiguration, "objectstore", "init", "local_root is required for the local backend", nil)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "objectstore", "init", "create local root", err)
	}
	return &Local{root: root}, nil
}

// Root returns the directory backing the store.
func (l *Local) Root() string {
	return l.root
}

func (l *Local) path(bucket, key string) (string, error) {
	bucket = strings.TrimSpace(bucket)
	key = strings.TrimSpace(key)
	if bucket == "" || key == "" {
		return "", services.Wrap(services.ErrValidation, "objectstore", "resolve", "bucket and key are required", nil)
	}
	clean := filepath.Clean(filepath.FromSlash(key))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", services.Wrap(services.ErrValidation, "objectstore", "resolve", fmt.Sprintf("key %q escapes bucket", key), nil)
	}
	return filepath.Join(l.root, bucket, clean), nil
}

func (l *Local) Download(ctx context.Context, bucket, key, localPath string) error {
	src, err := l.path(bucket, key)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	in, err := os.Open(src)
	if errors.Is(err, fs.ErrNotExist) {
		return notFound("download", bucket, key, err)
	}
	if err != nil {
		return storageError("download", bucket, key, err)
	}
	defer in.Close()
	if err := writeAtomically(localPath, func(out *os.File) error {
		_, err := io.Copy(out, in)
		return err
	}); err != nil {
		return storageError("download", bucket, key, err)
	}
	return nil
}

func (l *Local) Upload(ctx context.Context, localPath, bucket, key string) error {
	dst, err := l.path(bucket, key)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return storageError("upload", bucket, key, err)
	}
	if err := fileutil.CopyFile(localPath, dst); err != nil {
		return storageError("upload", bucket, key, err)
	}
	return nil
}

func (l *Local) Delete(_ context.Context, bucket, key string) error {
	target, err := l.path(bucket, key)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return storageError("delete", bucket, key, err)
	}
	return nil
}

func (l *Local) Exists(_ context.Context, bucket, key string) (bool, error) {
	target, err := l.path(bucket, key)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(target)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, storageError("stat", bucket, key, err)
	}
	return !info.IsDir(), nil
}
