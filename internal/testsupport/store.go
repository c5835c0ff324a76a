package testsupport

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"winivox/internal/config"
	"winivox/internal/submissions"
)

// MustOpenStore opens a submissions.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *submissions.Store {
	t.Helper()

	store, err := submissions.Open(cfg)
	if err != nil {
		t.Fatalf("submissions.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewUploaded creates a submission, places content as its raw audio under the
// local object root, and marks it uploaded with mode.
func NewUploaded(t testing.TB, cfg *config.Config, store *submissions.Store, owner string, mode submissions.Mode, content []byte) *submissions.Submission {
	t.Helper()

	ctx := context.Background()
	sub, err := store.Create(ctx, owner, "story.webm")
	if err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	target := filepath.Join(cfg.Storage.LocalRoot, cfg.Storage.PrivateBucket, filepath.FromSlash(sub.RawAudioKey))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		t.Fatalf("mkdir raw audio dir: %v", err)
	}
	if err := os.WriteFile(target, content, 0o644); err != nil {
		t.Fatalf("write raw audio: %v", err)
	}
	sub, err = store.MarkUploaded(ctx, sub.ID, submissions.UploadDetails{Mode: mode})
	if err != nil {
		t.Fatalf("store.MarkUploaded: %v", err)
	}
	return sub
}
