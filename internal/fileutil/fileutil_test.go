package fileutil

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.wav")
	dst := filepath.Join(dir, "nested", "dst.wav")

	content := []byte("RIFF....WAVE")
	if err := os.WriteFile(src, content, 0o644); err != nil {
		t.Fatal(err)
	}

	if err := CopyFile(src, dst); err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(content) {
		t.Fatalf("content mismatch: got %q, want %q", got, content)
	}
}

func TestCopyFileMissingSource(t *testing.T) {
	dir := t.TempDir()
	if err := CopyFile(filepath.Join(dir, "missing"), filepath.Join(dir, "dst")); err == nil {
		t.Fatal("expected error for missing source")
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("boom") }

func TestWriteStreamRemovesPartialFile(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "out.bin")
	if _, err := WriteStream(dst, failingReader{}); err == nil {
		t.Fatal("expected error")
	}
	if _, err := os.Stat(dst); !os.IsNotExist(err) {
		t.Fatalf("partial file left behind: %v", err)
	}

	n, err := WriteStream(dst, strings.NewReader("abc"))
	if err != nil || n != 3 {
		t.Fatalf("WriteStream = %d, %v", n, err)
	}
}

func TestNonEmpty(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty")
	full := filepath.Join(dir, "full")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if NonEmpty(empty) || NonEmpty(dir) || NonEmpty(filepath.Join(dir, "missing")) {
		t.Fatal("NonEmpty accepted an empty, directory or missing path")
	}
	if !NonEmpty(full) {
		t.Fatal("NonEmpty rejected a file with content")
	}
}
