package local

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/media-gateway/media-gateway/internal/config"
	"github.com/media-gateway/media-gateway/internal/storage"
)

func newTestStore(t *testing.T) *LocalStorage {
	t.Helper()
	store, err := New(&config.LocalStoreConfig{BasePath: t.TempDir()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return store
}

func TestUploadDownloadRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	content := []byte("fake image bytes")

	result, err := store.Upload(ctx, "photos/2026/cat.jpg", bytes.NewReader(content), int64(len(content)))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if result.Size != int64(len(content)) {
		t.Errorf("Size = %d, want %d", result.Size, len(content))
	}
	if len(result.Checksum) != 64 {
		t.Errorf("checksum is not a SHA256 hex digest: %q", result.Checksum)
	}

	reader, err := store.Download(ctx, "photos/2026/cat.jpg")
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	defer reader.Close()

	got, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Error("downloaded content differs from uploaded content")
	}
}

func TestDownloadMissing(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Download(context.Background(), "missing.jpg")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestExistsAndDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Upload(ctx, "a/b/c.png", strings.NewReader("x"), 1); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	exists, err := store.Exists(ctx, "a/b/c.png")
	if err != nil || !exists {
		t.Fatalf("Exists = %v, %v; want true, nil", exists, err)
	}

	if err := store.Delete(ctx, "a/b/c.png"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	exists, err = store.Exists(ctx, "a/b/c.png")
	if err != nil || exists {
		t.Errorf("Exists after delete = %v, %v; want false, nil", exists, err)
	}

	// Deleting again must be a no-op.
	if err := store.Delete(ctx, "a/b/c.png"); err != nil {
		t.Errorf("Delete of missing object: %v", err)
	}
}

func TestStat(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	content := "0123456789"

	if _, err := store.Upload(ctx, "m.bin", strings.NewReader(content), int64(len(content))); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	info, err := store.Stat(ctx, "m.bin")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Size != int64(len(content)) {
		t.Errorf("Size = %d, want %d", info.Size, len(content))
	}
	if info.LastModified.IsZero() {
		t.Error("LastModified should be set")
	}

	if _, err := store.Stat(ctx, "nope.bin"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Stat on missing object: expected ErrNotFound, got %v", err)
	}
}
