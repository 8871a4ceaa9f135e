package storage_test

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/media-gateway/media-gateway/internal/config"
	"github.com/media-gateway/media-gateway/internal/storage"
)

// ---------------------------------------------------------------------------
// Minimal mock Storage implementation for Register tests
// ---------------------------------------------------------------------------

type mockStorage struct{}

func (m *mockStorage) Upload(_ context.Context, _ string, _ io.Reader, _ int64) (*storage.UploadResult, error) {
	return nil, nil
}
func (m *mockStorage) Download(_ context.Context, _ string) (io.ReadCloser, error) { return nil, nil }
func (m *mockStorage) Delete(_ context.Context, _ string) error                    { return nil }
func (m *mockStorage) Exists(_ context.Context, _ string) (bool, error)            { return false, nil }
func (m *mockStorage) Stat(_ context.Context, _ string) (*storage.ObjectInfo, error) {
	return nil, nil
}

// ---------------------------------------------------------------------------
// Register
// ---------------------------------------------------------------------------

func TestRegister_AddsFactory(t *testing.T) {
	storage.Register("test-backend", func(_ *config.Config) (storage.Storage, error) {
		return &mockStorage{}, nil
	})

	cfg := &config.Config{}
	cfg.MediaStore.Backend = "test-backend"

	s, err := storage.NewStorage(cfg)
	require.NoError(t, err)
	require.NotNil(t, s)
}

// ---------------------------------------------------------------------------
// NewStorage
// ---------------------------------------------------------------------------

func TestNewStorage_UnknownBackend(t *testing.T) {
	cfg := &config.Config{}
	cfg.MediaStore.Backend = "completely-unknown-backend"

	_, err := storage.NewStorage(cfg)
	assert.Error(t, err, "unregistered backend must be rejected")
}

func TestNewStorage_EmptyBackend(t *testing.T) {
	cfg := &config.Config{}
	cfg.MediaStore.Backend = ""

	_, err := storage.NewStorage(cfg)
	assert.Error(t, err, "empty backend name must be rejected")
}
