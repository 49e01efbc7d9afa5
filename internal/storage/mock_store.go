package storage

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"
)

// MockBlobStore is a mock implementation of BlobStore for testing.
type MockBlobStore struct {
	mock.Mock
}

// PutObject is the mock implementation of PutObject. The reader is drained so callers
// observe the same behavior as a real store.
func (m *MockBlobStore) PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error) {
	payload, _ := io.ReadAll(data)
	args := m.Called(ctx, path, contentType, payload)
	return args.String(0), args.Error(1) //nolint:wrapcheck
}

// GetObject is the mock implementation of GetObject.
func (m *MockBlobStore) GetObject(ctx context.Context, path string) (io.ReadCloser, error) {
	args := m.Called(ctx, path)
	rc, _ := args.Get(0).(io.ReadCloser)
	return rc, args.Error(1) //nolint:wrapcheck
}
