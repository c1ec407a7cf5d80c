package object

import (
	"context"
	"io"
)

// Store is the tenant-scoped object store. Every object lives at
// {tenantID}/{fileName} inside a single container.
type Store interface {
	// Write uploads r to {tenantID}/{fileName} and returns the stored location.
	// It does not guard against overwriting; callers check Exists first.
	Write(ctx context.Context, tenantID, fileName string, r io.Reader, size int64) (location string, err error)
	// Exists reports whether relativePath is stored. A failed check reports false.
	Exists(ctx context.Context, relativePath string) bool
	// ListByPrefix returns the first-level file names under tenantID.
	ListByPrefix(ctx context.Context, tenantID string) ([]string, error)
	// DeleteBatch removes the named files that resolve inside tenantID's prefix
	// in a single batch call. Per-item failures are logged, not returned.
	DeleteBatch(ctx context.Context, tenantID string, fileNames []string) error
	// Open opens a stored object for reading.
	Open(ctx context.Context, relativePath string) (io.ReadCloser, error)
}
