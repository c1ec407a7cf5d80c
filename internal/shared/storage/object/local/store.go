package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"

	"dataledge/internal/shared/storage/object"
)

const (
	backendName = "local"
	tempPrefix  = ".upload-"
)

// Store implements object.Store on the local filesystem. baseDir plays the
// role of the container.
type Store struct {
	baseDir string
}

// New creates a new local object store rooted at baseDir.
func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

// EnsureContainer creates baseDir if it is missing.
func (s *Store) EnsureContainer() error {
	return os.MkdirAll(s.baseDir, 0o755)
}

// Write stores r at {tenantID}/{fileName} and returns the file path.
func (s *Store) Write(ctx context.Context, tenantID, fileName string, r io.Reader, size int64) (string, error) {
	key := object.Key(tenantID, fileName)
	if err := ctx.Err(); err != nil {
		return "", &object.WriteError{Key: key, Err: err}
	}

	fullPath, err := s.resolve(key)
	if err != nil {
		return "", &object.WriteError{Key: key, Err: err}
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", &object.WriteError{Key: key, Err: fmt.Errorf("mkdir: %w", err)}
	}

	// The body lands in a sibling temp file so a failed upload never
	// leaves a partial object at fullPath.
	tmp, err := os.CreateTemp(filepath.Dir(fullPath), tempPrefix+"*")
	if err != nil {
		return "", &object.WriteError{Key: key, Err: fmt.Errorf("create temp file: %w", err)}
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmp, r)
	if err != nil {
		_ = tmp.Close()
		return "", &object.WriteError{Key: key, Err: fmt.Errorf("write body: %w", err)}
	}
	if size >= 0 && written != size {
		_ = tmp.Close()
		return "", &object.WriteError{Key: key, Err: fmt.Errorf("size mismatch: declared %d, wrote %d", size, written)}
	}
	if err := tmp.Close(); err != nil {
		return "", &object.WriteError{Key: key, Err: fmt.Errorf("close temp file: %w", err)}
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return "", &object.WriteError{Key: key, Err: fmt.Errorf("chmod: %w", err)}
	}
	if err := os.Rename(tmpPath, fullPath); err != nil {
		return "", &object.WriteError{Key: key, Err: fmt.Errorf("rename: %w", err)}
	}
	committed = true
	return fullPath, nil
}

// Exists reports whether a regular file is stored at relativePath.
func (s *Store) Exists(ctx context.Context, relativePath string) bool {
	if ctx.Err() != nil || strings.TrimSpace(relativePath) == "" {
		return false
	}
	fullPath, err := s.resolve(relativePath)
	if err != nil {
		return false
	}
	info, err := os.Stat(fullPath)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}

// ListByPrefix returns regular files directly under the tenant directory.
func (s *Store) ListByPrefix(ctx context.Context, tenantID string) ([]string, error) {
	prefix := tenantID + "/"
	if err := ctx.Err(); err != nil {
		return nil, &object.ListError{Prefix: prefix, Err: err}
	}
	dir, err := s.resolve(tenantID)
	if err != nil {
		return nil, &object.ListError{Prefix: prefix, Err: err}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, &object.ListError{Prefix: prefix, Err: err}
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		// In-flight uploads are not objects yet.
		if e.Type().IsRegular() && !strings.HasPrefix(e.Name(), tempPrefix) {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// DeleteBatch removes the tenant-scoped files. A missing container fails the
// whole batch; missing files are already deleted.
func (s *Store) DeleteBatch(ctx context.Context, tenantID string, fileNames []string) error {
	prefix := tenantID + "/"
	keys, rejected := object.ScopeToTenant(tenantID, fileNames)
	object.ReportRejected(backendName, tenantID, rejected)
	if len(keys) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return &object.DeleteError{Prefix: prefix, Err: err}
	}

	info, err := os.Stat(s.baseDir)
	if err != nil {
		return &object.DeleteError{Prefix: prefix, Err: fmt.Errorf("container %s: %w", s.baseDir, err)}
	}
	if !info.IsDir() {
		return &object.DeleteError{Prefix: prefix, Err: fmt.Errorf("container %s is not a directory", s.baseDir)}
	}

	var itemErrs *multierror.Error
	for _, key := range keys {
		fullPath, err := s.resolve(key)
		if err != nil {
			itemErrs = multierror.Append(itemErrs, fmt.Errorf("%s: %w", key, err))
			continue
		}
		if err := os.Remove(fullPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			itemErrs = multierror.Append(itemErrs, fmt.Errorf("%s: %w", key, err))
		}
	}
	object.ReportItemFailures(backendName, tenantID, itemErrs)
	return nil
}

// Open opens a stored object for reading.
func (s *Store) Open(ctx context.Context, relativePath string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fullPath, err := s.resolve(relativePath)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(fullPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, object.ErrNotFound
		}
		return nil, err
	}
	return f, nil
}

func (s *Store) resolve(relativePath string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(relativePath))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid storage key")
	}
	return filepath.Join(s.baseDir, clean), nil
}

var _ object.Store = (*Store)(nil)
