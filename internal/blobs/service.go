// Package blobs composes the object store, the metadata store and the secure
// fetcher into the file ingestion and cascading delete flows.
package blobs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"dataledge/internal/metadata"
	"dataledge/internal/shared/metrics"
	"dataledge/internal/shared/storage/object"
	"dataledge/internal/shared/telemetry"
	"dataledge/internal/shared/util"
	"dataledge/internal/tenant"
)

// Fetcher downloads third-party content.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// Metadata is the ownership-checked metadata store.
type Metadata interface {
	Get(ctx context.Context, tenantID string, id int64) (metadata.DataSource, error)
	Delete(ctx context.Context, tenantID string, id int64) error
	RecordBlob(ctx context.Context, tenantID string, dataSourceID int64, fileName string) (metadata.BlobRecord, error)
	ListBlobs(ctx context.Context, tenantID string, dataSourceID int64, q metadata.Query) (metadata.BlobPage, error)
	BlobFileNames(ctx context.Context, tenantID string, dataSourceID int64) ([]string, error)
	DeleteBlobsForDataSource(ctx context.Context, dataSourceID int64) (int64, error)
	DeleteBlobsByName(ctx context.Context, tenantID string, fileNames []string) (int64, error)
	PurgeTenant(ctx context.Context, tenantID string) (metadata.TenantPurge, error)
}

// Service orchestrates writes and deletes across the object and metadata
// stores. Object writes always precede metadata writes.
type Service struct {
	Store   object.Store
	Meta    Metadata
	Fetcher Fetcher
}

// NewService constructs a Service.
func NewService(store object.Store, meta Metadata, fetcher Fetcher) *Service {
	return &Service{Store: store, Meta: meta, Fetcher: fetcher}
}

// WriteFile stores an uploaded file for a FILE UPLOAD datasource and returns
// its location.
func (s *Service) WriteFile(ctx context.Context, rawTenantID string, dataSourceID int64, fileName string, r io.Reader, size int64) (string, error) {
	tid, _, name, err := s.prepare(ctx, rawTenantID, dataSourceID, fileName, metadata.TypeFileUpload)
	if err != nil {
		return "", err
	}
	if err := s.ensureAbsent(ctx, tid, name); err != nil {
		return "", err
	}
	return s.store(ctx, "file", tid, dataSourceID, name, r, size)
}

// IngestAPIContent fetches url for an API datasource and stores the body
// under fileName. A blank url falls back to the datasource's own URL.
func (s *Service) IngestAPIContent(ctx context.Context, rawTenantID string, dataSourceID int64, rawURL, fileName string) (string, error) {
	tid, ds, name, err := s.prepare(ctx, rawTenantID, dataSourceID, fileName, metadata.TypeAPI)
	if err != nil {
		return "", err
	}
	if err := s.ensureAbsent(ctx, tid, name); err != nil {
		return "", err
	}

	target := strings.TrimSpace(rawURL)
	if target == "" {
		target = strings.TrimSpace(ds.URL)
	}
	if target == "" {
		return "", fmt.Errorf("%w: apiUrl is required", ErrInvalidInput)
	}

	body, err := s.Fetcher.Fetch(ctx, target)
	if err != nil {
		return "", err
	}
	if len(body) == 0 {
		return "", ErrEmptyContent
	}
	return s.store(ctx, "api", tid, dataSourceID, name, bytes.NewReader(body), int64(len(body)))
}

// ListFiles returns a page of blob records for an owned datasource.
func (s *Service) ListFiles(ctx context.Context, rawTenantID string, dataSourceID int64, q metadata.Query) (metadata.BlobPage, error) {
	tid, err := tenant.Sanitize(rawTenantID)
	if err != nil {
		return metadata.BlobPage{}, err
	}
	return s.Meta.ListBlobs(ctx, tid.String(), dataSourceID, q)
}

// ListObjects returns the file names stored under the tenant prefix.
func (s *Service) ListObjects(ctx context.Context, rawTenantID string) ([]string, error) {
	tid, err := tenant.Sanitize(rawTenantID)
	if err != nil {
		return nil, err
	}
	return s.Store.ListByPrefix(ctx, tid.String())
}

// Open returns a reader for one of the tenant's files.
func (s *Service) Open(ctx context.Context, rawTenantID, fileName string) (io.ReadCloser, error) {
	tid, err := tenant.Sanitize(rawTenantID)
	if err != nil {
		return nil, err
	}
	name, err := util.ValidateFileName(fileName)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return s.Store.Open(ctx, object.Key(tid.String(), name))
}

// DeleteFiles removes the named files: metadata rows first, then one
// tenant-filtered batch delete.
func (s *Service) DeleteFiles(ctx context.Context, rawTenantID string, fileNames []string) error {
	tid, err := tenant.Sanitize(rawTenantID)
	if err != nil {
		return err
	}
	names := normalizeFileNames(tid.String(), fileNames)
	if len(names) == 0 {
		return fmt.Errorf("%w: fileNames has no valid names", ErrInvalidInput)
	}
	if _, err := s.Meta.DeleteBlobsByName(ctx, tid.String(), names); err != nil {
		telemetry.Error("blobs.delete_files.failed", map[string]any{
			"tenant_id": tid.String(),
			"phase":     PhaseMetadata,
			"error":     err,
		})
		return fmt.Errorf("delete blob metadata: %w", err)
	}
	if err := s.Store.DeleteBatch(ctx, tid.String(), names); err != nil {
		telemetry.Error("blobs.delete_files.failed", map[string]any{
			"tenant_id": tid.String(),
			"phase":     PhaseObjectsDelete,
			"error":     err,
		})
		return err
	}
	return nil
}

// normalizeFileNames resolves names the way the object store scopes them and
// keeps only valid first-level file names, so the metadata and object
// deletes see the same list.
func normalizeFileNames(tenantID string, fileNames []string) []string {
	keys, rejected := object.ScopeToTenant(tenantID, fileNames)
	names := make([]string, 0, len(keys))
	for _, key := range keys {
		name, err := util.ValidateFileName(object.FileName(tenantID, key))
		if err != nil {
			rejected = append(rejected, key)
			continue
		}
		names = append(names, name)
	}
	if len(rejected) > 0 {
		telemetry.Warn("blobs.delete_files.rejected_names", map[string]any{
			"tenant_id": tenantID,
			"rejected":  rejected,
		})
	}
	return names
}

// DeleteDataSource removes a datasource, its blob records and their objects.
// A failed batch delete aborts before the datasource row is removed.
func (s *Service) DeleteDataSource(ctx context.Context, rawTenantID string, id int64) error {
	tid, err := tenant.Sanitize(rawTenantID)
	if err != nil {
		return err
	}
	tenantID := tid.String()
	if _, err := s.Meta.Get(ctx, tenantID, id); err != nil {
		return err
	}

	names, err := s.Meta.BlobFileNames(ctx, tenantID, id)
	if err != nil {
		return s.datasourceFailed(tenantID, id, PhaseMetadata, err)
	}
	if _, err := s.Meta.DeleteBlobsForDataSource(ctx, id); err != nil {
		return s.datasourceFailed(tenantID, id, PhaseMetadata, err)
	}
	if len(names) > 0 {
		if err := s.Store.DeleteBatch(ctx, tenantID, names); err != nil {
			return s.datasourceFailed(tenantID, id, PhaseObjectsDelete, err)
		}
	}
	if err := s.Meta.Delete(ctx, tenantID, id); err != nil {
		if errors.Is(err, metadata.ErrNotFound) {
			// Lost a race with a concurrent delete.
			return err
		}
		return s.datasourceFailed(tenantID, id, PhaseMetadata, err)
	}

	telemetry.Info("blobs.datasource.deleted", map[string]any{
		"tenant_id":     tenantID,
		"datasource_id": id,
		"objects":       len(names),
	})
	return nil
}

// DeleteTenant wipes all metadata for the tenant, then every object under its
// prefix. If the metadata phase fails the object phase is skipped.
func (s *Service) DeleteTenant(ctx context.Context, rawTenantID string) error {
	tid, err := tenant.Sanitize(rawTenantID)
	if err != nil {
		return err
	}
	tenantID := tid.String()

	purge, err := s.Meta.PurgeTenant(ctx, tenantID)
	if err != nil {
		return &PhaseError{Phase: PhaseMetadata, TenantID: tenantID, Err: err}
	}

	names, err := s.Store.ListByPrefix(ctx, tenantID)
	if err != nil {
		return &PhaseError{Phase: PhaseObjectsList, TenantID: tenantID, Err: err}
	}
	if len(names) > 0 {
		if err := s.Store.DeleteBatch(ctx, tenantID, names); err != nil {
			return &PhaseError{Phase: PhaseObjectsDelete, TenantID: tenantID, Err: err}
		}
	}

	telemetry.Info("blobs.tenant.deleted", map[string]any{
		"tenant_id":    tenantID,
		"datasources":  purge.DataSources,
		"blob_records": purge.BlobRecords,
		"objects":      len(names),
	})
	return nil
}

// prepare sanitizes the tenant, checks ownership and type, and validates the
// file name.
func (s *Service) prepare(ctx context.Context, rawTenantID string, dataSourceID int64, fileName, wantType string) (string, metadata.DataSource, string, error) {
	tid, err := tenant.Sanitize(rawTenantID)
	if err != nil {
		return "", metadata.DataSource{}, "", err
	}
	ds, err := s.Meta.Get(ctx, tid.String(), dataSourceID)
	if err != nil {
		return "", metadata.DataSource{}, "", err
	}
	if !ds.Type().Is(wantType) {
		return "", metadata.DataSource{}, "", fmt.Errorf("%w: datasource %d is %q, expected %q", ErrTypeMismatch, dataSourceID, ds.TypeName, wantType)
	}
	name, err := util.ValidateFileName(fileName)
	if err != nil {
		return "", metadata.DataSource{}, "", fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return tid.String(), ds, name, nil
}

func (s *Service) ensureAbsent(ctx context.Context, tenantID, name string) error {
	if s.Store.Exists(ctx, object.Key(tenantID, name)) {
		return fmt.Errorf("%w: %s", ErrConflict, name)
	}
	return nil
}

func (s *Service) store(ctx context.Context, source, tenantID string, dataSourceID int64, name string, r io.Reader, size int64) (string, error) {
	location, err := s.Store.Write(ctx, tenantID, name, r, size)
	if err != nil {
		metrics.ObserveBlobWrite(source, false)
		return "", err
	}

	if _, err := s.Meta.RecordBlob(ctx, tenantID, dataSourceID, name); err != nil {
		metrics.ObserveBlobWrite(source, false)
		metrics.IncOrphanedObject()
		telemetry.Error("blobs.write.orphaned_object", map[string]any{
			"tenant_id":     tenantID,
			"datasource_id": dataSourceID,
			"file_name":     name,
			"location":      location,
			"error":         err,
		})
		if errors.Is(err, metadata.ErrDuplicate) {
			return "", fmt.Errorf("%w: %w", ErrConflict, err)
		}
		return "", fmt.Errorf("record blob metadata: %w", err)
	}

	metrics.ObserveBlobWrite(source, true)
	return location, nil
}

func (s *Service) datasourceFailed(tenantID string, id int64, phase string, err error) error {
	telemetry.Error("blobs.datasource.delete_failed", map[string]any{
		"tenant_id":     tenantID,
		"datasource_id": id,
		"phase":         phase,
		"error":         err,
	})
	return &PhaseError{Phase: phase, TenantID: tenantID, DataSourceID: id, Err: err}
}
