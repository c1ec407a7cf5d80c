package metadata

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Service provides ownership-checked access to datasource and blob metadata.
type Service struct {
	Repo Repo
	now  func() time.Time
}

// NewService constructs a Service.
func NewService(repo Repo) *Service {
	return &Service{Repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

// CreateInput is the caller-supplied part of a new datasource.
type CreateInput struct {
	Name        string
	Description string
	URL         string
	TypeID      int64
}

// UpdateInput replaces the mutable fields of a datasource. A zero TypeID
// keeps the current type.
type UpdateInput struct {
	Name        string
	Description string
	URL         *string
	TypeID      int64
}

// Create stores a new datasource owned by tenantID.
func (s *Service) Create(ctx context.Context, tenantID string, in CreateInput) (DataSource, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return DataSource{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if tenantID == "" {
		return DataSource{}, fmt.Errorf("%w: tenant id is required", ErrInvalidInput)
	}
	dt, err := s.Repo.GetType(ctx, in.TypeID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return DataSource{}, fmt.Errorf("data type %d: %w", in.TypeID, ErrNotFound)
		}
		return DataSource{}, err
	}

	now := s.now()
	return s.Repo.CreateDataSource(ctx, DataSource{
		Name:          name,
		Description:   strings.TrimSpace(in.Description),
		URL:           strings.TrimSpace(in.URL),
		TypeID:        dt.ID,
		TypeName:      dt.Name,
		OwnerTenantID: tenantID,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
}

// Get returns the datasource if tenantID owns it.
func (s *Service) Get(ctx context.Context, tenantID string, id int64) (DataSource, error) {
	ds, err := s.Repo.GetDataSource(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return DataSource{}, fmt.Errorf("datasource %d: %w", id, ErrNotFound)
		}
		return DataSource{}, err
	}
	if ds.OwnerTenantID != tenantID {
		return DataSource{}, fmt.Errorf("datasource %d: %w", id, ErrForbidden)
	}
	return ds, nil
}

// Update modifies an owned datasource. The owner never changes.
func (s *Service) Update(ctx context.Context, tenantID string, id int64, in UpdateInput) (DataSource, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return DataSource{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	ds, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return DataSource{}, err
	}
	if in.TypeID != 0 && in.TypeID != ds.TypeID {
		dt, err := s.Repo.GetType(ctx, in.TypeID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return DataSource{}, fmt.Errorf("data type %d: %w", in.TypeID, ErrNotFound)
			}
			return DataSource{}, err
		}
		ds.TypeID = dt.ID
		ds.TypeName = dt.Name
	}
	ds.Name = name
	ds.Description = strings.TrimSpace(in.Description)
	if in.URL != nil {
		ds.URL = strings.TrimSpace(*in.URL)
	}
	ds.UpdatedAt = s.now()
	return s.Repo.UpdateDataSource(ctx, ds)
}

// Delete removes the datasource row only. Blob cleanup is the caller's job.
func (s *Service) Delete(ctx context.Context, tenantID string, id int64) error {
	if _, err := s.Get(ctx, tenantID, id); err != nil {
		return err
	}
	if err := s.Repo.DeleteDataSource(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("datasource %d: %w", id, ErrNotFound)
		}
		return err
	}
	return nil
}

// FindAll returns a page of the tenant's datasources. An empty result is an
// error only when no search term was given.
func (s *Service) FindAll(ctx context.Context, tenantID string, q Query) (DataSourcePage, error) {
	q, err := normalizeQuery(q)
	if err != nil {
		return DataSourcePage{}, err
	}
	items, total, err := s.Repo.ListDataSources(ctx, tenantID, q)
	if err != nil {
		return DataSourcePage{}, err
	}
	if total == 0 && q.Search == "" {
		return DataSourcePage{}, fmt.Errorf("no datasources for tenant: %w", ErrNotFound)
	}
	return DataSourcePage{Items: items, PageNumber: q.PageNumber, PageSize: q.PageSize, Total: total}, nil
}

// Types returns the data type catalog.
func (s *Service) Types(ctx context.Context) ([]DataType, error) {
	types, err := s.Repo.ListTypes(ctx)
	if err != nil {
		return nil, err
	}
	if len(types) == 0 {
		return nil, fmt.Errorf("data type catalog is empty: %w", ErrNotFound)
	}
	return types, nil
}

// RecordBlob writes the metadata row for an object already stored under
// {tenantID}/{fileName}.
func (s *Service) RecordBlob(ctx context.Context, tenantID string, dataSourceID int64, fileName string) (BlobRecord, error) {
	return s.Repo.CreateBlob(ctx, BlobRecord{
		FileName:      fileName,
		CreatedAt:     s.now(),
		OwnerTenantID: tenantID,
		DataSourceID:  dataSourceID,
	})
}

// ListBlobs returns a page of blob records for an owned datasource.
func (s *Service) ListBlobs(ctx context.Context, tenantID string, dataSourceID int64, q Query) (BlobPage, error) {
	q, err := normalizeQuery(q)
	if err != nil {
		return BlobPage{}, err
	}
	if _, err := s.Get(ctx, tenantID, dataSourceID); err != nil {
		return BlobPage{}, err
	}
	items, total, err := s.Repo.ListBlobs(ctx, tenantID, dataSourceID, q)
	if err != nil {
		return BlobPage{}, err
	}
	return BlobPage{Items: items, PageNumber: q.PageNumber, PageSize: q.PageSize, Total: total}, nil
}

// BlobFileNames lists the file names recorded for a datasource.
func (s *Service) BlobFileNames(ctx context.Context, tenantID string, dataSourceID int64) ([]string, error) {
	return s.Repo.BlobFileNames(ctx, tenantID, dataSourceID)
}

// DeleteBlobsForDataSource removes every blob record of a datasource.
func (s *Service) DeleteBlobsForDataSource(ctx context.Context, dataSourceID int64) (int64, error) {
	return s.Repo.DeleteBlobsByDataSource(ctx, dataSourceID)
}

// DeleteBlobsByName removes the tenant's blob records with the given names.
func (s *Service) DeleteBlobsByName(ctx context.Context, tenantID string, fileNames []string) (int64, error) {
	return s.Repo.DeleteBlobsByName(ctx, tenantID, fileNames)
}

// PurgeTenant removes all metadata owned by tenantID. Running it again is a no-op.
func (s *Service) PurgeTenant(ctx context.Context, tenantID string) (TenantPurge, error) {
	if tenantID == "" {
		return TenantPurge{}, fmt.Errorf("%w: tenant id is required", ErrInvalidInput)
	}
	return s.Repo.DeleteTenant(ctx, tenantID)
}

func normalizeQuery(q Query) (Query, error) {
	if q.PageNumber < 0 {
		return Query{}, fmt.Errorf("%w: pageNumber must be >= 0", ErrInvalidInput)
	}
	if q.PageSize < 0 {
		return Query{}, fmt.Errorf("%w: pageSize must be > 0", ErrInvalidInput)
	}
	if q.PageSize == 0 {
		q.PageSize = DefaultPageSize
	}
	if q.PageSize > MaxPageSize {
		q.PageSize = MaxPageSize
	}
	if q.PageNumber > math.MaxInt32/q.PageSize {
		return Query{}, fmt.Errorf("%w: pageNumber is too large", ErrInvalidInput)
	}
	q.Search = strings.TrimSpace(q.Search)
	return q, nil
}
