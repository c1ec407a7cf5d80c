package metadata

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryRepo is an in-memory implementation of Repo used in dev and tests.
type MemoryRepo struct {
	mu          sync.RWMutex
	types       map[int64]DataType
	dataSources map[int64]DataSource
	blobs       map[int64]BlobRecord
	nextDS      int64
	nextBlob    int64
}

// NewMemoryRepo constructs a MemoryRepo seeded with the FILE UPLOAD and API types.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		types: map[int64]DataType{
			1: {ID: 1, Name: TypeFileUpload},
			2: {ID: 2, Name: TypeAPI},
		},
		dataSources: make(map[int64]DataSource),
		blobs:       make(map[int64]BlobRecord),
	}
}

// CreateDataSource stores ds. A non-zero ds.ID is kept as is.
func (r *MemoryRepo) CreateDataSource(ctx context.Context, ds DataSource) (DataSource, error) {
	if err := ctx.Err(); err != nil {
		return DataSource{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if ds.ID == 0 {
		r.nextDS++
		ds.ID = r.nextDS
	} else if ds.ID > r.nextDS {
		r.nextDS = ds.ID
	}
	r.dataSources[ds.ID] = ds
	return ds, nil
}

func (r *MemoryRepo) GetDataSource(ctx context.Context, id int64) (DataSource, error) {
	if err := ctx.Err(); err != nil {
		return DataSource{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	ds, ok := r.dataSources[id]
	if !ok {
		return DataSource{}, ErrNotFound
	}
	return ds, nil
}

func (r *MemoryRepo) UpdateDataSource(ctx context.Context, ds DataSource) (DataSource, error) {
	if err := ctx.Err(); err != nil {
		return DataSource{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.dataSources[ds.ID]
	if !ok {
		return DataSource{}, ErrNotFound
	}
	existing.Name = ds.Name
	existing.Description = ds.Description
	existing.URL = ds.URL
	existing.TypeID = ds.TypeID
	existing.TypeName = ds.TypeName
	existing.UpdatedAt = ds.UpdatedAt
	r.dataSources[ds.ID] = existing
	return existing, nil
}

func (r *MemoryRepo) DeleteDataSource(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.dataSources[id]; !ok {
		return ErrNotFound
	}
	delete(r.dataSources, id)
	return nil
}

// ListDataSources returns the tenant's datasources newest first.
func (r *MemoryRepo) ListDataSources(ctx context.Context, tenantID string, q Query) ([]DataSource, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	needle := strings.ToLower(strings.TrimSpace(q.Search))

	r.mu.RLock()
	var matched []DataSource
	for _, ds := range r.dataSources {
		if ds.OwnerTenantID != tenantID {
			continue
		}
		if needle != "" && !matchesSearch(ds, needle) {
			continue
		}
		matched = append(matched, ds)
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	return paginate(matched, q), int64(len(matched)), nil
}

func matchesSearch(ds DataSource, needle string) bool {
	for _, field := range []string{ds.Name, ds.Description, ds.URL, ds.TypeName} {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}

func (r *MemoryRepo) ListTypes(ctx context.Context) ([]DataType, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]DataType, 0, len(r.types))
	for _, t := range r.types {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryRepo) GetType(ctx context.Context, id int64) (DataType, error) {
	if err := ctx.Err(); err != nil {
		return DataType{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[id]
	if !ok {
		return DataType{}, ErrNotFound
	}
	return t, nil
}

// CreateBlob stores b, enforcing one record per tenant and file name.
func (r *MemoryRepo) CreateBlob(ctx context.Context, b BlobRecord) (BlobRecord, error) {
	if err := ctx.Err(); err != nil {
		return BlobRecord{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.dataSources[b.DataSourceID]; !ok {
		return BlobRecord{}, ErrNotFound
	}
	for _, existing := range r.blobs {
		if existing.OwnerTenantID == b.OwnerTenantID && existing.FileName == b.FileName {
			return BlobRecord{}, ErrDuplicate
		}
	}
	r.nextBlob++
	b.ID = r.nextBlob
	r.blobs[b.ID] = b
	return b, nil
}

func (r *MemoryRepo) ListBlobs(ctx context.Context, tenantID string, dataSourceID int64, q Query) ([]BlobRecord, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	matched := r.blobsFor(tenantID, dataSourceID)
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	return paginate(matched, q), int64(len(matched)), nil
}

func (r *MemoryRepo) BlobFileNames(ctx context.Context, tenantID string, dataSourceID int64) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	matched := r.blobsFor(tenantID, dataSourceID)
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	names := make([]string, 0, len(matched))
	for _, b := range matched {
		names = append(names, b.FileName)
	}
	return names, nil
}

func (r *MemoryRepo) blobsFor(tenantID string, dataSourceID int64) []BlobRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []BlobRecord
	for _, b := range r.blobs {
		if b.OwnerTenantID == tenantID && b.DataSourceID == dataSourceID {
			out = append(out, b)
		}
	}
	return out
}

func (r *MemoryRepo) DeleteBlobsByDataSource(ctx context.Context, dataSourceID int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, b := range r.blobs {
		if b.DataSourceID == dataSourceID {
			delete(r.blobs, id)
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepo) DeleteBlobsByName(ctx context.Context, tenantID string, fileNames []string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	wanted := make(map[string]struct{}, len(fileNames))
	for _, name := range fileNames {
		wanted[name] = struct{}{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, b := range r.blobs {
		if b.OwnerTenantID != tenantID {
			continue
		}
		if _, ok := wanted[b.FileName]; ok {
			delete(r.blobs, id)
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepo) DeleteTenant(ctx context.Context, tenantID string) (TenantPurge, error) {
	if err := ctx.Err(); err != nil {
		return TenantPurge{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var purge TenantPurge
	owned := make(map[int64]struct{})
	for id, ds := range r.dataSources {
		if ds.OwnerTenantID == tenantID {
			owned[id] = struct{}{}
		}
	}
	for id, b := range r.blobs {
		_, inOwned := owned[b.DataSourceID]
		if b.OwnerTenantID == tenantID || inOwned {
			delete(r.blobs, id)
			purge.BlobRecords++
		}
	}
	for id := range owned {
		delete(r.dataSources, id)
		purge.DataSources++
	}
	return purge, nil
}

func paginate[T any](items []T, q Query) []T {
	start := q.offset()
	if start < 0 || start >= len(items) {
		return []T{}
	}
	end := start + q.PageSize
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

var _ Repo = (*MemoryRepo)(nil)
