package metadata

import "context"

// Repo defines persistence operations for datasources, the type catalog and
// blob records. It performs no ownership checks; Service does.
type Repo interface {
	CreateDataSource(ctx context.Context, ds DataSource) (DataSource, error)
	GetDataSource(ctx context.Context, id int64) (DataSource, error)
	UpdateDataSource(ctx context.Context, ds DataSource) (DataSource, error)
	DeleteDataSource(ctx context.Context, id int64) error
	ListDataSources(ctx context.Context, tenantID string, q Query) ([]DataSource, int64, error)

	ListTypes(ctx context.Context) ([]DataType, error)
	GetType(ctx context.Context, id int64) (DataType, error)

	CreateBlob(ctx context.Context, b BlobRecord) (BlobRecord, error)
	ListBlobs(ctx context.Context, tenantID string, dataSourceID int64, q Query) ([]BlobRecord, int64, error)
	BlobFileNames(ctx context.Context, tenantID string, dataSourceID int64) ([]string, error)
	DeleteBlobsByDataSource(ctx context.Context, dataSourceID int64) (int64, error)
	DeleteBlobsByName(ctx context.Context, tenantID string, fileNames []string) (int64, error)

	// DeleteTenant removes every blob record and datasource owned by
	// tenantID in one transaction.
	DeleteTenant(ctx context.Context, tenantID string) (TenantPurge, error)
}
