package metadata

import (
	"strings"
	"time"
)

// Names of the seeded data type catalog entries.
const (
	TypeFileUpload = "FILE UPLOAD"
	TypeAPI        = "API"
)

// DataType is an entry of the closed catalog that gates ingestion.
type DataType struct {
	ID   int64
	Name string
}

// Is reports whether the type matches name, ignoring case.
func (t DataType) Is(name string) bool {
	return strings.EqualFold(strings.TrimSpace(t.Name), name)
}

// DataSource is a tenant-owned container of blobs. OwnerTenantID never
// changes after creation.
type DataSource struct {
	ID            int64
	Name          string
	Description   string
	URL           string
	TypeID        int64
	TypeName      string
	OwnerTenantID string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Type returns the data type the datasource was declared with.
func (d DataSource) Type() DataType {
	return DataType{ID: d.TypeID, Name: d.TypeName}
}

// BlobRecord is the metadata row for one stored object. The object key is
// {OwnerTenantID}/{FileName}.
type BlobRecord struct {
	ID            int64
	FileName      string
	CreatedAt     time.Time
	OwnerTenantID string
	DataSourceID  int64
}

// Query selects a page of results. PageNumber is zero-based.
type Query struct {
	PageNumber int
	PageSize   int
	Search     string
}

func (q Query) offset() int {
	return q.PageNumber * q.PageSize
}

// DataSourcePage is one page of datasources.
type DataSourcePage struct {
	Items      []DataSource
	PageNumber int
	PageSize   int
	Total      int64
}

// BlobPage is one page of blob records.
type BlobPage struct {
	Items      []BlobRecord
	PageNumber int
	PageSize   int
	Total      int64
}

// TenantPurge counts the rows removed by a tenant wipe.
type TenantPurge struct {
	DataSources int64
	BlobRecords int64
}
