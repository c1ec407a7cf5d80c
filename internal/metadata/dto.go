package metadata

import "time"

// DataSourceResponse is the outward-facing representation of a datasource.
type DataSourceResponse struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	URL         string    `json:"url"`
	Type        string    `json:"type"`
	TypeID      int64     `json:"typeId"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// CreatedResponse is returned by POST /datasources.
type CreatedResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// PageResponse wraps a page of items.
type PageResponse[T any] struct {
	Items      []T   `json:"items"`
	PageNumber int   `json:"pageNumber"`
	PageSize   int   `json:"pageSize"`
	Total      int64 `json:"total"`
}

// DataTypeResponse is one catalog entry.
type DataTypeResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// BlobResponse is the outward-facing representation of a blob record.
type BlobResponse struct {
	ID           int64     `json:"id"`
	FileName     string    `json:"fileName"`
	DataSourceID int64     `json:"dataSourceId"`
	CreatedAt    time.Time `json:"createdAt"`
}

type createRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	URL         string `json:"url"`
	TypeID      int64  `json:"typeId"`
}

type updateRequest struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	URL         *string `json:"url"`
	TypeID      int64   `json:"typeId"`
}

func toResponse(ds DataSource) DataSourceResponse {
	return DataSourceResponse{
		ID:          ds.ID,
		Name:        ds.Name,
		Description: ds.Description,
		URL:         ds.URL,
		Type:        ds.TypeName,
		TypeID:      ds.TypeID,
		CreatedAt:   ds.CreatedAt,
		UpdatedAt:   ds.UpdatedAt,
	}
}

// ToBlobResponse converts a blob record for the wire.
func ToBlobResponse(b BlobRecord) BlobResponse {
	return BlobResponse{
		ID:           b.ID,
		FileName:     b.FileName,
		DataSourceID: b.DataSourceID,
		CreatedAt:    b.CreatedAt,
	}
}

// ToBlobPageResponse converts a blob page for the wire.
func ToBlobPageResponse(p BlobPage) PageResponse[BlobResponse] {
	items := make([]BlobResponse, 0, len(p.Items))
	for _, b := range p.Items {
		items = append(items, ToBlobResponse(b))
	}
	return PageResponse[BlobResponse]{Items: items, PageNumber: p.PageNumber, PageSize: p.PageSize, Total: p.Total}
}

func toPageResponse(p DataSourcePage) PageResponse[DataSourceResponse] {
	items := make([]DataSourceResponse, 0, len(p.Items))
	for _, ds := range p.Items {
		items = append(items, toResponse(ds))
	}
	return PageResponse[DataSourceResponse]{Items: items, PageNumber: p.PageNumber, PageSize: p.PageSize, Total: p.Total}
}
