package metadata

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"dataledge/internal/shared/server/middleware"
	"dataledge/internal/shared/server/respond"
)

// DataSourceDeleter runs the full delete-datasource flow, blobs included.
type DataSourceDeleter interface {
	DeleteDataSource(ctx context.Context, tenantID string, id int64) error
}

// Handler wires HTTP handlers to the service.
type Handler struct {
	Svc     *Service
	Deleter DataSourceDeleter
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service, deleter DataSourceDeleter) *Handler {
	return &Handler{Svc: svc, Deleter: deleter}
}

// RegisterRoutes attaches datasource routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/datasources", h.list)
	rg.POST("/datasources", h.create)
	rg.PUT("/datasources/:id", h.update)
	rg.DELETE("/datasources/:id", h.delete)
	rg.GET("/datatypes", h.types)
}

func (h *Handler) list(c *gin.Context) {
	tenantID := middleware.TenantIDFromContext(c)
	q, ok := ParseQuery(c)
	if !ok {
		return
	}
	q.Search = c.Query("search")

	page, err := h.Svc.FindAll(c.Request.Context(), tenantID, q)
	if err != nil {
		WriteError(c, err, "failed to list datasources")
		return
	}
	respond.OK(c, toPageResponse(page))
}

func (h *Handler) create(c *gin.Context) {
	tenantID := middleware.TenantIDFromContext(c)

	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}

	ds, err := h.Svc.Create(c.Request.Context(), tenantID, CreateInput(req))
	if err != nil {
		WriteError(c, err, "failed to create datasource")
		return
	}
	respond.Created(c, CreatedResponse{ID: ds.ID, Name: ds.Name})
}

func (h *Handler) update(c *gin.Context) {
	tenantID := middleware.TenantIDFromContext(c)
	id, ok := ParseID(c)
	if !ok {
		return
	}

	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}

	ds, err := h.Svc.Update(c.Request.Context(), tenantID, id, UpdateInput(req))
	if err != nil {
		WriteError(c, err, "failed to update datasource")
		return
	}
	respond.OK(c, toResponse(ds))
}

func (h *Handler) delete(c *gin.Context) {
	tenantID := middleware.TenantIDFromContext(c)
	id, ok := ParseID(c)
	if !ok {
		return
	}

	if err := h.Deleter.DeleteDataSource(c.Request.Context(), tenantID, id); err != nil {
		WriteError(c, err, "failed to delete datasource")
		return
	}
	respond.NoContent(c)
}

func (h *Handler) types(c *gin.Context) {
	types, err := h.Svc.Types(c.Request.Context())
	if err != nil {
		WriteError(c, err, "failed to list data types")
		return
	}
	out := make([]DataTypeResponse, 0, len(types))
	for _, t := range types {
		out = append(out, DataTypeResponse{ID: t.ID, Name: t.Name})
	}
	respond.OK(c, out)
}

// ParseID reads the :id path parameter and stores it for request logging.
func ParseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid datasource id", nil)
		return 0, false
	}
	c.Set("dataSourceId", id)
	return id, true
}

// ParseQuery reads pageNumber and pageSize query parameters.
func ParseQuery(c *gin.Context) (Query, bool) {
	q := Query{PageNumber: 0, PageSize: DefaultPageSize}
	if v := c.Query("pageNumber"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respond.Error(c, http.StatusBadRequest, "validation_error", "pageNumber must be >= 0", nil)
			return Query{}, false
		}
		q.PageNumber = n
	}
	if v := c.Query("pageSize"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respond.Error(c, http.StatusBadRequest, "validation_error", "pageSize must be > 0", nil)
			return Query{}, false
		}
		q.PageSize = n
	}
	return q, true
}

// WriteError maps metadata errors to HTTP responses.
func WriteError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
	case errors.Is(err, ErrForbidden):
		respond.Error(c, http.StatusForbidden, "forbidden", "datasource belongs to another tenant", nil)
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", err.Error(), nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", fallback, nil)
	}
}
