package blobs

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"dataledge/internal/fetch"
	"dataledge/internal/metadata"
	"dataledge/internal/shared/server/middleware"
	"dataledge/internal/shared/server/respond"
	"dataledge/internal/shared/storage/object"
	"dataledge/internal/shared/util"
	"dataledge/internal/tenant"
)

const defaultMaxUploadSize = 50 << 20 // 50MB

// Handler wires HTTP handlers to the service.
type Handler struct {
	Svc           *Service
	MaxUploadSize int64
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service, maxUploadSize int64) *Handler {
	if maxUploadSize <= 0 {
		maxUploadSize = defaultMaxUploadSize
	}
	return &Handler{Svc: svc, MaxUploadSize: maxUploadSize}
}

// RegisterRoutes attaches blob routes to the router group. ingest runs in
// front of the API ingestion route only.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, ingest ...gin.HandlerFunc) {
	blob := rg.Group("/blob")
	blob.POST("/datasources/:id/files", h.upload)
	blob.POST("/datasources/:id/api-content", append(ingest, h.ingestAPI)...)
	blob.GET("/datasources/:id/files", h.listFiles)
	blob.GET("/files", h.listObjects)
	blob.GET("/files/:fileName", h.download)
	blob.DELETE("/files", h.deleteFiles)
}

type writeResponse struct {
	FileName string `json:"fileName"`
	Location string `json:"location"`
}

func (h *Handler) upload(c *gin.Context) {
	tenantID := middleware.TenantIDFromContext(c)
	id, ok := metadata.ParseID(c)
	if !ok {
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.MaxUploadSize)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respond.Error(c, http.StatusRequestEntityTooLarge, "payload_too_large",
				fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit), nil)
			return
		}
		respond.Error(c, http.StatusBadRequest, "validation_error", "file is required", nil)
		return
	}
	name := strings.TrimSpace(c.PostForm("fileName"))
	if name == "" {
		name = util.BaseName(fileHeader.Filename)
	}
	if name == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "fileName is required", nil)
		return
	}
	c.Set("fileName", name)

	file, err := fileHeader.Open()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "unable to read file", nil)
		return
	}
	defer file.Close()

	location, err := h.Svc.WriteFile(c.Request.Context(), tenantID, id, name, file, fileHeader.Size)
	if err != nil {
		writeError(c, err, "failed to store file")
		return
	}
	respond.Created(c, writeResponse{FileName: name, Location: location})
}

type ingestRequest struct {
	APIURL   string `json:"apiUrl"`
	FileName string `json:"fileName"`
}

func (h *Handler) ingestAPI(c *gin.Context) {
	tenantID := middleware.TenantIDFromContext(c)
	id, ok := metadata.ParseID(c)
	if !ok {
		return
	}

	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	c.Set("fileName", req.FileName)

	location, err := h.Svc.IngestAPIContent(c.Request.Context(), tenantID, id, req.APIURL, req.FileName)
	if err != nil {
		writeError(c, err, "failed to ingest api content")
		return
	}
	respond.Created(c, writeResponse{FileName: strings.TrimSpace(req.FileName), Location: location})
}

func (h *Handler) listFiles(c *gin.Context) {
	tenantID := middleware.TenantIDFromContext(c)
	id, ok := metadata.ParseID(c)
	if !ok {
		return
	}
	q, ok := metadata.ParseQuery(c)
	if !ok {
		return
	}

	page, err := h.Svc.ListFiles(c.Request.Context(), tenantID, id, q)
	if err != nil {
		writeError(c, err, "failed to list files")
		return
	}
	respond.OK(c, metadata.ToBlobPageResponse(page))
}

func (h *Handler) listObjects(c *gin.Context) {
	tenantID := middleware.TenantIDFromContext(c)
	names, err := h.Svc.ListObjects(c.Request.Context(), tenantID)
	if err != nil {
		writeError(c, err, "failed to list objects")
		return
	}
	respond.OK(c, gin.H{"fileNames": names})
}

func (h *Handler) download(c *gin.Context) {
	tenantID := middleware.TenantIDFromContext(c)
	name := c.Param("fileName")
	c.Set("fileName", name)

	rc, err := h.Svc.Open(c.Request.Context(), tenantID, name)
	if err != nil {
		writeError(c, err, "failed to open file")
		return
	}
	defer rc.Close()

	respond.Attachment(c, name, rc)
}

type deleteFilesRequest struct {
	FileNames []string `json:"fileNames"`
}

func (h *Handler) deleteFiles(c *gin.Context) {
	tenantID := middleware.TenantIDFromContext(c)

	var req deleteFilesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}

	if err := h.Svc.DeleteFiles(c.Request.Context(), tenantID, req.FileNames); err != nil {
		writeError(c, err, "failed to delete files")
		return
	}
	respond.NoContent(c)
}

func writeError(c *gin.Context, err error, fallback string) {
	var fetchErr *fetch.Error
	switch {
	case errors.Is(err, tenant.ErrInvalid):
		respond.Error(c, http.StatusBadRequest, "invalid_tenant", "invalid tenant id", nil)
	case errors.Is(err, ErrInvalidInput), errors.Is(err, metadata.ErrInvalidInput):
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
	case errors.Is(err, ErrTypeMismatch):
		respond.Error(c, http.StatusBadRequest, "type_mismatch", err.Error(), nil)
	case errors.Is(err, metadata.ErrForbidden):
		respond.Error(c, http.StatusForbidden, "forbidden", "datasource belongs to another tenant", nil)
	case errors.Is(err, metadata.ErrNotFound), errors.Is(err, object.ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, ErrConflict):
		respond.Error(c, http.StatusConflict, "conflict", "file already exists", nil)
	case errors.As(err, &fetchErr):
		respond.Error(c, http.StatusFailedDependency, "upstream_failed", "upstream dependency failed", gin.H{
			"kind":   string(fetchErr.Kind),
			"reason": fetchErr.Msg,
		})
	case errors.Is(err, ErrEmptyContent):
		respond.Error(c, http.StatusFailedDependency, "upstream_failed", "upstream dependency failed", gin.H{"reason": err.Error()})
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", fallback, nil)
	}
}
