package blobs

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"dataledge/internal/fetch"
	"dataledge/internal/metadata"
	"dataledge/internal/shared/server/middleware"
)

func newBlobRouter(t *testing.T) (*gin.Engine, *fixture) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	f := newFixture(t)
	r := gin.New()
	api := r.Group("/api/v1", middleware.Tenant())
	NewHandler(f.svc, 1<<20).RegisterRoutes(api)
	return r, f
}

func multipartUpload(t *testing.T, path, tenantID, fileName, formName string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", fileName)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if formName != "" {
		if err := w.WriteField("fileName", formName); err != nil {
			t.Fatalf("WriteField: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set(middleware.TenantHeader, tenantID)
	return req
}

func jsonRequest(method, path, tenantID string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.TenantHeader, tenantID)
	return req
}

func serve(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestHandlerUploadListDownloadDelete(t *testing.T) {
	r, f := newBlobRouter(t)
	f.dataSource(t, "42", 7, metadata.TypeFileUpload)

	resp := serve(r, multipartUpload(t, "/api/v1/blob/datasources/7/files", "42", `C:\docs\report.pdf`, "", []byte("%PDF")))
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var written writeResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &written); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if written.FileName != "report.pdf" {
		t.Fatalf("expected base name report.pdf, got %q", written.FileName)
	}

	resp = serve(r, multipartUpload(t, "/api/v1/blob/datasources/7/files", "42", "ignored.bin", "report.pdf", []byte("again")))
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.Code)
	}

	resp = serve(r, jsonRequest(http.MethodGet, "/api/v1/blob/datasources/7/files?pageSize=5", "42", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var page metadata.PageResponse[metadata.BlobResponse]
	if err := json.Unmarshal(resp.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].FileName != "report.pdf" || page.PageSize != 5 {
		t.Fatalf("unexpected page %+v", page)
	}

	resp = serve(r, jsonRequest(http.MethodGet, "/api/v1/blob/files/report.pdf", "42", nil))
	if resp.Code != http.StatusOK || resp.Body.String() != "%PDF" {
		t.Fatalf("unexpected download %d %q", resp.Code, resp.Body.String())
	}

	resp = serve(r, jsonRequest(http.MethodGet, "/api/v1/blob/files", "42", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	resp = serve(r, jsonRequest(http.MethodDelete, "/api/v1/blob/files", "42", map[string]any{"fileNames": []string{"report.pdf"}}))
	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.Code)
	}

	resp = serve(r, jsonRequest(http.MethodGet, "/api/v1/blob/files/report.pdf", "42", nil))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", resp.Code)
	}
}

func TestHandlerErrorMapping(t *testing.T) {
	r, f := newBlobRouter(t)
	f.dataSource(t, "42", 7, metadata.TypeFileUpload)
	f.dataSource(t, "42", 8, metadata.TypeAPI)
	f.dataSource(t, "43", 9, metadata.TypeFileUpload)

	resp := serve(r, multipartUpload(t, "/api/v1/blob/datasources/9/files", "42", "a.txt", "", []byte("x")))
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.Code)
	}

	resp = serve(r, multipartUpload(t, "/api/v1/blob/datasources/8/files", "42", "a.txt", "", []byte("x")))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for type mismatch, got %d", resp.Code)
	}

	f.fetcher.err = &fetch.Error{Kind: fetch.KindProtocol, Msg: "only https allowed"}
	resp = serve(r, jsonRequest(http.MethodPost, "/api/v1/blob/datasources/8/api-content", "42", map[string]any{
		"apiUrl": "http://example.com", "fileName": "feed.json",
	}))
	if resp.Code != http.StatusFailedDependency {
		t.Fatalf("expected 424, got %d", resp.Code)
	}
	var body struct {
		Error struct {
			Code    string            `json:"code"`
			Details map[string]string `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Details["kind"] != string(fetch.KindProtocol) {
		t.Fatalf("expected protocol kind, got %+v", body.Error)
	}

	resp = serve(r, jsonRequest(http.MethodDelete, "/api/v1/blob/files", "42", map[string]any{"fileNames": []string{}}))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty fileNames, got %d", resp.Code)
	}

	resp = serve(r, jsonRequest(http.MethodGet, "/api/v1/blob/files/..", "42", nil))
	if resp.Code != http.StatusBadRequest && resp.Code != http.StatusNotFound {
		t.Fatalf("expected traversal download to be rejected, got %d", resp.Code)
	}
}

func TestHandlerUploadTooLarge(t *testing.T) {
	gin.SetMode(gin.TestMode)
	f := newFixture(t)
	f.dataSource(t, "42", 7, metadata.TypeFileUpload)
	r := gin.New()
	api := r.Group("/api/v1", middleware.Tenant())
	NewHandler(f.svc, 64).RegisterRoutes(api)

	resp := serve(r, multipartUpload(t, "/api/v1/blob/datasources/7/files", "42", "big.bin", "", bytes.Repeat([]byte("x"), 4096)))
	if resp.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d: %s", resp.Code, resp.Body.String())
	}
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Code != "payload_too_large" {
		t.Fatalf("expected payload_too_large, got %q", body.Error.Code)
	}
	if f.store.Exists(context.Background(), "42/big.bin") {
		t.Fatalf("expected nothing stored")
	}

	// A form without the file part is still a validation error.
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("fileName", "a.txt"); err != nil {
		t.Fatalf("WriteField: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/blob/datasources/7/files", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set(middleware.TenantHeader, "42")
	if resp := serve(r, req); resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing file, got %d", resp.Code)
	}
}
