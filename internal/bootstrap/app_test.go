package bootstrap

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dataledge/internal/metadata"
	"dataledge/internal/queue"
	"dataledge/internal/shared/config"
	"dataledge/internal/shared/server/middleware"
	"dataledge/internal/shared/storage/db"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		Env:              "dev",
		ObjectStoreType:  "local",
		LocalStoreDir:    filepath.Join(t.TempDir(), "data"),
		MaxUploadBytes:   1 << 20,
		IngestRatePerSec: 1,
		IngestBurst:      5,
	}
}

func do(t *testing.T, h http.Handler, req *http.Request, tenantID string) *httptest.ResponseRecorder {
	t.Helper()
	if tenantID != "" {
		req.Header.Set(middleware.TenantHeader, tenantID)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func uploadRequest(t *testing.T, dataSourceID int64, name, body string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/blob/datasources/"+strconv.FormatInt(dataSourceID, 10)+"/files", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestBuildWithoutDatabaseUsesMemory(t *testing.T) {
	app, err := Build(testConfig(t))
	require.NoError(t, err)
	assert.Nil(t, app.DB)
	assert.NotNil(t, app.Router)
	assert.NotNil(t, app.CleanupHandler)
}

func TestBuildRequiresDatabaseOutsideDev(t *testing.T) {
	cfg := testConfig(t)
	cfg.Env = "production"
	_, err := Build(cfg)
	assert.Error(t, err)
}

func TestBuildClosesDatabaseWhenDevMigrationsFail(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.ExpectClose()

	prevOpen, prevMigrate, prevClose := openDB, runMigrations, closeDB
	t.Cleanup(func() { openDB, runMigrations, closeDB = prevOpen, prevMigrate, prevClose })

	closed := 0
	openDB = func(context.Context, string, db.Options) (*sql.DB, error) { return sqlDB, nil }
	runMigrations = func(context.Context, *sql.DB) error { return errors.New("relation already exists") }
	closeDB = func() error {
		closed++
		return sqlDB.Close()
	}

	cfg := testConfig(t)
	cfg.DatabaseURL = "postgres://dev"
	app, err := Build(cfg)
	require.NoError(t, err)
	assert.Nil(t, app.DB)
	assert.IsType(t, &metadata.MemoryRepo{}, app.MetadataRepo)
	assert.Equal(t, 1, closed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBuildWorkerSkipsRouter(t *testing.T) {
	cfg := testConfig(t)
	cfg.WorkerConcurrency = 2
	app, err := BuildWorker(cfg)
	require.NoError(t, err)
	assert.Nil(t, app.Router)
	assert.NotNil(t, app.BlobService)
}

func TestUploadDownloadAndTenantDeletion(t *testing.T) {
	app, err := Build(testConfig(t))
	require.NoError(t, err)
	r := app.Router

	rec := do(t, r, httptest.NewRequest(http.MethodPost, "/api/v1/datasources",
		strings.NewReader(`{"name":"uploads","description":"quarterly","typeId":1}`)), "42")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		ID int64 `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = do(t, r, uploadRequest(t, created.ID, "report.pdf", "%PDF-1.7"), "42")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, r, uploadRequest(t, created.ID, "report.pdf", "other"), "42")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, r, uploadRequest(t, created.ID, "intruder.pdf", "x"), "43")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, r, httptest.NewRequest(http.MethodGet, "/api/v1/blob/files/report.pdf", nil), "42")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "%PDF-1.7", rec.Body.String())

	rec = do(t, r, httptest.NewRequest(http.MethodGet, "/api/v1/blob/files/report.pdf", nil), "43")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	body, err := queue.EncodeEvent(queue.UserDeleted{UserID: "42"})
	require.NoError(t, err)
	app.CleanupHandler.HandleDelivery(context.Background(), queue.Delivery{Body: body})

	rec = do(t, r, httptest.NewRequest(http.MethodGet, "/api/v1/blob/files/report.pdf", nil), "42")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(t, r, httptest.NewRequest(http.MethodGet, "/api/v1/datasources", nil), "42")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
