package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"dataledge/internal/shared/telemetry"
)

func TestLoggingIncludesRequiredFields(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.InfoLevel)
	restore := telemetry.SetLogger(zap.New(core))
	defer restore()

	router := gin.New()
	router.Use(RequestID(), Tenant(), Logging())
	router.GET("/test", func(c *gin.Context) {
		c.Set("dataSourceId", int64(7))
		c.Set("fileName", "report.pdf")
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(TenantHeader, " 42 ")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	entries := logs.FilterMessage("request.complete").All()
	if len(entries) != 1 {
		t.Fatalf("expected one request log, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	for _, key := range []string{"request_id", "tenant_id", "datasource_id", "file_name", "duration_ms", "status"} {
		if _, ok := fields[key]; !ok {
			t.Fatalf("missing log field: %s", key)
		}
	}
	if fields["tenant_id"] != "42" {
		t.Fatalf("unexpected tenant_id: %v", fields["tenant_id"])
	}
	if fields["file_name"] != "report.pdf" {
		t.Fatalf("unexpected file_name: %v", fields["file_name"])
	}
}
