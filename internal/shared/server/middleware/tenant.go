package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"dataledge/internal/shared/server/respond"
	"dataledge/internal/tenant"
)

const (
	// TenantHeader carries the tenant id injected by the upstream gateway.
	TenantHeader = "X-User-ID"

	tenantIDKey = "tenantId"
)

// Tenant reads the gateway-injected tenant id, sanitizes it and stores the
// canonical value in context. Requests without a valid id are rejected.
func Tenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusNoContent)
			return
		}

		raw := c.GetHeader(TenantHeader)
		if strings.TrimSpace(raw) == "" {
			respond.Error(c, http.StatusBadRequest, "invalid_tenant", "missing "+TenantHeader+" header", nil)
			return
		}
		id, err := tenant.Sanitize(raw)
		if err != nil {
			respond.Error(c, http.StatusBadRequest, "invalid_tenant", "invalid tenant id", nil)
			return
		}

		c.Set(tenantIDKey, id.String())
		c.Next()
	}
}

// TenantIDFromContext fetches the tenant ID set by the Tenant middleware.
func TenantIDFromContext(c *gin.Context) string {
	if c == nil {
		return ""
	}
	val, _ := c.Get(tenantIDKey)
	if id, ok := val.(string); ok {
		return id
	}
	return ""
}
