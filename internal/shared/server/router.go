package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dataledge/internal/blobs"
	"dataledge/internal/metadata"
	"dataledge/internal/services/health"
	"dataledge/internal/shared/config"
	"dataledge/internal/shared/metrics"
	"dataledge/internal/shared/server/middleware"
	"dataledge/internal/shared/server/respond"
)

// RouterDeps groups the handlers mounted on the router.
type RouterDeps struct {
	Config          config.Config
	MetadataHandler *metadata.Handler
	BlobHandler     *blobs.Handler
	Health          *health.Service
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
	)

	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.GET("/health", func(c *gin.Context) {
		ok, payload := deps.Health.Status(c.Request.Context())
		status := http.StatusOK
		if !ok {
			status = http.StatusServiceUnavailable
		}
		respond.JSON(c, status, payload)
	})

	tenantScoped := api.Group("", middleware.Tenant())
	if deps.MetadataHandler != nil {
		deps.MetadataHandler.RegisterRoutes(tenantScoped)
	}
	if deps.BlobHandler != nil {
		deps.BlobHandler.RegisterRoutes(tenantScoped, ingestRateLimit(deps.Config))
	}

	return r
}

// ingestRateLimit throttles third-party fetches per tenant.
func ingestRateLimit(cfg config.Config) gin.HandlerFunc {
	rule := middleware.RateLimitRule{Rate: cfg.IngestRatePerSec, Burst: cfg.IngestBurst}
	return middleware.RateLimit(middleware.NewRateLimiter(rule, middleware.DefaultLimiterIdleTTL, nil))
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
