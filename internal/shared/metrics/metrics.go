package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	blobWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dataledge_blob_writes_total",
		Help: "Blob write attempts by source and outcome",
	}, []string{"source", "outcome"})

	orphanedObjectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dataledge_orphaned_objects_total",
		Help: "Objects written whose metadata row could not be recorded",
	})

	fetchRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dataledge_fetch_rejected_total",
		Help: "Secure fetch failures by kind",
	}, []string{"kind"})

	batchDeleteItemFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dataledge_batch_delete_item_failures_total",
		Help: "Per-item failures inside otherwise successful batch deletes",
	})

	tenantPurgesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dataledge_tenant_purges_total",
		Help: "Tenant deletion runs by outcome",
	}, []string{"outcome"})

	eventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dataledge_events_total",
		Help: "Tenant deletion events by disposition",
	}, []string{"disposition"})
)

// ObserveBlobWrite records a write attempt. source is "file" or "api".
func ObserveBlobWrite(source string, ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	blobWritesTotal.WithLabelValues(source, outcome).Inc()
}

// IncOrphanedObject counts an object left without metadata.
func IncOrphanedObject() {
	orphanedObjectsTotal.Inc()
}

// IncFetchRejected counts a fetch failure of the given kind.
func IncFetchRejected(kind string) {
	fetchRejectedTotal.WithLabelValues(kind).Inc()
}

// AddBatchDeleteItemFailures counts per-item batch delete failures.
func AddBatchDeleteItemFailures(n int) {
	if n <= 0 {
		return
	}
	batchDeleteItemFailuresTotal.Add(float64(n))
}

// IncTenantPurge records the outcome of a tenant deletion run.
func IncTenantPurge(outcome string) {
	tenantPurgesTotal.WithLabelValues(outcome).Inc()
}

// IncEvent records what happened to a received event.
func IncEvent(disposition string) {
	eventsTotal.WithLabelValues(disposition).Inc()
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
