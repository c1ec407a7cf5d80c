// Package cleanup consumes tenant deletion events and cascades the deletion
// across the metadata and object stores.
package cleanup

import (
	"context"
	"errors"

	"dataledge/internal/blobs"
	"dataledge/internal/queue"
	"dataledge/internal/shared/metrics"
	"dataledge/internal/shared/telemetry"
	"dataledge/internal/tenant"
)

// TenantDeleter removes everything a tenant owns.
type TenantDeleter interface {
	DeleteTenant(ctx context.Context, rawTenantID string) error
}

// Handler is stateless; one instance is shared by all workers.
type Handler struct {
	Deleter TenantDeleter
}

// NewHandler constructs a Handler.
func NewHandler(deleter TenantDeleter) *Handler {
	return &Handler{Deleter: deleter}
}

// HandleDelivery parses, processes and acks one delivery. Bodies that cannot
// be parsed are logged and acked so they are never redelivered.
func (h *Handler) HandleDelivery(ctx context.Context, d queue.Delivery) {
	tid, meta, err := ParseEvent(d.Body)
	if err != nil {
		fields := map[string]any{
			"message_id":  d.MessageID,
			"redelivered": d.Redelivered,
			"body_len":    meta.BodyLen,
			"error":       err.Error(),
		}
		if meta.BodySHA != "" {
			fields["body_sha256"] = meta.BodySHA
		}
		var invalid ErrInvalidTenant
		if errors.As(err, &invalid) {
			fields["raw_tenant_id"] = invalid.Raw
		}
		telemetry.Error("cleanup.event.dropped", fields)
		metrics.IncEvent("dropped")
		h.ack(d, "")
		return
	}

	metrics.IncEvent("received")
	telemetry.Info("cleanup.event.received", map[string]any{
		"message_id":  d.MessageID,
		"redelivered": d.Redelivered,
		"tenant_id":   tid.String(),
	})
	h.HandleEvent(ctx, tid)
	h.ack(d, tid.String())
}

// HandleEvent runs the tenant deletion. Failures are logged with their phase
// and never returned: a metadata failure skips the object phase, and an
// object failure leaves the metadata deletion in place.
func (h *Handler) HandleEvent(ctx context.Context, tid tenant.ID) {
	err := h.Deleter.DeleteTenant(ctx, tid.String())
	if err == nil {
		metrics.IncTenantPurge("ok")
		return
	}

	fields := map[string]any{
		"tenant_id": tid.String(),
		"error":     err.Error(),
	}
	var phaseErr *blobs.PhaseError
	if !errors.As(err, &phaseErr) {
		telemetry.Error("cleanup.tenant.failed", fields)
		metrics.IncTenantPurge("failed")
		return
	}

	fields["phase"] = phaseErr.Phase
	switch phaseErr.Phase {
	case blobs.PhaseMetadata:
		telemetry.Error("cleanup.tenant.metadata_failed", fields)
		metrics.IncTenantPurge("metadata_failed")
	default:
		// Metadata is already gone; the remaining objects are unreferenced.
		telemetry.Error("cleanup.tenant.objects_failed", fields)
		metrics.IncTenantPurge("objects_failed")
	}
}

func (h *Handler) ack(d queue.Delivery, tenantID string) {
	if err := d.Ack(); err != nil {
		telemetry.Error("cleanup.event.ack_failed", map[string]any{
			"message_id": d.MessageID,
			"tenant_id":  tenantID,
			"error":      err.Error(),
		})
		metrics.IncEvent("ack_failed")
		return
	}
	metrics.IncEvent("acked")
}
