package object

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"dataledge/internal/shared/metrics"
	"dataledge/internal/shared/telemetry"
)

var (
	ErrWrite    = errors.New("object store write failed")
	ErrDelete   = errors.New("object store delete failed")
	ErrList     = errors.New("object store list failed")
	ErrNotFound = errors.New("object not found")
)

// WriteError wraps a backend failure while uploading Key.
type WriteError struct {
	Key string
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write object %s: %v", e.Key, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

func (e *WriteError) Is(target error) bool { return target == ErrWrite }

// DeleteError wraps a failure of the batch delete call itself.
type DeleteError struct {
	Prefix string
	Err    error
}

func (e *DeleteError) Error() string {
	return fmt.Sprintf("batch delete under %s: %v", e.Prefix, e.Err)
}

func (e *DeleteError) Unwrap() error { return e.Err }

func (e *DeleteError) Is(target error) bool { return target == ErrDelete }

// ListError wraps a failure while enumerating a prefix.
type ListError struct {
	Prefix string
	Err    error
}

func (e *ListError) Error() string {
	return fmt.Sprintf("list objects under %s: %v", e.Prefix, e.Err)
}

func (e *ListError) Unwrap() error { return e.Err }

func (e *ListError) Is(target error) bool { return target == ErrList }

// ReportItemFailures logs per-item failures of an otherwise successful batch.
func ReportItemFailures(backend, tenantID string, itemErrs *multierror.Error) {
	if itemErrs == nil || len(itemErrs.Errors) == 0 {
		return
	}
	metrics.AddBatchDeleteItemFailures(len(itemErrs.Errors))
	telemetry.Error("object.delete_batch.item_failures", map[string]any{
		"backend":   backend,
		"tenant_id": tenantID,
		"failed":    len(itemErrs.Errors),
		"error":     itemErrs.ErrorOrNil(),
	})
}

// ReportRejected logs names dropped by ScopeToTenant.
func ReportRejected(backend, tenantID string, rejected []string) {
	if len(rejected) == 0 {
		return
	}
	telemetry.Warn("object.delete_batch.rejected_names", map[string]any{
		"backend":   backend,
		"tenant_id": tenantID,
		"rejected":  rejected,
	})
}
