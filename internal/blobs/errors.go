package blobs

import (
	"errors"
	"fmt"
)

var (
	// ErrConflict indicates an object already exists at the target path.
	ErrConflict = errors.New("file already exists")

	// ErrTypeMismatch indicates the ingestion operation does not match the datasource type.
	ErrTypeMismatch = errors.New("datasource type does not accept this operation")

	// ErrInvalidInput indicates validation or bad input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrEmptyContent indicates the upstream API returned an empty body.
	ErrEmptyContent = errors.New("upstream returned no content")
)

// Phases of the delete flows, used in PhaseError and log fields.
const (
	PhaseMetadata      = "metadata"
	PhaseObjectsList   = "objects.list"
	PhaseObjectsDelete = "objects.delete"
)

// PhaseError records which step of a multi-store delete failed.
type PhaseError struct {
	Phase        string
	TenantID     string
	DataSourceID int64
	Err          error
}

func (e *PhaseError) Error() string {
	if e.DataSourceID != 0 {
		return fmt.Sprintf("delete datasource %d of tenant %s failed in %s phase: %v", e.DataSourceID, e.TenantID, e.Phase, e.Err)
	}
	return fmt.Sprintf("delete tenant %s failed in %s phase: %v", e.TenantID, e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error { return e.Err }
