package metadata

import "errors"

var (
	// ErrNotFound indicates the target id does not exist.
	ErrNotFound = errors.New("not found")

	// ErrForbidden indicates the caller does not own the target.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidInput indicates validation or bad input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrDuplicate indicates a blob record already exists for the tenant and file name.
	ErrDuplicate = errors.New("duplicate blob record")
)
