// Package tenant validates the tenant identifier forwarded by the gateway
// before it is used as an object-store path segment or ownership key.
package tenant

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalid indicates a blank or non-numeric tenant id.
var ErrInvalid = errors.New("invalid tenant id")

var digitsOnly = regexp.MustCompile(`^[0-9]+$`)

// ID is a sanitized tenant identifier: a non-empty string of ASCII digits.
type ID string

func (id ID) String() string { return string(id) }

// Prefix returns the object-store key prefix owned by the tenant.
func (id ID) Prefix() string { return string(id) + "/" }

// Sanitize trims raw and accepts it only if it consists solely of digits.
func Sanitize(raw string) (ID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("%w: tenant id cannot be empty", ErrInvalid)
	}
	if !digitsOnly.MatchString(trimmed) {
		return "", fmt.Errorf("%w: tenant id must be numeric", ErrInvalid)
	}
	return ID(trimmed), nil
}
