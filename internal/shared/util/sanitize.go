package util

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// MaxFileNameBytes bounds a stored file name.
const MaxFileNameBytes = 255

// ErrInvalidFileName is returned for names that cannot be a first-level object key.
var ErrInvalidFileName = errors.New("invalid file name")

// ValidateFileName trims name and rejects anything that would not stay a
// single path segment under the tenant prefix.
func ValidateFileName(name string) (string, error) {
	s := strings.TrimSpace(name)
	switch {
	case s == "":
		return "", fmt.Errorf("%w: name is blank", ErrInvalidFileName)
	case len(s) > MaxFileNameBytes:
		return "", fmt.Errorf("%w: longer than %d bytes", ErrInvalidFileName, MaxFileNameBytes)
	case strings.Contains(s, ".."):
		return "", fmt.Errorf("%w: contains '..'", ErrInvalidFileName)
	case strings.ContainsAny(s, `/\`):
		return "", fmt.Errorf("%w: contains a path separator", ErrInvalidFileName)
	case strings.IndexFunc(s, unicode.IsControl) >= 0:
		return "", fmt.Errorf("%w: contains control characters", ErrInvalidFileName)
	}
	return s, nil
}

// BaseName strips any client-side directory from an uploaded file name.
func BaseName(name string) string {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	return strings.TrimSpace(name)
}
