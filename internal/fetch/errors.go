package fetch

import "errors"

// ErrFetch matches every *Error via errors.Is.
var ErrFetch = errors.New("upstream dependency failed")

// Kind classifies a fetch failure.
type Kind string

const (
	KindInvalidURL     Kind = "invalid_url"
	KindProtocol       Kind = "protocol"
	KindHostUnresolved Kind = "host_unresolved"
	KindHostDenied     Kind = "host_denied"
	KindTransport      Kind = "transport"
	KindStatus         Kind = "status"
)

// Error is returned for every failed fetch.
type Error struct {
	Kind       Kind
	Msg        string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	return e.Msg + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == ErrFetch }
