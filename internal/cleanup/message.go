package cleanup

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"

	"dataledge/internal/queue"
	"dataledge/internal/tenant"
)

// MessageMeta captures details useful for logging undecodable bodies.
type MessageMeta struct {
	BodyLen int
	BodySHA string
}

// ComputeMeta returns the body length and SHA-256 hash.
func ComputeMeta(body []byte) MessageMeta {
	if len(body) == 0 {
		return MessageMeta{}
	}
	sum := sha256.Sum256(body)
	return MessageMeta{BodyLen: len(body), BodySHA: hex.EncodeToString(sum[:])}
}

// ErrEmptyBody indicates an empty delivery.
type ErrEmptyBody struct {
	Meta MessageMeta
}

func (e ErrEmptyBody) Error() string { return "empty message body" }

// ErrDecode indicates a JSON decode failure.
type ErrDecode struct {
	Meta MessageMeta
	Err  error
}

func (e ErrDecode) Error() string {
	if e.Err == nil {
		return "decode message"
	}
	return "decode message: " + e.Err.Error()
}

func (e ErrDecode) Unwrap() error { return e.Err }

// ErrInvalidTenant indicates an event whose userId is missing or not a
// valid tenant id.
type ErrInvalidTenant struct {
	Meta MessageMeta
	Raw  string
	Err  error
}

func (e ErrInvalidTenant) Error() string { return "invalid tenant in event: " + e.Err.Error() }

func (e ErrInvalidTenant) Unwrap() error { return e.Err }

// ParseEvent decodes a delivery body and sanitizes the tenant id it carries.
func ParseEvent(body []byte) (tenant.ID, MessageMeta, error) {
	meta := ComputeMeta(body)
	if len(bytes.TrimSpace(body)) == 0 {
		return "", meta, ErrEmptyBody{Meta: meta}
	}

	evt, err := queue.DecodeEvent(body)
	if err != nil {
		return "", meta, ErrDecode{Meta: meta, Err: err}
	}
	tid, err := tenant.Sanitize(evt.UserID.String())
	if err != nil {
		return "", meta, ErrInvalidTenant{Meta: meta, Raw: evt.UserID.String(), Err: err}
	}
	return tid, meta, nil
}
