package queue

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// UserDeleted is published upstream after a user (tenant) account is removed.
// UserID may arrive as a JSON number or as a numeric string.
type UserDeleted struct {
	UserID json.Number `json:"userId"`
}

// EncodeEvent serializes an event for publishing.
func EncodeEvent(evt UserDeleted) ([]byte, error) {
	return json.Marshal(evt)
}

// DecodeEvent parses a delivery body. Unknown fields are ignored.
func DecodeEvent(payload []byte) (UserDeleted, error) {
	var evt UserDeleted
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(&evt); err != nil {
		return UserDeleted{}, fmt.Errorf("decode user deleted event: %w", err)
	}
	return evt, nil
}
