// Package xid provides the 128-bit opaque identifiers used for send ids,
// item ids, and delta ids.
package xid

import (
	"encoding/json"

	"github.com/google/uuid"
)

// ID is a 128-bit opaque identifier.
type ID [16]byte

// New generates a fresh random identifier.
func New() ID {
	var id ID
	copy(id[:], uuid.New()[:])
	return id
}

func (id ID) String() string {
	return uuid.UUID(id).String()
}

// Parse decodes the canonical string form produced by String.
func Parse(s string) (ID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return ID{}, err
	}
	var id ID
	copy(id[:], u[:])
	return id, nil
}

var Nil ID

// MarshalJSON renders an ID in its canonical string form so it survives
// the wire protocol's JSON-encoded payloads legibly.
func (id ID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.String())
}

func (id *ID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
