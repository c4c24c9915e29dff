// Package ident defines the content identifier used to address every
// blob, tree, pack and snapshot in a repository.
package ident

import (
	"encoding/hex"
	"fmt"

	"lukechampine.com/blake3"
)

// Size is the length in bytes of an Id.
const Size = 32

// Id is a BLAKE3-256 digest identifying content by its hash.
type Id [Size]byte

// Zero is the all-zero Id, used as a sentinel for "no parent"/"no subtree".
var Zero Id

// Of computes the Id of data.
func Of(data []byte) Id {
	return blake3.Sum256(data)
}

// IsZero reports whether id is the zero value.
func (id Id) IsZero() bool {
	return id == Zero
}

// String returns the lowercase hex encoding of id.
func (id Id) String() string {
	return hex.EncodeToString(id[:])
}

// Bytes returns id as a byte slice.
func (id Id) Bytes() []byte {
	return id[:]
}

// Parse decodes a hex string into an Id.
func Parse(s string) (Id, error) {
	var id Id
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("ident: invalid hex %q: %w", s, err)
	}
	if len(b) != Size {
		return id, fmt.Errorf("ident: want %d bytes, got %d", Size, len(b))
	}
	copy(id[:], b)
	return id, nil
}

// MarshalText implements encoding.TextMarshaler so Ids serialize as hex
// strings in JSON manifests.
func (id Id) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *Id) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
