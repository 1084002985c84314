package pkg

import (
	"errors"
	"fmt"

	"github.com/oklog/ulid/v2"
)

// ErrInvalidID is wrapped by every ParseID failure.
var ErrInvalidID = errors.New("invalid id")

// NewID returns a ULID that sorts after every id made earlier in this process.
func NewID() ulid.ULID {
	return ulid.Make()
}

func NewIDString() string {
	return NewID().String()
}

// ParseID accepts only canonical 26-character ULIDs.
func ParseID(s string) (ulid.ULID, error) {
	if s == "" {
		return ulid.ULID{}, fmt.Errorf("%w: empty", ErrInvalidID)
	}
	id, err := ulid.ParseStrict(s)
	if err != nil {
		return ulid.ULID{}, fmt.Errorf("%w %q: %v", ErrInvalidID, s, err)
	}
	return id, nil
}

func ValidID(s string) bool {
	_, err := ParseID(s)
	return err == nil
}

func IsZeroID(id ulid.ULID) bool {
	return id == ulid.ULID{}
}
