package model

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// NewID returns a ULID for a dependent or peer.
func NewID() string {
	return ulid.Make().String()
}

// NewIDAt returns a ULID stamped with t. Transition records use it so that
// their IDs sort in the order the transitions happened.
func NewIDAt(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), ulid.DefaultEntropy()).String()
}

// ValidID reports whether s is a well-formed ULID.
func ValidID(s string) bool {
	_, err := ulid.ParseStrict(s)
	return err == nil
}
