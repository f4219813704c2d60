/*
Package randx generates identifiers for persisted records.

Ids are UUID v4 strings; personal room pair keys are derived deterministically
from the two member ids so a pair maps to exactly one key.
*/
package randx

import (
	"strings"

	"github.com/google/uuid"
)

// UserID returns a new user id.
func UserID() string {
	return uuid.NewString()
}

// RoomID returns a new room id.
func RoomID() string {
	return uuid.NewString()
}

// MessageID returns a new message id.
func MessageID() string {
	return uuid.NewString()
}

// IsValidID reports whether id is a well-formed UUID.
func IsValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// PairKey returns the order-independent key for the pair {a, b}.
func PairKey(a, b string) string {
	if strings.Compare(a, b) > 0 {
		a, b = b, a
	}
	return a + ":" + b
}
