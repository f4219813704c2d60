// Package session models the refresh-token record kept for each logged-in user.
package session

import (
	"errors"
	"time"
)

// ErrNotFound is returned by repositories when no session matches.
var ErrNotFound = errors.New("session: not found")

// Session is the single live refresh session of a user.
type Session struct {
	UserID    string
	Token     string
	ExpiresAt time.Time
	UpdatedAt time.Time
}

// Expired reports whether the session has lapsed at now.
// A zero ExpiresAt never expires.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}
