/*
Package store declares the persistence contract of the chat server.

Two implementations exist: the PostgreSQL store in package db and the in-process
store in package store/memory. Missing records are reported with the sentinel
errors of the owning domain package (user.ErrNotFound, session.ErrNotFound,
room.ErrNotFound).
*/
package store

import (
	"context"
	"time"

	"duochat/internal/app/room"
	"duochat/internal/app/session"
	"duochat/internal/app/user"
)

// UserStore persists accounts.
type UserStore interface {
	// CreateUser inserts u. An existing email yields user.ErrEmailTaken.
	CreateUser(ctx context.Context, u *user.User) error
	GetUserByID(ctx context.Context, id string) (*user.User, error)
	GetUserByEmail(ctx context.Context, email string) (*user.User, error)

	// GetUsersByIDs returns the users that exist among ids, in no particular order.
	GetUsersByIDs(ctx context.Context, ids []string) ([]*user.User, error)

	// SearchUsers returns up to limit users whose username contains query,
	// case-insensitively, ordered by username.
	SearchUsers(ctx context.Context, query, excludeID string, limit int) ([]*user.User, error)

	SetOnline(ctx context.Context, id string, online bool) error
	SetAvatar(ctx context.Context, id, avatar string) error

	// DeleteUser removes the user and their session. Missing users are not an error.
	DeleteUser(ctx context.Context, id string) error

	// ResetPresence marks every user offline.
	ResetPresence(ctx context.Context) error
}

// SessionStore persists the single refresh session of each user.
type SessionStore interface {
	// UpsertSession atomically replaces the session of s.UserID.
	UpsertSession(ctx context.Context, s *session.Session) error
	GetSessionByUser(ctx context.Context, userID string) (*session.Session, error)
	GetSessionByToken(ctx context.Context, token string) (*session.Session, error)

	// DeleteSession removes the session of userID. Missing sessions are not an error.
	DeleteSession(ctx context.Context, userID string) error

	// DeleteExpiredSessions removes sessions that lapsed before now.
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

// RoomStore persists rooms and messages.
type RoomStore interface {
	room.Repository
}

// Store is the full persistence layer.
type Store interface {
	UserStore
	SessionStore
	RoomStore

	Ping(ctx context.Context) error
	Close()
}
