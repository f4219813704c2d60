package handler

import (
	"context"

	"duochat/internal/app/account"
	"duochat/internal/app/chat"
	"duochat/internal/app/room"
	"duochat/internal/app/token"
	"duochat/internal/app/user"
	"duochat/internal/configs"
	"duochat/internal/pkg/pow"
)

// UserFinder loads the live user record behind a verified token.
type UserFinder interface {
	GetUserByID(ctx context.Context, id string) (*user.User, error)
}

// Pinger reports whether the persistent store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// AppDeps bundles everything the HTTP surface needs.
type AppDeps struct {
	Config   *configs.AppConfig
	Tokens   *token.Service
	Accounts *account.Service
	Users    *user.Service
	Finder   UserFinder
	Rooms    *room.Registry
	Engine   *chat.Engine
	Pow      *pow.Manager
	Store    Pinger
}
