/*
Package token issues and validates access and refresh tokens and keeps the
single live refresh session of every user.
*/
package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"duochat/internal/app/session"
	"duochat/internal/app/user"
	"duochat/internal/pkg/auth/jwt"
	"duochat/internal/pkg/errs"
	"duochat/internal/pkg/logx"
	"duochat/internal/pkg/metrics"
)

const (
	// DefaultAccessTTL is the lifetime of access tokens.
	DefaultAccessTTL = time.Hour

	// DefaultRefreshTTL is the lifetime of refresh tokens and their sessions.
	DefaultRefreshTTL = 30 * 24 * time.Hour
)

// Config holds signing secrets and lifetimes.
type Config struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// SessionRepository persists refresh sessions.
type SessionRepository interface {
	UpsertSession(ctx context.Context, s *session.Session) error
	GetSessionByToken(ctx context.Context, token string) (*session.Session, error)
	DeleteSession(ctx context.Context, userID string) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

// UserLookup loads the user a refresh session belongs to.
type UserLookup interface {
	GetUserByID(ctx context.Context, id string) (*user.User, error)
}

// Pair is an access token with its refresh token.
type Pair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Service is the token service.
type Service struct {
	sessions SessionRepository
	users    UserLookup
	cfg      Config
	now      func() time.Time
}

// NewService returns a Service. Zero lifetimes fall back to the defaults.
func NewService(sessions SessionRepository, users UserLookup, cfg Config) *Service {
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}
	return &Service{sessions: sessions, users: users, cfg: cfg, now: time.Now}
}

func claimsFor(u *user.User) *jwt.Claims {
	return &jwt.Claims{ID: u.ID, Username: u.Username, Email: u.Email}
}

// IssueAccessToken signs a short-lived access token for u.
func (s *Service) IssueAccessToken(u *user.User) (string, error) {
	return jwt.GenerateToken(claimsFor(u), s.cfg.AccessSecret, s.cfg.AccessTTL)
}

// IssueRefreshToken signs a refresh token for u with the refresh secret.
func (s *Service) IssueRefreshToken(u *user.User) (string, error) {
	return jwt.GenerateToken(claimsFor(u), s.cfg.RefreshSecret, s.cfg.RefreshTTL)
}

// RotateSession replaces u's refresh session with a fresh one and returns a new
// token pair. Earlier refresh tokens of u stop resolving.
func (s *Service) RotateSession(ctx context.Context, u *user.User) (*Pair, error) {
	refresh, err := s.IssueRefreshToken(u)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}
	access, err := s.IssueAccessToken(u)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	now := s.now()
	if err := s.sessions.UpsertSession(ctx, &session.Session{
		UserID:    u.ID,
		Token:     refresh,
		ExpiresAt: now.Add(s.cfg.RefreshTTL),
		UpdatedAt: now,
	}); err != nil {
		return nil, err
	}

	metrics.SessionsIssued.Inc()
	return &Pair{AccessToken: access, RefreshToken: refresh}, nil
}

// VerifyAccessToken checks signature and expiry only. It does not consult the
// session store.
func (s *Service) VerifyAccessToken(token string) (*jwt.Claims, error) {
	claims, err := jwt.ParseToken(token, s.cfg.AccessSecret)
	if err != nil {
		return nil, errs.NewError(errs.ErrInvalidToken)
	}
	return claims, nil
}

// RefreshAccess issues a new access token for the owner of refreshToken.
// The refresh token itself is not rotated.
func (s *Service) RefreshAccess(ctx context.Context, refreshToken string) (string, error) {
	sess, err := s.sessions.GetSessionByToken(ctx, refreshToken)
	if errors.Is(err, session.ErrNotFound) {
		return "", errs.NewError(errs.ErrSessionNotFound)
	}
	if err != nil {
		return "", err
	}

	if sess.Expired(s.now()) {
		if err := s.sessions.DeleteSession(ctx, sess.UserID); err != nil {
			logx.Warn("Failed to delete expired session", "user_id", sess.UserID)
		}
		return "", errs.NewError(errs.ErrSessionNotFound)
	}

	claims, err := jwt.ParseToken(refreshToken, s.cfg.RefreshSecret)
	if err != nil || claims.ID != sess.UserID {
		return "", errs.NewError(errs.ErrSessionNotFound)
	}

	u, err := s.users.GetUserByID(ctx, sess.UserID)
	if errors.Is(err, user.ErrNotFound) {
		return "", errs.NewError(errs.ErrUserNotFound)
	}
	if err != nil {
		return "", err
	}

	access, err := s.IssueAccessToken(u)
	if err != nil {
		return "", fmt.Errorf("issue access token: %w", err)
	}
	return access, nil
}

// RevokeSession deletes userID's refresh session. Revoking twice is not an error.
func (s *Service) RevokeSession(ctx context.Context, userID string) error {
	return s.sessions.DeleteSession(ctx, userID)
}

// PruneExpired removes lapsed sessions every interval until ctx is cancelled.
func (s *Service) PruneExpired(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.sessions.DeleteExpiredSessions(ctx, s.now())
			if err != nil {
				logx.Error(err, "Session pruning failed")
				continue
			}
			if n > 0 {
				logx.Info("Pruned expired sessions", "count", n)
			}
		}
	}
}
