package token

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duochat/internal/app/session"
	"duochat/internal/app/store/memory"
	"duochat/internal/app/user"
	"duochat/internal/pkg/errs"
)

func newService(t *testing.T) (*memory.Store, *Service, *user.User) {
	t.Helper()
	s := memory.New()
	u := &user.User{ID: "u1", Username: "alice", Email: "a@x.com"}
	require.NoError(t, s.CreateUser(context.Background(), u))

	svc := NewService(s, s, Config{AccessSecret: "access", RefreshSecret: "refresh"})
	return s, svc, u
}

func TestNewService_Defaults(t *testing.T) {
	_, svc, _ := newService(t)
	assert.Equal(t, time.Hour, svc.cfg.AccessTTL)
	assert.Equal(t, 30*24*time.Hour, svc.cfg.RefreshTTL)
}

func TestAccessTokenRoundTrip(t *testing.T) {
	_, svc, u := newService(t)

	token, err := svc.IssueAccessToken(u)
	require.NoError(t, err)

	claims, err := svc.VerifyAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, claims.ID)
	assert.Equal(t, u.Username, claims.Username)
	assert.Equal(t, u.Email, claims.Email)

	refresh, err := svc.IssueRefreshToken(u)
	require.NoError(t, err)
	_, err = svc.VerifyAccessToken(refresh)
	assert.True(t, errs.HasCode(err, errs.ErrInvalidToken), "refresh tokens are not access tokens")
}

func TestVerifyAccessToken_Expired(t *testing.T) {
	s, _, u := newService(t)
	svc := NewService(s, s, Config{AccessSecret: "access", RefreshSecret: "refresh", AccessTTL: time.Nanosecond})

	token, err := svc.IssueAccessToken(u)
	require.NoError(t, err)
	time.Sleep(time.Second + 10*time.Millisecond)

	_, err = svc.VerifyAccessToken(token)
	assert.True(t, errs.HasCode(err, errs.ErrInvalidToken))
}

func TestRotateSession_KeepsOneSession(t *testing.T) {
	s, svc, u := newService(t)
	ctx := context.Background()

	first, err := svc.RotateSession(ctx, u)
	require.NoError(t, err)
	second, err := svc.RotateSession(ctx, u)
	require.NoError(t, err)

	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	stored, err := s.GetSessionByUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, second.RefreshToken, stored.Token)

	_, err = svc.RefreshAccess(ctx, first.RefreshToken)
	assert.True(t, errs.HasCode(err, errs.ErrSessionNotFound))

	access, err := svc.RefreshAccess(ctx, second.RefreshToken)
	require.NoError(t, err)
	claims, err := svc.VerifyAccessToken(access)
	require.NoError(t, err)
	assert.Equal(t, u.ID, claims.ID)
}

func TestRefreshAccess_Failures(t *testing.T) {
	s, svc, u := newService(t)
	ctx := context.Background()

	_, err := svc.RefreshAccess(ctx, "unknown")
	assert.True(t, errs.HasCode(err, errs.ErrSessionNotFound))

	pair, err := svc.RotateSession(ctx, u)
	require.NoError(t, err)

	t.Run("expired session", func(t *testing.T) {
		svc.now = func() time.Time { return time.Now().Add(31 * 24 * time.Hour) }
		defer func() { svc.now = time.Now }()

		_, err := svc.RefreshAccess(ctx, pair.RefreshToken)
		assert.True(t, errs.HasCode(err, errs.ErrSessionNotFound))
	})

	pair, err = svc.RotateSession(ctx, u)
	require.NoError(t, err)

	t.Run("user gone", func(t *testing.T) {
		other := memory.New()
		require.NoError(t, other.UpsertSession(ctx, mustSession(t, s, u.ID)))
		orphaned := NewService(other, other, svc.cfg)

		_, err := orphaned.RefreshAccess(ctx, pair.RefreshToken)
		assert.True(t, errs.HasCode(err, errs.ErrUserNotFound))
	})
}

func TestRevokeSession_Idempotent(t *testing.T) {
	_, svc, u := newService(t)
	ctx := context.Background()

	pair, err := svc.RotateSession(ctx, u)
	require.NoError(t, err)

	require.NoError(t, svc.RevokeSession(ctx, u.ID))
	require.NoError(t, svc.RevokeSession(ctx, u.ID))

	_, err = svc.RefreshAccess(ctx, pair.RefreshToken)
	assert.True(t, errs.HasCode(err, errs.ErrSessionNotFound))

	_, err = svc.VerifyAccessToken(pair.AccessToken)
	assert.NoError(t, err, "access tokens outlive logout")
}

func mustSession(t *testing.T, s *memory.Store, userID string) *session.Session {
	t.Helper()
	sess, err := s.GetSessionByUser(context.Background(), userID)
	require.NoError(t, err)
	return sess
}
