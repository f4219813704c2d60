/*
Package account implements the credential flows of the auth gateway: local
registration and login, external identity login, access refresh and logout.

Every flow that yields a token pair goes through the token service's session
rotation.
*/
package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"duochat/internal/app/events"
	"duochat/internal/app/identity"
	"duochat/internal/app/token"
	"duochat/internal/app/user"
	"duochat/internal/pkg/errs"
	"duochat/internal/pkg/hash"
	"duochat/internal/pkg/logx"
	"duochat/internal/pkg/randx"
)

// maxUsernameRunes bounds usernames taken from external identities.
const maxUsernameRunes = 50

// UserRepository persists accounts.
type UserRepository interface {
	CreateUser(ctx context.Context, u *user.User) error
	GetUserByID(ctx context.Context, id string) (*user.User, error)
	GetUserByEmail(ctx context.Context, email string) (*user.User, error)
	DeleteUser(ctx context.Context, id string) error
}

// Tokens is the token service as seen by the account flows.
type Tokens interface {
	RotateSession(ctx context.Context, u *user.User) (*token.Pair, error)
	RefreshAccess(ctx context.Context, refreshToken string) (string, error)
	RevokeSession(ctx context.Context, userID string) error
}

// RegisterInput is a local registration request. Password is nil when the
// client omitted it.
type RegisterInput struct {
	Username string
	Email    string
	Password *string
}

// Service runs the account flows.
type Service struct {
	users    UserRepository
	tokens   Tokens
	hasher   hash.Hasher
	identity identity.Verifier
	events   events.Publisher
	now      func() time.Time
}

// NewService wires the account flows. A nil publisher drops events.
func NewService(users UserRepository, tokens Tokens, hasher hash.Hasher, verifier identity.Verifier, publisher events.Publisher) *Service {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Service{
		users:    users,
		tokens:   tokens,
		hasher:   hasher,
		identity: verifier,
		events:   publisher,
		now:      time.Now,
	}
}

// Register creates a local account and returns its first token pair.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*token.Pair, error) {
	email := normalizeEmail(in.Email)

	_, err := s.users.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		return nil, errs.NewError(errs.ErrDuplicateAccount)
	case !errors.Is(err, user.ErrNotFound):
		return nil, err
	}

	if in.Password == nil {
		return nil, errs.NewError(errs.ErrMissingCredential)
	}
	if len(*in.Password) > hash.MaxPasswordBytes {
		return nil, errs.NewValidationError(errs.FieldError{
			Field: "password",
			Msg:   fmt.Sprintf("must be at most %d bytes", hash.MaxPasswordBytes),
		})
	}

	digest, err := s.hasher.Hash(*in.Password)
	if err != nil {
		return nil, err
	}

	u := &user.User{
		ID:           randx.UserID(),
		Username:     strings.TrimSpace(in.Username),
		Email:        email,
		PasswordHash: &digest,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.users.CreateUser(ctx, u); err != nil {
		if errors.Is(err, user.ErrEmailTaken) {
			return nil, errs.NewError(errs.ErrDuplicateAccount)
		}
		return nil, err
	}

	pair, err := s.issueFirstSession(ctx, u)
	if err != nil {
		return nil, err
	}

	s.publishRegistered(ctx, u, "local")
	return pair, nil
}

// issueFirstSession rotates the session of a just-created account. If that
// fails the account is removed again, so the email is free for a retry.
func (s *Service) issueFirstSession(ctx context.Context, u *user.User) (*token.Pair, error) {
	pair, err := s.tokens.RotateSession(ctx, u)
	if err == nil {
		return pair, nil
	}

	if delErr := s.users.DeleteUser(context.WithoutCancel(ctx), u.ID); delErr != nil {
		logx.Error(delErr, "Failed to roll back account after session error", "user_id", u.ID)
	}
	return nil, err
}

// Login checks a local password and returns a fresh token pair.
func (s *Service) Login(ctx context.Context, email, password string) (*token.Pair, error) {
	u, err := s.users.GetUserByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, user.ErrNotFound) {
		return nil, errs.NewError(errs.ErrUserNotFound)
	}
	if err != nil {
		return nil, err
	}

	if !u.HasPassword() {
		return nil, errs.NewError(errs.ErrExternalIdentityOnly)
	}
	if !s.hasher.Verify(password, *u.PasswordHash) {
		return nil, errs.NewError(errs.ErrInvalidCredential)
	}

	return s.tokens.RotateSession(ctx, u)
}

// ExternalLogin exchanges an external identity assertion for a token pair.
// Unknown emails get a new account without a local password; created reports
// whether that happened.
func (s *Service) ExternalLogin(ctx context.Context, credential string) (pair *token.Pair, created bool, err error) {
	assertion, err := s.identity.Verify(ctx, credential)
	if err != nil {
		if errors.Is(err, identity.ErrRejected) {
			logx.Warn("External identity rejected", "error", err.Error())
			return nil, false, errs.NewError(errs.ErrNoPayload)
		}
		return nil, false, err
	}

	email := normalizeEmail(assertion.Email)
	name := strings.TrimSpace(assertion.Name)
	if email == "" || name == "" {
		return nil, false, errs.NewError(errs.ErrIncompleteAssertion)
	}

	existing, err := s.users.GetUserByEmail(ctx, email)
	if err == nil {
		pair, err := s.tokens.RotateSession(ctx, existing)
		return pair, false, err
	}
	if !errors.Is(err, user.ErrNotFound) {
		return nil, false, err
	}

	u := &user.User{
		ID:        randx.UserID(),
		Username:  truncateRunes(name, maxUsernameRunes),
		Email:     email,
		Avatar:    assertion.Picture,
		CreatedAt: s.now().UTC(),
	}
	if err := s.users.CreateUser(ctx, u); err != nil {
		if !errors.Is(err, user.ErrEmailTaken) {
			return nil, false, err
		}
		// Lost a race with a concurrent first login for the same email.
		existing, err := s.users.GetUserByEmail(ctx, email)
		if err != nil {
			return nil, false, err
		}
		pair, err := s.tokens.RotateSession(ctx, existing)
		return pair, false, err
	}

	pair, err = s.issueFirstSession(ctx, u)
	if err != nil {
		return nil, false, err
	}
	s.publishRegistered(ctx, u, "google")
	return pair, true, nil
}

// Refresh returns a new access token for a live refresh session.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, error) {
	return s.tokens.RefreshAccess(ctx, refreshToken)
}

// Logout revokes the user's refresh session.
func (s *Service) Logout(ctx context.Context, userID string) error {
	return s.tokens.RevokeSession(ctx, userID)
}

func (s *Service) publishRegistered(ctx context.Context, u *user.User, provider string) {
	s.events.Publish(ctx, events.New(events.UserRegistered, u.ID, map[string]string{
		"userId":   u.ID,
		"username": u.Username,
		"provider": provider,
	}))
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
