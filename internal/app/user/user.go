/*
Package user contains the chat account model, its public projection and the
user directory operations (search, profile, avatar upload).
*/
package user

import (
	"errors"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned by repositories when no account matches.
	ErrNotFound = errors.New("user: not found")

	// ErrEmailTaken is returned by repositories when the email is already registered.
	ErrEmailTaken = errors.New("user: email already registered")
)

// User is a stored chat account.
type User struct {
	ID       string
	Username string
	Email    string

	// PasswordHash is nil for accounts created through an external identity.
	PasswordHash *string

	// Avatar is an object key under the asset bucket or an absolute URL.
	Avatar string

	Online    bool
	CreatedAt time.Time
}

// HasPassword reports whether the account can log in with a local password.
func (u *User) HasPassword() bool {
	return u.PasswordHash != nil
}

// Public is the client-safe projection of a User.
type Public struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	Email      string `json:"email"`
	ProfilePic string `json:"profilePic"`
	Online     bool   `json:"online"`
}

// Presenter renders users for clients, resolving avatar keys against the asset base URL.
type Presenter struct {
	assetBaseURL string
}

// NewPresenter returns a Presenter for the given asset base URL.
func NewPresenter(assetBaseURL string) Presenter {
	return Presenter{assetBaseURL: strings.TrimRight(assetBaseURL, "/")}
}

// Public projects u. A nil user yields the zero projection.
func (p Presenter) Public(u *User) Public {
	if u == nil {
		return Public{}
	}
	return Public{
		ID:         u.ID,
		Username:   u.Username,
		Email:      u.Email,
		ProfilePic: p.ProfilePic(u.Avatar),
		Online:     u.Online,
	}
}

// PublicList projects every user in users.
func (p Presenter) PublicList(users []*User) []Public {
	out := make([]Public, 0, len(users))
	for _, u := range users {
		out = append(out, p.Public(u))
	}
	return out
}

// ProfilePic turns a stored avatar into a URL. Absolute URLs pass through.
func (p Presenter) ProfilePic(avatar string) string {
	switch {
	case avatar == "":
		return ""
	case strings.HasPrefix(avatar, "http://"), strings.HasPrefix(avatar, "https://"):
		return avatar
	case p.assetBaseURL == "":
		return avatar
	default:
		return p.assetBaseURL + "/" + strings.TrimLeft(avatar, "/")
	}
}
