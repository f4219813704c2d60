/*
Package identity verifies third-party identity assertions.

The only provider is Google: clients send the ID token obtained from Google
Sign-In and the server checks it against the configured OAuth client id.
*/
package identity

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/api/idtoken"
)

// ErrRejected is returned when an assertion cannot be verified.
var ErrRejected = errors.New("identity: assertion rejected")

// Assertion is the verified identity carried by an external token.
type Assertion struct {
	Email   string
	Name    string
	Picture string
}

// Verifier checks an external credential and returns the identity it asserts.
type Verifier interface {
	Verify(ctx context.Context, credential string) (*Assertion, error)
}

// Validator validates a Google ID token for an audience.
type Validator func(ctx context.Context, token, audience string) (*idtoken.Payload, error)

// Google verifies Google ID tokens.
type Google struct {
	clientID string
	validate Validator
}

// NewGoogle returns a verifier for tokens issued to clientID.
func NewGoogle(clientID string) *Google {
	return &Google{clientID: clientID, validate: idtoken.Validate}
}

// NewGoogleWithValidator is NewGoogle with a custom token validator.
func NewGoogleWithValidator(clientID string, validate Validator) *Google {
	return &Google{clientID: clientID, validate: validate}
}

// Verify validates credential. A disabled verifier, an invalid token or an
// unverified email all yield ErrRejected. Missing claims are returned empty so
// the caller can tell an incomplete assertion from a rejected one.
func (g *Google) Verify(ctx context.Context, credential string) (*Assertion, error) {
	if g.clientID == "" {
		return nil, fmt.Errorf("%w: external login disabled", ErrRejected)
	}

	payload, err := g.validate(ctx, credential, g.clientID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRejected, err)
	}

	if verified, ok := payload.Claims["email_verified"].(bool); ok && !verified {
		return nil, fmt.Errorf("%w: email not verified", ErrRejected)
	}

	return &Assertion{
		Email:   claim(payload, "email"),
		Name:    claim(payload, "name"),
		Picture: claim(payload, "picture"),
	}, nil
}

func claim(payload *idtoken.Payload, key string) string {
	v, _ := payload.Claims[key].(string)
	return v
}
