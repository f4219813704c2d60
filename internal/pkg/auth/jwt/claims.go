package jwt

import "github.com/golang-jwt/jwt/v5"

// Claims defines the JWT claims carried by both access and refresh tokens.
// The registered claims supply expiry, issue time, issuer and a unique token id,
// so two tokens issued for the same user within one second still differ.
type Claims struct {
	// ID is the user id the token was issued to.
	ID string `json:"id"`

	Username string `json:"username"`
	Email    string `json:"email"`

	jwt.RegisteredClaims
}
