/*
Package handler provides the HTTP handlers and routing setup for the chat server.
*/
package handler

import (
	"net/http"

	"duochat/internal/app/account"
	"duochat/internal/pkg/logx"
	"duochat/internal/pkg/pow"
	"duochat/internal/pkg/req"
	"duochat/internal/pkg/resp"
)

// RegisterInput is the body of POST /api/auth/register. Password may be
// omitted, which the account flow rejects as MissingCredential.
type RegisterInput struct {
	Username string  `json:"username" validate:"required,min=4,max=50"`
	Email    string  `json:"email" validate:"required,email"`
	Password *string `json:"password" validate:"omitempty,min=3,max=72,maxbytes=72"`
}

// LoginInput is the body of POST /api/auth/login.
type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=3,max=72,maxbytes=72"`
}

// RefreshInput is the body of POST /api/auth/refresh.
type RefreshInput struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

// ExternalLoginInput is the body of POST /api/auth/googleAuth.
type ExternalLoginInput struct {
	Token string `json:"token" validate:"required"`
}

// PowVerifyInput is the body of POST /api/auth/pow/verify.
type PowVerifyInput struct {
	Nonce   string `json:"nonce" validate:"required"`
	Counter string `json:"counter" validate:"required"`
}

// HandleRegister creates a local account and answers 201 with its first token pair.
func HandleRegister(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input RegisterInput
		if customErr := req.BindAndValidate(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		pair, err := deps.Accounts.Register(r.Context(), account.RegisterInput{
			Username: input.Username,
			Email:    input.Email,
			Password: input.Password,
		})
		if err != nil {
			resp.RespondError(w, r, err)
			return
		}

		resp.RespondCreated(w, r, pair)
	}
}

// HandleLogin checks local credentials and rotates the caller's session.
func HandleLogin(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input LoginInput
		if customErr := req.BindAndValidate(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		pair, err := deps.Accounts.Login(r.Context(), input.Email, input.Password)
		if err != nil {
			resp.RespondError(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, pair)
	}
}

// HandleRefresh exchanges a refresh token for a new access token.
func HandleRefresh(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input RefreshInput
		if customErr := req.BindAndValidate(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		accessToken, err := deps.Accounts.Refresh(r.Context(), input.RefreshToken)
		if err != nil {
			resp.RespondError(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, map[string]string{"accessToken": accessToken})
	}
}

// HandleLogout deletes the caller's refresh session. Access tokens already
// issued stay valid until they expire.
func HandleLogout(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u := currentUser(r)

		if err := deps.Accounts.Logout(r.Context(), u.ID); err != nil {
			resp.RespondError(w, r, err)
			return
		}

		logx.Info("User logged out", "user_id", u.ID)
		resp.RespondSuccess(w, r, map[string]any{
			"error": nil,
			"msg":   "user token deleted",
		})
	}
}

// HandleExternalLogin signs a user in with a Google ID token. Known emails
// answer 200; first-time identities are registered and answer 201.
func HandleExternalLogin(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input ExternalLoginInput
		if customErr := req.BindAndValidate(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		pair, created, err := deps.Accounts.ExternalLogin(r.Context(), input.Token)
		if err != nil {
			resp.RespondError(w, r, err)
			return
		}

		if created {
			resp.RespondCreated(w, r, pair)
			return
		}
		resp.RespondSuccess(w, r, pair)
	}
}

// HandlePowChallenge issues a proof-of-work nonce.
func HandlePowChallenge(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp.RespondSuccess(w, r, deps.Pow.NewChallenge())
	}
}

// HandlePowVerify trades a solved challenge for a single-use proof token.
func HandlePowVerify(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input PowVerifyInput
		if customErr := req.BindAndValidate(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		proof, err := deps.Pow.Solve(input.Nonce, input.Counter)
		if err != nil {
			resp.RespondError(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"token":     proof,
			"expiresIn": int(pow.ProofTokenDuration.Seconds()),
		})
	}
}
