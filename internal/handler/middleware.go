package handler

import (
	"context"
	"errors"
	"net/http"

	"duochat/internal/app/user"
	"duochat/internal/pkg/auth/jwt"
	"duochat/internal/pkg/errs"
	"duochat/internal/pkg/logx"
	"duochat/internal/pkg/resp"
)

type ctxKey struct{}

// withUser resolves the verified token subject to the live user record, so
// handlers see the current online flag and avatar rather than token claims.
// Tokens whose user no longer exists are rejected as invalid.
func withUser(finder UserFinder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := jwt.ClaimsFromContext(r.Context())
			if claims == nil {
				resp.RespondError(w, r, errs.NewError(errs.ErrUnauthenticated))
				return
			}

			u, err := finder.GetUserByID(r.Context(), claims.ID)
			if errors.Is(err, user.ErrNotFound) {
				logx.Warn("Access token for unknown user", "user_id", claims.ID)
				resp.RespondError(w, r, errs.NewError(errs.ErrInvalidToken))
				return
			}
			if err != nil {
				resp.RespondError(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, u)))
		})
	}
}

// currentUser returns the user attached by withUser.
func currentUser(r *http.Request) *user.User {
	u, _ := r.Context().Value(ctxKey{}).(*user.User)
	return u
}
