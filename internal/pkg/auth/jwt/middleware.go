package jwt

import (
	"context"
	"net/http"
	"strings"

	"duochat/internal/pkg/errs"
	"duochat/internal/pkg/logx"
	"duochat/internal/pkg/resp"
)

type contextKey string

// ContextClaimsKey stores the verified *Claims in the request context.
const ContextClaimsKey contextKey = "auth_claims"

// Verifier validates an access token and returns its claims.
type Verifier interface {
	VerifyAccessToken(token string) (*Claims, error)
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
// It returns "" when the header is missing or malformed.
func BearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}

// RequireAuth rejects requests without a valid bearer access token.
// A missing token answers Unauthenticated, a rejected one InvalidToken; both are 401
// and the downstream handler is never reached.
func RequireAuth(verifier Verifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := BearerToken(r)
			if tokenString == "" {
				resp.RespondError(w, r, errs.NewError(errs.ErrUnauthenticated))
				return
			}

			claims, err := verifier.VerifyAccessToken(tokenString)
			if err != nil {
				logx.Warn("Rejected access token", "path", r.URL.Path, "error", err.Error())
				resp.RespondError(w, r, errs.NewError(errs.ErrInvalidToken))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// WithClaims returns a copy of ctx carrying claims.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, ContextClaimsKey, claims)
}

// ClaimsFromContext returns the claims stored by RequireAuth, or nil.
func ClaimsFromContext(ctx context.Context) *Claims {
	claims, ok := ctx.Value(ContextClaimsKey).(*Claims)
	if !ok {
		return nil
	}
	return claims
}
