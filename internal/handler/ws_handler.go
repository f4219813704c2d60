package handler

import (
	"errors"
	"net/http"

	"github.com/gorilla/websocket"

	"duochat/internal/app/chat"
	"duochat/internal/app/user"
	"duochat/internal/pkg/auth/jwt"
	"duochat/internal/pkg/errs"
	"duochat/internal/pkg/limiter"
	"duochat/internal/pkg/logx"
	"duochat/internal/pkg/resp"
)

// NewUpgrader returns the websocket upgrader. In development every origin is
// accepted; otherwise the Origin header must be one of allowedOrigins.
// Requests without an Origin header come from non-browser clients and pass.
func NewUpgrader(development bool, allowedOrigins []string) websocket.Upgrader {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[origin] = struct{}{}
	}

	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if development || origin == "" {
				return true
			}
			if _, ok := allowed[origin]; ok {
				return true
			}

			logx.Warn("WebSocket connection rejected: Origin not allowed.", "origin", origin)
			return false
		},
	}
}

// handshakeToken reads the access token from ?token=, falling back to the
// Authorization header.
func handshakeToken(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	return jwt.BearerToken(r)
}

// HandleWebSocket authenticates the handshake, upgrades the connection and
// runs the client until it disconnects. Authentication failures are answered
// with 401 before any upgrade happens.
func HandleWebSocket(deps *AppDeps, upgrader websocket.Upgrader, rateLimiter *limiter.IPRateLimiter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !rateLimiter.Allow(r) {
			logx.Warn("WebSocket connection rejected: Rate limit exceeded.", "ip", limiter.ClientIP(r))
			resp.RespondError(w, r, errs.NewError(errs.ErrRateLimitExceeded))
			return
		}

		tokenString := handshakeToken(r)
		if tokenString == "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthenticated))
			return
		}

		claims, err := deps.Tokens.VerifyAccessToken(tokenString)
		if err != nil {
			logx.Warn("WebSocket connection rejected: Invalid token.", "error", err.Error())
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidToken))
			return
		}

		u, err := deps.Finder.GetUserByID(r.Context(), claims.ID)
		if errors.Is(err, user.ErrNotFound) {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidToken))
			return
		}
		if err != nil {
			resp.RespondError(w, r, err)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Error(err, "Failed to upgrade connection to WebSocket")
			return
		}

		client := chat.NewClient(conn, u)
		if err := deps.Engine.Connect(r.Context(), client); err != nil {
			logx.Error(err, "Failed to initialise realtime client", "user_id", u.ID)
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "initialisation failed"))
			_ = conn.Close()
			return
		}

		go client.WritePump()

		client.ReadPump(r.Context(), deps.Engine)
	}
}
