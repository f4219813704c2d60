/*
Package handler provides the HTTP handlers and routing setup for the chat server.

This file defines the main Router, applying middleware for logging, CORS, metrics
and IP-based rate limiting before delegating to the API and WebSocket handlers.
*/
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"duochat/internal/pkg/auth/jwt"
	"duochat/internal/pkg/limiter"
	"duochat/internal/pkg/logx"
	"duochat/internal/pkg/metrics"
	"duochat/internal/pkg/resp"
)

const (
	AuthRate  = 1
	AuthBurst = 10
	WSRate    = 0.5
	WSBurst   = 10

	healthTimeout = 2 * time.Second
)

// Router sets up the main HTTP routing table for the application. The rate
// limiters it creates stop sweeping when ctx is cancelled.
func Router(ctx context.Context, deps *AppDeps) http.Handler {
	authLimiter := limiter.NewIPRateLimiter(ctx, rate.Limit(AuthRate), AuthBurst)
	wsLimiter := limiter.NewIPRateLimiter(ctx, rate.Limit(WSRate), WSBurst)

	r := chi.NewRouter()

	corsAllowedOrigins := []string{}
	if deps.Config.IsDevelopment() {
		corsAllowedOrigins = []string{"*"}
	} else if len(deps.Config.FrontendURLs) > 0 {
		corsAllowedOrigins = deps.Config.FrontendURLs
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   corsAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-PoW-Token"},
		ExposedHeaders:   []string{},
		AllowCredentials: true,
		MaxAge:           300,
	})
	r.Use(c.Handler)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logx.RequestLogger())
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	r.Get("/health", HandleHealth(deps))
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	requireUser := chi.Chain(jwt.RequireAuth(deps.Tokens), withUser(deps.Finder))

	r.Route("/api", func(api chi.Router) {
		api.Route("/auth", func(auth chi.Router) {
			auth.Use(authLimiter.Middleware)

			auth.With(deps.Pow.Require).Post("/register", HandleRegister(deps))
			auth.Post("/login", HandleLogin(deps))
			auth.Post("/refresh", HandleRefresh(deps))
			auth.With(requireUser...).Get("/logout", HandleLogout(deps))
			auth.With(deps.Pow.Require).Post("/googleAuth", HandleExternalLogin(deps))

			auth.Get("/pow/challenge", HandlePowChallenge(deps))
			auth.Post("/pow/verify", HandlePowVerify(deps))
		})

		api.Route("/user", func(u chi.Router) {
			u.Use(requireUser...)

			u.Get("/get-user", HandleSearchUsers(deps))
			u.Get("/rooms", HandleListRooms(deps))
			u.Post("/create-room", HandleCreateRoom(deps))
			u.Get("/me", HandleGetMe(deps))
			u.Post("/avatar/presign", HandlePresignAvatar(deps))
			u.Post("/avatar", HandleSetAvatar(deps))
		})
	})

	upgrader := NewUpgrader(deps.Config.IsDevelopment(), deps.Config.FrontendURLs)
	r.Get("/ws", HandleWebSocket(deps, upgrader, wsLimiter))

	return r
}

// HandleHealth reports liveness and store reachability.
func HandleHealth(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		status, code := "ok", http.StatusOK
		if err := deps.Store.Ping(ctx); err != nil {
			logx.Error(err, "Health check: store unreachable")
			status, code = "degraded", http.StatusServiceUnavailable
		}

		resp.RespondJSON(w, r, code, map[string]string{
			"status":  status,
			"service": "duochat",
		})
	}
}
