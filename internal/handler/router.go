/*
Package handler provides the HTTP handlers and routing setup for the bot's web surface.

This file defines the main Router, applying logging, CORS and IP-based rate limiting before
delegating to the health, metrics, API and local chat WebSocket handlers.
*/
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"hzbot/internal/pkg/auth/jwt"
	"hzbot/internal/pkg/limiter"
	"hzbot/internal/pkg/logx"
	"hzbot/internal/pkg/resp"
)

const (
	SessionRate  = 0.05
	SessionBurst = 2
	JoinRate     = 0.2
	JoinBurst    = 5
)

// Router sets up the main HTTP routing table. The rate limiters' sweepers run until ctx is done.
func Router(ctx context.Context, deps *AppDeps) http.Handler {
	sessionLimiter := limiter.NewIPRateLimiter(rate.Limit(SessionRate), SessionBurst)
	joinLimiter := limiter.NewIPRateLimiter(rate.Limit(JoinRate), JoinBurst)
	go sessionLimiter.Run(ctx)
	go joinLimiter.Run(ctx)

	r := chi.NewRouter()

	allowedOrigins := make(map[string]struct{})
	for _, origin := range deps.Config.AllowedOrigins {
		allowedOrigins[origin] = struct{}{}
	}

	wsUpgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if deps.Config.IsDevelopment() {
				return true
			}

			origin := r.Header.Get("Origin")
			if _, ok := allowedOrigins[origin]; ok {
				return true
			}

			logx.Warn("WebSocket connection rejected: Origin not allowed.", "origin", origin)
			return false
		},
	}

	corsAllowedOrigins := []string{}
	if deps.Config.IsDevelopment() {
		corsAllowedOrigins = []string{"*"}
	} else if len(deps.Config.AllowedOrigins) > 0 {
		corsAllowedOrigins = deps.Config.AllowedOrigins
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   corsAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{},
		AllowCredentials: true,
		MaxAge:           300,
	})
	r.Use(c.Handler)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logx.RequestLogger())
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		resp.RespondSuccess(w, r, map[string]string{
			"status":  "ok",
			"service": "HZ Bot",
		})
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(api chi.Router) {
		api.Use(jwt.IdentityExtractorMiddleware(deps.Config.JWTSecret))

		api.With(sessionLimiter.Middleware).Post("/auth/session", HandleCreateSession(deps))

		api.Get("/channels/{platform}/{channel}/commands", HandleListCommands(deps))

		api.Group(func(authed chi.Router) {
			authed.Use(jwt.RequireIdentity)

			authed.Get("/me", HandleGetMe(deps))
			authed.Get("/me/data/{name}", HandleGetUserData(deps))
			authed.Put("/me/data/{name}", HandleSetUserData(deps))
			authed.Delete("/me/data/{name}", HandleRemoveUserData(deps))

			authed.Post("/users/merge", HandleMergeUsers(deps))
		})
	})

	r.With(joinLimiter.Middleware).Get("/ws/{code}", HandleWebSocket(deps, wsUpgrader))

	return r
}
