// Package httpserver exposes the storyforge HTTP API: registration, login,
// profile, and the metered generation endpoints.
package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/walkiger/storyforge/internal/limiter"
	"github.com/walkiger/storyforge/internal/repository"
	"github.com/walkiger/storyforge/internal/service"
)

// Server wires services into HTTP handlers.
type Server struct {
	auth    *service.AuthService
	users   repository.UserRepository
	lim     limiter.Limiter
	log     *zap.Logger
	origins []string
}

// New constructs a Server with injected collaborators.
func New(auth *service.AuthService, users repository.UserRepository, lim limiter.Limiter, log *zap.Logger, allowedOrigins []string) *Server {
	return &Server{auth: auth, users: users, lim: lim, log: log, origins: allowedOrigins}
}

// Router builds the full route tree with middleware applied.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, s.recoverer, s.requestLogger, s.cors)

	r.Get("/healthz", s.handleHealth)
	r.Post("/auth/register", s.handleRegister)
	r.Post("/auth/login", s.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)

		r.Get("/users/me", s.handleMe)
		r.Patch("/users/me", s.handleUpdateProfile)
		r.Post("/users/me/password", s.handleChangePassword)
		r.With(s.requireAdmin).Get("/users", s.handleListUsers)

		r.With(s.meter(classChat, chatCost)).Post("/generate/chat", s.handleGenerateChat)
		r.With(s.meter(classImage, imageCost)).Post("/generate/image", s.handleGenerateImage)
	})

	return r
}
