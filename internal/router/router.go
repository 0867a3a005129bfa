package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"go-auth-backend/internal/config"
	"go-auth-backend/internal/handler"
	"go-auth-backend/internal/middleware"
)

type Handlers struct {
	Auth  *handler.AuthHandler
	User  *handler.UserHandler
	Audit *handler.AuditHandler
}

func New(cfg *config.Config, authMiddleware *middleware.AuthMiddleware, handlers Handlers) http.Handler {
	r := chi.NewRouter()
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(cfg.RateLimitRPM, cfg.AuthRateLimitRPM)

	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(rateLimitMiddleware.Handler)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(middleware.Timeout(cfg.RequestTimeout))

		api.Route("/auth", func(auth chi.Router) {
			auth.Post("/register", handlers.Auth.Register)
			auth.Post("/login", handlers.Auth.Login)
			auth.Post("/refresh", handlers.Auth.Refresh)
			// Logout and me resolve the token against the session store
			// themselves; a missing token is a 400, not a 401.
			auth.Post("/logout", handlers.Auth.Logout)
			auth.Get("/me", handlers.Auth.Me)
		})

		api.With(authMiddleware.RequireAuth).Get("/users/{id}", handlers.User.Get)
		api.With(authMiddleware.RequireAuth).Patch("/users/{id}", handlers.User.Update)
		api.With(authMiddleware.RequireAuth).Delete("/users", handlers.User.Delete)

		api.With(authMiddleware.RequireAuth).Get("/audit", handlers.Audit.List)
	})

	return r
}
