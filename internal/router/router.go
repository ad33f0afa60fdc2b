package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	_ "github.com/FACorreiaa/go-account-service/docs"
	"github.com/FACorreiaa/go-account-service/internal/api/auth"
	"github.com/FACorreiaa/go-account-service/internal/api/user"
)

// Config contains dependencies needed for the router setup
type Config struct {
	AuthHandler            *auth.AuthHandlerImpl
	UserHandler            *user.HandlerImpl
	AuthenticateMiddleware func(http.Handler) http.Handler
	AllowedOrigins         []string
}

// SetupRouter initializes and configures the main application router.
// Server-wide middleware (logger, requestID, recoverer) is applied in main.go
// before this router is mounted.
func SetupRouter(cfg *Config) chi.Router {
	r := chi.NewRouter()

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:3000"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("pong"))
	})

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	r.Route("/api/v1/users", func(r chi.Router) {
		// Public
		r.Group(func(r chi.Router) {
			r.Post("/register", cfg.UserHandler.Register)
			r.Post("/login", cfg.AuthHandler.Login)
			r.Post("/refresh-token", cfg.AuthHandler.RefreshSession)
		})

		// Protected
		r.Group(func(r chi.Router) {
			r.Use(cfg.AuthenticateMiddleware)

			r.Post("/logout", cfg.AuthHandler.Logout)
			r.Post("/change-password", cfg.UserHandler.ChangePassword)
			r.Get("/current-user", cfg.UserHandler.GetCurrentUser)
			r.Patch("/update-account", cfg.UserHandler.UpdateAccountDetails)
			r.Patch("/avatar", cfg.UserHandler.UpdateAvatar)
			r.Patch("/cover-image", cfg.UserHandler.UpdateCoverImage)
		})
	})

	return r
}
