package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// AuthHandler is implemented by the auth package's HTTP handler.
type AuthHandler interface {
	Login(w http.ResponseWriter, r *http.Request)
	Me(w http.ResponseWriter, r *http.Request)
}

// Mounter registers a group of routes.
type Mounter interface {
	Mount(r chi.Router)
}

// HealthChecker reports whether a backing service is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Dependencies holds everything the router needs.
type Dependencies struct {
	DB             HealthChecker
	DevMode        bool
	RequestTimeout time.Duration
	AuthHandler    AuthHandler
	AuthMiddleware func(http.Handler) http.Handler

	// Admin routes are mounted under /admin/api behind AuthMiddleware.
	Admin []Mounter
	// Public routes are mounted at the root without authentication.
	Public []Mounter
}

// NewRouter builds the chi router with the middleware stack and every route group.
func NewRouter(deps Dependencies) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware(deps.DevMode))
	if deps.RequestTimeout > 0 {
		r.Use(middleware.Timeout(deps.RequestTimeout))
	}

	r.Get("/health", healthHandler(deps.DB))

	r.Route("/admin/api", func(r chi.Router) {
		r.Use(requireJSON)

		if deps.AuthHandler != nil {
			r.Post("/auth/login", deps.AuthHandler.Login)
		}

		r.Group(func(r chi.Router) {
			if deps.AuthMiddleware != nil {
				r.Use(deps.AuthMiddleware)
			}
			if deps.AuthHandler != nil {
				r.Get("/auth/me", deps.AuthHandler.Me)
			}
			for _, m := range deps.Admin {
				m.Mount(r)
			}
		})
	})

	for _, m := range deps.Public {
		m.Mount(r)
	}

	r.NotFound(notFound)
	r.MethodNotAllowed(methodNotAllowed)

	return r
}

// corsMiddleware allows the admin UI dev server in dev mode and only
// same-origin requests otherwise.
func corsMiddleware(devMode bool) func(http.Handler) http.Handler {
	var allowedOrigins []string
	if devMode {
		allowedOrigins = []string{"http://localhost:4200", "http://localhost:8080"}
	}

	return cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}

func healthHandler(db HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.Health(r.Context()); err != nil {
				Error(w, http.StatusServiceUnavailable, "DB_UNHEALTHY", "database health check failed", nil)
				return
			}
		}
		JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func notFound(w http.ResponseWriter, r *http.Request) {
	Error(w, http.StatusNotFound, "NOT_FOUND", "the requested resource does not exist", nil)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	Error(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed", nil)
}
