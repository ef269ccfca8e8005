/**
 * @description
 * HTTP router setup for the market service using go-chi/chi.
 *
 * @notes
 * - Only GET /stock/{symbol} sits behind the request gate.
 * - /register and /login are throttled per client IP when a limiter is configured.
 */
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterConfig carries the collaborators the router wires into middleware.
type RouterConfig struct {
	Tokens         TokenValidator
	Limiter        RateLimiter
	AllowedOrigins []string
	Logger         *slog.Logger
}

// NewRouter creates a new Chi router and registers the market service routes.
func NewRouter(h *Handlers, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"Retry-After"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	r.Group(func(r chi.Router) {
		r.Use(LoginThrottle(cfg.Limiter, cfg.Logger))
		r.Post("/register", h.handleRegister)
		r.Post("/login", h.handleLogin)
	})

	r.Get("/company/{symbol}", h.handleCompanyInfo)
	r.Get("/historical/{symbol}", h.handleHistorical)
	r.Get("/insights/{symbol}", h.handleInsights)

	r.Group(func(r chi.Router) {
		r.Use(RequestGate(cfg.Tokens, cfg.Logger))
		r.Get("/stock/{symbol}", h.handleLatestPrice)
	})

	return r
}
