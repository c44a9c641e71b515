package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/TIROK547/telegram-study-bot/internal/handlers"
	"github.com/TIROK547/telegram-study-bot/internal/middleware"
)

func New(
	serviceAuth *middleware.ServiceAuth,
	sessionHandler *handlers.SessionHandler,
	statsHandler *handlers.StatsHandler,
	userHandler *handlers.UserHandler,
	frontendURL string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(frontendURL))

	// Public read-path limiter (60 req/min per IP)
	publicLimiter := middleware.NewRateLimiter(60, time.Minute)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {

		// ──── Public read-only routes (web front end) ────
		r.Group(func(r chi.Router) {
			r.Use(publicLimiter.Middleware)
			r.Get("/leaderboard/{granularity}", statsHandler.Leaderboard)
			r.Get("/users", userHandler.List)
			r.Get("/users/search", userHandler.Search)
			r.Get("/users/{username}/stats", statsHandler.UserStats)
		})

		// ──── Session Routes (bot layer, service auth) ────
		r.Route("/sessions", func(r chi.Router) {
			r.Use(serviceAuth.Middleware)
			r.Post("/start", sessionHandler.Start)
			r.Post("/pause", sessionHandler.Pause)
			r.Post("/resume", sessionHandler.Resume)
			r.Post("/end", sessionHandler.End)
			r.Get("/live", sessionHandler.Live)
		})

		// ──── Profile Routes (bot layer, service auth) ────
		r.Group(func(r chi.Router) {
			r.Use(serviceAuth.Middleware)
			r.Put("/users/profile", userHandler.UpdateProfile)
		})
	})

	return r
}
