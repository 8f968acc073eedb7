package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"focusflow-backend/internal/config"
	"focusflow-backend/internal/handlers"
	"focusflow-backend/internal/middleware"
	"focusflow-backend/internal/websocket"
)

func New(
	cfg *config.Config,
	jwtAuth *middleware.JWTAuth,
	sessionHandler *handlers.SessionHandler,
	visionHandler *handlers.VisionHandler,
	gamificationHandler *handlers.GamificationHandler,
	wsHub *websocket.Hub,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(cfg.FrontendURL))

	// Frame submissions are the hot path: cap them per IP so a runaway
	// client can't flood the classifier.
	frameLimiter := middleware.NewRateLimiter(cfg.FrameRateLimit, time.Minute, logger)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {

		// ──── Session Routes ────
		r.Route("/sessions", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Post("/start", sessionHandler.Start)
			r.Get("/active", sessionHandler.Active)
			r.Get("/history", sessionHandler.History)
			r.Get("/stats", sessionHandler.Stats)
			r.Get("/{id}", sessionHandler.Get)
			r.Delete("/{id}", sessionHandler.Delete)
			r.Post("/{id}/pause", sessionHandler.Pause)
			r.Post("/{id}/resume", sessionHandler.Resume)
			r.Post("/{id}/end", sessionHandler.End)
			r.Post("/{id}/events", sessionHandler.Event)
		})

		// ──── Vision Routes ────
		r.Route("/vision", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Use(frameLimiter.Middleware)
			r.Post("/analyze", visionHandler.Analyze)
		})

		// ──── Gamification Routes ────
		r.Route("/gamification", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Get("/leaderboard", gamificationHandler.Leaderboard)
			r.Get("/rank", gamificationHandler.Rank)
			r.Get("/hearts", gamificationHandler.Hearts)
			r.Get("/stats", gamificationHandler.Stats)
			r.Get("/achievements", gamificationHandler.Achievements)
		})

		// ──── WebSocket ────
		r.Get("/ws", wsHub.HandleWebSocket)
	})

	return r
}
