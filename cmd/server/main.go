package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"focusflow-backend/internal/config"
	"focusflow-backend/internal/database"
	"focusflow-backend/internal/handlers"
	"focusflow-backend/internal/middleware"
	"focusflow-backend/internal/repository"
	"focusflow-backend/internal/router"
	"focusflow-backend/internal/services"
	"focusflow-backend/internal/websocket"
	"focusflow-backend/internal/worker"
)

func main() {
	cfg := config.Load()

	logger := newLogger(cfg.Env)
	defer logger.Sync()

	logger.Info("starting focusflow backend", zap.String("env", cfg.Env))

	// ──── PostgreSQL ────
	pool, err := database.NewPostgresPool(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("postgres connection failed", zap.Error(err))
	}
	defer pool.Close()
	logger.Info("postgres connected")

	// ──── Redis ────
	redisClients, err := database.NewRedisClients(cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis connection failed", zap.Error(err))
	}
	defer redisClients.Close()
	logger.Info("redis connected")

	// ──── Migrations ────
	if err := database.RunMigrations(pool, "migrations"); err != nil {
		logger.Fatal("database migration failed", zap.Error(err))
	}
	logger.Info("database migrations applied")

	// ──── Repositories ────
	sessionRepo := repository.NewSessionRepo(pool)
	userRepo := repository.NewUserRepo(pool)
	clanRepo := repository.NewClanRepo(pool)
	leaderboardRepo := repository.NewLeaderboardRepo(pool)

	// ──── Services ────
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret)
	cacheService := services.NewCacheService(redisClients.Cache, logger)
	publisher := services.NewRedisPublisher(redisClients.PubSub, logger)
	jobQueue := services.NewJobQueue(redisClients.Queue, logger)
	pointsService := services.NewPointsService(cfg, logger)
	attentionProcessor := services.NewAttentionProcessor(cfg, logger)
	classifier := services.NewClassifierClient(cfg.ClassifierURL, cfg.ClassifierTimeout, cfg.ClassifierRetries, logger)

	sessionService := services.NewSessionService(
		sessionRepo, userRepo, clanRepo,
		cacheService, pointsService, attentionProcessor, classifier,
		jobQueue, publisher, cfg, logger,
	)
	leaderboardService := services.NewLeaderboardService(leaderboardRepo, clanRepo, cacheService, logger)
	gamificationService := services.NewGamificationService(userRepo, sessionRepo, pointsService, logger)

	// ──── Handlers ────
	sessionHandler := handlers.NewSessionHandler(sessionService)
	visionHandler := handlers.NewVisionHandler(sessionService)
	gamificationHandler := handlers.NewGamificationHandler(gamificationService, leaderboardService)

	// ──── Background workers ────
	workerPool := worker.NewPool(redisClients.Queue, leaderboardService, leaderboardRepo, 3, logger)
	workerPool.Start()

	staleSweep := services.NewStaleSweep(sessionRepo, sessionService, cfg, logger)
	staleSweep.Start()

	// ──── WebSocket hub ────
	wsHub := websocket.NewHub(redisClients.PubSub, cfg.JWTSecret, logger)

	// ──── HTTP server ────
	r := router.New(cfg, jwtAuth, sessionHandler, visionHandler, gamificationHandler, wsHub, logger)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down")
		staleSweep.Stop()
		workerPool.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	logger.Info("server listening",
		zap.String("addr", server.Addr),
		zap.String("api", "/api/v1"),
		zap.String("ws", "/api/v1/ws"),
	)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}
}

func newLogger(env string) *zap.Logger {
	var logger *zap.Logger
	var err error
	if env == "production" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %v", err))
	}
	return logger
}
