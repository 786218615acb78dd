package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/examquest-backend/internal/config"
	"github.com/stemsi/examquest-backend/internal/database"
	"github.com/stemsi/examquest-backend/internal/handler"
	"github.com/stemsi/examquest-backend/internal/logger"
	"github.com/stemsi/examquest-backend/internal/middleware"
	"github.com/stemsi/examquest-backend/internal/repository"
	"github.com/stemsi/examquest-backend/internal/router"
	"github.com/stemsi/examquest-backend/internal/service"
	"github.com/stemsi/examquest-backend/internal/validator"
	"github.com/stemsi/examquest-backend/internal/worker"
)

// sessionSweepInterval is how often idle sessions are evicted.
const sessionSweepInterval = time.Minute

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting ExamQuest Backend")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Initialize Repositories ───────────────────────────────────────
	examRepo := repository.NewExamRepository(pool)
	questionRepo := repository.NewQuestionRepository(pool)
	resultRepo := repository.NewResultRepository(pool)
	profileRepo := repository.NewProfileRepository(pool)

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg)
	catalog := service.NewCatalog(examRepo, questionRepo, rdb, cfg.CacheTTL, log)
	sessionService := service.NewSessionService(service.SessionDeps{
		Exams:     catalog,
		Questions: catalog,
		Results:   resultRepo,
		Profiles:  profileRepo,
		Queue:     service.NewRedisQueue(rdb),
		Drafts:    service.NewRedisDrafts(rdb, cfg.DraftTTL),
	}, cfg, log)
	resultService := service.NewResultService(resultRepo, log)
	profileService := service.NewProfileService(profileRepo)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Session: handler.NewSessionHandler(sessionService),
		Result:  handler.NewResultHandler(resultService, profileService),
		WS:      handler.NewWSHandler(sessionService, log, cfg.AllowedOrigins),
		Health:  handler.NewHealthHandler(pool, rdb, sessionService, log),
	}

	var limiter *middleware.RateLimiter
	if cfg.RateLimitPerMinute > 0 {
		limiter = middleware.NewRateLimiter(middleware.NewRedisCounter(rdb), cfg.RateLimitPerMinute, time.Minute, log)
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())

	profileWorker := worker.NewProfileSyncWorker(profileRepo, rdb, cfg.ProfileRetryInterval, log)
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		profileWorker.Start(workerCtx)
	}()
	go sessionService.Run(workerCtx, sessionSweepInterval)

	// ─── Prewarm Redis Caches ─────────────────────────────────────────
	// Load active exams into Redis BEFORE accepting traffic.
	if err := catalog.PrewarmActiveExams(ctx); err != nil {
		log.Warn().Err(err).Msg("Cache prewarm failed")
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, limiter, handlers, cfg, log)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop background workers and wait for the profile queue to drain.
	workerCancel()
	select {
	case <-workerDone:
	case <-time.After(10 * time.Second):
		log.Warn().Msg("Profile worker did not drain in time")
	}

	if n := sessionService.Count(); n > 0 {
		log.Warn().Int("sessions", n).Msg("Live sessions dropped on shutdown; answer drafts remain in Redis")
	}

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
