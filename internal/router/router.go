package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/examquest-backend/internal/config"
	"github.com/stemsi/examquest-backend/internal/handler"
	"github.com/stemsi/examquest-backend/internal/middleware"
	"github.com/stemsi/examquest-backend/internal/response"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Session *handler.SessionHandler
	Result  *handler.ResultHandler
	WS      *handler.WSHandler
	Health  *handler.HealthHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// limiter may be nil to disable rate limiting.
func SetupRouter(
	auth middleware.TokenValidator,
	limiter *middleware.RateLimiter,
	handlers *Handlers,
	cfg *config.Config,
	log zerolog.Logger,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "Accept-Language", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID", "Content-Disposition"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware(), response.RequestLogger(log))

	// Spreadsheets are already zip-compressed.
	router.Use(middleware.BrotliWithConfig(middleware.BrotliConfig{
		Quality:   middleware.DefaultBrotliConfig.Quality,
		MinLength: middleware.DefaultBrotliConfig.MinLength,
		Skipper:   middleware.SkipPathSuffix("/export"),
	}))

	// Health check.
	router.GET("/health", handlers.Health.Health)

	// ─── 1. Student Group (JWT) ────────────────────────────────────────
	studentAPI := router.Group("/api/v1/student")
	studentAPI.Use(middleware.RequireStudentJWT(auth))
	if limiter != nil {
		studentAPI.Use(limiter.Middleware())
	}
	{
		// Sessions carry live state and answers; keep them out of caches.
		sessions := studentAPI.Group("")
		sessions.Use(middleware.NoStore())
		{
			sessions.POST("/exams/:exam_id/sessions", handlers.Session.StartSession)
			sessions.GET("/sessions/:session_id", handlers.Session.GetSession)
			sessions.DELETE("/sessions/:session_id", handlers.Session.LeaveSession)
			sessions.PUT("/sessions/:session_id/answers/:index", handlers.Session.SaveAnswer)
			sessions.POST("/sessions/:session_id/answers/:index/placements", handlers.Session.PlaceItem)
			sessions.DELETE("/sessions/:session_id/answers/:index/placements/:target", handlers.Session.RemovePlacement)
			sessions.POST("/sessions/:session_id/navigate", handlers.Session.Navigate)
			sessions.POST("/sessions/:session_id/submit", handlers.Session.Submit)
			sessions.POST("/sessions/:session_id/profile-retry", handlers.Session.RetryProfile)
		}

		studentAPI.GET("/results", handlers.Result.ListResults)
		studentAPI.GET("/results/export", handlers.Result.ExportResults)
		// A stored result never changes.
		studentAPI.GET("/results/:result_id", middleware.PrivateCache(300), handlers.Result.GetResult)
		studentAPI.GET("/profile", handlers.Result.GetProfile)
	}

	// ─── 2. WebSocket Group (Student WS Auth) ──────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireStudentWSAuth(auth))
	{
		ws.GET("/student/sessions/:session_id/stream", handlers.WS.SessionStream)
	}

	return router
}
