package api

import (
	"github.com/gin-gonic/gin"
	"github.com/timmy/scrapetrack/internal/api/handler"
	"github.com/timmy/scrapetrack/internal/api/middleware"
	"github.com/timmy/scrapetrack/internal/config"
	"github.com/timmy/scrapetrack/internal/history"
	"github.com/timmy/scrapetrack/internal/logger"
	"github.com/timmy/scrapetrack/internal/tracker"
)

// SetupRouter configures the Gin router with all routes
func SetupRouter(
	registry *tracker.Registry,
	store *history.Store,
	cfg *config.ServerConfig,
	log *logger.Logger,
) *gin.Engine {
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(log))
	r.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:  cfg.CORS.AllowedOrigins,
		AllowAllOrigins: cfg.CORS.AllowAllOrigins,
	}))

	healthHandler := handler.NewHealthHandler(registry)
	sessionHandler := handler.NewSessionHandler(registry)
	historyHandler := handler.NewHistoryHandler(store)

	r.GET("/health", healthHandler.Health)

	v1 := r.Group("/api/v1")
	{
		// Sessions
		v1.POST("/sessions", sessionHandler.StartSession)
		v1.GET("/sessions", sessionHandler.ListSessions)
		v1.GET("/sessions/:id", sessionHandler.GetSession)
		v1.POST("/sessions/:id/progress", sessionHandler.ReportProgress)
		v1.POST("/sessions/:id/categories", sessionHandler.ReportCategoryProgress)
		v1.POST("/sessions/:id/cancel", sessionHandler.CancelSession)
		v1.GET("/progress/current", sessionHandler.CurrentProgress)

		// History
		v1.GET("/history", historyHandler.ListHistory)
		v1.DELETE("/history", historyHandler.ClearHistory)
		v1.GET("/history/stats", historyHandler.GetStats)
		v1.GET("/history/export", historyHandler.ExportHistory)
		v1.POST("/history/import", historyHandler.ImportHistory)
		v1.GET("/history/:id", historyHandler.GetRecord)
		v1.DELETE("/history/:id", historyHandler.DeleteRecord)
	}

	return r
}
