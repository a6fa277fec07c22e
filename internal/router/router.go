package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"focusgarden/backend/internal/handler"
	"focusgarden/backend/internal/middleware"
)

type Handlers struct {
	Auth     *handler.AuthHandler
	Session  *handler.SessionHandler
	Settings *handler.SettingsHandler
	History  *handler.HistoryHandler
}

func New(tokens middleware.TokenParser, handlers Handlers, corsOrigins []string) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Logger(), gin.Recovery(), middleware.CORS(corsOrigins))

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := engine.Group("/api")
	auth := api.Group("/auth")
	auth.POST("/register", handlers.Auth.Register)
	auth.POST("/login", handlers.Auth.Login)

	protected := api.Group("")
	protected.Use(middleware.Auth(tokens))

	protected.GET("/settings", handlers.Settings.GetSettings)
	protected.PUT("/settings", handlers.Settings.UpdateSettings)
	protected.GET("/plan", handlers.Settings.GetPlan)
	protected.PUT("/plan", handlers.Settings.UpdatePlan)

	session := protected.Group("/session")
	session.GET("", handlers.Session.GetState)
	session.POST("/start", handlers.Session.Start)
	session.POST("/pause", handlers.Session.Pause)
	session.POST("/reset", handlers.Session.Reset)
	session.POST("/advance", handlers.Session.Advance)
	session.POST("/units", handlers.Session.MarkUnit)
	session.POST("/finish", handlers.Session.Finish)
	session.POST("/abandon", handlers.Session.Abandon)

	history := protected.Group("/history")
	history.GET("", handlers.History.List)
	history.GET("/export", handlers.History.Export)
	history.GET("/:id", handlers.History.Get)
	history.DELETE("/:id", handlers.History.Delete)
	history.GET("/:id/insight", handlers.History.Insight)

	return engine
}
