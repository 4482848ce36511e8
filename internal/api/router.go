// Package api exposes the categorization engine over HTTP.
package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Veraticus/finrules/internal/engine"
)

// RouterConfig holds the dependencies of the HTTP router.
type RouterConfig struct {
	Engine         *engine.Engine
	Logger         *slog.Logger
	AllowedOrigins []string
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(cfg RouterConfig) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLogger(logger))
	router.Use(CORS(cfg.AllowedOrigins))

	h := &Handler{engine: cfg.Engine}

	router.GET("/healthcheck", HealthCheck)

	api := router.Group("/api")
	{
		api.GET("/transactions", h.ListTransactions)
		api.DELETE("/transactions/:id", h.DeleteTransaction)
		api.GET("/transactions/:id/suggestions", h.SuggestCategories)
		api.POST("/transactions/:id/category", h.CategorizeTransaction)

		api.GET("/rules", h.ListRules)
		api.POST("/rules", h.CreateRule)
		api.POST("/rules/test", h.TestRule)
		api.GET("/rules/:id", h.GetRule)
		api.PATCH("/rules/:id", h.UpdateRule)
		api.DELETE("/rules/:id", h.DeleteRule)

		api.GET("/suggestions", h.ListSuggestions)
		api.POST("/suggestions/mine", h.MineSuggestions)
		api.POST("/suggestions/:id/accept", h.AcceptSuggestion)
		api.POST("/suggestions/:id/dismiss", h.DismissSuggestion)
		api.GET("/suggestions/ignores", h.ListIgnores)
		api.POST("/suggestions/ignores", h.AddIgnore)
		api.DELETE("/suggestions/ignores", h.RemoveIgnore)

		api.POST("/feedback", h.RecordFeedback)
		api.GET("/feedback", h.FeedbackStats)
	}

	return router
}

// HealthCheck reports liveness.
func HealthCheck(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

// Handler serves the engine's operations.
type Handler struct {
	engine *engine.Engine
}
