package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/technova/corpusd/internal/handlers"
)

type RouterConfig struct {
	AskHandler *handlers.AskHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{
			"http://localhost:80",
			"http://localhost:3000",
			"http://localhost:5173",
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", handlers.HealthCheck)

	api := router.Group("/")
	{
		api.POST("/ask", cfg.AskHandler.Ask)
		api.POST("/ask/context/reset", cfg.AskHandler.ResetContext)
		api.POST("/ask/feedback", cfg.AskHandler.Feedback)
	}

	return router
}
