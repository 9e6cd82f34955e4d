package main

import (
	"fmt"
	"os"

	"github.com/technova/corpusd/internal/clients/ollama"
	redisclient "github.com/technova/corpusd/internal/clients/redis"
	"github.com/technova/corpusd/internal/db"
	"github.com/technova/corpusd/internal/handlers"
	"github.com/technova/corpusd/internal/logger"
	"github.com/technova/corpusd/internal/repos"
	"github.com/technova/corpusd/internal/server"
	"github.com/technova/corpusd/internal/services"
	"github.com/technova/corpusd/internal/utils"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Warn("Postgres auto migration failed", "error", err)
	}
	thePG := postgresService.DB()

	// Redis
	rdb, err := redisclient.New(log)
	if err != nil {
		log.Error("Redis init failed", "error", err)
		os.Exit(1)
	}
	fastStore := redisclient.NewStore(rdb, log)

	// Repos
	log.Info("Setting up Repos from main...")
	userRepo := repos.NewUserRepo(thePG, log)
	sourceRepo := repos.NewSourceRepo(thePG, log)
	chunkRepo := repos.NewChunkRepo(thePG, log)
	factRepo := repos.NewFactRepo(thePG, log)
	answerCacheRepo := repos.NewAnswerCacheRepo(thePG, log)
	toolCacheRepo := repos.NewToolCacheRepo(thePG, log)
	feedbackRepo := repos.NewFeedbackRepo(thePG, log)

	// Services
	log.Info("Setting up Services from main...")
	ollamaClient := ollama.NewClient(log)
	embedder := services.NewEmbeddingService(ollamaClient, log)
	synthesizer := services.NewSynthesizer(ollamaClient, log)
	retrievalService := services.NewRetrievalService(chunkRepo, sourceRepo, log)
	factService := services.NewFactService(factRepo, log)
	cacheService := services.NewCacheService(fastStore, answerCacheRepo, toolCacheRepo, log)
	contextService := services.NewContextService(fastStore, log)
	askService := services.NewAskService(userRepo, retrievalService, factService, cacheService, contextService, embedder, synthesizer, log)
	feedbackService := services.NewFeedbackService(userRepo, feedbackRepo, log)

	// Handlers
	askHandler := handlers.NewAskHandler(askService, feedbackService)

	// Router
	log.Info("Setting up router from main...")
	router := server.NewRouter(server.RouterConfig{
		AskHandler: askHandler,
	})

	port := utils.GetEnv("PORT", "8080", log)
	fmt.Printf("Server listening on :%s\n", port)
	if err := router.Run(":" + port); err != nil {
		log.Warn("Server failed", "error", err)
	}
}
