// Package main is the application entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"patrasaar-go/internal/config"
	"patrasaar-go/internal/handler"
	"patrasaar-go/internal/middleware"
	"patrasaar-go/internal/model"
	"patrasaar-go/internal/pipeline"
	"patrasaar-go/internal/repository"
	"patrasaar-go/internal/service"
	"patrasaar-go/pkg/database"
	"patrasaar-go/pkg/embedding"
	"patrasaar-go/pkg/es"
	"patrasaar-go/pkg/extractor"
	"patrasaar-go/pkg/kafka"
	"patrasaar-go/pkg/llm"
	"patrasaar-go/pkg/log"
	"patrasaar-go/pkg/storage"
	"patrasaar-go/pkg/token"
)

func main() {
	// 1. Configuration and logging.
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync()
	log.Info("logger initialized successfully")

	// 2. Datastores.
	database.InitMySQL(cfg.Database.MySQL.DSN)
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)

	if err := database.DB.AutoMigrate(
		&model.ChatSession{},
		&model.Message{},
		&model.Document{},
		&model.ProcessingJob{},
		&model.Chunk{},
	); err != nil {
		log.Fatalf("database migration failed: %v", err)
	}

	storageClient, err := storage.NewClient(cfg.MinIO)
	if err != nil {
		log.Fatalf("minio initialization failed: %v", err)
	}
	vectorIndex, err := es.NewIndex(cfg.Elasticsearch, cfg.Embedding.Dimensions)
	if err != nil {
		log.Fatalf("elasticsearch initialization failed: %v", err)
	}
	kafka.InitProducer(cfg.Kafka)

	// 3. Repositories.
	chatRepo := repository.NewChatRepository(database.DB)
	messageRepo := repository.NewMessageRepository(database.DB)
	docRepo := repository.NewDocumentRepository(database.DB)
	chunkRepo := repository.NewChunkRepository(database.DB)
	jobRepo := repository.NewJobRepository(database.DB)

	// 4. Capability clients and services.
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours)
	extractorClient := extractor.NewClient(cfg.Extractor)
	llmClient := llm.NewClient(cfg.LLM)
	var embeddingClient embedding.Client
	if cfg.Embedding.APIKey != "" {
		embeddingClient = embedding.NewClient(cfg.Embedding)
	} else {
		// Degraded mode: queries get a canned answer instead of retrieval.
		log.Warnf("embedding api key not configured, retrieval is disabled")
	}

	chatService := service.NewChatService(chatRepo, messageRepo, docRepo, chunkRepo,
		vectorIndex, storageClient, embeddingClient, llmClient, cfg.LLM)
	documentService := service.NewDocumentService(docRepo, jobRepo, storageClient, kafka.ProduceIngestTask)

	// 5. Ingestion worker.
	processor := pipeline.NewProcessor(
		extractorClient,
		embeddingClient,
		vectorIndex,
		storageClient,
		docRepo,
		chunkRepo,
		jobRepo,
		cfg.Embedding.BatchSize,
	)
	go kafka.StartConsumer(cfg.Kafka, processor)

	// 6. Router.
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())

	r.GET("/health", handler.Health)

	chatHandler := handler.NewChatHandler(chatService)
	messageHandler := handler.NewMessageHandler(chatService, documentService)

	apiV1 := r.Group("/api/v1")
	{
		chats := apiV1.Group("/chats")
		chats.Use(middleware.AuthMiddleware(jwtManager))
		{
			chats.GET("", chatHandler.List)
			chats.POST("", chatHandler.Create)
			chats.GET("/:id", chatHandler.Get)
			chats.PATCH("/:id", chatHandler.Rename)
			chats.DELETE("/:id", chatHandler.Delete)
		}

		messages := apiV1.Group("/chats/:id/messages")
		messages.Use(middleware.AuthMiddleware(jwtManager))
		{
			messages.POST("", messageHandler.Send)
		}

		jobs := apiV1.Group("/jobs")
		jobs.Use(middleware.AuthMiddleware(jwtManager))
		{
			jobs.GET("/:jobId/status", messageHandler.JobStatus)
		}
	}

	// Websocket stream authenticates via its path token, not the middleware.
	r.GET("/stream/:token", handler.NewStreamHandler(chatService, jwtManager).Handle)

	// 7. Serve with graceful shutdown.
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutdown signal received, stopping server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP server shutdown failed: %v", err)
	}

	log.Info("server stopped cleanly")
}
