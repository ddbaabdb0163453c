package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"messaging-service/internal/config"
	"messaging-service/internal/db"
	"messaging-service/internal/handlers"
	"messaging-service/internal/media"
	"messaging-service/internal/middleware"
	"messaging-service/internal/observability"
	"messaging-service/internal/presence"
	"messaging-service/internal/rabbitmq"
	"messaging-service/internal/repositories"
	"messaging-service/internal/telemetry"
	"messaging-service/internal/ws"
)

func main() {
	cfg := config.Load()

	database, err := db.Connect(cfg.DBDSN)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}
	if cfg.SeedDemoUsers {
		if err := db.SeedDemoUsers(database); err != nil {
			log.Fatalf("failed to seed users: %v", err)
		}
	}

	shutdownTracing, err := observability.SetupTracing(context.Background(), "messaging-service", cfg.OTLPEndpoint)
	if err != nil {
		log.Fatalf("failed to set up tracing: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(ctx)
	}()

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer publisher.Close()
	audit := telemetry.NewAuditEmitter(publisher, "audit.messaging", "messaging-service", cfg.Environment)

	messageRepo := repositories.NewMessageRepo(database)
	userRepo := repositories.NewUserRepo(database)

	mediaStore, err := media.NewDiskStore(cfg.UploadDir, cfg.BaseURL)
	if err != nil {
		log.Fatalf("failed to set up media store: %v", err)
	}

	hub := ws.NewHub()
	registry := presence.NewRegistry(hub)
	auth := middleware.NewAuthenticator(cfg.JWTSecret)

	messageHandler := handlers.NewMessageHandler(
		messageRepo, userRepo, mediaStore, registry, hub, audit,
		cfg.StoreTimeout, cfg.RefreshBroadcastAll,
	)
	wsHandler := ws.NewHandler(hub, registry, auth, audit)

	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("messaging-service"))
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := auth.Middleware()

	router.GET("/users/me", authMiddleware, messageHandler.GetMe)
	router.GET("/messages/users", authMiddleware, messageHandler.GetSidebar)
	router.GET("/messages/:id", authMiddleware, messageHandler.GetMessages)
	router.POST("/messages/send/:id", authMiddleware, messageHandler.SendMessage)
	router.PUT("/messages/mark-as-read/:id", authMiddleware, messageHandler.MarkAsRead)

	router.GET("/ws", wsHandler.Handle)

	router.Static("/uploads", cfg.UploadDir)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handlers.RegisterDebugRoutes(router, registry, messageRepo, audit, cfg.DebugRoutes)

	log.Printf("messaging-service listening on :%s", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
