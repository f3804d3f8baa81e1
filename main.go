package main

import (
	"context"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/relicwavetechnologies/hrm8-candidate-messaging/internal/config"
	"github.com/relicwavetechnologies/hrm8-candidate-messaging/internal/db"
	"github.com/relicwavetechnologies/hrm8-candidate-messaging/internal/observability"
	"github.com/relicwavetechnologies/hrm8-candidate-messaging/internal/rabbitmq"
	"github.com/relicwavetechnologies/hrm8-candidate-messaging/internal/server/auth"
	"github.com/relicwavetechnologies/hrm8-candidate-messaging/internal/server/handlers"
	"github.com/relicwavetechnologies/hrm8-candidate-messaging/internal/server/middleware"
	"github.com/relicwavetechnologies/hrm8-candidate-messaging/internal/server/repositories"
	"github.com/relicwavetechnologies/hrm8-candidate-messaging/internal/server/ws"
	"github.com/relicwavetechnologies/hrm8-candidate-messaging/internal/telemetry"
)

const serviceName = "candidate-messaging"

func main() {
	cfg := config.Load()

	log := zerolog.New(os.Stdout).Level(cfg.LogLevel).With().
		Timestamp().
		Str("service", serviceName).
		Logger()

	if cfg.OTLPEndpoint != "" {
		shutdown, err := telemetry.InitTracing(context.Background(), cfg.OTLPEndpoint, serviceName, cfg.Environment)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to init tracing")
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(ctx); err != nil {
				log.Warn().Err(err).Msg("tracer shutdown failed")
			}
		}()
	}

	database, err := db.Connect(cfg.DBDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to db")
	}
	defer database.Close()

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, log)
	defer publisher.Close()
	emitter := telemetry.NewAuditEmitter(publisher, "messaging.ws", serviceName, cfg.Environment, log)

	conversationRepo := repositories.NewConversationRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	verifier := auth.NewStaticVerifier(cfg.AuthTokens)

	hub := ws.NewHub(log)
	sessionHandler := ws.NewSessionHandler(hub, conversationRepo, messageRepo, verifier, emitter, log)
	conversationHandler := handlers.NewConversationHandler(conversationRepo, messageRepo, log)
	uploadHandler := handlers.NewUploadHandler(cfg.UploadDir, cfg.UploadBaseURL, log)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(observability.HTTPMetricsMiddleware())
	router.Use(observability.RequestLogger(log))

	authMiddleware := middleware.AuthMiddleware(verifier)

	router.GET("/conversations", authMiddleware, conversationHandler.ListConversations)
	router.GET("/conversations/:id", authMiddleware, conversationHandler.GetConversation)
	router.PUT("/conversations/:id/read", authMiddleware, conversationHandler.MarkRead)
	router.POST("/upload", authMiddleware, uploadHandler.Upload)

	router.GET("/ws", sessionHandler.Handle)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.Static("/uploads", cfg.UploadDir)

	log.Info().Str("port", cfg.Port).Str("environment", cfg.Environment).Msg("starting server")
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}
