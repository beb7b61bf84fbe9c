package http

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"

	"docchat/internal/bootstrap"
	"docchat/internal/transport/http/handler"
	"docchat/internal/transport/http/middleware"
)

func NewRouter(a *bootstrap.App) *gin.Engine {
	gin.SetMode(a.Config.App.GinMode)
	router := gin.New()
	router.Use(
		middleware.RequestID(),
		middleware.Logger(a.Logger),
		gin.Recovery(),
		a.Metrics.Middleware(),
	)

	healthHandler := handler.NewHealthHandler(a.Config.App.Name, a.Config.App.Env, a.StartedAt, healthChecks(a))
	router.GET("/healthz", healthHandler.Check)
	router.GET("/metrics", gin.WrapH(a.Metrics.Handler()))

	// a nil *TranscriptService must not end up inside a non-nil interface
	var (
		recorders handler.RecorderFactory
		history   handler.HistoryReader
	)
	if a.Transcripts != nil {
		recorders = a.Transcripts
		history = a.Transcripts
	}
	chatHandler := handler.NewChatHandler(a.Backend, recorders, history, a.Metrics, a.Logger)
	documentHandler := handler.NewDocumentHandler(a.Backend, a.Logger,
		handler.WithPollInterval(a.Config.PollInterval()),
		handler.WithPollMetrics(a.Metrics),
	)

	v1 := router.Group("/api/v1")
	v1.Use(middleware.Bearer(a.Tokens))

	v1.POST("/chat/query", chatHandler.Query)
	v1.GET("/chat/history", chatHandler.History)
	v1.POST("/generate", chatHandler.Generate)

	docs := v1.Group("/documents")
	docs.GET("/:id", documentHandler.Get)
	docs.POST("/:id/process", documentHandler.Process)
	docs.GET("/:id/watch", documentHandler.Watch)

	return router
}

func healthChecks(a *bootstrap.App) map[string]handler.HealthCheck {
	checks := map[string]handler.HealthCheck{}
	if a.MySQL != nil {
		checks["mysql"] = func(ctx context.Context) error {
			sqlDB, err := a.MySQL.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}
	}
	if a.Redis != nil {
		checks["redis"] = func(ctx context.Context) error {
			return a.Redis.Ping(ctx).Err()
		}
	}
	if a.MQConn != nil {
		checks["rabbitmq"] = func(context.Context) error {
			if a.MQConn.IsClosed() {
				return errors.New("connection closed")
			}
			return nil
		}
	}
	return checks
}
