package bootstrap

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"docchat/internal/app"
	"docchat/internal/backend"
	"docchat/internal/cache"
	"docchat/internal/config"
	"docchat/internal/logging"
	"docchat/internal/metrics"
	"docchat/internal/model"
	mysqlClient "docchat/internal/platform/mysql"
	rabbitmqClient "docchat/internal/platform/rabbitmq"
	redisClient "docchat/internal/platform/redis"
	"docchat/internal/repository"
	"docchat/internal/session"
	"docchat/internal/worker"
)

// App holds the relay server's long-lived dependencies.
type App struct {
	Config  *config.Config
	Logger  *logrus.Logger
	Metrics *metrics.Collector
	Backend *backend.Client
	Tokens  *session.JWTSource

	MySQL            *gorm.DB
	Redis            *redis.Client
	MQConn           *amqp.Connection
	Transcripts      *app.TranscriptService
	TranscriptWorker *worker.TranscriptPersistWorker

	StartedAt time.Time
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}

	log := logging.New(cfg.Log.Level, cfg.Log.Format)
	a := &App{
		Config:    cfg,
		Logger:    log,
		Metrics:   metrics.NewCollector(cfg.App.Name),
		Backend:   NewBackendClient(cfg),
		Tokens:    session.NewJWTSource(nil, cfg.Auth.JWTSecret),
		StartedAt: time.Now(),
	}

	a.MySQL, err = mysqlClient.New(ctx, cfg.MySQLDSN())
	if err != nil {
		return nil, err
	}
	if err := a.MySQL.AutoMigrate(&model.TranscriptMessage{}); err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("auto migrate tables failed: %w", err)
	}

	a.Redis, err = redisClient.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	a.MQConn, err = rabbitmqClient.New(ctx, cfg.RabbitMQ.URL)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	transcriptRepo := repository.NewTranscriptRepository(a.MySQL)
	historyCache := cache.NewHistoryCache(
		a.Redis,
		time.Duration(cfg.Redis.HistoryTTLSeconds)*time.Second,
		time.Duration(cfg.Redis.HistoryDirtyTTLSeconds)*time.Second,
	)
	publisher := rabbitmqClient.NewTranscriptPublisher(a.MQConn, cfg.RabbitMQ.TranscriptPersistQueue)
	a.Transcripts = app.NewTranscriptService(publisher, transcriptRepo, historyCache, log)

	a.TranscriptWorker = worker.NewTranscriptPersistWorker(a.MQConn, transcriptRepo, cfg.RabbitMQ.TranscriptPersistQueue, log)
	if err := a.TranscriptWorker.Start(ctx); err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("start transcript worker failed: %w", err)
	}

	log.WithFields(logrus.Fields{
		"backend": cfg.Backend.BaseURL,
		"queue":   cfg.RabbitMQ.TranscriptPersistQueue,
	}).Info("dependencies ready")
	return a, nil
}

// NewBackendClient builds the backend client from the backend config section.
func NewBackendClient(cfg *config.Config) *backend.Client {
	return backend.NewClient(
		cfg.Backend.BaseURL,
		backend.WithQueryPath(cfg.Backend.QueryPath),
		backend.WithRequestTimeout(cfg.RequestTimeout()),
	)
}

func (a *App) Close() error {
	var closeErr error
	if a.TranscriptWorker != nil {
		a.TranscriptWorker.Close()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MQConn != nil && !a.MQConn.IsClosed() {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MySQL != nil {
		sqlDB, err := a.MySQL.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	return closeErr
}
