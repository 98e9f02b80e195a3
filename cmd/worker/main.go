package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/presenza-app/backend/config"
	"github.com/presenza-app/backend/internal/tokens"
	"github.com/presenza-app/backend/internal/worker"
	"github.com/presenza-app/backend/pkg/database"
	"github.com/presenza-app/backend/pkg/queue"
	"github.com/presenza-app/backend/pkg/redis"
)

// Standalone consumer-set reconcile worker. The server runs the same loop
// in-process; this binary exists for deployments that scale repairs
// independently.
func main() {
	zapCfg := zap.NewProductionConfig()
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, err := zapCfg.Build()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	sessionRepo := tokens.NewRepository(pool)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	reconciler := worker.NewReconciler(sessionRepo, jobQueue, logger)

	logger.Info("reconcile worker started")
	reconciler.Run(ctx)
}
