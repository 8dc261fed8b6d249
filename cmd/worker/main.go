// Package main runs the background worker that generates queued certificate batches.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/certforge/backend/config"
	"github.com/certforge/backend/internal/certificates"
	"github.com/certforge/backend/internal/events"
	"github.com/certforge/backend/internal/jobs"
	"github.com/certforge/backend/internal/realtime"
	"github.com/certforge/backend/internal/render"
	"github.com/certforge/backend/internal/worker"
	"github.com/certforge/backend/pkg/database"
	"github.com/certforge/backend/pkg/queue"
	"github.com/certforge/backend/pkg/redis"
	"github.com/certforge/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	if cfg.Redis.Addr == "" {
		logger.Fatal("REDIS_ADDR is required for the worker")
	}

	ctx := context.Background()
	db := database.NewHandle(logger)
	if err := db.Connect(ctx, cfg.Database.DSN(), cfg.Database.ConnectAttempts); err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer db.Close()

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var blobs storage.Store
	if cfg.Storage.Driver == "s3" {
		blobs, err = storage.NewS3(ctx, storage.S3Config{
			Region:          cfg.AWS.Region,
			AccessKeyID:     cfg.AWS.AccessKeyID,
			SecretAccessKey: cfg.AWS.SecretAccessKey,
			Bucket:          cfg.AWS.Bucket,
		}, logger)
	} else {
		blobs, err = storage.NewLocal(cfg.Storage.StaticDir, cfg.Storage.StaticBasePath, logger)
	}
	if err != nil {
		logger.Fatal("storage", zap.Error(err))
	}

	eventSvc := events.NewService(events.NewRepository(db), blobs, logger)
	locker := certificates.NewRedisLocker(rdb, time.Duration(cfg.Generation.LockTTLSeconds)*time.Second, logger)
	generator := certificates.NewGenerator(eventSvc, certificates.NewRepository(db),
		render.NewRenderer(cfg.Render.FontDir, logger), blobs, locker, logger)

	tracker := jobs.NewTracker(rdb.Client, time.Duration(cfg.Generation.JobResultTTLHours)*time.Hour)
	tracker.SetPublisher(realtime.NewRedisPubSub(rdb.Client, logger))
	jobQueue := queue.NewQueue(rdb.Client, logger)
	processor := worker.NewBatchProcessor(jobQueue, tracker, generator, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		processor.Run(workerCtx)
	}()
	logger.Info("worker started", zap.String("queue", queue.QueueCertificates))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		logger.Warn("worker did not stop in time")
	}
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
