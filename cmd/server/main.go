// Package main runs the certificate HTTP server with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/certforge/backend/config"
	"github.com/certforge/backend/internal/auth"
	"github.com/certforge/backend/internal/certificates"
	"github.com/certforge/backend/internal/dashboard"
	"github.com/certforge/backend/internal/events"
	"github.com/certforge/backend/internal/health"
	"github.com/certforge/backend/internal/jobs"
	"github.com/certforge/backend/internal/middleware"
	"github.com/certforge/backend/internal/realtime"
	"github.com/certforge/backend/internal/render"
	"github.com/certforge/backend/pkg/database"
	"github.com/certforge/backend/pkg/queue"
	"github.com/certforge/backend/pkg/redis"
	"github.com/certforge/backend/pkg/storage"
)

const dbReconnectInterval = 30 * time.Second

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// The server starts before the database is reachable; repositories answer 503 until then.
	db := database.NewHandle(logger)
	defer db.Close()
	go func() {
		err := db.KeepConnecting(ctx, cfg.Database.DSN(), cfg.Database.ConnectAttempts, dbReconnectInterval)
		if err != nil && ctx.Err() == nil {
			logger.Fatal("database", zap.Error(err))
		}
	}()

	blobs, local, err := newStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("storage", zap.Error(err))
	}

	var (
		rdb    *redis.Client
		locker certificates.Locker = certificates.NoopLocker{}
		async  certificates.BatchSubmitter
		jobSvc *jobs.Service
		hub    *realtime.Hub
		redisH health.RedisChecker
	)
	if cfg.Redis.Addr != "" {
		rdb, err = redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
		if err != nil {
			logger.Warn("redis disabled", zap.Error(err))
		}
	}
	if rdb != nil {
		defer rdb.Close()
		locker = certificates.NewRedisLocker(rdb, time.Duration(cfg.Generation.LockTTLSeconds)*time.Second, logger)
		pubsub := realtime.NewRedisPubSub(rdb.Client, logger)
		tracker := jobs.NewTracker(rdb.Client, time.Duration(cfg.Generation.JobResultTTLHours)*time.Hour)
		tracker.SetPublisher(pubsub)
		jobSvc = jobs.NewService(tracker, queue.NewQueue(rdb.Client, logger), logger)
		hub = realtime.NewHub(pubsub, logger)
		async = jobSvc
		redisH = rdb
	}

	renderer := render.NewRenderer(cfg.Render.FontDir, logger)
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)

	// Events
	eventRepo := events.NewRepository(db)
	eventSvc := events.NewService(eventRepo, blobs, logger)
	eventHandler := events.NewHandler(eventSvc, logger)

	// Certificates
	certRepo := certificates.NewRepository(db)
	generator := certificates.NewGenerator(eventSvc, certRepo, renderer, blobs, locker, logger)
	lookup := certificates.NewLookup(certRepo, eventSvc, blobs, logger)
	certHandler := certificates.NewHandler(generator, async, eventSvc, lookup, logger)

	dashboardHandler := dashboard.NewHandler(dashboard.NewService(eventRepo, certRepo, blobs), logger)
	authHandler := auth.NewHandler(cfg.Admin.Email, cfg.Admin.PasswordHash, jwtService, logger)
	healthHandler := health.NewHandler(db, redisH, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/health", healthHandler.Check)
	if local != nil {
		router.Static(cfg.Storage.StaticBasePath, local.Root())
	}

	// Public: recipients look up and verify their own certificates
	router.GET("/events/:id", eventHandler.GetByID)
	router.GET("/events/slug/:slug", eventHandler.GetBySlug)
	router.POST("/certificates/download", certHandler.Download)
	router.GET("/certificates/verify/:id", certHandler.Verify)
	router.POST("/auth/login", authHandler.Login)

	// Organizer (JWT + admin role when ADMIN_PASSWORD_HASH is set)
	org := router.Group("")
	org.Use(middleware.Organizer(jwtService, cfg.Admin.Enabled())...)
	{
		org.GET("/events", eventHandler.List)
		org.POST("/events", eventHandler.Create)
		org.DELETE("/events/:id", eventHandler.Delete)
		org.POST("/events/:id/generate", certHandler.Generate)
		org.GET("/events/:id/certificates", certHandler.List)
		org.GET("/events/:id/certificates/export", certHandler.Export)
		org.GET("/dashboard/stats", dashboardHandler.Stats)
		if jobSvc != nil {
			org.GET("/jobs/:id", jobs.NewHandler(jobSvc, logger).Get)
			org.GET("/jobs/:id/ws", realtime.ServeJob(hub, jobSvc, realtime.NewUpgrader(cfg.Server.CORSAllowedOrigins), logger))
		}
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port),
			zap.String("storage", cfg.Storage.Driver), zap.Bool("async", async != nil), zap.Bool("auth", cfg.Admin.Enabled()))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

// newStore opens the configured artifact store. local is non-nil for the local driver so the
// caller can serve it under the static path.
func newStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (storage.Store, *storage.Local, error) {
	if cfg.Storage.Driver == "s3" {
		s3Client, err := storage.NewS3(ctx, storage.S3Config{
			Region:          cfg.AWS.Region,
			AccessKeyID:     cfg.AWS.AccessKeyID,
			SecretAccessKey: cfg.AWS.SecretAccessKey,
			Bucket:          cfg.AWS.Bucket,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return s3Client, nil, nil
	}
	local, err := storage.NewLocal(cfg.Storage.StaticDir, cfg.Storage.StaticBasePath, logger)
	if err != nil {
		return nil, nil, err
	}
	return local, local, nil
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
