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

	"github.com/presenza-app/backend/config"
	"github.com/presenza-app/backend/internal/attendance"
	"github.com/presenza-app/backend/internal/auth"
	"github.com/presenza-app/backend/internal/display"
	"github.com/presenza-app/backend/internal/export"
	"github.com/presenza-app/backend/internal/middleware"
	"github.com/presenza-app/backend/internal/roster"
	"github.com/presenza-app/backend/internal/stats"
	"github.com/presenza-app/backend/internal/sweeper"
	"github.com/presenza-app/backend/internal/tokens"
	"github.com/presenza-app/backend/internal/worker"
	"github.com/presenza-app/backend/pkg/database"
	"github.com/presenza-app/backend/pkg/qrimage"
	"github.com/presenza-app/backend/pkg/queue"
	"github.com/presenza-app/backend/pkg/redis"
	"github.com/presenza-app/backend/pkg/response"
)

func main() {
	logger := newLogger()
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

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}

	// Redis is optional: without it the token cache, cross-instance fanout and
	// the repair queue are disabled, everything else keeps working.
	var (
		tokenCache *tokens.Cache
		pubsub     *display.RedisPubSub
		jobQueue   *queue.Queue
	)
	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Warn("redis unavailable, running without cache and queue", zap.Error(err))
	} else {
		defer rdb.Close()
		tokenCache = tokens.NewCache(rdb.Client, logger)
		pubsub = display.NewRedisPubSub(rdb.Client, logger)
		jobQueue = queue.NewQueue(rdb.Client, logger)
	}

	sessionRepo := tokens.NewRepository(pool)
	recordRepo := attendance.NewRepository(pool)
	rosterRepo := roster.NewRepository(pool)
	staffRepo := auth.NewRepository(pool)

	if _, err := rosterRepo.SeedDefault(ctx, logger); err != nil {
		logger.Warn("roster seed failed", zap.Error(err))
	}

	renderer := qrimage.NewPNGRenderer()
	retention := sweeper.New(sessionRepo, recordRepo, cfg.Retention, cfg.Rotation.StoreTimeout, logger)

	var hub *display.Hub
	if pubsub != nil {
		hub = display.NewHub(logger, pubsub, pubsub)
	} else {
		hub = display.NewHub(logger, nil, nil)
	}
	defer hub.Close()

	var hubCache tokens.TokenCache
	if tokenCache != nil {
		hubCache = tokenCache
	}
	rotator := tokens.NewRotator(sessionRepo, retention, renderer, hubCache, hub, cfg.Rotation, logger)
	if cfg.Rotation.Enabled {
		rotator.Start(ctx)
		defer rotator.Stop()
	} else {
		logger.Info("rotation scheduler disabled, minting on demand")
	}

	// Failed consumer-set writes are repaired in-process; cmd/worker runs the
	// same loop standalone for deployments that prefer a separate process.
	if jobQueue != nil {
		reconciler := worker.NewReconciler(sessionRepo, jobQueue, logger)
		go reconciler.Run(ctx)
	}

	var repairs attendance.RepairEnqueuer
	if jobQueue != nil {
		repairs = jobQueue
	}
	validator := attendance.NewValidator(rosterRepo, sessionRepo, recordRepo, repairs, cfg.Rotation.AcceptRotated, logger)

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)

	tokenHandler := tokens.NewHandler(sessionRepo, recordRepo, renderer, tokenCache, retention, cfg.Rotation, logger)
	attendanceHandler := attendance.NewHandler(validator, logger)
	statsHandler := stats.NewHandler(sessionRepo, recordRepo, rosterRepo, logger)
	exportHandler := export.NewHandler(rosterRepo, recordRepo, sessionRepo, retention, logger)
	rosterHandler := roster.NewHandler(rosterRepo, logger)
	authHandler := auth.NewHandler(staffRepo, jwtService, logger)

	router := setupRouter(cfg, logger, hub,
		tokenHandler, attendanceHandler, statsHandler, exportHandler, rosterHandler, authHandler, jwtService)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
}

func setupRouter(
	cfg *config.Config,
	logger *zap.Logger,
	hub *display.Hub,
	tokenHandler *tokens.Handler,
	attendanceHandler *attendance.Handler,
	statsHandler *stats.Handler,
	exportHandler *export.Handler,
	rosterHandler *roster.Handler,
	authHandler *auth.Handler,
	jwtService *auth.JWTService,
) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))

	router.GET("/health", func(c *gin.Context) {
		response.OK(c, gin.H{
			"status":   "healthy",
			"displays": hub.DisplayCount(),
			"time":     time.Now(),
		})
	})

	router.GET("/qr", tokenHandler.Current)
	router.POST("/validate", attendanceHandler.Submit)
	router.GET("/sessions/active", tokenHandler.ActiveSessions)
	router.GET("/sessions/by-date/:date", tokenHandler.SessionsByDate)
	router.GET("/stats", statsHandler.Get)
	router.GET("/ws/display", display.ServeWs(hub, logger))

	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
	}

	staff := router.Group("/")
	staff.Use(middleware.JWT(jwtService))
	{
		staff.GET("/export/day", exportHandler.Day)
		staff.GET("/export/session/:id", exportHandler.Session)
		staff.GET("/export/latest-session", exportHandler.LatestSession)
		staff.GET("/roster", rosterHandler.List)
		staff.POST("/roster/seed", middleware.RequireRole("admin"), rosterHandler.Seed)
	}

	return router
}

func newLogger() *zap.Logger {
	zapCfg := zap.NewProductionConfig()
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, err := zapCfg.Build()
	if err != nil {
		panic(err)
	}
	return logger
}
