package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/nexus/backend/internal/application/reconcile"
	appsync "github.com/nexus/backend/internal/application/sync"
	"github.com/nexus/backend/internal/infrastructure/auth"
	"github.com/nexus/backend/internal/infrastructure/config"
	"github.com/nexus/backend/internal/infrastructure/logger"
	"github.com/nexus/backend/internal/infrastructure/meli"
	"github.com/nexus/backend/internal/infrastructure/persistence"
	"github.com/nexus/backend/internal/infrastructure/scheduler"
	"github.com/nexus/backend/internal/interfaces/http/handler"
	"github.com/nexus/backend/internal/interfaces/http/middleware"
	"github.com/nexus/backend/internal/interfaces/http/router"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting Nexus sales sync backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Database connection with zap-backed gorm logging
	gormLogLevel := logger.MapGormLogLevel(cfg.Log.Level)
	gormLog := logger.NewGormLogger(log, gormLogLevel)
	db, err := persistence.NewDatabaseWithCustomLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	// Repositories
	saleRepo := persistence.NewGormSaleRepository(db.DB)
	skuResolver := persistence.NewGormSKUResolver(db.DB)
	tokenRepo := persistence.NewGormTokenRepository(db.DB)

	// Platform client and credential plumbing
	meliConfig := &meli.Config{
		BaseURL:      cfg.Meli.BaseURL,
		Timeout:      cfg.Meli.Timeout,
		MaxRetries:   cfg.Meli.MaxRetries,
		BackoffBase:  cfg.Meli.BackoffBase,
		PoolMaxConns: cfg.Meli.PoolMaxConns,
	}
	refresher, err := meli.NewOAuthRefresher(meliConfig, cfg.Meli.ClientID, cfg.Meli.ClientSecret, log)
	if err != nil {
		log.Fatal("Failed to build token refresher", zap.Error(err))
	}
	tokens := auth.NewStoreTokenProvider(tokenRepo, refresher, log)
	platform, err := meli.NewClient(meliConfig, tokens, log)
	if err != nil {
		log.Fatal("Failed to build platform client", zap.Error(err))
	}

	// Application services
	syncService := appsync.NewService(platform, saleRepo, skuResolver.Lookup(), tokenRepo, appsync.Config{
		PageSize:       cfg.Sync.PageSize,
		LookbackMonths: cfg.Sync.LookbackMonths,
	}, log)
	reconcileService := reconcile.NewService(platform, tokens, saleRepo, skuResolver.Lookup(), reconcile.Config{
		ChunkSize:    cfg.Reconcile.ChunkSize,
		MaxWorkers:   cfg.Reconcile.MaxWorkers,
		Tolerance:    decimal.NewFromFloat(cfg.Reconcile.Tolerance),
		WindowMonths: cfg.Reconcile.WindowMonths,
	}, log)

	// Background scheduler
	var jobScheduler *scheduler.Scheduler
	var trigger *scheduler.Trigger
	if cfg.Scheduler.Enabled {
		executor := scheduler.NewSyncExecutor(syncService, reconcileService, log)
		jobScheduler = scheduler.NewScheduler(scheduler.Config{
			Enabled:           true,
			MaxConcurrentJobs: scheduler.DefaultConfig().MaxConcurrentJobs,
			JobTimeout:        cfg.Scheduler.JobTimeout,
			RetryAttempts:     cfg.Scheduler.RetryAttempts,
			RetryDelay:        cfg.Scheduler.RetryDelay,
		}, executor, log)
		if err := jobScheduler.Start(context.Background()); err != nil {
			log.Fatal("Failed to start job scheduler", zap.Error(err))
		}

		trigger, err = scheduler.NewTrigger(scheduler.TriggerConfig{
			SyncInterval:    cfg.Scheduler.SyncInterval,
			DailySchedule:   cfg.Scheduler.DailyCronSchedule,
			DailyWindowDays: cfg.Scheduler.DailyWindowDays,
			DailyMaxWorkers: cfg.Scheduler.DailyMaxWorkers,
			CheckInterval:   time.Minute,
		}, jobScheduler, tokenRepo, log)
		if err != nil {
			log.Fatal("Failed to build sync trigger", zap.Error(err))
		}
		if err := trigger.Start(context.Background()); err != nil {
			log.Fatal("Failed to start sync trigger", zap.Error(err))
		}
	}

	// HTTP engine
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Fatal("Failed to set trusted proxies", zap.Error(err))
		}
	}

	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.Secure())

	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	engine.Use(middleware.CORSWithConfig(corsConfig))

	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))

	if cfg.HTTP.RateLimitEnabled {
		rateLimiter := middleware.NewRateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)
		engine.Use(middleware.RateLimit(rateLimiter))
		log.Info("Rate limiting enabled",
			zap.Int("requests", cfg.HTTP.RateLimitRequests),
			zap.Duration("window", cfg.HTTP.RateLimitWindow),
		)
	}

	// Handlers and routes
	systemHandler := handler.NewSystemHandler(db)
	syncHandler := handler.NewSyncHandler(syncService, reconcileService, tokenRepo, log)

	engine.GET("/health", systemHandler.Health)

	r := router.NewRouter(engine, router.WithAPIVersion("v1"))
	r.Register(syncHandler)

	systemRoutes := router.NewDomainGroup("system", "/system")
	systemRoutes.GET("/info", systemHandler.GetSystemInfo)
	systemRoutes.GET("/ping", systemHandler.Ping)
	r.Register(systemRoutes)

	r.Setup()

	// HTTP server
	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if trigger != nil {
		if err := trigger.Stop(ctx); err != nil {
			log.Error("Error stopping sync trigger", zap.Error(err))
		}
	}
	if jobScheduler != nil {
		if err := jobScheduler.Stop(ctx); err != nil {
			log.Error("Error stopping job scheduler", zap.Error(err))
		}
	}

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}
