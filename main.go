// Package main provides the main entry point for the SunOps pricing engine
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/redis/go-redis/v9"
	"github.com/sunops/sunops-backend/app/handlers"
	"github.com/sunops/sunops-backend/app/middleware"
	"github.com/sunops/sunops-backend/app/router"
	"github.com/sunops/sunops-backend/app/services"
	businessflow "github.com/sunops/sunops-backend/business_flow"
	"github.com/sunops/sunops-backend/config"
	"github.com/sunops/sunops-backend/repository"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Application represents the main application structure
type Application struct {
	router    router.Router
	config    *config.ProductionConfig
	server    *fiber.App
	stopFuncs []func()
}

func main() {
	log.Println("Starting SunOps pricing engine...")

	// Load production configuration
	cfg, err := config.LoadProductionConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	closeLogs := initializeLogging(cfg.Logging)
	defer closeLogs()

	// Initialize application
	app, err := initializeApplication(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	// Setup routes
	app.router.SetupRoutes()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start server in goroutine
	go func() {
		address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		if err := app.router.Start(address); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for shutdown signal
	<-sigChan
	log.Println("Shutting down gracefully...")

	// Stop background workers
	for _, fn := range app.stopFuncs {
		fn()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := app.server.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}

	log.Println("Server stopped")
}

// initializeLogging routes the standard logger to stdout, a rotating file, or both.
// The returned function closes the file writer.
func initializeLogging(cfg config.LoggingConfig) func() {
	log.SetFlags(log.LstdFlags | log.LUTC)

	if cfg.Output == "stdout" {
		log.SetOutput(os.Stdout)
		return func() {}
	}

	rotating := &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}

	var out io.Writer = rotating
	if cfg.Output == "both" {
		out = io.MultiWriter(os.Stdout, rotating)
	}
	log.SetOutput(out)
	log.Printf("Logging to %s (output=%s)", cfg.FilePath, cfg.Output)

	return func() {
		if err := rotating.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to close log file: %v\n", err)
		}
	}
}

// initializeDatabase initializes the database connection with connection pooling
func initializeDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)

	gormLogger := logger.Default.LogMode(logger.Silent)
	if cfg.SlowQueryLog {
		gormLogger = logger.New(log.Default(), logger.Config{
			SlowThreshold:             cfg.SlowQueryTime,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		})
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Get underlying sql.DB for connection pooling configuration
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	// Configure connection pooling
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// Test the connection
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Printf("Database connection established with %d max open connections, %d max idle connections",
		cfg.MaxOpenConns, cfg.MaxIdleConns)

	return db, nil
}

// initializeCache initializes the Cache client and verifies connectivity
func initializeCache(cfg config.CacheConfig) (*redis.Client, error) {
	if !cfg.Enabled || cfg.Provider != "redis" {
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	// Override DB if provided in config
	opt.DB = cfg.RedisDB

	rc := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Printf("Redis connection established (db=%d)", cfg.RedisDB)
	return rc, nil
}

// startCacheHealthMonitor starts a background goroutine that periodically pings Redis
// to detect connectivity issues. The returned cancel function stops the monitor.
func startCacheHealthMonitor(parent context.Context, client *redis.Client, interval time.Duration) func() {
	monitorCtx, cancel := context.WithCancel(parent)
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-monitorCtx.Done():
				return
			case <-ticker.C:
				ctx, c := context.WithTimeout(context.Background(), 3*time.Second)
				if err := client.Ping(ctx).Err(); err != nil {
					log.Printf("Redis healthcheck failed: %v", err)
				}
				c()
			}
		}
	}()
	return cancel
}

func routerConfig(cfg *config.ProductionConfig) router.Config {
	return router.Config{
		Version:           cfg.Deployment.Version,
		AllowedOrigins:    cfg.Security.AllowedOrigins,
		AllowedMethods:    cfg.Security.AllowedMethods,
		AllowedHeaders:    cfg.Security.AllowedHeaders,
		AllowCredentials:  cfg.Security.AllowCredentials,
		CORSMaxAge:        cfg.Security.CORSMaxAge,
		CSPPolicy:         cfg.Security.CSPPolicy,
		HSTSMaxAge:        cfg.Security.HSTSMaxAge,
		ReferrerPolicy:    cfg.Security.ReferrerPolicy,
		BodyLimit:         cfg.Server.BodyLimit,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		GlobalRateLimit:   cfg.Security.GlobalRateLimit,
		AuthRateLimit:     cfg.Security.AuthRateLimit,
		RateLimitWindow:   cfg.Security.RateLimitWindow,
		EnableCompression: cfg.Server.EnableCompression,
		EnableAccessLog:   cfg.Logging.EnableAccessLog,
		MetricsEnabled:    cfg.Metrics.Enabled,
		MetricsPath:       cfg.Metrics.Path,
	}
}

// initializeApplication initializes the main application components
func initializeApplication(cfg *config.ProductionConfig) (*Application, error) {
	var stopFuncs []func()

	// Initialize database
	db, err := initializeDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}

	// Initialize cache; the rate table cache degrades to a no-op without a client
	redisClient, err := initializeCache(cfg.Cache)
	if err != nil {
		log.Printf("Cache disabled: %v", err)
		redisClient = nil
	}
	if redisClient != nil {
		stopFuncs = append(stopFuncs,
			startCacheHealthMonitor(context.Background(), redisClient, cfg.Cache.HealthCheckInterval),
			func() { _ = redisClient.Close() },
		)
	}

	// Initialize repositories
	userRepo := repository.NewUserRepository(db)
	auditRepo := repository.NewAuditLogRepository(db)
	rateTableRepo := repository.NewRateTableRepository(db)
	bandRepo := repository.NewPowerBandRepository(db)
	regionRepo := repository.NewRegionTaxRepository(db)
	defaultsRepo := repository.NewPricingDefaultsRepository(db)

	// Initialize services
	tokenService, err := services.NewTokenService(
		cfg.JWT.AccessTokenTTL,
		cfg.JWT.RefreshTokenTTL,
		cfg.JWT.Issuer,
		cfg.JWT.Audience,
		cfg.JWT.UseRSAKeys,
		cfg.JWT.PrivateKey,
		cfg.JWT.PublicKey,
		cfg.JWT.SecretKey,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token service: %w", err)
	}
	rateTableCache := services.NewRateTableCache(redisClient, cfg.Cache.RedisPrefix, cfg.Cache.DefaultTTL)
	exporter := services.NewRateTableExporter()

	// Initialize business flows
	selector := businessflow.NewRateTableSelector(rateTableRepo, bandRepo, regionRepo)
	loginFlow := businessflow.NewLoginFlow(userRepo, auditRepo, tokenService)
	rateTableFlow := businessflow.NewRateTableFlow(rateTableRepo, bandRepo, regionRepo, auditRepo, rateTableCache, exporter, db)
	pricingFlow := businessflow.NewPricingFlow(selector, defaultsRepo, auditRepo, businessflow.PricingFallback{
		MarginRate:     cfg.Pricing.DefaultMarginRate,
		CommissionRate: cfg.Pricing.DefaultCommissionRate,
	}, db)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(loginFlow)
	rateTableHandler := handlers.NewRateTableHandler(rateTableFlow)
	pricingHandler := handlers.NewPricingHandler(pricingFlow)

	// Initialize auth middleware
	authMiddleware := middleware.NewAuthMiddleware(tokenService)

	// Initialize router
	appRouter := router.NewFiberRouter(
		routerConfig(cfg),
		authHandler,
		rateTableHandler,
		pricingHandler,
		authMiddleware,
	)

	application := &Application{
		router:    appRouter,
		config:    cfg,
		server:    appRouter.GetApp(),
		stopFuncs: stopFuncs,
	}

	return application, nil
}
