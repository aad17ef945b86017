// Package router provides HTTP routing, middleware configuration, and server setup for the web application
package router

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/compress"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/helmet"
	"github.com/gofiber/fiber/v3/middleware/limiter"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sunops/sunops-backend/app/dto"
	"github.com/sunops/sunops-backend/app/handlers"
	"github.com/sunops/sunops-backend/app/middleware"
	"github.com/sunops/sunops-backend/models"
	"github.com/sunops/sunops-backend/utils"
)

const healthPath = "/api/v1/health"

// Router interface for HTTP routing
type Router interface {
	SetupRoutes()
	Start(address string) error
	GetApp() *fiber.App
}

// Config carries the server and middleware settings the router needs
type Config struct {
	Version           string
	AllowedOrigins    []string
	AllowedMethods    []string
	AllowedHeaders    []string
	AllowCredentials  bool
	CORSMaxAge        int
	CSPPolicy         string
	HSTSMaxAge        int
	ReferrerPolicy    string
	BodyLimit         int
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	GlobalRateLimit   int
	AuthRateLimit     int
	RateLimitWindow   time.Duration
	EnableCompression bool
	EnableAccessLog   bool
	MetricsEnabled    bool
	MetricsPath       string
}

// DefaultConfig returns settings suitable for local runs and tests
func DefaultConfig() Config {
	return Config{
		Version:           "1.0.0",
		AllowedOrigins:    []string{"http://localhost:3000"},
		AllowedMethods:    []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:    []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With", "X-Request-ID"},
		AllowCredentials:  true,
		CORSMaxAge:        utils.CORSMaxAge,
		CSPPolicy:         "default-src 'self'; frame-ancestors 'none';",
		HSTSMaxAge:        31536000, // 1 year
		ReferrerPolicy:    "strict-origin-when-cross-origin",
		BodyLimit:         4 * 1024 * 1024, // 4MB
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
		GlobalRateLimit:   2000,
		AuthRateLimit:     20,
		RateLimitWindow:   1 * time.Minute,
		EnableCompression: true,
		EnableAccessLog:   true,
		MetricsEnabled:    true,
		MetricsPath:       "/metrics",
	}
}

// FiberRouter implements Router using Fiber v3
type FiberRouter struct {
	app              *fiber.App
	config           Config
	authHandler      handlers.AuthHandlerInterface
	rateTableHandler handlers.RateTableHandlerInterface
	pricingHandler   handlers.PricingHandlerInterface
	authMiddleware   *middleware.AuthMiddleware
}

// NewFiberRouter creates a new Fiber router
func NewFiberRouter(
	config Config,
	authHandler handlers.AuthHandlerInterface,
	rateTableHandler handlers.RateTableHandlerInterface,
	pricingHandler handlers.PricingHandlerInterface,
	authMiddleware *middleware.AuthMiddleware,
) Router {
	// Configure Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "SunOps API",
		ServerHeader: "SunOps",
		ErrorHandler: errorHandler,
		BodyLimit:    config.BodyLimit,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
	})

	return &FiberRouter{
		app:              app,
		config:           config,
		authHandler:      authHandler,
		rateTableHandler: rateTableHandler,
		pricingHandler:   pricingHandler,
		authMiddleware:   authMiddleware,
	}
}

// SetupRoutes configures all application routes
func (r *FiberRouter) SetupRoutes() {
	log.Println("Setting up routes...")

	// Global middleware
	r.setupMiddleware()

	if r.config.MetricsEnabled {
		r.app.Get(r.config.MetricsPath, adaptor.HTTPHandler(promhttp.Handler()))
	}

	// API routes
	api := r.app.Group("/api/v1")

	// Health check route (no rate limiting)
	api.Get("/health", r.healthCheck)

	// Apply general rate limiting to all API routes
	api.Use(newLimiter(r.config.GlobalRateLimit, r.config.RateLimitWindow, func(c fiber.Ctx) bool {
		return c.Path() == healthPath
	}))

	// Auth routes with stricter rate limiting
	auth := api.Group("/auth")
	auth.Use(newLimiter(r.config.AuthRateLimit, r.config.RateLimitWindow, nil))

	auth.Post("/login", r.authHandler.Login)
	auth.Post("/refresh", r.authHandler.Refresh)

	// Financial module: every route needs a tenant token
	fin := api.Group("/financeiro")
	fin.Use(r.authMiddleware.Authenticate())

	// Managers own rate tables and defaults; any role may quote and read tables
	manager := r.authMiddleware.RequireRole(models.UserRoleManager)

	fin.Get("/configuracoes", manager, r.pricingHandler.GetPricingDefaults)
	fin.Put("/configuracoes", manager, r.pricingHandler.UpdatePricingDefaults)
	fin.Post("/calcular-preco", r.pricingHandler.CalculatePrice)

	fin.Get("/premissas", r.rateTableHandler.ListRateTables)
	fin.Get("/premissas/export", manager, r.rateTableHandler.ExportRateTables)
	fin.Post("/premissas", manager, r.rateTableHandler.CreateRateTable)
	fin.Get("/premissas/:id", manager, r.rateTableHandler.GetRateTable)
	fin.Put("/premissas/:id", manager, r.rateTableHandler.UpdateRateTable)
	fin.Delete("/premissas/:id", manager, r.rateTableHandler.DeleteRateTable)

	fin.Post("/premissas/:id/faixas", manager, r.rateTableHandler.AddBand)
	fin.Put("/premissas/:id/faixas/:faixa_id", manager, r.rateTableHandler.UpdateBand)
	fin.Delete("/premissas/:id/faixas/:faixa_id", manager, r.rateTableHandler.DeleteBand)

	fin.Post("/premissas/:id/regioes", manager, r.rateTableHandler.AddRegion)
	fin.Put("/premissas/:id/regioes/:regiao_id", manager, r.rateTableHandler.UpdateRegion)
	fin.Delete("/premissas/:id/regioes/:regiao_id", manager, r.rateTableHandler.DeleteRegion)

	// Not found handler
	r.app.Use(r.notFoundHandler)

	log.Println("Routes configured successfully")
}

// SetupMiddleware configures global middleware
func (r *FiberRouter) setupMiddleware() {
	// Request ID middleware - must be first
	r.app.Use(requestid.New(requestid.Config{
		Header: "X-Request-ID",
		Generator: func() string {
			return generateRequestID()
		},
	}))

	if r.config.MetricsEnabled {
		r.app.Use(middleware.Metrics())
	}

	// Security headers middleware
	r.app.Use(helmet.New(helmet.Config{
		XSSProtection:             "1; mode=block",
		ContentTypeNosniff:        "nosniff",
		XFrameOptions:             "DENY",
		HSTSMaxAge:                r.config.HSTSMaxAge,
		HSTSExcludeSubdomains:     false,
		ContentSecurityPolicy:     r.config.CSPPolicy,
		ReferrerPolicy:            r.config.ReferrerPolicy,
		CrossOriginEmbedderPolicy: "require-corp",
		CrossOriginOpenerPolicy:   "same-origin",
		CrossOriginResourcePolicy: "cross-origin",
		OriginAgentCluster:        "?1",
		XDNSPrefetchControl:       "off",
		XDownloadOptions:          "noopen",
		XPermittedCrossDomain:     "none",
	}))

	// CORS middleware with production settings
	r.app.Use(cors.New(cors.Config{
		AllowOrigins:     r.config.AllowedOrigins,
		AllowMethods:     r.config.AllowedMethods,
		AllowHeaders:     r.config.AllowedHeaders,
		ExposeHeaders:    []string{"X-Request-ID", "Content-Disposition"},
		AllowCredentials: r.config.AllowCredentials,
		MaxAge:           r.config.CORSMaxAge,
	}))

	// Compression middleware for performance
	if r.config.EnableCompression {
		r.app.Use(compress.New(compress.Config{
			Level: compress.LevelBestSpeed,
		}))
	}

	// Access logging middleware
	if r.config.EnableAccessLog {
		r.app.Use(logger.New(logger.Config{
			Format:     `{"time":"${time}","pid":"${pid}","request_id":"${respHeader:X-Request-ID}","level":"info","method":"${method}","path":"${path}","protocol":"${protocol}","ip":"${ip}","user_agent":"${ua}","status":${status},"latency":"${latency}","bytes_in":${bytesReceived},"bytes_out":${bytesSent}}` + "\n",
			TimeFormat: time.RFC3339,
			TimeZone:   "UTC",
			Next: func(c fiber.Ctx) bool {
				return c.Path() == healthPath || c.Path() == r.config.MetricsPath
			},
		}))
	}

	// Recovery middleware with custom error handling
	r.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c fiber.Ctx, e any) {
			// Log panic with request context
			log.Printf(`{"time":"%s","level":"error","request_id":"%s","event":"panic","error":"%v","path":"%s","method":"%s","ip":"%s"}`,
				utils.UTCNow().Format(time.RFC3339),
				requestid.FromContext(c),
				e,
				c.Path(),
				c.Method(),
				c.IP(),
			)
		},
	}))
}

// newLimiter builds a per-IP limiter answering with the standard envelope
func newLimiter(max int, window time.Duration, next func(c fiber.Ctx) bool) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: window,
		KeyGenerator: func(c fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(dto.APIResponse{
				Success: false,
				Message: "Too many requests. Please try again later.",
				Error: dto.ErrorDetail{
					Code: "RATE_LIMIT_EXCEEDED",
				},
			})
		},
		Next: next,
	})
}

// Start starts the HTTP server
func (r *FiberRouter) Start(address string) error {
	log.Printf("Starting server on %s", address)
	return r.app.Listen(address)
}

// GetApp returns the Fiber app instance
func (r *FiberRouter) GetApp() *fiber.App {
	return r.app
}

// Health check endpoint
func (r *FiberRouter) healthCheck(c fiber.Ctx) error {
	return c.JSON(dto.APIResponse{
		Success: true,
		Message: "Service is healthy",
		Data: fiber.Map{
			"status":    "ok",
			"timestamp": utils.UTCNow().Unix(),
			"version":   r.config.Version,
			"service":   "sunops-api",
		},
	})
}

func (r *FiberRouter) notFoundHandler(c fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(dto.APIResponse{
		Success: false,
		Message: "The requested resource was not found",
		Error: dto.ErrorDetail{
			Code: "NOT_FOUND",
			Details: fiber.Map{
				"path":       c.Path(),
				"method":     c.Method(),
				"request_id": requestid.FromContext(c),
			},
		},
	})
}

// Global error handler
func errorHandler(c fiber.Ctx, err error) error {
	// Default error code
	code := fiber.StatusInternalServerError
	message := "An internal server error occurred"
	errorCode := "INTERNAL_ERROR"

	// Retrieve the custom status code if it's a fiber.*Error
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		if code < fiber.StatusInternalServerError {
			message = e.Message
			errorCode = strings.ToUpper(strings.ReplaceAll(http.StatusText(code), " ", "_"))
		}
	}

	// Log the error
	log.Printf("Error %d: %v", code, err)

	return c.Status(code).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code: errorCode,
			Details: fiber.Map{
				"timestamp":  utils.UTCNow().Unix(),
				"request_id": requestid.FromContext(c),
			},
		},
	})
}

// Helper functions

// generateRequestID creates a unique request ID
func generateRequestID() string {
	bytes := make([]byte, 8)
	_, _ = rand.Read(bytes)
	return hex.EncodeToString(bytes)
}
