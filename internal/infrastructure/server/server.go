package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	httpHandlers "github.com/libtrack/core/internal/adapters/http"
	"github.com/libtrack/core/internal/adapters/provider"
	"github.com/libtrack/core/internal/adapters/repository"
	"github.com/libtrack/core/internal/application/services"
	"github.com/libtrack/core/internal/infrastructure/config"
	"github.com/libtrack/core/internal/infrastructure/database"
	"github.com/libtrack/core/internal/infrastructure/logger"
	"github.com/libtrack/core/internal/ports"
)

// Server represents the HTTP server
type Server struct {
	echo        *echo.Echo
	config      *config.Config
	logger      *logger.Logger
	db          *database.DB
	chatService *services.ChatService
}

// CustomValidator wraps the validator
type CustomValidator struct {
	validator *validator.Validate
}

// Validate validates structs
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}

// New creates a new server instance. db is only used with the postgres
// storage driver and may be nil otherwise.
func New(cfg *config.Config, db *database.DB, appLogger *logger.Logger) (*Server, error) {
	e := echo.New()

	e.Validator = &CustomValidator{validator: validator.New()}

	e.HideBanner = true
	e.HidePort = true

	e.HTTPErrorHandler = customErrorHandler(appLogger)

	// Initialize stores for the configured driver
	stateStore, backupStore, err := buildStores(cfg, db)
	if err != nil {
		return nil, err
	}

	// Initialize services
	stateService := services.NewStateService(stateStore, appLogger)
	backupService := services.NewBackupService(backupStore, appLogger)
	chatService := services.NewChatService(BuildProviderChain(cfg.Chat), appLogger)

	// Initialize handlers
	stateHandler := httpHandlers.NewStateHandler(stateService, appLogger)
	backupHandler := httpHandlers.NewBackupHandler(backupService, appLogger)
	chatHandler := httpHandlers.NewChatHandler(chatService, appLogger)

	server := &Server{
		echo:        e,
		config:      cfg,
		logger:      appLogger,
		db:          db,
		chatService: chatService,
	}

	server.setupMiddleware()
	server.setupRoutes(stateHandler, backupHandler, chatHandler)

	if cfg.Metrics.Enabled {
		server.setupMetrics()
	}

	return server, nil
}

// buildStores selects the storage backend from configuration. Both backends
// satisfy the same contracts; the HTTP layer never knows which one runs.
func buildStores(cfg *config.Config, db *database.DB) (ports.StateStore, ports.BackupStore, error) {
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		if db == nil {
			return nil, nil, fmt.Errorf("postgres storage driver requires a database connection")
		}
		return repository.NewPostgresStateStore(db.DB, cfg.Storage.StateID),
			repository.NewPostgresBackupStore(db.DB), nil
	case config.DriverFile:
		stateStore, err := repository.NewFileStateStore(cfg.Storage.DataDir, cfg.Storage.StateID)
		if err != nil {
			return nil, nil, err
		}
		backupStore, err := repository.NewFileBackupStore(cfg.Storage.DataDir)
		if err != nil {
			return nil, nil, err
		}
		return stateStore, backupStore, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

// BuildProviderChain assembles the ordered completion provider chain from
// configuration: primary first, then the fallback. Unconfigured providers
// are left out entirely.
func BuildProviderChain(cfg config.ChatConfig) []ports.CompletionProvider {
	var chain []ports.CompletionProvider
	if cfg.HasPrimary() {
		chain = append(chain, provider.NewOpenAIClient(provider.OpenAIConfig{
			APIKey:  cfg.OpenAIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.OpenAIModel,
			Timeout: cfg.Timeout,
		}))
	}
	if cfg.HasFallback() {
		chain = append(chain, provider.NewGeminiClient(provider.GeminiConfig{
			APIKey:  cfg.GeminiKey,
			BaseURL: cfg.GeminiBaseURL,
			Models:  cfg.GeminiModelList(),
			Timeout: cfg.Timeout,
		}))
	}
	return chain
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware() {
	// Recovery middleware
	s.echo.Use(middleware.Recover())

	// Logger middleware
	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogLatency:   true,
		LogError:     true,
		LogRemoteIP:  true,
		LogUserAgent: true,
		LogValuesFunc: func(c echo.Context, values middleware.RequestLoggerValues) error {
			fields := []interface{}{
				"method", values.Method,
				"uri", values.URI,
				"status", values.Status,
				"latency_ms", float64(values.Latency.Nanoseconds()) / 1000000,
				"remote_ip", values.RemoteIP,
				"user_agent", values.UserAgent,
			}

			if values.Error != nil {
				fields = append(fields, "error", values.Error.Error())
				s.logger.Errorw("HTTP request failed", fields...)
			} else {
				s.logger.Infow("HTTP request", fields...)
			}

			return nil
		},
	}))

	// CORS middleware
	s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: strings.Split(s.config.Security.CORSAllowedOrigins, ","),
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
		AllowMethods: []string{echo.GET, echo.HEAD, echo.PUT, echo.PATCH, echo.POST, echo.DELETE},
	}))

	// Rate limiting middleware
	s.echo.Use(middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{Rate: rate.Limit(s.config.Security.RateLimitRequests), Burst: s.config.Security.RateLimitRequests, ExpiresIn: s.config.Security.RateLimitWindow},
		),
		IdentifierExtractor: func(ctx echo.Context) (string, error) {
			return ctx.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return c.JSON(http.StatusForbidden, map[string]string{"message": "rate limit exceeded"})
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return c.JSON(http.StatusTooManyRequests, map[string]string{"message": "rate limit exceeded"})
		},
	}))

	// Security headers
	s.echo.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:      "1; mode=block",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "DENY",
	}))

	// Request ID middleware
	s.echo.Use(middleware.RequestID())

	// Timeout middleware. The chat proxy waits on an upstream call with its
	// own 20s deadline, so the outer bound sits above it.
	s.echo.Use(middleware.TimeoutWithConfig(middleware.TimeoutConfig{
		Timeout: 30 * time.Second,
	}))
}

// setupRoutes configures all routes
func (s *Server) setupRoutes(stateHandler *httpHandlers.StateHandler, backupHandler *httpHandlers.BackupHandler, chatHandler *httpHandlers.ChatHandler) {
	s.echo.GET("/ready", s.readinessCheck)

	api := s.echo.Group("/api")

	api.GET("/health", s.healthCheck)

	// Student document routes
	api.GET("/data", stateHandler.GetData)
	api.POST("/data", stateHandler.ReplaceData)
	api.GET("/archive", stateHandler.GetArchive)
	api.POST("/archive", stateHandler.ReplaceArchive)
	api.POST("/archive/student", stateHandler.ArchiveStudent)

	// Settings routes
	api.GET("/settings", stateHandler.GetSettings)
	api.POST("/settings", stateHandler.UpdateSettings)

	// Backup routes
	api.POST("/backup", backupHandler.CreateBackup)
	api.GET("/backups", backupHandler.ListBackups)
	api.GET("/restore/:id", backupHandler.Restore)

	// Chat route
	api.POST("/chat", chatHandler.Chat)
}

// setupMetrics configures Prometheus metrics
func (s *Server) setupMetrics() {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	registry.MustRegister(requestsTotal, requestDuration)

	s.echo.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			duration := time.Since(start)
			status := c.Response().Status

			requestsTotal.WithLabelValues(
				c.Request().Method,
				c.Path(),
				fmt.Sprintf("%d", status),
			).Inc()

			requestDuration.WithLabelValues(
				c.Request().Method,
				c.Path(),
			).Observe(duration.Seconds())

			return err
		}
	})

	metricsHandler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	s.echo.GET("/metrics", echo.WrapHandler(metricsHandler))
}

// healthCheck reports liveness plus which collaborators are configured, so
// an operator can tell at a glance why chat or storage is unavailable.
func (s *Server) healthCheck(c echo.Context) error {
	status := "ok"
	checks := make(map[string]interface{})

	if s.config.Storage.Driver == config.DriverPostgres {
		if err := s.db.HealthCheck(); err != nil {
			status = "error"
			checks["database"] = map[string]interface{}{
				"status": "error",
				"error":  err.Error(),
			}
		} else {
			checks["database"] = map[string]interface{}{
				"status": "ok",
				"stats":  s.db.GetConnectionInfo(),
			}
		}
	}

	response := map[string]interface{}{
		"status":         status,
		"time":           time.Now().UTC().Format(time.RFC3339),
		"storage_driver": s.config.Storage.Driver,
		"state_id":       s.config.Storage.StateID,
		"chat_providers": s.chatService.ProviderNames(),
		"checks":         checks,
		"version":        s.config.App.Version,
	}

	if status == "ok" {
		return c.JSON(http.StatusOK, response)
	}
	return c.JSON(http.StatusServiceUnavailable, response)
}

func (s *Server) readinessCheck(c echo.Context) error {
	if s.config.Storage.Driver == config.DriverPostgres {
		if err := s.db.Ping(); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status": "not_ready",
				"reason": "database_not_ready",
			})
		}
	}

	return c.JSON(http.StatusOK, map[string]string{
		"status": "ready",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// Start starts the HTTP server
func (s *Server) Start(address string) error {
	s.logger.Info("Starting server", "address", address)
	return s.echo.Start(address)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server")
	return s.echo.Shutdown(ctx)
}

// customErrorHandler handles HTTP errors
func customErrorHandler(logger *logger.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		var (
			code = http.StatusInternalServerError
			msg  interface{}
		)

		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			msg = he.Message
			if he.Internal != nil {
				err = fmt.Errorf("%v, %v", err, he.Internal)
			}
		} else if e, ok := err.(validator.ValidationErrors); ok {
			code = http.StatusBadRequest
			msg = map[string]string{"message": "validation failed", "details": e.Error()}
		} else {
			msg = map[string]string{"message": http.StatusText(code)}
		}

		if m, ok := msg.(string); ok {
			msg = map[string]string{"message": m}
		}

		if code == http.StatusInternalServerError {
			logger.Error("Internal server error", "error", err, "path", c.Request().URL.Path)
		}

		if !c.Response().Committed {
			if c.Request().Method == echo.HEAD {
				err = c.NoContent(code)
			} else {
				err = c.JSON(code, msg)
			}
			if err != nil {
				logger.Error("Error sending response", "error", err)
			}
		}
	}
}
