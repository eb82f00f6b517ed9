package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	echoSwagger "github.com/swaggo/echo-swagger"
	"golang.org/x/time/rate"

	_ "github.com/taskmaster/deptflow/docs"
	httpHandlers "github.com/taskmaster/deptflow/internal/adapters/http"
	"github.com/taskmaster/deptflow/internal/application/services"
	"github.com/taskmaster/deptflow/internal/infrastructure/config"
	"github.com/taskmaster/deptflow/internal/infrastructure/logger"
)

// Services are the application services the API exposes.
type Services struct {
	Auth     *services.AuthService
	Users    *services.UserService
	Tasks    *services.TaskService
	Articles *services.ArticleService
	Resolver *services.SessionResolver
}

// HealthChecker reports the state of the document store.
type HealthChecker interface {
	Ping(ctx context.Context) error
	Info() map[string]interface{}
}

// Server represents the HTTP server
type Server struct {
	echo    *echo.Echo
	config  *config.Config
	logger  *logger.Logger
	store   HealthChecker
	metrics *Metrics
}

// New creates a new server instance
func New(cfg *config.Config, svc Services, store HealthChecker, metrics *Metrics, appLogger *logger.Logger) (*Server, error) {
	e := echo.New()

	e.Validator = &CustomValidator{validator: services.NewValidator()}
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = customErrorHandler(appLogger)

	if metrics == nil {
		metrics = NewMetrics()
	}

	server := &Server{
		echo:    e,
		config:  cfg,
		logger:  appLogger,
		store:   store,
		metrics: metrics,
	}

	server.setupMiddleware()
	if cfg.Metrics.Enabled {
		server.setupMetrics()
	}
	server.setupRoutes(svc)

	return server, nil
}

// Handler exposes the router, used by tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware() {
	s.echo.Use(middleware.Recover())

	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogLatency:   true,
		LogError:     true,
		LogRemoteIP:  true,
		LogUserAgent: true,
		LogValuesFunc: func(c echo.Context, values middleware.RequestLoggerValues) error {
			latency := float64(values.Latency.Nanoseconds()) / 1000000
			if values.Error != nil {
				s.logger.Warnw("HTTP request failed",
					"method", values.Method,
					"uri", values.URI,
					"status", values.Status,
					"latency_ms", latency,
					"remote_ip", values.RemoteIP,
					"error", values.Error.Error(),
				)
				return nil
			}
			s.logger.LogHTTPRequest(values.Method, values.URI, values.UserAgent, values.RemoteIP, values.Status, latency)
			return nil
		},
	}))

	s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: s.allowedOrigins(),
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		AllowMethods: []string{http.MethodGet, http.MethodHead, http.MethodPut, http.MethodPatch, http.MethodPost, http.MethodDelete},
	}))

	if s.config.Security.RateLimitRequests > 0 {
		s.echo.Use(middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
			Store: middleware.NewRateLimiterMemoryStoreWithConfig(
				middleware.RateLimiterMemoryStoreConfig{
					Rate:      rate.Limit(float64(s.config.Security.RateLimitRequests) / s.rateWindow().Seconds()),
					Burst:     s.config.Security.RateLimitRequests,
					ExpiresIn: s.rateWindow(),
				},
			),
			IdentifierExtractor: func(ctx echo.Context) (string, error) {
				return ctx.RealIP(), nil
			},
			ErrorHandler: func(context echo.Context, err error) error {
				return context.JSON(http.StatusForbidden, map[string]string{"message": "rate limit exceeded"})
			},
			DenyHandler: func(context echo.Context, identifier string, err error) error {
				return context.JSON(http.StatusTooManyRequests, map[string]string{"message": "rate limit exceeded"})
			},
		}))
	}

	s.echo.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:      "1; mode=block",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "DENY",
		HSTSMaxAge:         31536000,
	}))

	s.echo.Use(middleware.RequestID())

	// Websockets hijack the connection and outlive any request timeout.
	timeout := s.config.Server.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	s.echo.Use(middleware.TimeoutWithConfig(middleware.TimeoutConfig{
		Skipper: func(c echo.Context) bool {
			return websocket.IsWebSocketUpgrade(c.Request())
		},
		Timeout: timeout,
	}))
}

func (s *Server) allowedOrigins() []string {
	var origins []string
	for _, o := range strings.Split(s.config.Security.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return origins
}

func (s *Server) rateWindow() time.Duration {
	if s.config.Security.RateLimitWindow <= 0 {
		return time.Minute
	}
	return s.config.Security.RateLimitWindow
}

// setupRoutes configures all routes
func (s *Server) setupRoutes(svc Services) {
	authHandler := httpHandlers.NewAuthHandler(svc.Auth, s.config.App.IsDevelopment(), s.logger)
	sessionHandler := httpHandlers.NewSessionHandler(svc.Resolver, s.metrics, s.logger)
	userHandler := httpHandlers.NewUserHandler(svc.Users, s.logger)
	taskHandler := httpHandlers.NewTaskHandler(svc.Tasks, s.logger)
	liveHandler := httpHandlers.NewLiveHandler(svc.Tasks, s.allowedOrigins(), s.logger)
	articleHandler := httpHandlers.NewArticleHandler(svc.Articles, s.logger)

	// Health check routes
	s.echo.GET("/health", s.healthCheck)
	s.echo.GET("/health/detailed", s.detailedHealthCheck)
	s.echo.GET("/ready", s.readinessCheck)

	// Swagger documentation
	s.echo.GET("/docs/*", echoSwagger.WrapHandler)

	v1 := s.echo.Group("/api/v1")
	authenticated := s.authMiddleware(svc.Resolver)

	// Auth routes
	authGroup := v1.Group("/auth")
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)
	authGroup.POST("/verify-email", authHandler.VerifyEmail)
	authGroup.POST("/logout", authHandler.Logout, authenticated)
	authGroup.POST("/resend-verification", authHandler.ResendVerification, authenticated)

	// Session routes
	v1.GET("/access", sessionHandler.Access)
	v1.GET("/session", sessionHandler.Session, authenticated)

	// Profile routes; role-less users reach these to finish their profile.
	userGroup := v1.Group("/users", authenticated)
	userGroup.GET("/me", userHandler.GetCurrentUser)
	userGroup.PUT("/me", userHandler.UpdateCurrentUser)
	userGroup.GET("/department", userHandler.DepartmentMembers, s.gate(fixedRoute(services.DashboardPath)))

	// Dashboard
	v1.GET("/dashboard/tasks", taskHandler.ListDashboard, authenticated, s.gate(fixedRoute(services.DashboardPath)))

	// Board and task detail
	taskGroup := v1.Group("/tasks", authenticated)
	board := s.gate(fixedRoute(services.BoardPath))
	detail := s.gate(taskRoute)
	taskGroup.GET("", taskHandler.ListBoard, board)
	taskGroup.POST("", taskHandler.CreateTask, board)
	taskGroup.GET("/:id", taskHandler.GetTask, detail)
	taskGroup.PUT("/:id", taskHandler.UpdateTask, detail)
	taskGroup.DELETE("/:id", taskHandler.DeleteTask, detail)
	taskGroup.POST("/:id/move", taskHandler.MoveTask, detail)
	taskGroup.POST("/:id/assignees", taskHandler.ToggleAssignee, detail)
	taskGroup.GET("/:id/comments", taskHandler.ListComments, detail)
	taskGroup.POST("/:id/comments", taskHandler.AddComment, detail)
	taskGroup.GET("/:id/live", liveHandler.WatchTask, detail)

	// Articles
	articles := s.gate(fixedRoute("/articles"))
	articleGroup := v1.Group("/articles", authenticated, articles)
	articleGroup.GET("", articleHandler.ListArticles)
	articleGroup.POST("", articleHandler.CreateArticle)
	articleGroup.GET("/:id", articleHandler.GetArticle)
	articleGroup.PUT("/:id", articleHandler.UpdateArticle)
	articleGroup.DELETE("/:id", articleHandler.DeleteArticle)
	articleGroup.POST("/:id/like", articleHandler.LikeArticle)
	articleGroup.POST("/:id/comments", articleHandler.AddComment)
}

// setupMetrics mounts the request metrics middleware and the scrape endpoint.
func (s *Server) setupMetrics() {
	s.echo.Use(s.metrics.Middleware())

	path := s.config.Metrics.Path
	if path == "" {
		path = "/metrics"
	}
	s.echo.GET(path, echo.WrapHandler(s.metrics.Handler()))
}

// Health check handlers
func (s *Server) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) detailedHealthCheck(c echo.Context) error {
	status := "ok"
	checks := make(map[string]interface{})

	storeCheck := s.store.Info()
	if err := s.store.Ping(c.Request().Context()); err != nil {
		status = "error"
		storeCheck["status"] = "error"
		storeCheck["error"] = err.Error()
	} else {
		storeCheck["status"] = "ok"
	}
	checks["store"] = storeCheck

	response := map[string]interface{}{
		"status": status,
		"time":   time.Now().UTC().Format(time.RFC3339),
		"checks": checks,
		"version": map[string]string{
			"app": s.config.App.Version,
		},
	}

	if status == "ok" {
		return c.JSON(http.StatusOK, response)
	}
	return c.JSON(http.StatusServiceUnavailable, response)
}

func (s *Server) readinessCheck(c echo.Context) error {
	if err := s.store.Ping(c.Request().Context()); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": "not_ready",
			"reason": "store_not_ready",
		})
	}
	if state, ok := s.store.Info()["breaker"]; ok && state == "open" {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": "not_ready",
			"reason": "store_breaker_open",
		})
	}

	return c.JSON(http.StatusOK, map[string]string{
		"status": "ready",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	address := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.echo.Server.ReadTimeout = s.config.Server.ReadTimeout
	s.echo.Server.WriteTimeout = s.config.Server.WriteTimeout
	s.echo.Server.IdleTimeout = s.config.Server.IdleTimeout
	s.logger.Infow("Starting server", "address", address)
	return s.echo.Start(address)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Infow("Shutting down server")
	return s.echo.Shutdown(ctx)
}
