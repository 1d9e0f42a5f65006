// Package http provides HTTP server adapter for the application layer.
// This is a thin adapter layer that translates HTTP requests to application service calls.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/application/service"
)

// Logger interface for logging operations
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// Mode is the gin mode: release, debug or test
	Mode string
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:         "0.0.0.0",
		Port:         8080,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		Mode:         gin.ReleaseMode,
	}
}

// Services groups the application services exposed over HTTP
type Services struct {
	Expense   service.ExpenseService
	Flow      service.FlowService
	Approval  service.ApprovalService
	Report    service.ReportService
	Directory service.DirectoryService
}

// HealthCheck reports component health for GET /health
type HealthCheck func(ctx context.Context) (healthy bool, details interface{})

// Server is the HTTP server adapter
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	services   Services
	users      port.UserRepository
	health     HealthCheck
	logger     Logger
}

// NewServer creates a new HTTP server with the given services.
// Requests identify the acting user with the X-User-ID header.
func NewServer(
	config ServerConfig,
	services Services,
	users port.UserRepository,
	health HealthCheck,
	logger Logger,
) *Server {
	mode := config.Mode
	if mode == "" {
		mode = gin.ReleaseMode
	}
	gin.SetMode(mode)

	router := gin.New()

	server := &Server{
		config:   config,
		router:   router,
		services: services,
		users:    users,
		health:   health,
		logger:   logger,
	}

	// Setup middleware
	server.setupMiddleware()

	// Setup routes
	server.setupRoutes()

	return server
}

// setupMiddleware configures middleware for the router
func (s *Server) setupMiddleware() {
	// Recovery middleware
	s.router.Use(gin.Recovery())

	// Logging middleware
	s.router.Use(s.loggingMiddleware())
}

// loggingMiddleware creates a logging middleware
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		// Process request
		c.Next()

		// Log request details
		latency := time.Since(start)
		status := c.Writer.Status()

		s.logger.Info("HTTP request",
			"method", method,
			"path", path,
			"status", status,
			"latency", latency.String(),
			"client_ip", c.ClientIP(),
			"user_id", c.GetHeader(userHeader),
		)
	}
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	handlers := NewHandlers(s.services, s.health, s.logger)

	// Health check
	s.router.GET("/health", handlers.HealthCheck)

	// Signup has no acting user yet
	s.router.POST("/api/signup", handlers.Signup)

	// API routes
	api := s.router.Group("/api", actorMiddleware(s.users, s.logger))
	{
		// Expenses
		api.POST("/expenses", handlers.SubmitExpense)
		api.GET("/expenses/mine", handlers.ListMyExpenses)
		api.GET("/expenses/team", handlers.ListTeamExpenses)
		api.GET("/expenses/all", requireAdmin(), handlers.ListAllExpenses)
		api.GET("/expenses/:id", handlers.GetExpense)
		api.GET("/expenses/:id/history", handlers.GetExpenseHistory)

		// Approvals
		api.GET("/approvals/pending", handlers.ListPending)
		api.POST("/approvals/:id/approve", handlers.Approve)
		api.POST("/approvals/:id/reject", handlers.Reject)

		api.GET("/me/activity", handlers.MyActivity)

		// Administration
		admin := api.Group("/admin", requireAdmin())
		{
			admin.POST("/expenses/:id/override", handlers.Override)
			admin.POST("/expenses/:id/evaluate", handlers.Reevaluate)
			admin.GET("/users", handlers.ListUsers)
			admin.POST("/users", handlers.CreateUser)
			admin.PATCH("/users/:id", handlers.UpdateUserRole)
			admin.POST("/manager-relations", handlers.SetManager)
			admin.POST("/flows", handlers.CreateFlow)
			admin.GET("/flows", handlers.ListFlows)
			admin.GET("/flows/:id", handlers.GetFlow)
			admin.POST("/flows/:id/activate", handlers.ActivateFlow)
			admin.GET("/history", handlers.CompanyHistory)
			admin.GET("/history/export", handlers.ExportHistory)
		}
	}
}

// Start starts the HTTP server
func (s *Server) Start(ctx context.Context) error {
	addr := s.Address()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", "address", addr)

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for context cancellation or error
	select {
	case <-ctx.Done():
		s.logger.Info("HTTP server shutdown requested")
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("HTTP server error", "error", err)
		return err
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	s.logger.Info("Stopping HTTP server")

	// Create shutdown context with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Address returns the server address
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}
