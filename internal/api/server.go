package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/narravox/internal/config"
	"github.com/narravox/internal/report"
)

// Server exposes the narrative report pipeline over HTTP.
type Server struct {
	echo    *echo.Echo
	port    int
	reports *report.Orchestrator
	cfg     *config.Config
}

// NewServer creates the API server around a wired report orchestrator.
func NewServer(reports *report.Orchestrator, cfg *config.Config) *Server {
	e := echo.New()

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	server := &Server{
		echo:    e,
		port:    cfg.General.ListenPort,
		reports: reports,
		cfg:     cfg,
	}

	// Setup routes
	server.setupRoutes()

	return server
}

// setupRoutes configures all API endpoints
func (s *Server) setupRoutes() {
	// Health check endpoint
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status": "healthy",
		})
	})

	// API v1 group
	v1 := s.echo.Group("/api/v1")

	// Narrative report endpoints
	v1.GET("/conversations/:conversation_id/narrative", s.getNarrative)
}

// Start begins the API server and blocks until an interrupt arrives.
func (s *Server) Start() error {
	// Start server in a goroutine
	go func() {
		if err := s.echo.Start(fmt.Sprintf(":%d", s.port)); err != nil && err != http.ErrServerClosed {
			s.echo.Logger.Fatal("shutting down the server")
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.echo.Shutdown(ctx)
}
