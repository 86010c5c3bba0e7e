package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pathweave/pathweave"
	"github.com/pathweave/pathweave/pkg/config"
	"github.com/pathweave/pathweave/pkg/server/handlers"
)

// Server represents the HTTP server
type Server struct {
	config    *config.Config
	router    *gin.Engine
	pathweave pathweave.PathWeave
	server    *http.Server
}

// New creates a new server instance
func New(cfg *config.Config, client pathweave.PathWeave) *Server {
	return &Server{
		config:    cfg,
		pathweave: client,
	}
}

// Setup sets up the server routes and middleware
func (s *Server) Setup() {
	// Set gin mode
	gin.SetMode(s.config.Server.Mode)

	// Create router
	s.router = gin.New()

	// Add middleware
	s.router.Use(gin.Logger())
	s.router.Use(gin.Recovery())
	s.router.Use(corsMiddleware())

	// Setup routes
	s.setupRoutes()

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}
}

// setupRoutes sets up all the routes
func (s *Server) setupRoutes() {
	// Create handlers
	healthHandler := handlers.NewHealthHandler(s.pathweave)
	ingestHandler := handlers.NewIngestHandler(s.pathweave)
	journeyHandler := handlers.NewJourneyHandler(s.pathweave)
	graphHandler := handlers.NewGraphHandler(s.pathweave)

	// Health endpoints
	s.router.GET("/health", healthHandler.HealthCheck)
	s.router.GET("/ready", healthHandler.ReadinessCheck)
	s.router.GET("/live", healthHandler.LivenessCheck)

	// API v1 routes
	v1 := s.router.Group("/api/v1")
	{
		// Ingest routes
		ingest := v1.Group("/ingest")
		{
			ingest.POST("/documents", ingestHandler.AddDocuments)
			ingest.POST("/payloads", ingestHandler.AddPayloads)
		}

		// Journey routes
		journeys := v1.Group("/journeys")
		{
			journeys.POST("", journeyHandler.Generate)
			journeys.POST("/save", journeyHandler.Save)
			journeys.GET("/:id", journeyHandler.Get)
		}

		// Feedback routes
		v1.POST("/feedback", journeyHandler.Feedback)
		v1.GET("/profiles/:user_id", journeyHandler.Profile)

		// Graph routes
		v1.GET("/graph", graphHandler.Summary)
		v1.GET("/graph/snapshot", graphHandler.Snapshot)
		v1.GET("/concepts/:id", graphHandler.GetConcept)
		v1.POST("/recluster", graphHandler.Recluster)
		v1.POST("/export", graphHandler.Export)
	}
}

// Start starts the server
func (s *Server) Start() error {
	fmt.Printf("Starting server on %s\n", s.server.Addr)
	return s.server.ListenAndServe()
}

// Stop stops the server gracefully
func (s *Server) Stop(ctx context.Context) error {
	fmt.Println("Stopping server...")
	return s.server.Shutdown(ctx)
}

// Router exposes the underlying gin engine, used by tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// corsMiddleware adds CORS headers
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Header("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
