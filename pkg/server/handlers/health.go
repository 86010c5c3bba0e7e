package handlers

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pathweave/pathweave"
)

// Build information - can be set at build time using ldflags
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// HealthHandler handles health check requests
type HealthHandler struct {
	pathweave pathweave.PathWeave
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(p pathweave.PathWeave) *HealthHandler {
	return &HealthHandler{
		pathweave: p,
	}
}

// HealthCheck handles GET /health - basic liveness check
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   "pathweave",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   Version,
	})
}

// ReadinessCheck handles GET /ready - the service is ready once a graph
// snapshot is available
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	if h.pathweave == nil || h.pathweave.Snapshot() == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":    "not_ready",
			"service":   "pathweave",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}

	g := h.pathweave.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"status":    "ready",
		"service":   "pathweave",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"graph": gin.H{
			"version": g.Version,
			"nodes":   len(g.Nodes),
		},
	})
}

// LivenessCheck handles GET /live - Kubernetes liveness probe
func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"service":   "pathweave",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"go":        GoVersion,
		"commit":    GitCommit,
		"built":     BuildTime,
	})
}
