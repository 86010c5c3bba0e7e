package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pathweave/pathweave"
	"github.com/pathweave/pathweave/pkg/server/dto"
	"github.com/pathweave/pathweave/pkg/types"
)

// GraphHandler handles read-only graph views and maintenance operations
type GraphHandler struct {
	pathweave pathweave.PathWeave
}

// NewGraphHandler creates a new graph handler
func NewGraphHandler(p pathweave.PathWeave) *GraphHandler {
	return &GraphHandler{
		pathweave: p,
	}
}

// Summary handles GET /api/v1/graph
func (h *GraphHandler) Summary(c *gin.Context) {
	g := h.pathweave.Snapshot()
	c.JSON(http.StatusOK, dto.GraphSummary{
		MaterialSet: g.MaterialSet,
		Version:     g.Version,
		Nodes:       len(g.Nodes),
		Edges:       len(g.Edges),
		Clusters:    len(g.Clusters),
		Checksum:    g.Checksum(),
	})
}

// Snapshot handles GET /api/v1/graph/snapshot. The full graph is served as a
// read-only view for the visualization collaborator: stable node and edge ids,
// derived scores, and cluster assignments, never layout.
func (h *GraphHandler) Snapshot(c *gin.Context) {
	g := h.pathweave.Snapshot()
	c.JSON(http.StatusOK, dto.Result{Success: true, Data: gin.H{
		"material_set": g.MaterialSet,
		"version":      g.Version,
		"nodes":        g.Nodes,
		"edges":        g.Edges,
		"clusters":     g.Clusters,
	}})
}

// GetConcept handles GET /api/v1/concepts/:id
func (h *GraphHandler) GetConcept(c *gin.Context) {
	id := c.Param("id")
	node, err := h.pathweave.Concept(c.Request.Context(), id)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, types.ErrNodeNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, dto.ErrorResponse{Error: "not_found", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, dto.Result{Success: true, Data: node})
}

// Recluster handles POST /api/v1/recluster
func (h *GraphHandler) Recluster(c *gin.Context) {
	g, err := h.pathweave.Recluster(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "recluster_failed", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, dto.Result{Success: true, Data: gin.H{
		"version":  g.Version,
		"clusters": len(g.Clusters),
	}})
}

// Export handles POST /api/v1/export
func (h *GraphHandler) Export(c *gin.Context) {
	if err := h.pathweave.ExportMetrics(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "export_failed", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, dto.Result{Success: true})
}
