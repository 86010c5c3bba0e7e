package handlers

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pathweave/pathweave"
	"github.com/pathweave/pathweave/pkg/extract"
	"github.com/pathweave/pathweave/pkg/server/dto"
	"github.com/pathweave/pathweave/pkg/types"
)

// IngestHandler handles data ingestion requests
type IngestHandler struct {
	pathweave pathweave.PathWeave
}

// NewIngestHandler creates a new ingest handler
func NewIngestHandler(p pathweave.PathWeave) *IngestHandler {
	return &IngestHandler{
		pathweave: p,
	}
}

// generateProcessID generates a unique process ID for tracking async operations
func generateProcessID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp if random generation fails
		return fmt.Sprintf("proc_%d", time.Now().UnixNano())
	}
	return fmt.Sprintf("proc_%s", hex.EncodeToString(bytes))
}

// AddDocuments handles POST /api/v1/ingest/documents. Documents are merged
// asynchronously; the response carries a process id for log correlation.
func (h *IngestHandler) AddDocuments(c *gin.Context) {
	var req dto.AddDocumentsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid_request", Message: err.Error()})
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid_request", Message: err.Error()})
		return
	}

	docs := make([]types.Document, 0, len(req.Documents))
	for i, d := range req.Documents {
		doc := types.Document{ID: d.ID}
		if doc.ID == "" {
			doc.ID = fmt.Sprintf("doc-%s-%d", generateProcessID(), i)
		}
		if d.IngestedAt != nil {
			doc.IngestedAt = *d.IngestedAt
		} else {
			doc.IngestedAt = time.Now().UTC()
		}
		for _, cc := range d.Concepts {
			doc.Concepts = append(doc.Concepts, types.ConceptCandidate{
				Label:       cc.Label,
				Description: cc.Description,
				Domain:      cc.Domain,
				Confidence:  cc.Confidence,
				SourceRef:   cc.SourceRef,
			})
		}
		for _, rc := range d.Relations {
			doc.Relations = append(doc.Relations, types.RelationCandidate{
				Source:     rc.Source,
				Target:     rc.Target,
				Type:       types.RelationType(rc.Type),
				Confidence: rc.Confidence,
				Evidence:   rc.Evidence,
			})
		}
		if err := doc.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{
				Error:   "invalid_document",
				Message: fmt.Sprintf("document %d: %v", i, err),
			})
			return
		}
		docs = append(docs, doc)
	}

	processID := generateProcessID()

	// Merge in the background with panic recovery
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("[%s] PANIC recovered in document ingestion: %v\n", processID, r)
			}
		}()

		ctx := context.Background()
		log.Printf("[%s] Starting ingestion of %d documents\n", processID, len(docs))
		g, err := h.pathweave.Ingest(ctx, docs)
		if err != nil {
			log.Printf("[%s] Ingestion failed: %v\n", processID, err)
			return
		}
		log.Printf("[%s] Ingestion complete: version %d, %d nodes, %d edges\n",
			processID, g.Version, len(g.Nodes), len(g.Edges))
	}()

	c.JSON(http.StatusAccepted, dto.IngestAccepted{
		ProcessID: processID,
		Documents: len(docs),
		Status:    "accepted",
	})
}

// AddPayloads handles POST /api/v1/ingest/payloads. Raw extraction payloads
// are decoded synchronously so malformed input is rejected immediately, then
// merged in the background.
func (h *IngestHandler) AddPayloads(c *gin.Context) {
	var req dto.AddPayloadsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid_request", Message: err.Error()})
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid_request", Message: err.Error()})
		return
	}

	format := extract.Format(req.Format)
	payloads := make([][]byte, 0, len(req.Payloads))
	for _, p := range req.Payloads {
		payloads = append(payloads, []byte(p))
	}

	processID := generateProcessID()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("[%s] PANIC recovered in payload ingestion: %v\n", processID, r)
			}
		}()

		ctx := context.Background()
		log.Printf("[%s] Starting ingestion of %d payloads\n", processID, len(payloads))
		g, err := h.pathweave.IngestPayloads(ctx, format, payloads)
		if err != nil {
			log.Printf("[%s] Ingestion failed: %v\n", processID, err)
			return
		}
		log.Printf("[%s] Ingestion complete: version %d, %d nodes, %d edges\n",
			processID, g.Version, len(g.Nodes), len(g.Edges))
	}()

	c.JSON(http.StatusAccepted, dto.IngestAccepted{
		ProcessID: processID,
		Documents: len(payloads),
		Status:    "accepted",
	})
}
