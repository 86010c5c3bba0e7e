package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pathweave/pathweave"
	"github.com/pathweave/pathweave/pkg/server/dto"
	"github.com/pathweave/pathweave/pkg/types"
)

// JourneyHandler handles journey generation and feedback requests
type JourneyHandler struct {
	pathweave pathweave.PathWeave
}

// NewJourneyHandler creates a new journey handler
func NewJourneyHandler(p pathweave.PathWeave) *JourneyHandler {
	return &JourneyHandler{
		pathweave: p,
	}
}

func journeyType(s string) types.JourneyType {
	if s == "" {
		return types.AssociativeJourney
	}
	return types.JourneyType(s)
}

// Generate handles POST /api/v1/journeys
func (h *JourneyHandler) Generate(c *gin.Context) {
	var req dto.GenerateJourneyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid_request", Message: err.Error()})
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid_request", Message: err.Error()})
		return
	}

	jt := journeyType(req.Type)
	if !jt.Valid() {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid_request", Message: "unknown journey type"})
		return
	}

	j, err := h.pathweave.GenerateJourney(c.Request.Context(), req.UserID, req.FocalID, jt)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, types.ErrNodeNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, dto.ErrorResponse{Error: "journey_failed", Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, dto.Result{Success: true, Data: j})
}

// Save handles POST /api/v1/journeys/save. The journey is regenerated from
// the cache (or replanned) and persisted as an immutable snapshot.
func (h *JourneyHandler) Save(c *gin.Context) {
	var req dto.SaveJourneyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid_request", Message: err.Error()})
		return
	}

	jt := journeyType(req.Type)
	if !jt.Valid() {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid_request", Message: "unknown journey type"})
		return
	}

	j, err := h.pathweave.GenerateJourney(c.Request.Context(), req.UserID, req.FocalID, jt)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, types.ErrNodeNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, dto.ErrorResponse{Error: "journey_failed", Message: err.Error()})
		return
	}
	if err := h.pathweave.SaveJourney(c.Request.Context(), j); err != nil {
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "save_failed", Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, dto.Result{Success: true, Data: gin.H{"id": j.ID}})
}

// Get handles GET /api/v1/journeys/:id
func (h *JourneyHandler) Get(c *gin.Context) {
	id := c.Param("id")
	j, err := h.pathweave.GetJourney(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "not_found", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, dto.Result{Success: true, Data: j})
}

// Feedback handles POST /api/v1/feedback
func (h *JourneyHandler) Feedback(c *gin.Context) {
	var req dto.FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid_request", Message: err.Error()})
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid_request", Message: err.Error()})
		return
	}

	interactions := make([]types.Interaction, 0, len(req.Interactions))
	for _, it := range req.Interactions {
		interaction := types.Interaction{
			NodeID:           it.NodeID,
			RelationType:     types.RelationType(it.RelationType),
			Dwell:            time.Duration(it.DwellSeconds * float64(time.Second)),
			Rating:           it.Rating,
			ChoseAlternative: it.ChoseAlternative,
			StepDepth:        it.StepDepth,
		}
		if it.At != nil {
			interaction.At = *it.At
		} else {
			interaction.At = time.Now().UTC()
		}
		interactions = append(interactions, interaction)
	}

	profile, err := h.pathweave.ApplyFeedback(c.Request.Context(), req.UserID, interactions)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "feedback_failed", Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, dto.Result{Success: true, Data: profile})
}

// Profile handles GET /api/v1/profiles/:user_id
func (h *JourneyHandler) Profile(c *gin.Context) {
	userID := c.Param("user_id")
	profile, err := h.pathweave.Profile(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "profile_failed", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, dto.Result{Success: true, Data: profile})
}
