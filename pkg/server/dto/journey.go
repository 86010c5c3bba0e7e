package dto

import (
	"errors"
	"strings"
	"time"
)

// Validation errors
var (
	ErrEmptyUserID       = errors.New("user_id cannot be empty")
	ErrEmptyFocalID      = errors.New("focal_id cannot be empty")
	ErrEmptyInteractions = errors.New("interactions cannot be empty")
)

// GenerateJourneyRequest asks for a journey around a focal concept
type GenerateJourneyRequest struct {
	UserID  string `json:"user_id" binding:"required"`
	FocalID string `json:"focal_id" binding:"required"`
	Type    string `json:"type,omitempty"`
}

// Validate performs validation on GenerateJourneyRequest
func (r *GenerateJourneyRequest) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return ErrEmptyUserID
	}
	if strings.TrimSpace(r.FocalID) == "" {
		return ErrEmptyFocalID
	}
	return nil
}

// SaveJourneyRequest persists a generated journey by id
type SaveJourneyRequest struct {
	UserID  string `json:"user_id" binding:"required"`
	FocalID string `json:"focal_id" binding:"required"`
	Type    string `json:"type,omitempty"`
}

// Interaction is one feedback event on a presented step
type Interaction struct {
	NodeID           string     `json:"node_id"`
	RelationType     string     `json:"relation_type,omitempty"`
	DwellSeconds     float64    `json:"dwell_seconds,omitempty"`
	Rating           float64    `json:"rating,omitempty"`
	ChoseAlternative bool       `json:"chose_alternative,omitempty"`
	StepDepth        int        `json:"step_depth,omitempty"`
	At               *time.Time `json:"at,omitempty"`
}

// FeedbackRequest folds interactions into a user profile
type FeedbackRequest struct {
	UserID       string        `json:"user_id" binding:"required"`
	Interactions []Interaction `json:"interactions" binding:"required,dive"`
}

// Validate performs validation on FeedbackRequest
func (r *FeedbackRequest) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return ErrEmptyUserID
	}
	if len(r.Interactions) == 0 {
		return ErrEmptyInteractions
	}
	return nil
}
