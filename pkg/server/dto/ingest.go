package dto

import (
	"errors"
	"fmt"
	"time"
)

// Validation errors
var (
	ErrEmptyDocuments = errors.New("documents cannot be empty")
	ErrEmptyPayloads  = errors.New("payloads cannot be empty")
	ErrUnknownFormat  = errors.New("format must be json or yaml")
)

// MaxDocumentsCount bounds one ingest batch to prevent abuse
const MaxDocumentsCount = 1000

// ConceptCandidate mirrors one extracted concept on the wire
type ConceptCandidate struct {
	Label       string  `json:"label" binding:"required"`
	Description string  `json:"description,omitempty"`
	Domain      string  `json:"domain,omitempty"`
	Confidence  float64 `json:"confidence"`
	SourceRef   string  `json:"source_ref,omitempty"`
}

// RelationCandidate mirrors one extracted relation on the wire
type RelationCandidate struct {
	Source     string  `json:"source" binding:"required"`
	Target     string  `json:"target" binding:"required"`
	Type       string  `json:"type" binding:"required"`
	Confidence float64 `json:"confidence"`
	Evidence   string  `json:"evidence,omitempty"`
}

// Document is one pre-decoded extraction document
type Document struct {
	ID         string              `json:"id,omitempty"`
	IngestedAt *time.Time          `json:"ingested_at,omitempty"`
	Concepts   []ConceptCandidate  `json:"concepts"`
	Relations  []RelationCandidate `json:"relations,omitempty"`
}

// AddDocumentsRequest carries pre-decoded documents
type AddDocumentsRequest struct {
	Documents []Document `json:"documents" binding:"required,dive"`
}

// Validate performs validation on AddDocumentsRequest
func (r *AddDocumentsRequest) Validate() error {
	if len(r.Documents) == 0 {
		return ErrEmptyDocuments
	}
	if len(r.Documents) > MaxDocumentsCount {
		return fmt.Errorf("documents count exceeds maximum (%d)", MaxDocumentsCount)
	}
	return nil
}

// AddPayloadsRequest carries raw extraction payloads in a declared format
type AddPayloadsRequest struct {
	Format   string   `json:"format" binding:"required"`
	Payloads []string `json:"payloads" binding:"required"`
}

// Validate performs validation on AddPayloadsRequest
func (r *AddPayloadsRequest) Validate() error {
	if r.Format != "json" && r.Format != "yaml" {
		return ErrUnknownFormat
	}
	if len(r.Payloads) == 0 {
		return ErrEmptyPayloads
	}
	if len(r.Payloads) > MaxDocumentsCount {
		return fmt.Errorf("payloads count exceeds maximum (%d)", MaxDocumentsCount)
	}
	return nil
}

// IngestAccepted is returned for async ingestion
type IngestAccepted struct {
	ProcessID string `json:"process_id"`
	Documents int    `json:"documents"`
	Status    string `json:"status"`
}
