// Package extract decodes upstream extraction payloads into documents of
// concept and relation candidates. Extraction itself happens upstream; this
// package only parses its output, tolerating the malformed JSON that
// generative extractors routinely emit.
package extract

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	jsonrepair "github.com/kaptinlin/jsonrepair"
	"gopkg.in/yaml.v3"

	"github.com/pathweave/pathweave/pkg/types"
)

// Format identifies the wire format of an extraction payload. The set is
// closed: unknown formats are rejected, never sniffed.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ErrUnknownFormat is returned for formats outside the closed set.
var ErrUnknownFormat = fmt.Errorf("unknown extraction format")

// payload is the wire shape shared by both formats.
type payload struct {
	DocumentID string    `json:"document_id" yaml:"document_id"`
	IngestedAt time.Time `json:"ingested_at" yaml:"ingested_at"`
	Concepts   []struct {
		Label       string  `json:"label" yaml:"label"`
		Description string  `json:"description" yaml:"description"`
		Domain      string  `json:"domain" yaml:"domain"`
		Confidence  float64 `json:"confidence" yaml:"confidence"`
		SourceRef   string  `json:"source_ref" yaml:"source_ref"`
	} `json:"concepts" yaml:"concepts"`
	Relations []struct {
		Source     string  `json:"source" yaml:"source"`
		Target     string  `json:"target" yaml:"target"`
		Type       string  `json:"type" yaml:"type"`
		Confidence float64 `json:"confidence" yaml:"confidence"`
		Evidence   string  `json:"evidence" yaml:"evidence"`
	} `json:"relations" yaml:"relations"`
}

// Decode parses one extraction payload into a document. JSON payloads that
// fail strict parsing go through a repair pass first; only then is the
// payload rejected. Missing document ids and timestamps are filled in.
func Decode(format Format, data []byte) (types.Document, error) {
	var p payload
	switch format {
	case FormatJSON:
		if err := json.Unmarshal(data, &p); err != nil {
			repaired, repairErr := jsonrepair.JSONRepair(string(data))
			if repairErr != nil {
				return types.Document{}, fmt.Errorf("failed to parse extraction JSON: %w", err)
			}
			if err := json.Unmarshal([]byte(repaired), &p); err != nil {
				return types.Document{}, fmt.Errorf("failed to parse repaired extraction JSON: %w", err)
			}
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &p); err != nil {
			return types.Document{}, fmt.Errorf("failed to parse extraction YAML: %w", err)
		}
	default:
		return types.Document{}, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	return toDocument(p)
}

func toDocument(p payload) (types.Document, error) {
	doc := types.Document{
		ID:         p.DocumentID,
		IngestedAt: p.IngestedAt,
	}
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	if doc.IngestedAt.IsZero() {
		doc.IngestedAt = time.Now().UTC()
	}

	for _, c := range p.Concepts {
		doc.Concepts = append(doc.Concepts, types.ConceptCandidate{
			Label:       strings.TrimSpace(c.Label),
			Description: c.Description,
			Domain:      c.Domain,
			Confidence:  c.Confidence,
			SourceRef:   c.SourceRef,
		})
	}
	for _, r := range p.Relations {
		rt := types.RelationType(strings.ToLower(strings.TrimSpace(r.Type)))
		doc.Relations = append(doc.Relations, types.RelationCandidate{
			Source:     strings.TrimSpace(r.Source),
			Target:     strings.TrimSpace(r.Target),
			Type:       rt,
			Confidence: r.Confidence,
			Evidence:   r.Evidence,
		})
	}

	if err := doc.Validate(); err != nil {
		return types.Document{}, err
	}
	return doc, nil
}

// DecodeAll parses a batch of payloads of the same format.
func DecodeAll(format Format, payloads [][]byte) ([]types.Document, error) {
	docs := make([]types.Document, 0, len(payloads))
	for i, data := range payloads {
		doc, err := Decode(format, data)
		if err != nil {
			return nil, fmt.Errorf("payload %d: %w", i, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
