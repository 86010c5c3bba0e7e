package types

import (
	"errors"
	"time"
)

// Validation errors
var (
	ErrEmptyLabel        = errors.New("label cannot be empty")
	ErrEmptyID           = errors.New("id cannot be empty")
	ErrEmptyUserID       = errors.New("user_id cannot be empty")
	ErrInvalidConfidence = errors.New("confidence must be in [0,1]")
	ErrInvalidRelation   = errors.New("unknown relation type")
	ErrSelfLoop          = errors.New("relation source and target must differ")
	ErrInvalidProfile    = errors.New("malformed user profile")
)

// Graph errors
var (
	// ErrNodeNotFound is returned when a concept node is not found.
	ErrNodeNotFound = errors.New("node not found")
	// ErrEdgeNotFound is returned when a relation edge is not found.
	ErrEdgeNotFound = errors.New("edge not found")
	// ErrSnapshotCorrupt is returned when a persisted snapshot fails its
	// version/checksum contract. No graph is substituted.
	ErrSnapshotCorrupt = errors.New("snapshot corrupt: checksum mismatch")
	// ErrVersionConflict is returned by compare-and-swap when the stored
	// version no longer matches the expected one.
	ErrVersionConflict = errors.New("snapshot version conflict")
)

// RelationType classifies a relation edge between two concepts.
type RelationType string

const (
	PrerequisiteRelation RelationType = "prerequisite"
	AssociativeRelation  RelationType = "associative"
	CausalRelation       RelationType = "causal"
	ComparativeRelation  RelationType = "comparative"
	HierarchicalRelation RelationType = "hierarchical"
)

// RelationTypes lists every valid relation type in a fixed order.
var RelationTypes = []RelationType{
	PrerequisiteRelation,
	AssociativeRelation,
	CausalRelation,
	ComparativeRelation,
	HierarchicalRelation,
}

// Valid reports whether t is one of the known relation types.
func (t RelationType) Valid() bool {
	for _, known := range RelationTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Concept represents a node in the concept graph. Concepts are owned
// exclusively by the graph; callers receive copies or read-only views.
type Concept struct {
	ID          string    `json:"id" mapstructure:"id"`
	Label       string    `json:"label" mapstructure:"label"`
	Aliases     []string  `json:"aliases,omitempty" mapstructure:"aliases"`
	Description string    `json:"description,omitempty" mapstructure:"description"`
	Domain      string    `json:"domain,omitempty" mapstructure:"domain"`
	Confidence  float64   `json:"confidence" mapstructure:"confidence"`
	CreatedAt   time.Time `json:"created_at" mapstructure:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" mapstructure:"updated_at"`

	// Derived fields, computed by the annotator.
	Importance float64 `json:"importance" mapstructure:"importance"`
	Depth      int     `json:"depth" mapstructure:"depth"`

	// Source tracking
	SourceRefs []string `json:"source_refs,omitempty" mapstructure:"source_refs"`
}

// Validate checks if the Concept has all required fields set.
func (c *Concept) Validate() error {
	if c.Label == "" {
		return ErrEmptyLabel
	}
	if c.Confidence < 0 || c.Confidence > 1 {
		return ErrInvalidConfidence
	}
	return nil
}

// Relation represents a typed, weighted, optionally directed edge between two
// concepts. At most one relation of record exists per (source, target, type).
type Relation struct {
	ID         string       `json:"id"`
	SourceID   string       `json:"source_id"`
	TargetID   string       `json:"target_id"`
	Type       RelationType `json:"type"`
	Confidence float64      `json:"confidence"`
	Directed   bool         `json:"directed"`
	CreatedAt  time.Time    `json:"created_at"`

	// Strength is derived by the annotator, normalized to [0,1].
	Strength float64 `json:"strength"`
	// Cooccurrence counts how many candidate observations merged into this edge.
	Cooccurrence int `json:"cooccurrence"`
	// Demoted marks a relation that lost a type conflict on its pair and was
	// kept as a low-strength edge of its own type for provenance.
	Demoted bool `json:"demoted,omitempty"`

	Evidence []string `json:"evidence,omitempty"`
}

// Validate checks if the Relation has all required fields set.
func (r *Relation) Validate() error {
	if r.SourceID == "" || r.TargetID == "" {
		return ErrEmptyID
	}
	if r.SourceID == r.TargetID {
		return ErrSelfLoop
	}
	if !r.Type.Valid() {
		return ErrInvalidRelation
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return ErrInvalidConfidence
	}
	return nil
}

// Key returns the identity triple of the relation. The builder keeps at most
// one edge of record per key.
func (r *Relation) Key() RelationKey {
	return RelationKey{Source: r.SourceID, Target: r.TargetID, Type: r.Type}
}

// RelationKey identifies a (source, target, type) triple.
type RelationKey struct {
	Source string
	Target string
	Type   RelationType
}

// Cluster is a community-detected group of topically related concepts.
// Clusters partition the node set exactly: no overlap, no omission.
type Cluster struct {
	ID      string   `json:"id"`
	Label   string   `json:"label"`
	Members []string `json:"members"`
}

// ConceptCandidate is a raw concept observation supplied by the extraction
// collaborator for a single document.
type ConceptCandidate struct {
	Label       string  `json:"label"`
	Description string  `json:"description,omitempty"`
	Domain      string  `json:"domain,omitempty"`
	Confidence  float64 `json:"confidence"`
	SourceRef   string  `json:"source_ref,omitempty"`
}

// RelationCandidate is a raw relation observation between two candidate
// labels, with a type hint from the extractor.
type RelationCandidate struct {
	Source     string       `json:"source"`
	Target     string       `json:"target"`
	Type       RelationType `json:"type"`
	Confidence float64      `json:"confidence"`
	Evidence   string       `json:"evidence,omitempty"`
}

// Document groups the candidates extracted from one source material.
// Documents are merged in (IngestedAt, ID) order so rebuilds are
// reproducible regardless of arrival order.
type Document struct {
	ID         string              `json:"id"`
	IngestedAt time.Time           `json:"ingested_at"`
	Concepts   []ConceptCandidate  `json:"concepts"`
	Relations  []RelationCandidate `json:"relations"`
}

// Validate checks if the Document has all required fields set.
func (d *Document) Validate() error {
	if d.ID == "" {
		return ErrEmptyID
	}
	for i := range d.Concepts {
		if d.Concepts[i].Label == "" {
			return ErrEmptyLabel
		}
		if d.Concepts[i].Confidence < 0 || d.Concepts[i].Confidence > 1 {
			return ErrInvalidConfidence
		}
	}
	for i := range d.Relations {
		if !d.Relations[i].Type.Valid() {
			return ErrInvalidRelation
		}
	}
	return nil
}
