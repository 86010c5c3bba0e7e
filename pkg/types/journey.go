package types

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// JourneyType selects how the planner re-sequences the selected concepts.
type JourneyType string

const (
	// PatternFirstJourney groups steps by cluster with cross-cluster bridges.
	PatternFirstJourney JourneyType = "pattern_first"
	// HierarchicalJourney sorts steps ascending by complexity depth.
	HierarchicalJourney JourneyType = "hierarchical"
	// AssociativeJourney preserves greedy selection order.
	AssociativeJourney JourneyType = "associative"
	// SpiralJourney revisits core concepts at increasing depth. Repeated
	// visits carry distinct depth tags and are exempt from the no-repeat rule.
	SpiralJourney JourneyType = "spiral"
)

// Valid reports whether t is one of the known journey types.
func (t JourneyType) Valid() bool {
	switch t {
	case PatternFirstJourney, HierarchicalJourney, AssociativeJourney, SpiralJourney:
		return true
	}
	return false
}

// StepStatus tracks whether a step's content payload has been bound.
type StepStatus string

const (
	StepContentReady   StepStatus = "content_ready"
	StepContentPending StepStatus = "content_pending"
)

// ContentRequest describes what the planner asks of the content collaborator
// for one step. The planner decides what to request, never how content is
// authored.
type ContentRequest struct {
	NodeID      string      `json:"node_id"`
	Position    int         `json:"position"`
	NeighborIDs []string    `json:"neighbor_ids"`
	JourneyType JourneyType `json:"journey_type"`
}

// JourneyStep is one stop on a journey.
type JourneyStep struct {
	NodeID   string `json:"node_id"`
	Position int    `json:"position"`
	// ViaEdgeID is the relation used to reach this step, empty for the focal step.
	ViaEdgeID string `json:"via_edge_id,omitempty"`
	// DepthTag distinguishes repeated visits on spiral journeys. Zero for the
	// first (or only) visit.
	DepthTag int `json:"depth_tag,omitempty"`
	// ContextTag carries the spiral context marker for repeated visits.
	ContextTag string `json:"context_tag,omitempty"`

	Request ContentRequest  `json:"request"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Status  StepStatus      `json:"status"`

	// Alternatives lists node ids that scored within epsilon of this step's
	// score, exposed as a decision point.
	Alternatives []string `json:"alternatives,omitempty"`
}

// Journey is an ordered sequence of steps through the concept graph. Saved
// journeys are immutable snapshots; unsaved journeys are ephemeral.
type Journey struct {
	ID               string        `json:"id"`
	FocalID          string        `json:"focal_id"`
	Type             JourneyType   `json:"type"`
	GraphVersion     uint64        `json:"graph_version"`
	ProfileSignature string        `json:"profile_signature"`
	Steps            []JourneyStep `json:"steps"`
	CreatedAt        time.Time     `json:"created_at"`
}

// UserProfile holds per-user personalization state. It is owned by the
// caller's session and passed explicitly into every planner call.
type UserProfile struct {
	UserID string `json:"user_id"`
	// RelationWeights biases candidate scoring per relation type.
	RelationWeights map[RelationType]float64 `json:"relation_weights"`
	// ComplexityTolerance in [0,1] scales how steep a depth jump the user accepts.
	ComplexityTolerance float64 `json:"complexity_tolerance"`
	// Visited is the ordered node-id history of presented concepts.
	Visited   []string  `json:"visited,omitempty"`
	Interests []string  `json:"interests,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewUserProfile returns a profile with neutral weights.
func NewUserProfile(userID string) *UserProfile {
	weights := make(map[RelationType]float64, len(RelationTypes))
	for _, t := range RelationTypes {
		weights[t] = 1.0
	}
	return &UserProfile{
		UserID:              userID,
		RelationWeights:     weights,
		ComplexityTolerance: 0.5,
		UpdatedAt:           time.Now().UTC(),
	}
}

// Validate checks if the UserProfile is well formed.
func (p *UserProfile) Validate() error {
	if p == nil {
		return ErrInvalidProfile
	}
	if p.UserID == "" {
		return ErrEmptyUserID
	}
	if p.ComplexityTolerance < 0 || p.ComplexityTolerance > 1 {
		return ErrInvalidProfile
	}
	for t, w := range p.RelationWeights {
		if !t.Valid() || w < 0 {
			return ErrInvalidProfile
		}
	}
	return nil
}

// Clone returns a deep copy so planner runs never share mutable state.
func (p *UserProfile) Clone() *UserProfile {
	if p == nil {
		return nil
	}
	out := *p
	out.RelationWeights = make(map[RelationType]float64, len(p.RelationWeights))
	for t, w := range p.RelationWeights {
		out.RelationWeights[t] = w
	}
	out.Visited = append([]string(nil), p.Visited...)
	out.Interests = append([]string(nil), p.Interests...)
	return &out
}

// Signature returns a stable hash of the personalization-relevant fields.
// Weights are quantized so tiny EMA drift does not churn cache keys.
func (p *UserProfile) Signature() string {
	var b strings.Builder
	for _, t := range RelationTypes {
		fmt.Fprintf(&b, "%s=%.2f;", t, quantize(p.RelationWeights[t]))
	}
	fmt.Fprintf(&b, "tol=%.2f;", quantize(p.ComplexityTolerance))
	interests := append([]string(nil), p.Interests...)
	sort.Strings(interests)
	b.WriteString(strings.Join(interests, ","))

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:8])
}

// SignatureDistance measures how far two profiles have drifted, in [0,1].
// Used by the cache to decide whether an entry is stale for a user.
func (p *UserProfile) SignatureDistance(other *UserProfile) float64 {
	if p == nil || other == nil {
		return 1.0
	}
	var sum, n float64
	for _, t := range RelationTypes {
		sum += math.Abs(p.RelationWeights[t] - other.RelationWeights[t])
		n++
	}
	sum += math.Abs(p.ComplexityTolerance - other.ComplexityTolerance)
	n++
	return sum / n
}

func quantize(v float64) float64 {
	return math.Round(v*20) / 20
}

// Interaction is one presented-step feedback event used for online profile
// updates. No offline retraining exists; updates are purely incremental.
type Interaction struct {
	NodeID       string       `json:"node_id"`
	RelationType RelationType `json:"relation_type"`
	// Dwell is how long the user stayed on the step.
	Dwell time.Duration `json:"dwell"`
	// Rating in [-1,1]; zero means no explicit rating.
	Rating float64 `json:"rating"`
	// ChoseAlternative is set when the user took an alternative route.
	ChoseAlternative bool `json:"chose_alternative"`
	// StepDepth is the complexity depth of the presented concept.
	StepDepth int       `json:"step_depth"`
	At        time.Time `json:"at"`
}
