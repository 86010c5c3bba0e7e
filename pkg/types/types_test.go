package types

import (
	"errors"
	"testing"
)

func TestRelationTypeValid(t *testing.T) {
	t.Parallel()
	for _, rt := range RelationTypes {
		if !rt.Valid() {
			t.Errorf("expected %q to be valid", rt)
		}
	}
	if RelationType("friendship").Valid() {
		t.Error("expected unknown relation type to be invalid")
	}
	if RelationType("").Valid() {
		t.Error("expected empty relation type to be invalid")
	}
}

func TestConceptValidate(t *testing.T) {
	t.Parallel()
	t.Run("valid", func(t *testing.T) {
		c := Concept{ID: "c-1", Label: "Recursion", Confidence: 0.9}
		if err := c.Validate(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
	t.Run("empty label", func(t *testing.T) {
		c := Concept{ID: "c-1", Confidence: 0.9}
		if err := c.Validate(); !errors.Is(err, ErrEmptyLabel) {
			t.Fatalf("expected ErrEmptyLabel, got %v", err)
		}
	})
	t.Run("confidence out of range", func(t *testing.T) {
		c := Concept{ID: "c-1", Label: "Recursion", Confidence: 1.5}
		if err := c.Validate(); !errors.Is(err, ErrInvalidConfidence) {
			t.Fatalf("expected ErrInvalidConfidence, got %v", err)
		}
	})
}

func TestRelationValidate(t *testing.T) {
	t.Parallel()
	t.Run("valid", func(t *testing.T) {
		r := Relation{SourceID: "a", TargetID: "b", Type: PrerequisiteRelation, Confidence: 0.8}
		if err := r.Validate(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
	t.Run("self loop", func(t *testing.T) {
		r := Relation{SourceID: "a", TargetID: "a", Type: CausalRelation, Confidence: 0.8}
		if err := r.Validate(); !errors.Is(err, ErrSelfLoop) {
			t.Fatalf("expected ErrSelfLoop, got %v", err)
		}
	})
	t.Run("unknown type", func(t *testing.T) {
		r := Relation{SourceID: "a", TargetID: "b", Type: "sibling", Confidence: 0.8}
		if err := r.Validate(); !errors.Is(err, ErrInvalidRelation) {
			t.Fatalf("expected ErrInvalidRelation, got %v", err)
		}
	})
}

func TestDocumentValidate(t *testing.T) {
	t.Parallel()
	doc := Document{
		ID:       "doc-1",
		Concepts: []ConceptCandidate{{Label: "Sorting", Confidence: 0.9}},
		Relations: []RelationCandidate{
			{Source: "Sorting", Target: "Quicksort", Type: HierarchicalRelation, Confidence: 0.7},
		},
	}
	if err := doc.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	doc.Relations[0].Type = "nonsense"
	if err := doc.Validate(); !errors.Is(err, ErrInvalidRelation) {
		t.Fatalf("expected ErrInvalidRelation, got %v", err)
	}
}

func TestProfileSignatureQuantization(t *testing.T) {
	t.Parallel()
	a := NewUserProfile("u1")
	b := NewUserProfile("u1")

	// Drift below the quantization step must not change the signature.
	b.RelationWeights[PrerequisiteRelation] = 1.01
	if a.Signature() != b.Signature() {
		t.Error("expected tiny weight drift to keep the signature stable")
	}

	// A real shift must change it.
	b.RelationWeights[PrerequisiteRelation] = 1.4
	if a.Signature() == b.Signature() {
		t.Error("expected large weight shift to change the signature")
	}
}

func TestProfileSignatureDistance(t *testing.T) {
	t.Parallel()
	a := NewUserProfile("u1")
	b := a.Clone()
	if d := a.SignatureDistance(b); d != 0 {
		t.Errorf("expected zero distance for identical profiles, got %f", d)
	}

	b.RelationWeights[CausalRelation] = 2.0
	if d := a.SignatureDistance(b); d <= 0 {
		t.Errorf("expected positive distance after drift, got %f", d)
	}

	if d := a.SignatureDistance(nil); d != 1.0 {
		t.Errorf("expected max distance against nil profile, got %f", d)
	}
}

func TestProfileCloneIsDeep(t *testing.T) {
	t.Parallel()
	a := NewUserProfile("u1")
	a.Visited = []string{"c-1"}

	b := a.Clone()
	b.RelationWeights[AssociativeRelation] = 3.0
	b.Visited = append(b.Visited, "c-2")

	if a.RelationWeights[AssociativeRelation] != 1.0 {
		t.Error("clone mutation leaked into original weights")
	}
	if len(a.Visited) != 1 {
		t.Error("clone mutation leaked into original visited history")
	}
}

func TestProfileValidate(t *testing.T) {
	t.Parallel()
	p := NewUserProfile("u1")
	if err := p.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	p.ComplexityTolerance = 1.2
	if err := p.Validate(); !errors.Is(err, ErrInvalidProfile) {
		t.Fatalf("expected ErrInvalidProfile, got %v", err)
	}

	var nilProfile *UserProfile
	if err := nilProfile.Validate(); !errors.Is(err, ErrInvalidProfile) {
		t.Fatalf("expected ErrInvalidProfile for nil, got %v", err)
	}
}

func TestJourneyTypeValid(t *testing.T) {
	t.Parallel()
	for _, jt := range []JourneyType{PatternFirstJourney, HierarchicalJourney, AssociativeJourney, SpiralJourney} {
		if !jt.Valid() {
			t.Errorf("expected %q to be valid", jt)
		}
	}
	if JourneyType("scenic").Valid() {
		t.Error("expected unknown journey type to be invalid")
	}
}
