// Package types defines the core data types for the pathweave concept graph.
//
// This package contains the fundamental types used throughout pathweave:
//   - Concept: A typed node in the knowledge graph
//   - Relation: A typed edge between two concepts
//   - Document: One unit of extracted concept and relation candidates
//   - Journey/JourneyStep: An ordered learning path through the graph
//   - UserProfile/Interaction: Per-user personalization state and feedback
//
// # Relation Types
//
// Relations carry one of five types: prerequisite, associative, causal,
// comparative, and hierarchical. Prerequisite, causal, and hierarchical
// relations are directed; the others are symmetric.
//
// # Validation
//
// Types provide Validate() methods for input validation:
//
//	doc := types.Document{ID: "doc-1", ...}
//	if err := doc.Validate(); err != nil {
//	    // Handle validation error
//	}
//
// # JSON Serialization
//
// All types are designed to be JSON-serializable with appropriate struct tags.
package types
