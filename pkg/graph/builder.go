package graph

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"

	"github.com/pathweave/pathweave/pkg/types"
)

// DefaultMergeThreshold is the label-similarity threshold above which two
// concept candidates collapse into one node.
const DefaultMergeThreshold = 0.85

// Builder merges extracted concept and relation candidates into a
// deduplicated typed multigraph. Documents are always processed in
// (ingestion timestamp, document id) order, so rebuilding from the same
// inputs yields an isomorphic graph regardless of arrival order.
type Builder struct {
	mergeThreshold float64
	logger         *slog.Logger
}

// NewBuilder creates a builder. A non-positive threshold falls back to the
// default.
func NewBuilder(mergeThreshold float64, logger *slog.Logger) *Builder {
	if mergeThreshold <= 0 {
		mergeThreshold = DefaultMergeThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{mergeThreshold: mergeThreshold, logger: logger}
}

// mergeIndexes holds the lookup structures that drive concept deduplication,
// built once per merge run and kept current as nodes are added.
type mergeIndexes struct {
	byNormalized map[string]string   // normalized label -> node id
	shinglesByID map[string][]string // node id -> shingles
	lshBuckets   map[string][]string // band key -> node ids
}

func newMergeIndexes(g *Graph) *mergeIndexes {
	idx := &mergeIndexes{
		byNormalized: make(map[string]string),
		shinglesByID: make(map[string][]string),
		lshBuckets:   make(map[string][]string),
	}
	ids := make([]string, 0, len(g.Nodes))
	for id := range g.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		idx.index(g.Nodes[id])
	}
	return idx
}

func (idx *mergeIndexes) index(node *types.Concept) {
	normalized := NormalizeLabel(node.Label)
	idx.byNormalized[normalized] = node.ID
	for _, alias := range node.Aliases {
		key := NormalizeLabel(alias)
		if _, taken := idx.byNormalized[key]; !taken {
			idx.byNormalized[key] = node.ID
		}
	}

	sh := CachedShingles(normalized)
	idx.shinglesByID[node.ID] = sh
	for _, bandKey := range LSHBandKeys(MinHashSignature(sh)) {
		idx.lshBuckets[bandKey] = append(idx.lshBuckets[bandKey], node.ID)
	}
}

// resolve finds the node a candidate label should merge into: exact
// normalized match first, then the best fuzzy match at or above the merge
// threshold. Returns empty when the label is new.
func (idx *mergeIndexes) resolve(label string, threshold float64) string {
	normalized := NormalizeLabel(label)
	if id, ok := idx.byNormalized[normalized]; ok {
		return id
	}

	sh := CachedShingles(normalized)
	candidates := make(map[string]bool)
	for _, bandKey := range LSHBandKeys(MinHashSignature(sh)) {
		for _, id := range idx.lshBuckets[bandKey] {
			candidates[id] = true
		}
	}

	bestID := ""
	bestScore := 0.0
	ids := make([]string, 0, len(candidates))
	for id := range candidates {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		score := JaccardSimilarity(sh, idx.shinglesByID[id])
		if score > bestScore {
			bestScore = score
			bestID = id
		}
	}
	if bestScore >= threshold {
		return bestID
	}
	return ""
}

// conceptID derives a stable node id from the normalized label of the first
// observation that created the node. Deterministic processing order makes
// ids reproducible across rebuilds.
func conceptID(normalizedLabel string) string {
	sum := sha256.Sum256([]byte("concept:" + normalizedLabel))
	return "c-" + hex.EncodeToString(sum[:8])
}

// relationID derives a stable edge id from the identity triple.
func relationID(sourceID, targetID string, t types.RelationType) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("relation:%s:%s:%s", sourceID, targetID, t)))
	return "r-" + hex.EncodeToString(sum[:8])
}

// directedType reports whether a relation type carries direction.
func directedType(t types.RelationType) bool {
	switch t {
	case types.PrerequisiteRelation, types.CausalRelation, types.HierarchicalRelation:
		return true
	}
	return false
}

// Merge folds the documents' candidates into the graph in place. The graph
// passed in must be an unpublished clone; the Store's Update serializes
// callers. Edge-sparse output and isolated nodes are warnings, not failures.
func (b *Builder) Merge(g *Graph, docs []types.Document) error {
	for i := range docs {
		if err := docs[i].Validate(); err != nil {
			return fmt.Errorf("document %s: %w", docs[i].ID, err)
		}
	}

	ordered := append([]types.Document(nil), docs...)
	sort.Slice(ordered, func(i, j int) bool {
		if !ordered[i].IngestedAt.Equal(ordered[j].IngestedAt) {
			return ordered[i].IngestedAt.Before(ordered[j].IngestedAt)
		}
		return ordered[i].ID < ordered[j].ID
	})

	idx := newMergeIndexes(g)
	for _, doc := range ordered {
		b.mergeDocument(g, idx, doc)
	}

	if isolated := b.countIsolated(g); isolated > 0 {
		b.logger.Warn("graph has isolated concepts after merge",
			"isolated", isolated, "nodes", len(g.Nodes), "edges", len(g.Edges))
	}
	return nil
}

func (b *Builder) mergeDocument(g *Graph, idx *mergeIndexes, doc types.Document) {
	for _, cand := range doc.Concepts {
		b.mergeConcept(g, idx, doc, cand)
	}
	for _, cand := range doc.Relations {
		b.mergeRelation(g, idx, doc, cand)
	}
}

func (b *Builder) mergeConcept(g *Graph, idx *mergeIndexes, doc types.Document, cand types.ConceptCandidate) {
	sourceRef := cand.SourceRef
	if sourceRef == "" {
		sourceRef = doc.ID
	}

	if id := idx.resolve(cand.Label, b.mergeThreshold); id != "" {
		node := g.Nodes[id]
		// Highest-confidence label wins the canonical slot; the losing
		// surface form is retained verbatim as an alias, even when both
		// normalize to the same key.
		if cand.Confidence > node.Confidence {
			if cand.Label != node.Label {
				node.Aliases = appendUnique(node.Aliases, node.Label)
			}
			node.Aliases = dropValue(node.Aliases, cand.Label)
			node.Label = cand.Label
			node.Confidence = cand.Confidence
			if cand.Description != "" {
				node.Description = cand.Description
			}
		} else if cand.Label != node.Label {
			node.Aliases = appendUnique(node.Aliases, cand.Label)
		}
		if node.Domain == "" {
			node.Domain = cand.Domain
		}
		node.SourceRefs = appendUnique(node.SourceRefs, sourceRef)
		node.UpdatedAt = doc.IngestedAt
		idx.index(node)
		return
	}

	normalized := NormalizeLabel(cand.Label)
	node := &types.Concept{
		ID:          conceptID(normalized),
		Label:       cand.Label,
		Description: cand.Description,
		Domain:      cand.Domain,
		Confidence:  cand.Confidence,
		SourceRefs:  []string{sourceRef},
		CreatedAt:   doc.IngestedAt,
		UpdatedAt:   doc.IngestedAt,
	}
	g.Nodes[node.ID] = node
	idx.index(node)
}

func (b *Builder) mergeRelation(g *Graph, idx *mergeIndexes, doc types.Document, cand types.RelationCandidate) {
	sourceID := idx.resolve(cand.Source, b.mergeThreshold)
	targetID := idx.resolve(cand.Target, b.mergeThreshold)
	if sourceID == "" || targetID == "" {
		b.logger.Warn("relation references unknown concept",
			"document", doc.ID, "source", cand.Source, "target", cand.Target)
		return
	}
	if sourceID == targetID {
		// Candidates whose endpoints merged into the same node become
		// self-loops and are discarded.
		b.logger.Debug("dropping self-loop relation", "document", doc.ID, "concept", sourceID)
		return
	}

	id := relationID(sourceID, targetID, cand.Type)
	if existing, ok := g.Edges[id]; ok {
		existing.Cooccurrence++
		if cand.Confidence > existing.Confidence {
			existing.Confidence = cand.Confidence
		}
		if cand.Evidence != "" {
			existing.Evidence = appendUnique(existing.Evidence, cand.Evidence)
		}
	} else {
		edge := &types.Relation{
			ID:           id,
			SourceID:     sourceID,
			TargetID:     targetID,
			Type:         cand.Type,
			Confidence:   cand.Confidence,
			Directed:     directedType(cand.Type),
			Cooccurrence: 1,
			CreatedAt:    doc.IngestedAt,
		}
		if cand.Evidence != "" {
			edge.Evidence = []string{cand.Evidence}
		}
		g.Edges[id] = edge
	}

	b.resolveTypeConflict(g, sourceID, targetID)
}

// resolveTypeConflict keeps the highest-confidence type on a pair as the
// edge of record and demotes the rest to low-strength edges of their own
// type, preserving provenance instead of discarding it.
func (b *Builder) resolveTypeConflict(g *Graph, sourceID, targetID string) {
	var pair []*types.Relation
	for _, t := range types.RelationTypes {
		if e, ok := g.Edges[relationID(sourceID, targetID, t)]; ok {
			pair = append(pair, e)
		}
	}
	if len(pair) < 2 {
		if len(pair) == 1 {
			pair[0].Demoted = false
		}
		return
	}

	record := pair[0]
	for _, e := range pair[1:] {
		if e.Confidence > record.Confidence {
			record = e
		}
	}
	for _, e := range pair {
		e.Demoted = e != record
	}
}

func (b *Builder) countIsolated(g *Graph) int {
	connected := make(map[string]bool, len(g.Nodes))
	for _, e := range g.Edges {
		connected[e.SourceID] = true
		connected[e.TargetID] = true
	}
	isolated := 0
	for id := range g.Nodes {
		if !connected[id] {
			isolated++
		}
	}
	return isolated
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

// dropValue removes v so a promoted label never lingers in its own aliases.
func dropValue(list []string, v string) []string {
	out := list[:0]
	for _, existing := range list {
		if existing != v {
			out = append(out, existing)
		}
	}
	return out
}
