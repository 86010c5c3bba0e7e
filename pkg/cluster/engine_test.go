package cluster

import (
	"fmt"
	"testing"

	"github.com/pathweave/pathweave/pkg/graph"
	"github.com/pathweave/pathweave/pkg/types"
)

// twoCommunities builds a graph with two dense groups joined by one weak
// bridge edge.
func twoCommunities() *graph.Graph {
	g := graph.New("test")
	groupA := []string{"a1", "a2", "a3", "a4"}
	groupB := []string{"b1", "b2", "b3", "b4"}
	for _, id := range append(append([]string{}, groupA...), groupB...) {
		g.Nodes[id] = &types.Concept{ID: id, Label: id, Confidence: 0.9, Importance: 0.5}
	}
	edge := func(id, src, tgt string, strength float64) {
		g.Edges[id] = &types.Relation{
			ID: id, SourceID: src, TargetID: tgt,
			Type: types.AssociativeRelation, Confidence: 0.9, Strength: strength,
		}
	}
	n := 0
	dense := func(group []string) {
		for i := range group {
			for j := i + 1; j < len(group); j++ {
				n++
				edge(fmt.Sprintf("e%d", n), group[i], group[j], 0.9)
			}
		}
	}
	dense(groupA)
	dense(groupB)
	edge("bridge", "a1", "b1", 0.05)
	return g
}

func memberSet(clusters []types.Cluster) map[string]string {
	out := make(map[string]string)
	for _, cl := range clusters {
		for _, m := range cl.Members {
			out[m] = cl.ID
		}
	}
	return out
}

func TestPartitionSeparatesCommunities(t *testing.T) {
	t.Parallel()
	g := twoCommunities()
	clusters := NewEngine(0, 0, nil).Partition(g, nil)

	if len(clusters) != 2 {
		t.Fatalf("expected 2 clusters, got %d", len(clusters))
	}
	byMember := memberSet(clusters)
	if byMember["a1"] != byMember["a4"] {
		t.Error("dense group A split across clusters")
	}
	if byMember["b1"] != byMember["b4"] {
		t.Error("dense group B split across clusters")
	}
	if byMember["a1"] == byMember["b1"] {
		t.Error("bridge edge merged the two communities")
	}
}

func TestPartitionIsExact(t *testing.T) {
	t.Parallel()
	g := twoCommunities()
	// Isolated node must land in a singleton cluster, not be dropped.
	g.Nodes["lonely"] = &types.Concept{ID: "lonely", Label: "lonely", Confidence: 0.9}

	clusters := NewEngine(0, 0, nil).Partition(g, nil)

	seen := make(map[string]int)
	for _, cl := range clusters {
		for _, m := range cl.Members {
			seen[m]++
		}
	}
	if len(seen) != len(g.Nodes) {
		t.Fatalf("partition covers %d of %d nodes", len(seen), len(g.Nodes))
	}
	for id, count := range seen {
		if count != 1 {
			t.Errorf("node %s appears in %d clusters", id, count)
		}
	}
}

func TestPartitionDeterministic(t *testing.T) {
	t.Parallel()
	engine := NewEngine(0, 0, nil)
	first := engine.Partition(twoCommunities(), nil)
	second := engine.Partition(twoCommunities(), nil)

	if len(first) != len(second) {
		t.Fatalf("cluster count differs: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID || len(first[i].Members) != len(second[i].Members) {
			t.Errorf("cluster %d differs between runs", i)
		}
	}
}

func TestPartitionKMaxMerges(t *testing.T) {
	t.Parallel()
	g := twoCommunities()
	clusters := NewEngine(0, 1, nil).Partition(g, nil)
	if len(clusters) != 1 {
		t.Fatalf("expected kMax=1 to force a single cluster, got %d", len(clusters))
	}
	if len(clusters[0].Members) != len(g.Nodes) {
		t.Error("merged cluster must contain every node")
	}
}

func TestPartitionKMinSplits(t *testing.T) {
	t.Parallel()
	g := twoCommunities()
	clusters := NewEngine(3, 0, nil).Partition(g, nil)
	if len(clusters) < 3 {
		t.Fatalf("expected kMin=3 to force a split, got %d clusters", len(clusters))
	}

	seen := make(map[string]bool)
	for _, cl := range clusters {
		for _, m := range cl.Members {
			if seen[m] {
				t.Fatalf("node %s duplicated after split", m)
			}
			seen[m] = true
		}
	}
	if len(seen) != len(g.Nodes) {
		t.Error("split must keep the partition exact")
	}
}

func TestPartitionSeededFromPrior(t *testing.T) {
	t.Parallel()
	engine := NewEngine(0, 0, nil)
	g := twoCommunities()
	prior := engine.Partition(g, nil)

	// A small addition attached to group A should leave group B untouched.
	g2 := twoCommunities()
	g2.Nodes["a5"] = &types.Concept{ID: "a5", Label: "a5", Confidence: 0.9}
	g2.Edges["new"] = &types.Relation{
		ID: "new", SourceID: "a1", TargetID: "a5",
		Type: types.AssociativeRelation, Confidence: 0.9, Strength: 0.9,
	}
	next := engine.Partition(g2, prior)

	byMember := memberSet(next)
	if byMember["b1"] != byMember["b4"] {
		t.Error("incremental update disturbed the unaffected community")
	}
	if byMember["a5"] != byMember["a1"] {
		t.Error("new node should join the community it attaches to")
	}
}

func TestRepresentativeLabelFromImportance(t *testing.T) {
	t.Parallel()
	g := twoCommunities()
	g.Nodes["a2"].Importance = 0.99
	g.Nodes["a2"].Label = "Anchor Topic"

	clusters := NewEngine(0, 0, nil).Partition(g, nil)
	found := false
	for _, cl := range clusters {
		for _, m := range cl.Members {
			if m == "a2" {
				found = true
				if cl.Label != "Anchor Topic" {
					t.Errorf("expected cluster labeled by most important member, got %q", cl.Label)
				}
			}
		}
	}
	if !found {
		t.Fatal("a2 missing from partition")
	}
}
