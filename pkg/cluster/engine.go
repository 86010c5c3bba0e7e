// Package cluster partitions the concept graph into topical communities
// using weighted label propagation over an undirected, strength-weighted
// projection. Cluster count is steered into configured bounds by
// modularity-guided merging and splitting rather than fixed in advance.
package cluster

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/pathweave/pathweave/pkg/graph"
	"github.com/pathweave/pathweave/pkg/types"
)

const maxIterations = 100

// Engine runs community detection. The zero bounds disable the respective
// constraint.
type Engine struct {
	kMin   int
	kMax   int
	logger *slog.Logger
}

// NewEngine creates an engine with cluster-count bounds [kMin, kMax].
func NewEngine(kMin, kMax int, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{kMin: kMin, kMax: kMax, logger: logger}
}

// Partition detects communities on the graph. When prior is non-empty the
// propagation is seeded from it, so small graph changes leave unaffected
// regions in their previous cluster. The result always partitions the node
// set exactly: every node appears in exactly one cluster, singletons
// included.
func (e *Engine) Partition(g *graph.Graph, prior []types.Cluster) []types.Cluster {
	ids := sortedNodeIDs(g)
	if len(ids) == 0 {
		return nil
	}

	labels := e.seedLabels(ids, prior)
	e.propagate(g, ids, labels)

	clusters := collect(g, ids, labels)
	clusters = e.enforceBounds(g, clusters)

	for i := range clusters {
		clusters[i].Label = representativeLabel(g, clusters[i].Members)
		clusters[i].ID = fmt.Sprintf("cl-%s", lowestMember(clusters[i].Members))
	}
	sort.Slice(clusters, func(i, j int) bool { return clusters[i].ID < clusters[j].ID })

	e.logger.Debug("partitioned graph", "nodes", len(ids), "clusters", len(clusters))
	return clusters
}

// seedLabels initializes every node to its own label, then overlays the
// prior partition where members still exist.
func (e *Engine) seedLabels(ids []string, prior []types.Cluster) map[string]int {
	labels := make(map[string]int, len(ids))
	for i, id := range ids {
		labels[id] = i
	}
	if len(prior) == 0 {
		return labels
	}

	next := len(ids)
	for _, cl := range prior {
		label := next
		next++
		for _, m := range cl.Members {
			if _, ok := labels[m]; ok {
				labels[m] = label
			}
		}
	}
	return labels
}

// propagate runs weighted label propagation to convergence. Nodes adopt the
// label with the highest total incident strength among neighbors; ties break
// toward the lower label for determinism.
func (e *Engine) propagate(g *graph.Graph, ids []string, labels map[string]int) {
	for iteration := 0; iteration < maxIterations; iteration++ {
		changed := false
		for _, id := range ids {
			weights := make(map[int]float64)
			for _, n := range g.Neighbors(id) {
				weights[labels[n.NodeID]] += edgeWeight(n)
			}
			if len(weights) == 0 {
				continue
			}

			best := labels[id]
			bestWeight := weights[best]
			for label, w := range weights {
				if w > bestWeight || (w == bestWeight && label < best) {
					best = label
					bestWeight = w
				}
			}
			if best != labels[id] {
				labels[id] = best
				changed = true
			}
		}
		if !changed {
			return
		}
	}
}

func edgeWeight(n graph.Neighbor) float64 {
	if n.Strength > 0 {
		return n.Strength
	}
	// Un-annotated graphs project every edge at unit weight.
	return 1
}

func collect(g *graph.Graph, ids []string, labels map[string]int) []types.Cluster {
	byLabel := make(map[int][]string)
	for _, id := range ids {
		byLabel[labels[id]] = append(byLabel[labels[id]], id)
	}

	order := make([]int, 0, len(byLabel))
	for label := range byLabel {
		order = append(order, label)
	}
	sort.Ints(order)

	clusters := make([]types.Cluster, 0, len(order))
	for _, label := range order {
		members := byLabel[label]
		sort.Strings(members)
		clusters = append(clusters, types.Cluster{Members: members})
	}
	return clusters
}

// enforceBounds merges the weakest clusters while above kMax and splits the
// largest while below kMin, keeping the partition exact throughout.
func (e *Engine) enforceBounds(g *graph.Graph, clusters []types.Cluster) []types.Cluster {
	for e.kMax > 0 && len(clusters) > e.kMax {
		clusters = mergeBestPair(g, clusters)
	}
	for e.kMin > 0 && len(clusters) < e.kMin {
		split, ok := splitLargest(g, clusters)
		if !ok {
			break
		}
		clusters = split
	}
	return clusters
}

// mergeBestPair folds the smallest cluster into the neighbor cluster it
// shares the most inter-cluster strength with (modularity delta is dominated
// by that shared weight). With no connected neighbor it merges into the next
// smallest cluster.
func mergeBestPair(g *graph.Graph, clusters []types.Cluster) []types.Cluster {
	smallest := 0
	for i := range clusters {
		if len(clusters[i].Members) < len(clusters[smallest].Members) {
			smallest = i
		}
	}

	memberOf := make(map[string]int)
	for i := range clusters {
		for _, m := range clusters[i].Members {
			memberOf[m] = i
		}
	}

	shared := make(map[int]float64)
	for _, m := range clusters[smallest].Members {
		for _, n := range g.Neighbors(m) {
			if other := memberOf[n.NodeID]; other != smallest {
				shared[other] += edgeWeight(n)
			}
		}
	}

	target := -1
	bestWeight := 0.0
	for other, w := range shared {
		if w > bestWeight || (w == bestWeight && (target == -1 || other < target)) {
			target = other
			bestWeight = w
		}
	}
	if target == -1 {
		for i := range clusters {
			if i == smallest {
				continue
			}
			if target == -1 || len(clusters[i].Members) < len(clusters[target].Members) {
				target = i
			}
		}
	}

	merged := append(clusters[target].Members, clusters[smallest].Members...)
	sort.Strings(merged)
	clusters[target].Members = merged

	out := make([]types.Cluster, 0, len(clusters)-1)
	for i := range clusters {
		if i != smallest {
			out = append(out, clusters[i])
		}
	}
	return out
}

// splitLargest carves the largest cluster in two around its two
// highest-importance members, assigning each remaining member to the seed it
// is better connected to. Returns false when no cluster is splittable.
func splitLargest(g *graph.Graph, clusters []types.Cluster) ([]types.Cluster, bool) {
	largest := -1
	for i := range clusters {
		if len(clusters[i].Members) < 2 {
			continue
		}
		if largest == -1 || len(clusters[i].Members) > len(clusters[largest].Members) {
			largest = i
		}
	}
	if largest == -1 {
		return clusters, false
	}

	members := clusters[largest].Members
	seedA, seedB := topTwoByImportance(g, members)

	inCluster := make(map[string]bool, len(members))
	for _, m := range members {
		inCluster[m] = true
	}

	groupA := []string{seedA}
	groupB := []string{seedB}
	for _, m := range members {
		if m == seedA || m == seedB {
			continue
		}
		var toA, toB float64
		for _, n := range g.Neighbors(m) {
			if !inCluster[n.NodeID] {
				continue
			}
			if n.NodeID == seedA {
				toA += edgeWeight(n)
			}
			if n.NodeID == seedB {
				toB += edgeWeight(n)
			}
		}
		if toB > toA {
			groupB = append(groupB, m)
		} else {
			groupA = append(groupA, m)
		}
	}

	sort.Strings(groupA)
	sort.Strings(groupB)
	clusters[largest].Members = groupA
	return append(clusters, types.Cluster{Members: groupB}), true
}

func topTwoByImportance(g *graph.Graph, members []string) (string, string) {
	ordered := append([]string(nil), members...)
	sort.Slice(ordered, func(i, j int) bool {
		a, b := g.Nodes[ordered[i]], g.Nodes[ordered[j]]
		if a.Importance != b.Importance {
			return a.Importance > b.Importance
		}
		return ordered[i] < ordered[j]
	})
	return ordered[0], ordered[1]
}

// representativeLabel takes the cluster label from its highest-importance
// member.
func representativeLabel(g *graph.Graph, members []string) string {
	best := ""
	bestImportance := -1.0
	for _, m := range members {
		node, ok := g.Nodes[m]
		if !ok {
			continue
		}
		if node.Importance > bestImportance || (node.Importance == bestImportance && m < best) {
			best = m
			bestImportance = node.Importance
		}
	}
	if best == "" {
		return ""
	}
	return g.Nodes[best].Label
}

func lowestMember(members []string) string {
	if len(members) == 0 {
		return ""
	}
	lowest := members[0]
	for _, m := range members[1:] {
		if m < lowest {
			lowest = m
		}
	}
	return lowest
}

func sortedNodeIDs(g *graph.Graph) []string {
	ids := make([]string, 0, len(g.Nodes))
	for id := range g.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
