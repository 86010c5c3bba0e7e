package graph

import (
	"log/slog"
	"math"
	"sort"

	"github.com/pathweave/pathweave/pkg/types"
)

const (
	// ExactCentralityLimit is the node count above which harmonic centrality
	// switches from exact all-pairs BFS to a sampled approximation.
	ExactCentralityLimit = 2000
	// CentralitySampleSize is the number of BFS sources used above the limit.
	CentralitySampleSize = 128
	// demotionFactor scales the strength of relations that lost a type
	// conflict on their pair.
	demotionFactor = 0.25
)

// Annotator computes derived per-node and per-edge metrics. Annotation is a
// pure function of graph structure: re-annotating an unchanged graph yields
// identical scores, including on the sampled path, because sampling picks a
// deterministic slice of the sorted node ids.
type Annotator struct {
	logger *slog.Logger
}

// NewAnnotator creates an annotator.
func NewAnnotator(logger *slog.Logger) *Annotator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Annotator{logger: logger}
}

// Annotate computes edge strength, node importance, and complexity depth on
// the (unpublished) graph in place. Prerequisite cycles are broken by
// dropping the lowest-confidence edge in the cycle; this is logged and never
// fails the pipeline.
func (a *Annotator) Annotate(g *Graph) error {
	a.annotateStrength(g)
	a.breakPrerequisiteCycles(g)
	a.annotateImportance(g)
	a.annotateDepth(g)
	return nil
}

// annotateStrength normalizes edge strength to [0,1] from confidence and
// co-occurrence count. A single observation contributes half its confidence;
// repeated observations asymptotically approach it.
func (a *Annotator) annotateStrength(g *Graph) {
	for _, e := range g.Edges {
		co := float64(e.Cooccurrence)
		if co < 1 {
			co = 1
		}
		strength := e.Confidence * (co / (co + 1))
		if e.Demoted {
			strength *= demotionFactor
		}
		e.Strength = math.Min(1, math.Max(0, strength))
	}
}

// annotateImportance blends degree centrality with harmonic closeness.
func (a *Annotator) annotateImportance(g *Graph) {
	n := len(g.Nodes)
	if n == 0 {
		return
	}
	if n == 1 {
		for _, node := range g.Nodes {
			node.Importance = 0
		}
		return
	}

	ids := sortedNodeIDs(g)

	sources := ids
	if n > ExactCentralityLimit {
		// Deterministic sample: an evenly spaced slice of the sorted ids.
		stride := n / CentralitySampleSize
		if stride < 1 {
			stride = 1
		}
		sources = sources[:0:0]
		for i := 0; i < n; i += stride {
			sources = append(sources, ids[i])
		}
		a.logger.Debug("sampling centrality sources", "nodes", n, "sources", len(sources))
	}

	harmonic := make(map[string]float64, n)
	for _, src := range sources {
		for id, d := range g.HopDistances(src, n) {
			if id == src || d == 0 {
				continue
			}
			harmonic[id] += 1 / float64(d)
		}
	}

	maxHarmonic := 0.0
	for _, h := range harmonic {
		if h > maxHarmonic {
			maxHarmonic = h
		}
	}

	for _, id := range ids {
		degree := float64(len(g.Neighbors(id))) / float64(n-1)
		closeness := 0.0
		if maxHarmonic > 0 {
			closeness = harmonic[id] / maxHarmonic
		}
		g.Nodes[id].Importance = 0.5*degree + 0.5*closeness
	}
}

// annotateDepth layers nodes topologically along prerequisite edges. Roots
// with no incoming prerequisite sit at depth 0; every other node sits one
// layer below its deepest prerequisite.
func (a *Annotator) annotateDepth(g *Graph) {
	incoming := make(map[string]int, len(g.Nodes))
	outgoing := make(map[string][]string, len(g.Nodes))
	for id := range g.Nodes {
		incoming[id] = 0
	}
	for _, id := range sortedEdgeIDs(g) {
		e := g.Edges[id]
		if e.Type != types.PrerequisiteRelation {
			continue
		}
		incoming[e.TargetID]++
		outgoing[e.SourceID] = append(outgoing[e.SourceID], e.TargetID)
	}

	depth := make(map[string]int, len(g.Nodes))
	var queue []string
	for _, id := range sortedNodeIDs(g) {
		if incoming[id] == 0 {
			queue = append(queue, id)
		}
	}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, next := range outgoing[id] {
			if d := depth[id] + 1; d > depth[next] {
				depth[next] = d
			}
			incoming[next]--
			if incoming[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	for id, node := range g.Nodes {
		node.Depth = depth[id]
	}
}

// breakPrerequisiteCycles removes the lowest-confidence edge of every
// prerequisite cycle until the prerequisite subgraph is acyclic.
func (a *Annotator) breakPrerequisiteCycles(g *Graph) {
	for {
		cycle := findPrerequisiteCycle(g)
		if len(cycle) == 0 {
			return
		}

		weakest := cycle[0]
		for _, e := range cycle[1:] {
			if e.Confidence < weakest.Confidence ||
				(e.Confidence == weakest.Confidence && e.ID < weakest.ID) {
				weakest = e
			}
		}
		delete(g.Edges, weakest.ID)
		g.resetAdjacency()
		a.logger.Warn("prerequisite cycle broken",
			"dropped_edge", weakest.ID,
			"source", weakest.SourceID,
			"target", weakest.TargetID,
			"confidence", weakest.Confidence)
	}
}

func findPrerequisiteCycle(g *Graph) []*types.Relation {
	outgoing := make(map[string][]*types.Relation)
	for _, id := range sortedEdgeIDs(g) {
		e := g.Edges[id]
		if e.Type == types.PrerequisiteRelation {
			outgoing[e.SourceID] = append(outgoing[e.SourceID], e)
		}
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int)
	parentEdge := make(map[string]*types.Relation)

	var cycle []*types.Relation
	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = gray
		for _, e := range outgoing[id] {
			switch color[e.TargetID] {
			case white:
				parentEdge[e.TargetID] = e
				if visit(e.TargetID) {
					return true
				}
			case gray:
				// Back edge closes the cycle; walk parents to collect it.
				cycle = append(cycle, e)
				for at := id; at != e.TargetID; {
					pe := parentEdge[at]
					cycle = append(cycle, pe)
					at = pe.SourceID
				}
				return true
			}
		}
		color[id] = black
		return false
	}

	for _, id := range sortedNodeIDs(g) {
		if color[id] == white {
			if visit(id) {
				return cycle
			}
		}
	}
	return nil
}

func sortedNodeIDs(g *Graph) []string {
	ids := make([]string, 0, len(g.Nodes))
	for id := range g.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func sortedEdgeIDs(g *Graph) []string {
	ids := make([]string, 0, len(g.Edges))
	for id := range g.Edges {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
