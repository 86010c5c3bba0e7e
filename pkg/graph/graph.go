package graph

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/pathweave/pathweave/pkg/types"
)

// Neighbor is one adjacency entry of a concept node.
type Neighbor struct {
	NodeID   string
	EdgeID   string
	Type     types.RelationType
	Strength float64
	// Outgoing is true when the edge leaves this node. Undirected edges
	// appear in both directions with Outgoing set on the source side.
	Outgoing bool
}

// Graph is one immutable version of the concept graph. Mutation happens by
// cloning, transforming, and publishing through a Store; readers holding a
// *Graph never observe changes.
type Graph struct {
	Version     uint64                     `json:"version"`
	MaterialSet string                     `json:"material_set"`
	Nodes       map[string]*types.Concept  `json:"nodes"`
	Edges       map[string]*types.Relation `json:"edges"`
	Clusters    []types.Cluster            `json:"clusters"`

	adjOnce sync.Once
	adj     map[string][]Neighbor
}

// New returns an empty graph for the given material set at version zero.
func New(materialSet string) *Graph {
	return &Graph{
		MaterialSet: materialSet,
		Nodes:       make(map[string]*types.Concept),
		Edges:       make(map[string]*types.Relation),
	}
}

// Node returns the concept with the given id, or types.ErrNodeNotFound.
func (g *Graph) Node(id string) (*types.Concept, error) {
	node, ok := g.Nodes[id]
	if !ok {
		return nil, fmt.Errorf("concept %s: %w", id, types.ErrNodeNotFound)
	}
	return node, nil
}

// Neighbors returns the adjacency list of a node, sorted by edge id for
// deterministic traversal. The list is built once per graph version.
func (g *Graph) Neighbors(id string) []Neighbor {
	g.adjOnce.Do(g.buildAdjacency)
	return g.adj[id]
}

// resetAdjacency drops the cached adjacency list. Only legal on an
// unpublished graph held exclusively by a writer.
func (g *Graph) resetAdjacency() {
	g.adjOnce = sync.Once{}
	g.adj = nil
}

func (g *Graph) buildAdjacency() {
	adj := make(map[string][]Neighbor, len(g.Nodes))
	ids := make([]string, 0, len(g.Edges))
	for id := range g.Edges {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		e := g.Edges[id]
		adj[e.SourceID] = append(adj[e.SourceID], Neighbor{
			NodeID: e.TargetID, EdgeID: e.ID, Type: e.Type, Strength: e.Strength, Outgoing: true,
		})
		adj[e.TargetID] = append(adj[e.TargetID], Neighbor{
			NodeID: e.SourceID, EdgeID: e.ID, Type: e.Type, Strength: e.Strength, Outgoing: false,
		})
	}
	g.adj = adj
}

// HopDistances runs a bounded breadth-first search from the given node and
// returns hop counts for every node within maxHops.
func (g *Graph) HopDistances(from string, maxHops int) map[string]int {
	dist := map[string]int{from: 0}
	frontier := []string{from}

	for hop := 1; hop <= maxHops && len(frontier) > 0; hop++ {
		var next []string
		for _, id := range frontier {
			for _, n := range g.Neighbors(id) {
				if _, seen := dist[n.NodeID]; seen {
					continue
				}
				dist[n.NodeID] = hop
				next = append(next, n.NodeID)
			}
		}
		frontier = next
	}
	return dist
}

// ClusterOf returns the cluster containing the node, or nil when the graph
// has not been clustered yet.
func (g *Graph) ClusterOf(nodeID string) *types.Cluster {
	for i := range g.Clusters {
		for _, m := range g.Clusters[i].Members {
			if m == nodeID {
				return &g.Clusters[i]
			}
		}
	}
	return nil
}

// Clone returns a deep copy with the same version. Callers bump the version
// before publishing.
func (g *Graph) Clone() *Graph {
	out := New(g.MaterialSet)
	out.Version = g.Version
	for id, n := range g.Nodes {
		c := *n
		c.Aliases = append([]string(nil), n.Aliases...)
		c.SourceRefs = append([]string(nil), n.SourceRefs...)
		out.Nodes[id] = &c
	}
	for id, e := range g.Edges {
		r := *e
		r.Evidence = append([]string(nil), e.Evidence...)
		out.Edges[id] = &r
	}
	for _, cl := range g.Clusters {
		out.Clusters = append(out.Clusters, types.Cluster{
			ID: cl.ID, Label: cl.Label, Members: append([]string(nil), cl.Members...),
		})
	}
	return out
}

// Checksum returns a stable hash over the graph's structural content. It is
// independent of map iteration order.
func (g *Graph) Checksum() string {
	h := sha256.New()
	fmt.Fprintf(h, "v=%d;ms=%s;", g.Version, g.MaterialSet)

	nodeIDs := make([]string, 0, len(g.Nodes))
	for id := range g.Nodes {
		nodeIDs = append(nodeIDs, id)
	}
	sort.Strings(nodeIDs)
	for _, id := range nodeIDs {
		n := g.Nodes[id]
		fmt.Fprintf(h, "n:%s|%s|%.6f|%.6f|%d;", n.ID, n.Label, n.Confidence, n.Importance, n.Depth)
	}

	edgeIDs := make([]string, 0, len(g.Edges))
	for id := range g.Edges {
		edgeIDs = append(edgeIDs, id)
	}
	sort.Strings(edgeIDs)
	for _, id := range edgeIDs {
		e := g.Edges[id]
		fmt.Fprintf(h, "e:%s|%s|%s|%s|%.6f|%.6f|%t;", e.ID, e.SourceID, e.TargetID, e.Type, e.Confidence, e.Strength, e.Demoted)
	}

	for _, cl := range g.Clusters {
		fmt.Fprintf(h, "c:%s|%s|%v;", cl.ID, cl.Label, cl.Members)
	}

	return hex.EncodeToString(h.Sum(nil))
}

// Store publishes immutable graph versions. All mutation is single-writer:
// Update calls are serialized, and a new version becomes visible only once
// the transform completes.
type Store struct {
	mu      sync.Mutex
	current atomic.Pointer[Graph]
}

// NewStore creates a store holding the given initial graph.
func NewStore(initial *Graph) *Store {
	s := &Store{}
	if initial == nil {
		initial = New("")
	}
	s.current.Store(initial)
	return s
}

// Snapshot returns the current published graph. The returned graph is
// immutable; readers keep using it even while a newer version is published.
func (s *Store) Snapshot() *Graph {
	return s.current.Load()
}

// Update clones the current graph, applies the transform, bumps the version,
// and publishes the result. A failed transform publishes nothing.
func (s *Store) Update(transform func(g *Graph) error) (*Graph, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.current.Load().Clone()
	if err := transform(next); err != nil {
		return nil, err
	}
	next.Version++
	s.current.Store(next)
	return next, nil
}

// Replace swaps in a fully built graph (e.g. loaded from persistence) as the
// current version.
func (s *Store) Replace(g *Graph) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current.Store(g)
}
