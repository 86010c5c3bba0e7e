// Package journey plans personalized learning journeys over an annotated
// concept graph. A plan runs as a small state machine; every phase is
// deterministic given the graph version, the profile signature, and the
// journey type, so identical requests produce identical journeys.
package journey

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/pathweave/pathweave/pkg/content"
	"github.com/pathweave/pathweave/pkg/graph"
	"github.com/pathweave/pathweave/pkg/types"
)

// State names the planner phases, in order.
type State string

const (
	StateInit               State = "INIT"
	StateScopeSelection     State = "SCOPE_SELECTION"
	StateCandidateExpansion State = "CANDIDATE_EXPANSION"
	StateOrdering           State = "ORDERING"
	StateContentBinding     State = "CONTENT_BINDING"
	StateDone               State = "DONE"
	StateFailed             State = "FAILED"
)

// Config tunes the planner. Zero values fall back to the defaults below.
type Config struct {
	// HopRadius bounds scope selection around the focal concept.
	HopRadius int
	// MaxScope caps how many concepts scope selection may admit.
	MaxScope int
	// TargetLength is the number of steps a journey aims for.
	TargetLength int
	// MaxDepthJump is the base complexity-gradient bound; the user's
	// tolerance widens it.
	MaxDepthJump int
	// Epsilon is the score margin within which candidates count as
	// alternatives at a decision point.
	Epsilon float64
	// MinScore stops expansion once no remaining candidate clears it.
	// Zero disables the bound.
	MinScore float64
	// SpiralCore is how many high-importance concepts a spiral journey
	// revisits.
	SpiralCore int
	// DiversityBonus rewards switching clusters between consecutive steps.
	DiversityBonus float64
	// VisitedPenalty discounts concepts the user has already been shown.
	VisitedPenalty float64
}

const (
	DefaultHopRadius    = 2
	DefaultMaxScope     = 20
	DefaultTargetLength = 10
	DefaultMaxDepthJump = 1
	DefaultEpsilon      = 0.05
	DefaultSpiralCore   = 3
)

func (c Config) withDefaults() Config {
	if c.HopRadius <= 0 {
		c.HopRadius = DefaultHopRadius
	}
	if c.MaxScope <= 0 {
		c.MaxScope = DefaultMaxScope
	}
	if c.TargetLength <= 0 {
		c.TargetLength = DefaultTargetLength
	}
	if c.MaxDepthJump <= 0 {
		c.MaxDepthJump = DefaultMaxDepthJump
	}
	if c.Epsilon <= 0 {
		c.Epsilon = DefaultEpsilon
	}
	if c.SpiralCore <= 0 {
		c.SpiralCore = DefaultSpiralCore
	}
	if c.DiversityBonus <= 0 {
		c.DiversityBonus = 0.1
	}
	if c.VisitedPenalty <= 0 {
		c.VisitedPenalty = 0.2
	}
	return c
}

// Planner turns a focal concept plus a user profile into an ordered,
// content-bound journey.
type Planner struct {
	cfg    Config
	binder content.Binder
	logger *slog.Logger
}

// NewPlanner creates a planner. binder may be nil, in which case every step
// is bound to placeholder content.
func NewPlanner(cfg Config, binder content.Binder, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{cfg: cfg.withDefaults(), binder: binder, logger: logger}
}

// candidate is one concept picked during expansion, with the trail of how it
// was picked.
type candidate struct {
	nodeID       string
	viaEdgeID    string
	alternatives []string
}

// Plan generates a journey of the given type around the focal concept. The
// graph must be a published immutable snapshot; the planner never mutates it
// or the profile.
func (p *Planner) Plan(ctx context.Context, g *graph.Graph, focalID string, profile *types.UserProfile, jt types.JourneyType) (*types.Journey, error) {
	state := StateInit
	fail := func(err error) (*types.Journey, error) {
		p.logger.Warn("journey planning failed", "state", string(state), "focal", focalID, "error", err)
		return nil, fmt.Errorf("journey planning in state %s: %w", state, err)
	}

	if !jt.Valid() {
		return fail(fmt.Errorf("unknown journey type %q", jt))
	}
	if err := profile.Validate(); err != nil {
		return fail(err)
	}
	if _, err := g.Node(focalID); err != nil {
		return fail(err)
	}

	state = StateScopeSelection
	scope := p.selectScope(g, focalID)
	if len(scope) == 0 {
		return fail(fmt.Errorf("empty scope around %s", focalID))
	}

	state = StateCandidateExpansion
	picked := p.expand(g, focalID, profile, scope)

	state = StateOrdering
	steps := p.order(g, focalID, profile, jt, picked)
	if len(steps) == 0 {
		return fail(fmt.Errorf("ordering produced no steps"))
	}

	state = StateContentBinding
	p.bind(ctx, g, jt, steps)

	state = StateDone
	journey := &types.Journey{
		ID:               journeyID(focalID, g.Version, profile.Signature(), jt),
		FocalID:          focalID,
		Type:             jt,
		GraphVersion:     g.Version,
		ProfileSignature: profile.Signature(),
		Steps:            steps,
		CreatedAt:        time.Now().UTC(),
	}
	p.logger.Debug("journey planned",
		"journey", journey.ID, "focal", focalID, "type", string(jt), "steps", len(steps))
	return journey, nil
}

// journeyID is a stable hash of the request identity, so replanning the same
// request names the same journey.
func journeyID(focalID string, version uint64, signature string, jt types.JourneyType) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("journey:%s:%d:%s:%s", focalID, version, signature, jt)))
	return "j-" + hex.EncodeToString(sum[:8])
}

// selectScope gathers every concept within the hop radius of the focal plus
// the focal's cluster co-members, capped at MaxScope by dropping
// lowest-importance concepts first. Returns hop distances; co-members outside
// the radius sit at the radius boundary.
func (p *Planner) selectScope(g *graph.Graph, focalID string) map[string]int {
	scope := g.HopDistances(focalID, p.cfg.HopRadius)

	if cl := g.ClusterOf(focalID); cl != nil {
		for _, m := range cl.Members {
			if _, ok := scope[m]; !ok {
				scope[m] = p.cfg.HopRadius
			}
		}
	}

	if len(scope) <= p.cfg.MaxScope {
		return scope
	}

	// Over the cap: the focal always stays, then highest importance wins,
	// with proximity and id as tie-breaks.
	ids := make([]string, 0, len(scope))
	for id := range scope {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if ids[i] == focalID {
			return true
		}
		if ids[j] == focalID {
			return false
		}
		a, b := g.Nodes[ids[i]], g.Nodes[ids[j]]
		if a.Importance != b.Importance {
			return a.Importance > b.Importance
		}
		if scope[ids[i]] != scope[ids[j]] {
			return scope[ids[i]] < scope[ids[j]]
		}
		return ids[i] < ids[j]
	})

	capped := make(map[string]int, p.cfg.MaxScope)
	for _, id := range ids[:p.cfg.MaxScope] {
		capped[id] = scope[id]
	}
	return capped
}

// expand greedily grows the selection from the focal, one candidate per
// round, until the target length is reached or the scope is exhausted.
func (p *Planner) expand(g *graph.Graph, focalID string, profile *types.UserProfile, scope map[string]int) []candidate {
	visited := make(map[string]bool, len(profile.Visited))
	for _, id := range profile.Visited {
		visited[id] = true
	}

	selected := []candidate{{nodeID: focalID}}
	inSelection := map[string]bool{focalID: true}
	allowedJump := p.allowedJump(profile)

	remaining := make([]string, 0, len(scope))
	for id := range scope {
		if id != focalID {
			remaining = append(remaining, id)
		}
	}
	sort.Strings(remaining)

	for len(selected) < p.cfg.TargetLength && len(remaining) > 0 {
		last := selected[len(selected)-1].nodeID

		type scored struct {
			id    string
			via   string
			score float64
		}
		round := make([]scored, 0, len(remaining))
		for _, id := range remaining {
			score, via := p.score(g, profile, scope, inSelection, visited, last, id, allowedJump)
			round = append(round, scored{id: id, via: via, score: score})
		}
		sort.Slice(round, func(i, j int) bool {
			if round[i].score != round[j].score {
				return round[i].score > round[j].score
			}
			return round[i].id < round[j].id
		})

		best := round[0]
		if p.cfg.MinScore > 0 && best.score < p.cfg.MinScore {
			break
		}
		var alts []string
		for _, r := range round[1:] {
			if best.score-r.score <= p.cfg.Epsilon {
				alts = append(alts, r.id)
			}
		}

		selected = append(selected, candidate{nodeID: best.id, viaEdgeID: best.via, alternatives: alts})
		inSelection[best.id] = true
		next := remaining[:0]
		for _, id := range remaining {
			if id != best.id {
				next = append(next, id)
			}
		}
		remaining = next
	}
	return selected
}

// allowedJump widens the base depth-jump bound by the user's tolerance.
func (p *Planner) allowedJump(profile *types.UserProfile) int {
	return p.cfg.MaxDepthJump + int(math.Round(profile.ComplexityTolerance*2))
}

// score rates one candidate against the current selection. Components:
// relevance decays with hop distance from the focal, frontier strength is the
// best profile-weighted edge into the selection, importance comes from
// annotation, depth jumps beyond the allowed gradient are penalized, and
// switching clusters earns a diversity bonus.
func (p *Planner) score(g *graph.Graph, profile *types.UserProfile, scope map[string]int, inSelection, visited map[string]bool, lastID, id string, allowedJump int) (float64, string) {
	node := g.Nodes[id]

	relevance := 1.0 / float64(1+scope[id])

	frontier := 0.0
	via := ""
	for _, n := range g.Neighbors(id) {
		if !inSelection[n.NodeID] {
			continue
		}
		w := profile.RelationWeights[n.Type] * n.Strength
		if w > frontier || (w == frontier && via != "" && n.EdgeID < via) {
			frontier = w
			via = n.EdgeID
		}
	}

	score := relevance + frontier + node.Importance

	if gap := node.Depth - g.Nodes[lastID].Depth; gap > allowedJump {
		score -= 0.5 * float64(gap-allowedJump)
	}
	if differentCluster(g, lastID, id) {
		score += p.cfg.DiversityBonus
	}
	if visited[id] {
		score -= p.cfg.VisitedPenalty
	}
	return score, via
}

func differentCluster(g *graph.Graph, a, b string) bool {
	ca, cb := g.ClusterOf(a), g.ClusterOf(b)
	if ca == nil || cb == nil {
		return false
	}
	return ca.ID != cb.ID
}

// order re-sequences the selection per journey type and materializes steps.
func (p *Planner) order(g *graph.Graph, focalID string, profile *types.UserProfile, jt types.JourneyType, picked []candidate) []types.JourneyStep {
	var steps []types.JourneyStep
	switch jt {
	case types.AssociativeJourney:
		steps = stepsFrom(picked)
	case types.HierarchicalJourney:
		steps = p.orderHierarchical(g, profile, picked)
	case types.PatternFirstJourney:
		steps = orderPatternFirst(g, picked)
	case types.SpiralJourney:
		steps = p.orderSpiral(g, focalID, picked)
	}
	for i := range steps {
		steps[i].Position = i + 1
	}
	return steps
}

func stepsFrom(picked []candidate) []types.JourneyStep {
	steps := make([]types.JourneyStep, 0, len(picked))
	for _, c := range picked {
		steps = append(steps, types.JourneyStep{
			NodeID:       c.nodeID,
			ViaEdgeID:    c.viaEdgeID,
			Alternatives: c.alternatives,
		})
	}
	return steps
}

// orderHierarchical walks the selection shallow-to-deep, but only ever steps
// to a concept connected to what has already been sequenced. A pure depth
// sort would strand connected next steps behind unrelated shallow concepts;
// the connectivity constraint keeps the path walkable. Disconnected leftovers
// are appended by depth. Steps that would exceed the allowed depth jump are
// dropped.
func (p *Planner) orderHierarchical(g *graph.Graph, profile *types.UserProfile, picked []candidate) []types.JourneyStep {
	byID := make(map[string]candidate, len(picked))
	for _, c := range picked {
		byID[c.nodeID] = c
	}

	ordered := []string{picked[0].nodeID}
	remaining := make(map[string]bool, len(picked)-1)
	for _, c := range picked[1:] {
		remaining[c.nodeID] = true
	}

	for len(remaining) > 0 {
		best := ""
		for _, id := range ordered {
			for _, n := range g.Neighbors(id) {
				if !remaining[n.NodeID] {
					continue
				}
				if best == "" || less(g, n.NodeID, best) {
					best = n.NodeID
				}
			}
		}
		if best == "" {
			break
		}
		ordered = append(ordered, best)
		delete(remaining, best)
	}

	leftover := make([]string, 0, len(remaining))
	for id := range remaining {
		leftover = append(leftover, id)
	}
	sort.Slice(leftover, func(i, j int) bool { return less(g, leftover[i], leftover[j]) })
	ordered = append(ordered, leftover...)

	allowedJump := p.allowedJump(profile)
	steps := make([]types.JourneyStep, 0, len(ordered))
	lastDepth := g.Nodes[ordered[0]].Depth
	for i, id := range ordered {
		if i > 0 {
			if gap := g.Nodes[id].Depth - lastDepth; gap > allowedJump {
				p.logger.Debug("dropping step over depth gradient",
					"node", id, "gap", gap, "allowed", allowedJump)
				continue
			}
		}
		c := byID[id]
		steps = append(steps, types.JourneyStep{
			NodeID:       c.nodeID,
			ViaEdgeID:    c.viaEdgeID,
			Alternatives: c.alternatives,
		})
		lastDepth = g.Nodes[id].Depth
	}
	return steps
}

// less orders node ids by (complexity depth, id).
func less(g *graph.Graph, a, b string) bool {
	da, db := g.Nodes[a].Depth, g.Nodes[b].Depth
	if da != db {
		return da < db
	}
	return a < b
}

// orderPatternFirst groups steps by cluster, clusters in order of first
// appearance in the selection, with the entry step of each later cluster
// marked as a bridge.
func orderPatternFirst(g *graph.Graph, picked []candidate) []types.JourneyStep {
	clusterKey := func(id string) string {
		if cl := g.ClusterOf(id); cl != nil {
			return cl.ID
		}
		return ""
	}

	var groupOrder []string
	groups := make(map[string][]candidate)
	for _, c := range picked {
		key := clusterKey(c.nodeID)
		if _, seen := groups[key]; !seen {
			groupOrder = append(groupOrder, key)
		}
		groups[key] = append(groups[key], c)
	}

	steps := make([]types.JourneyStep, 0, len(picked))
	for gi, key := range groupOrder {
		for ci, c := range groups[key] {
			step := types.JourneyStep{
				NodeID:       c.nodeID,
				ViaEdgeID:    c.viaEdgeID,
				Alternatives: c.alternatives,
			}
			if gi > 0 && ci == 0 {
				step.ContextTag = "bridge"
			}
			steps = append(steps, step)
		}
	}
	return steps
}

// orderSpiral truncates the base selection to leave room for a revisit pass
// over the highest-importance core concepts. Revisits carry an incremented
// depth tag; the focal revisit goes last so the journey both opens and closes
// on the focal concept.
func (p *Planner) orderSpiral(g *graph.Graph, focalID string, picked []candidate) []types.JourneyStep {
	core := p.cfg.SpiralCore
	if core >= len(picked) {
		core = len(picked) - 1
	}
	if core < 1 {
		return stepsFrom(picked)
	}

	baseLen := p.cfg.TargetLength - core
	if baseLen < 1 || baseLen > len(picked) {
		baseLen = len(picked)
	}
	base := picked[:baseLen]
	steps := stepsFrom(base)

	revisit := make([]string, 0, core)
	for _, c := range base {
		revisit = append(revisit, c.nodeID)
	}
	sort.Slice(revisit, func(i, j int) bool {
		a, b := g.Nodes[revisit[i]], g.Nodes[revisit[j]]
		// Focal closes the spiral.
		if revisit[i] == focalID {
			return false
		}
		if revisit[j] == focalID {
			return true
		}
		if a.Importance != b.Importance {
			return a.Importance > b.Importance
		}
		return revisit[i] < revisit[j]
	})
	if len(revisit) > core {
		// Keep the focal's closing slot even when it is not in the top core.
		kept := revisit[:core]
		if !contains(kept, focalID) {
			kept = append(kept[:core-1:core-1], focalID)
		}
		revisit = kept
	}

	for _, id := range revisit {
		steps = append(steps, types.JourneyStep{
			NodeID:     id,
			DepthTag:   1,
			ContextTag: "revisit",
		})
	}
	return steps
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

// bind fills every step with collaborator content, degrading to a
// placeholder on any failure. Binding never fails the journey.
func (p *Planner) bind(ctx context.Context, g *graph.Graph, jt types.JourneyType, steps []types.JourneyStep) {
	for i := range steps {
		req := types.ContentRequest{
			NodeID:      steps[i].NodeID,
			Position:    steps[i].Position,
			JourneyType: jt,
		}
		if i > 0 {
			req.NeighborIDs = append(req.NeighborIDs, steps[i-1].NodeID)
		}
		if i < len(steps)-1 {
			req.NeighborIDs = append(req.NeighborIDs, steps[i+1].NodeID)
		}
		steps[i].Request = req

		if p.binder == nil {
			steps[i].Payload = content.Placeholder(req)
			steps[i].Status = types.StepContentPending
			continue
		}
		payload, err := p.binder.Bind(ctx, req)
		if err != nil {
			p.logger.Warn("content binding degraded to placeholder",
				"node", req.NodeID, "position", req.Position, "error", err)
			steps[i].Payload = content.Placeholder(req)
			steps[i].Status = types.StepContentPending
			continue
		}
		steps[i].Payload = payload
		steps[i].Status = types.StepContentReady
	}
}
