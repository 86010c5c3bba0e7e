package journey

import (
	"math"
	"time"

	"github.com/pathweave/pathweave/pkg/types"
)

// DefaultAlpha is the smoothing factor for online profile updates.
const DefaultAlpha = 0.2

// Updater folds interaction feedback into user profiles. Updates are purely
// incremental exponential moving averages; there is no offline retraining.
type Updater struct {
	alpha float64
	// longDwell is the dwell time treated as strong engagement.
	longDwell time.Duration
	// shortDwell is the dwell time treated as a skip.
	shortDwell time.Duration
}

// NewUpdater creates an updater. A non-positive alpha falls back to the
// default.
func NewUpdater(alpha float64) *Updater {
	if alpha <= 0 || alpha >= 1 {
		alpha = DefaultAlpha
	}
	return &Updater{
		alpha:      alpha,
		longDwell:  30 * time.Second,
		shortDwell: 5 * time.Second,
	}
}

// Apply folds the interactions into a copy of the profile, in order, and
// returns the updated copy. The input profile is never mutated.
func (u *Updater) Apply(profile *types.UserProfile, interactions []types.Interaction) *types.UserProfile {
	out := profile.Clone()
	for _, it := range interactions {
		u.applyOne(out, it)
	}
	out.UpdatedAt = time.Now().UTC()
	return out
}

func (u *Updater) applyOne(p *types.UserProfile, it types.Interaction) {
	target := u.engagementTarget(it)

	if it.RelationType.Valid() {
		w := p.RelationWeights[it.RelationType]
		p.RelationWeights[it.RelationType] = (1-u.alpha)*w + u.alpha*target
	}

	// Explicit ratings on a step nudge complexity tolerance toward the
	// depth the user handled: liking deep steps widens it, disliking any
	// step narrows it.
	if it.Rating != 0 {
		shift := it.Rating * 0.1
		if it.StepDepth > 0 && it.Rating > 0 {
			shift *= 2
		}
		p.ComplexityTolerance = clamp01(p.ComplexityTolerance + u.alpha*shift)
	}

	if it.NodeID != "" {
		p.Visited = appendVisited(p.Visited, it.NodeID)
	}
}

// engagementTarget maps one interaction onto the weight scale, where 1.0 is
// neutral. Explicit ratings dominate; otherwise dwell time stands in.
func (u *Updater) engagementTarget(it types.Interaction) float64 {
	target := 1.0
	switch {
	case it.Rating != 0:
		target = 1.0 + math.Max(-1, math.Min(1, it.Rating))*0.5
	case it.Dwell >= u.longDwell:
		target = 1.2
	case it.Dwell > 0 && it.Dwell < u.shortDwell:
		target = 0.6
	}
	// Taking the alternative route is a vote against the presented relation.
	if it.ChoseAlternative {
		target *= 0.8
	}
	return target
}

func appendVisited(visited []string, id string) []string {
	if len(visited) > 0 && visited[len(visited)-1] == id {
		return visited
	}
	return append(visited, id)
}

func clamp01(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}
