package planner

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"roadweaver/internal/model"
)

// Roughness penalty per block of excess stability, per unit of step distance.
// Natural roads (dirt paths, gravel) tolerate rough ground better than paved ones.
const (
	artificialRoughness = 2.0
	naturalRoughness    = 1.0
)

// neighbourOffsets is the 8-connected lattice step set.
var neighbourOffsets = [8][2]int{
	{1, 0}, {-1, 0}, {0, 1}, {0, -1},
	{1, 1}, {1, -1}, {-1, 1}, {-1, -1},
}

func roughnessFactor(m model.Material) float64 {
	if m == model.Natural {
		return naturalRoughness
	}
	return artificialRoughness
}

// estimate returns the heuristic distance between two columns.
func (h Heuristic) estimate(a, b cell) float64 {
	dx := math.Abs(float64(a.x - b.x))
	dz := math.Abs(float64(a.z - b.z))
	switch h {
	case Euclidean:
		return planar.Distance(orb.Point{float64(a.x), float64(a.z)}, orb.Point{float64(b.x), float64(b.z)})
	case Chebyshev:
		return math.Max(dx, dz)
	default:
		return math.Max(dx, dz) + (math.Sqrt2-1)*math.Min(dx, dz)
	}
}

// stepCost prices a move of length dist into a column whose height differs by
// dy from the predecessor and whose local stability is stability. ok is false
// when the step is not buildable at all.
func (o Options) stepCost(dist float64, dy, stability int) (cost float64, ok bool) {
	if dy < 0 {
		dy = -dy
	}
	if dy > o.MaxHeightDifference {
		return 0, false
	}
	cost = dist + o.HeightWeight*float64(dy)
	if excess := stability - o.MaxTerrainStability; excess > 0 {
		cost += float64(excess) * roughnessFactor(o.Material) * dist
	}
	return cost, true
}
