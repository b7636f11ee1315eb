package planner

import (
	"math"

	"roadweaver/internal/model"
)

// Direction returns the 8-way unit step pointing from a to b. Each axis is
// the rounded component of the normalised vector; a zero-length vector maps
// to (0, 0).
func Direction(a, b model.BlockPos) (dx, dz int) {
	fx := float64(b.X - a.X)
	fz := float64(b.Z - a.Z)
	length := math.Sqrt(fx*fx + fz*fz)
	if length == 0 {
		return 0, 0
	}
	return int(math.Round(fx / length)), int(math.Round(fz / length))
}

// Orthogonal rotates an (x, z) direction by 90 degrees.
func Orthogonal(dx, dz int) (ox, oz int) {
	return -dz, dx
}

// extrude builds one segment per center point. The direction at i is taken
// from the centers lookaround steps behind and ahead (clamped to the ends);
// width lateral positions are laid across it, centred on the center point.
func extrude(centers []model.BlockPos, width, lookaround int) []model.RoadSegment {
	n := len(centers)
	segments := make([]model.RoadSegment, n)
	first := -(width - 1) / 2
	for i, c := range centers {
		prev := centers[max(i-lookaround, 0)]
		next := centers[min(i+lookaround, n-1)]
		ox, oz := Orthogonal(Direction(prev, next))

		positions := make([]model.BlockPos, 0, width)
		for k := first; k < first+width; k++ {
			positions = append(positions, model.BlockPos{X: c.X + ox*k, Y: c.Y, Z: c.Z + oz*k})
		}
		segments[i] = model.RoadSegment{Center: c, Positions: positions}
	}
	return segments
}
