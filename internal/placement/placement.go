// Package placement replays stored roads chunk by chunk for the decoration
// collaborator. It decides where road blocks go; what gets placed there is
// left to the caller.
package placement

import (
	"math"

	"roadweaver/internal/model"
	"roadweaver/internal/planner"
)

// Lookaround is the number of segments on each side used to orient a
// segment. The same number of segments is skipped at each road end.
const Lookaround = 2

// Heights provides surface heights. *terrain.HeightCache satisfies it.
type Heights interface {
	GetOrCompute(x, z int) int
}

// Placement is one road segment to materialise.
type Placement struct {
	Record    int              `json:"record"`    // index in the record list
	Segment   int              `json:"segment"`   // index in the record's segments
	Center    model.BlockPos   `json:"center"`    // Y is the smoothed surface height
	Positions []model.BlockPos `json:"positions"` // lateral positions at the smoothed height
	AxisX     int              `json:"axisX"`     // lateral axis
	AxisZ     int              `json:"axisZ"`
	Material  model.Material   `json:"material"`
	Palette   []string         `json:"palette,omitempty"`
}

func floorDiv(a, b int) int {
	if a < 0 && a%b != 0 {
		return a/b - 1
	}
	return a / b
}

// ForChunk returns the placements whose center lies in chunk (chunkX,
// chunkZ). The first and last clearance+Lookaround segments of every road are
// left alone, as is any center already covered by an earlier record.
func ForChunk(records []model.RoadRecord, chunkX, chunkZ int, heights Heights, averagingRadius, clearance int) []Placement {
	if averagingRadius < 0 {
		averagingRadius = 0
	}
	skip := clearance + Lookaround
	claimed := make(map[[2]int]bool)
	var out []Placement

	for ri, r := range records {
		n := len(r.Segments)
		for si := skip; si < n-skip; si++ {
			c := r.Segments[si].Center
			if floorDiv(c.X, 16) != chunkX || floorDiv(c.Z, 16) != chunkZ {
				continue
			}
			if claimed[[2]int{c.X, c.Z}] {
				continue
			}

			y := smoothedY(r.Segments, si, averagingRadius, heights)
			dx, dz := planner.Direction(r.Segments[max(si-Lookaround, 0)].Center, r.Segments[min(si+Lookaround, n-1)].Center)
			ax, az := planner.Orthogonal(dx, dz)

			positions := make([]model.BlockPos, len(r.Segments[si].Positions))
			for k, p := range r.Segments[si].Positions {
				positions[k] = model.BlockPos{X: p.X, Y: y, Z: p.Z}
			}
			out = append(out, Placement{
				Record:    ri,
				Segment:   si,
				Center:    model.BlockPos{X: c.X, Y: y, Z: c.Z},
				Positions: positions,
				AxisX:     ax,
				AxisZ:     az,
				Material:  r.Material,
				Palette:   r.Palette,
			})
		}
		for _, s := range r.Segments {
			claimed[[2]int{s.Center.X, s.Center.Z}] = true
		}
	}
	return out
}

// smoothedY averages the surface height over the centers within radius of
// index i.
func smoothedY(segments []model.RoadSegment, i, radius int, heights Heights) int {
	lo, hi := max(i-radius, 0), min(i+radius, len(segments)-1)
	sum := 0
	for k := lo; k <= hi; k++ {
		c := segments[k].Center
		sum += heights.GetOrCompute(c.X, c.Z)
	}
	return int(math.Round(float64(sum) / float64(hi-lo+1)))
}
