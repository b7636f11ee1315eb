package network

import (
	"math"

	"github.com/dhconnelly/rtreego"

	"roadweaver/internal/model"
)

// landmarkEntry wraps a landmark for R-tree storage.
type landmarkEntry struct {
	Pos   model.BlockPos
	Index int // position in the landmark list
	BBox  rtreego.Rect
}

// Bounds implements rtreego.Spatial interface
func (e *landmarkEntry) Bounds() rtreego.Rect {
	return e.BBox
}

// SpatialIndex answers nearest-landmark queries over an append-only list.
type SpatialIndex struct {
	tree *rtreego.Rtree
	byID []*landmarkEntry
}

// NewSpatialIndex creates an empty 3D index.
func NewSpatialIndex() *SpatialIndex {
	return &SpatialIndex{tree: rtreego.NewTree(3, 25, 50)} // 3D, min 25, max 50 entries per node
}

func toPoint(p model.BlockPos) rtreego.Point {
	return rtreego.Point{float64(p.X), float64(p.Y), float64(p.Z)}
}

// size returns the number of indexed landmarks.
func (si *SpatialIndex) size() int { return len(si.byID) }

// Insert appends the landmark at list position len(). Positions are half-block
// boxes so that every landmark has a non-degenerate bounding box.
func (si *SpatialIndex) Insert(p model.BlockPos) {
	entry := &landmarkEntry{
		Pos:   p,
		Index: len(si.byID),
		BBox:  toPoint(p).ToRect(0.5),
	}
	si.tree.Insert(entry)
	si.byID = append(si.byID, entry)
}

// Nearest returns the list index of the landmark closest to the one at index
// src by squared Euclidean distance, excluding every landmark at the same
// position. Ties go to the lowest index. ok is false when no other landmark exists.
func (si *SpatialIndex) Nearest(src int) (int, bool) {
	if src < 0 || src >= len(si.byID) {
		return -1, false
	}
	origin := si.byID[src].Pos

	// The R-tree ranks by box distance; any hit gives an upper bound for the
	// exact point distance, which a box query then resolves exactly.
	var bound int64 = -1
	for _, item := range si.tree.NearestNeighbors(3, toPoint(origin)) {
		if item == nil {
			continue
		}
		e := item.(*landmarkEntry)
		if e.Pos == origin {
			continue
		}
		if d := origin.DistSq(e.Pos); bound < 0 || d < bound {
			bound = d
		}
	}
	if bound < 0 {
		return si.scan(origin)
	}

	r := math.Ceil(math.Sqrt(float64(bound))) + 0.5
	box, err := rtreego.NewRect(
		rtreego.Point{float64(origin.X) - r, float64(origin.Y) - r, float64(origin.Z) - r},
		[]float64{2 * r, 2 * r, 2 * r},
	)
	if err != nil {
		return si.scan(origin)
	}
	return pick(origin, si.tree.SearchIntersect(box))
}

// scan is the linear fallback used when the tree yields nothing useful.
func (si *SpatialIndex) scan(origin model.BlockPos) (int, bool) {
	items := make([]rtreego.Spatial, len(si.byID))
	for i, e := range si.byID {
		items[i] = e
	}
	return pick(origin, items)
}

func pick(origin model.BlockPos, items []rtreego.Spatial) (int, bool) {
	best, bestDist := -1, int64(math.MaxInt64)
	for _, item := range items {
		e := item.(*landmarkEntry)
		if e.Pos == origin {
			continue
		}
		d := origin.DistSq(e.Pos)
		if d < bestDist || (d == bestDist && e.Index < best) {
			best, bestDist = e.Index, d
		}
	}
	return best, best >= 0
}
