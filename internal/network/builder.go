// Package network decides which landmark pairs get a road.
//
// The policy is greedy nearest-neighbour, not a spanning tree: only the most
// recently discovered landmark is considered as a source, and it is linked to
// its closest other landmark unless that pair is already connected. The
// resulting graph can be disconnected or redundant; it is a decorative
// network, not a routing graph.
package network

import (
	"sync"

	"roadweaver/internal/model"
)

// Builder links newly discovered landmarks. It keeps an R-tree over the
// append-only landmark list and extends it incrementally between calls.
type Builder struct {
	mu      sync.Mutex
	index   *SpatialIndex
	indexed []model.BlockPos
}

// NewBuilder creates a Builder with an empty index.
func NewBuilder() *Builder {
	return &Builder{index: NewSpatialIndex()}
}

// ConnectNewest proposes a PLANNED connection from the last landmark to its
// nearest other landmark. It returns false when there are fewer than two
// distinct landmarks or when the pair already exists in either orientation.
func (b *Builder) ConnectNewest(landmarks []model.BlockPos, existing []model.Connection) (model.Connection, bool) {
	if len(landmarks) < 2 {
		return model.Connection{}, false
	}

	b.mu.Lock()
	b.sync(landmarks)
	target, ok := b.index.Nearest(len(landmarks) - 1)
	b.mu.Unlock()
	if !ok {
		return model.Connection{}, false
	}

	source := landmarks[len(landmarks)-1]
	if Exists(existing, source, landmarks[target]) {
		return model.Connection{}, false
	}
	return model.Connection{From: source, To: landmarks[target], Status: model.Planned}, true
}

// sync brings the index up to date with landmarks, rebuilding it if the list
// is not an extension of what was indexed before.
func (b *Builder) sync(landmarks []model.BlockPos) {
	n := len(b.indexed)
	if n > len(landmarks) || (n > 0 && landmarks[n-1] != b.indexed[n-1]) {
		b.index = NewSpatialIndex()
		b.indexed = b.indexed[:0]
		n = 0
	}
	for _, p := range landmarks[n:] {
		b.index.Insert(p)
		b.indexed = append(b.indexed, p)
	}
}

// Exists reports whether a and b are already connected, in either order.
func Exists(connections []model.Connection, a, b model.BlockPos) bool {
	for _, c := range connections {
		if (c.From == a && c.To == b) || (c.From == b && c.To == a) {
			return true
		}
	}
	return false
}
