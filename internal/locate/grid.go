package locate

import (
	"sort"
	"sync"

	"github.com/zyedidia/generic/mapset"

	"roadweaver/internal/model"
	"roadweaver/internal/terrain"
)

// villageCellSize is the side of a grid cell in blocks. Each cell holds at
// most one village.
const villageCellSize = 96

// GridLocator places villages on a sparse deterministic grid: a quarter of
// all cells hold one, offset inside the cell by a hash of the cell position.
type GridLocator struct {
	seed    int64
	heights terrain.Query
	radius  int // chunks
	spawn   model.BlockPos
	player  func() model.BlockPos

	mu   sync.Mutex
	seen mapset.Set[[2]int]
}

// GridOption configures a GridLocator.
type GridOption func(*GridLocator)

// WithSpawn sets the search origin used when not searching near the player.
func WithSpawn(p model.BlockPos) GridOption {
	return func(g *GridLocator) { g.spawn = p }
}

// WithPlayer sets the callback reporting the player position.
func WithPlayer(fn func() model.BlockPos) GridOption {
	return func(g *GridLocator) { g.player = fn }
}

// NewGridLocator searches within radiusChunks chunks of the origin and reads
// landmark heights from heights.
func NewGridLocator(seed int64, heights terrain.Query, radiusChunks int, opts ...GridOption) *GridLocator {
	if radiusChunks < 1 {
		radiusChunks = 1
	}
	g := &GridLocator{
		seed:    seed,
		heights: heights,
		radius:  radiusChunks,
		seen:    mapset.New[[2]int](),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// cellHash returns a deterministic value in [0, mod) for cell (cx, cz).
func (g *GridLocator) cellHash(cx, cz, mod int64) int64 {
	const k1 int64 = -7046029254386353131 // splitmix64 step 1
	const k2 int64 = -4265267296055464877 // splitmix64 step 2
	h := g.seed ^ (cx * k1) ^ (cz * 7823434773480878946)
	h ^= h >> 33
	h *= k1
	h ^= h >> 27
	h *= k2
	h ^= h >> 31
	if h < 0 {
		h = -h
	}
	return h % mod
}

// VillageAt returns the village center of grid cell (cellX, cellZ), if any.
func (g *GridLocator) VillageAt(cellX, cellZ int) (x, z int, ok bool) {
	cx, cz := int64(cellX), int64(cellZ)
	if g.cellHash(cx, cz, 4) != 0 {
		return 0, 0, false
	}
	ox := int(g.cellHash(cx^0xDEAD, cz^0xBEEF, villageCellSize-20)) + 10
	oz := int(g.cellHash(cx^0xCAFE, cz^0xF00D, villageCellSize-20)) + 10
	return cellX*villageCellSize + ox, cellZ*villageCellSize + oz, true
}

// divFloor returns a / b, rounding towards negative infinity.
func divFloor(a, b int) int {
	if a < 0 && a%b != 0 {
		return a/b - 1
	}
	return a / b
}

// Exclude marks landmarks as already known.
func (g *GridLocator) Exclude(known ...model.BlockPos) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, p := range known {
		g.seen.Put([2]int{p.X, p.Z})
	}
}

// Locate returns up to count unseen villages within the search radius,
// nearest first.
func (g *GridLocator) Locate(count int, nearPlayer bool) []model.BlockPos {
	if count < 1 {
		return nil
	}
	origin := g.spawn
	if nearPlayer && g.player != nil {
		origin = g.player()
	}
	reach := g.radius * 16
	reachSq := int64(reach) * int64(reach)

	type candidate struct {
		x, z int
		d    int64
	}
	var found []candidate

	g.mu.Lock()
	defer g.mu.Unlock()

	for cx := divFloor(origin.X-reach, villageCellSize); cx <= divFloor(origin.X+reach, villageCellSize); cx++ {
		for cz := divFloor(origin.Z-reach, villageCellSize); cz <= divFloor(origin.Z+reach, villageCellSize); cz++ {
			x, z, ok := g.VillageAt(cx, cz)
			if !ok || g.seen.Has([2]int{x, z}) {
				continue
			}
			dx, dz := int64(x-origin.X), int64(z-origin.Z)
			if d := dx*dx + dz*dz; d <= reachSq {
				found = append(found, candidate{x, z, d})
			}
		}
	}

	sort.Slice(found, func(i, j int) bool {
		a, b := found[i], found[j]
		if a.d != b.d {
			return a.d < b.d
		}
		if a.x != b.x {
			return a.x < b.x
		}
		return a.z < b.z
	})
	if len(found) > count {
		found = found[:count]
	}

	out := make([]model.BlockPos, 0, len(found))
	for _, c := range found {
		g.seen.Put([2]int{c.x, c.z})
		out = append(out, model.BlockPos{X: c.x, Y: g.heights.SurfaceHeight(c.x, c.z), Z: c.z})
	}
	return out
}
