package planner

import "roadweaver/internal/model"

// Heuristic selects the distance estimate used to order the frontier.
type Heuristic int

const (
	// Octile is the exact step distance on a flat 8-connected lattice.
	Octile Heuristic = iota
	// Euclidean is the straight-line distance.
	Euclidean
	// Chebyshev is the larger of the two axis distances.
	Chebyshev
)

// Options tunes the cost policy of a Planner.
type Options struct {
	// MaxHeightDifference prunes steps climbing or dropping more than this.
	MaxHeightDifference int
	// MaxTerrainStability is the height range over a 3x3 neighbourhood
	// above which a step is penalised.
	MaxTerrainStability int
	// Material selects the roughness penalty curve.
	Material model.Material
	// HeightWeight is the extra cost per block of height change.
	HeightWeight float64
	// Heuristic orders the frontier.
	Heuristic Heuristic
	// Lookaround is how many center points behind and ahead are used to
	// derive a segment's direction.
	Lookaround int
}

// DefaultOptions mirrors the stock road configuration.
func DefaultOptions() Options {
	return Options{
		MaxHeightDifference: 5,
		MaxTerrainStability: 4,
		Material:            model.Artificial,
		HeightWeight:        1.0,
		Heuristic:           Octile,
		Lookaround:          2,
	}
}

// Option modifies Options.
type Option func(*Options)

// WithMaxHeightDifference sets the prune threshold.
func WithMaxHeightDifference(d int) Option {
	return func(o *Options) { o.MaxHeightDifference = d }
}

// WithMaxTerrainStability sets the roughness threshold.
func WithMaxTerrainStability(s int) Option {
	return func(o *Options) { o.MaxTerrainStability = s }
}

// WithMaterial selects the penalty curve for the road family.
func WithMaterial(m model.Material) Option {
	return func(o *Options) { o.Material = m }
}

// WithHeightWeight sets the per-block climb cost. Negative values are clamped to zero.
func WithHeightWeight(w float64) Option {
	return func(o *Options) {
		if w < 0 {
			w = 0
		}
		o.HeightWeight = w
	}
}

// WithHeuristic picks the frontier distance estimate.
func WithHeuristic(h Heuristic) Option {
	return func(o *Options) { o.Heuristic = h }
}

// WithLookaround sets the direction sampling offset. Values below 1 are clamped to 1.
func WithLookaround(n int) Option {
	return func(o *Options) {
		if n < 1 {
			n = 1
		}
		o.Lookaround = n
	}
}
