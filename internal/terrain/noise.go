package terrain

import (
	"math"
	"math/rand/v2"
)

// corners holds the four diagonal gradients used by the lattice.
var corners = [4][2]float64{{1, 1}, {-1, 1}, {1, -1}, {-1, -1}}

// NoiseTerrain is a rolling-hills Query built from seeded gradient noise
// summed over a few octaves.
type NoiseTerrain struct {
	perm      [512]uint8
	BaseLevel int
	Amplitude float64
	Scale     float64
	Octaves   int
}

// NewNoiseTerrain returns hills around y=64 with ±24 blocks of relief.
func NewNoiseTerrain(seed int64) *NoiseTerrain {
	t := &NoiseTerrain{
		BaseLevel: 64,
		Amplitude: 24,
		Scale:     1.0 / 128,
		Octaves:   4,
	}
	rng := rand.New(rand.NewPCG(uint64(seed), uint64(seed)>>32|1))
	for i, v := range rng.Perm(256) {
		t.perm[i] = uint8(v)
		t.perm[i+256] = uint8(v)
	}
	return t
}

// SurfaceHeight implements Query.
func (t *NoiseTerrain) SurfaceHeight(x, z int) int {
	n := t.fbm(float64(x)*t.Scale, float64(z)*t.Scale)
	return t.BaseLevel + int(math.Round(n*t.Amplitude))
}

// fbm sums octaves at doubling frequency and halving amplitude, normalised
// back to roughly [-1, 1].
func (t *NoiseTerrain) fbm(x, z float64) float64 {
	var sum, norm float64
	freq, amp := 1.0, 1.0
	for range max(t.Octaves, 1) {
		sum += amp * t.sample(x*freq, z*freq)
		norm += amp
		freq *= 2
		amp /= 2
	}
	return sum / norm
}

func (t *NoiseTerrain) sample(x, z float64) float64 {
	fx, fz := math.Floor(x), math.Floor(z)
	cx, cz := int(fx)&255, int(fz)&255
	dx, dz := x-fx, z-fz

	dot := func(ox, oz int) float64 {
		g := corners[t.perm[int(t.perm[cx+ox])+cz+oz]&3]
		return g[0]*(dx-float64(ox)) + g[1]*(dz-float64(oz))
	}
	smooth := func(v float64) float64 { return v * v * v * (v*(v*6-15) + 10) }
	mix := func(a, b, w float64) float64 { return a + w*(b-a) }

	u, v := smooth(dx), smooth(dz)
	return mix(mix(dot(0, 0), dot(1, 0), u), mix(dot(0, 1), dot(1, 1), u), v)
}
