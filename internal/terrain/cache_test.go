package terrain

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingQuery struct {
	calls atomic.Int64
}

func (q *countingQuery) SurfaceHeight(x, z int) int {
	q.calls.Add(1)
	return 60 + (x*7+z*3)%11
}

func TestGetOrComputeQueriesOnce(t *testing.T) {
	q := &countingQuery{}
	c := NewHeightCache(q, 0)

	first := c.GetOrCompute(12, -5)
	second := c.GetOrCompute(12, -5)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), q.calls.Load())
	assert.Equal(t, int64(1), c.Misses())
	assert.Equal(t, 1, c.Len())
}

func TestClearForcesRecompute(t *testing.T) {
	q := &countingQuery{}
	c := NewHeightCache(q, 0)

	c.GetOrCompute(1, 1)
	c.Clear()
	assert.Equal(t, 0, c.Len())

	c.GetOrCompute(1, 1)
	assert.Equal(t, int64(2), q.calls.Load())
}

func TestCacheClearsWholesaleAtLimit(t *testing.T) {
	c := NewHeightCache(Flat(64), 4)
	for x := 0; x < 4; x++ {
		c.GetOrCompute(x, 0)
	}
	require.Equal(t, 4, c.Len())

	// The fifth column does not fit: everything goes, then it is stored.
	c.GetOrCompute(4, 0)
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, int64(1), c.Clears())
}

func TestClearIfOversized(t *testing.T) {
	c := NewHeightCache(Flat(64), 10)
	c.GetOrCompute(0, 0)
	assert.False(t, c.ClearIfOversized())
	assert.Equal(t, 1, c.Len())
}

func TestCacheConcurrentAccess(t *testing.T) {
	q := &countingQuery{}
	c := NewHeightCache(q, 0)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for x := 0; x < 50; x++ {
				for z := 0; z < 50; z++ {
					if got, want := c.GetOrCompute(x, z), 60+(x*7+z*3)%11; got != want {
						t.Errorf("GetOrCompute(%d, %d) = %d, want %d", x, z, got, want)
						return
					}
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 2500, c.Len())
	// Racing misses may repeat a query, but never more than once per goroutine.
	assert.LessOrEqual(t, q.calls.Load(), int64(8*2500))
}

func TestNoiseTerrainDeterministic(t *testing.T) {
	a := NewNoiseTerrain(42)
	b := NewNoiseTerrain(42)
	for i := 0; i < 200; i++ {
		x, z := i*13-900, i*7-400
		require.Equal(t, a.SurfaceHeight(x, z), b.SurfaceHeight(x, z))
		h := a.SurfaceHeight(x, z)
		assert.GreaterOrEqual(t, h, 64-40)
		assert.LessOrEqual(t, h, 64+40)
	}
}

func TestNoiseTerrainIsRollingHills(t *testing.T) {
	a, b := NewNoiseTerrain(1), NewNoiseTerrain(2)
	heights := map[int]bool{}
	differ := false
	for x := 0; x < 2000; x += 7 {
		h := a.SurfaceHeight(x, 300)
		heights[h] = true
		differ = differ || h != b.SurfaceHeight(x, 300)
		// Adjacent columns stay within a walkable step.
		assert.LessOrEqual(t, abs(h-a.SurfaceHeight(x+1, 300)), 3)
	}
	assert.Greater(t, len(heights), 5)
	assert.True(t, differ)
}

func TestQueryFunc(t *testing.T) {
	q := QueryFunc(func(x, z int) int { return x + z })
	assert.Equal(t, 7, q.SurfaceHeight(3, 4))
	assert.Equal(t, 70, Flat(70).SurfaceHeight(-1, 9))
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
