package weaver

import (
	"bytes"
	"log"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roadweaver/internal/config"
	"roadweaver/internal/events"
	"roadweaver/internal/locate"
	"roadweaver/internal/model"
	"roadweaver/internal/registry"
	"roadweaver/internal/store"
	"roadweaver/internal/terrain"
)

var square = []model.BlockPos{
	{X: 0, Y: 64, Z: 0},
	{X: 40, Y: 64, Z: 0},
	{X: 0, Y: 64, Z: 40},
	{X: 40, Y: 64, Z: 40},
}

func quiet() *log.Logger { return log.New(&bytes.Buffer{}, "", 0) }

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Widths = []int{3}
	cfg.InitialLocatingCount = 4
	cfg.MaxLocatingCount = 6
	cfg.Workers = 2
	cfg.LocateInterval = 0
	cfg.VillageClearance = 0
	return cfg
}

func newManager(t *testing.T, cfg config.Config, backend store.Backend, opts ...Option) *Manager {
	t.Helper()
	m, err := NewManager(cfg, backend, append([]Option{WithLogger(quiet()), WithSeed(1)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() {
		m.OnShutdown()
		m.Wait()
	})
	return m
}

func nothing() locate.Locator {
	return locate.Func(func(int, bool) []model.BlockPos { return nil })
}

// drain ticks the world until no connection is PLANNED or GENERATING.
func drain(t *testing.T, m *Manager, w *World) {
	t.Helper()
	require.Eventually(t, func() bool {
		_, _ = m.OnWorldTick(w.ID())
		c := w.Counts()
		return c[model.Planned] == 0 && c[model.Generating] == 0 && m.InFlight(w.ID()) == 0
	}, 10*time.Second, 2*time.Millisecond)
}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(e events.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) count(s model.Status) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Status == s {
			n++
		}
	}
	return n
}

func TestLoadBootstrapsAndBuildsRoads(t *testing.T) {
	rec := &recorder{}
	m := newManager(t, testConfig(), store.NewMemoryBackend(), WithSink(rec))

	w, err := m.OnWorldLoad("overworld", Host{Terrain: terrain.Flat(64), Locator: locate.NewFileLocator(square)})
	require.NoError(t, err)

	snap := w.Snapshot()
	assert.Equal(t, square, snap.Landmarks)
	require.Len(t, snap.Connections, 3)
	assert.Len(t, w.Queued(), 3)
	// The last landmark ties between two neighbours and takes the earlier one.
	assert.Equal(t, model.NewPairKey(square[3], square[1]), snap.Connections[2].Key())

	drain(t, m, w)

	counts := w.Counts()
	assert.Equal(t, 3, counts[model.Completed])
	records := w.Records()
	require.Len(t, records, 3)
	for _, r := range records {
		require.GreaterOrEqual(t, len(r.Segments), 2)
		assert.Equal(t, r.From, r.Segments[0].Center)
		assert.Equal(t, r.To, r.Segments[len(r.Segments)-1].Center)
		assert.Equal(t, 3, r.Width)
		assert.NotEmpty(t, r.Palette)
		for _, s := range r.Segments {
			assert.Len(t, s.Positions, 3)
		}
	}
	assert.Equal(t, 3, rec.count(model.Completed))
	assert.Equal(t, 3, rec.count(model.Generating))
}

func TestRecoveryAfterCrash(t *testing.T) {
	backend := store.NewMemoryBackend()
	a, b, c := square[0], square[1], square[2]

	// A previous run died with a→b GENERATING and a→c never started.
	reg := registry.Open("w", backend, nil, quiet())
	for _, p := range []model.BlockPos{a, b, c} {
		_, err := reg.AddLandmark(p)
		require.NoError(t, err)
	}
	ab, err := reg.Add(model.Connection{From: b, To: a})
	require.NoError(t, err)
	_, err = reg.Add(model.Connection{From: c, To: a})
	require.NoError(t, err)
	_, err = reg.Transition(ab.Key(), model.Generating)
	require.NoError(t, err)

	cfg := testConfig()
	cfg.InitialLocatingCount = 0
	m := newManager(t, cfg, backend)
	w, err := m.OnWorldLoad("w", Host{Terrain: terrain.Flat(64), Locator: nothing()})
	require.NoError(t, err)

	counts := w.Counts()
	assert.Equal(t, 2, counts[model.Planned])
	assert.Zero(t, counts[model.Generating])

	queued := w.Queued()
	require.Len(t, queued, 2)
	seen := 0
	for _, q := range queued {
		if q.Key() == ab.Key() {
			seen++
		}
	}
	assert.Equal(t, 1, seen, "the interrupted connection is queued exactly once")
	assert.Empty(t, w.Records())

	drain(t, m, w)
	assert.Equal(t, 2, w.Counts()[model.Completed])
}

func TestAllRoadTypesDisabledFailsWithoutSearching(t *testing.T) {
	cfg := testConfig()
	cfg.AllowArtificial = false
	cfg.AllowNatural = false
	cfg.InitialLocatingCount = 2

	var queries int
	var mu sync.Mutex
	counting := terrain.QueryFunc(func(x, z int) int {
		mu.Lock()
		queries++
		mu.Unlock()
		return 64
	})

	m := newManager(t, cfg, store.NewMemoryBackend())
	w, err := m.OnWorldLoad("w", Host{Terrain: counting, Locator: locate.NewFileLocator(square)})
	require.NoError(t, err)
	drain(t, m, w)

	assert.Equal(t, 1, w.Counts()[model.Failed])
	assert.Empty(t, w.Records())
	mu.Lock()
	assert.Zero(t, queries)
	mu.Unlock()
}

func TestPathNotFoundFails(t *testing.T) {
	cfg := testConfig()
	cfg.StepBudget = 1
	cfg.InitialLocatingCount = 2

	m := newManager(t, cfg, store.NewMemoryBackend())
	w, err := m.OnWorldLoad("w", Host{Terrain: terrain.Flat(64), Locator: locate.NewFileLocator(square)})
	require.NoError(t, err)
	drain(t, m, w)

	assert.Equal(t, 1, w.Counts()[model.Failed])
	assert.Empty(t, w.Records())

	// FAILED is never retried, not even after a reload.
	require.NoError(t, m.OnWorldUnload("w"))
	w, err = m.OnWorldLoad("w", Host{Terrain: terrain.Flat(64), Locator: nothing()})
	require.NoError(t, err)
	assert.Empty(t, w.Queued())
}

func TestUnloadInterruptsAndReloadRecovers(t *testing.T) {
	backend := store.NewMemoryBackend()
	cfg := testConfig()
	cfg.InitialLocatingCount = 2
	cfg.StepBudget = 10_000_000

	slow := terrain.QueryFunc(func(x, z int) int {
		time.Sleep(50 * time.Microsecond)
		return 64
	})
	far := []model.BlockPos{{X: 0, Y: 64, Z: 0}, {X: 100_000, Y: 64, Z: 0}}

	m := newManager(t, cfg, backend)
	w, err := m.OnWorldLoad("w", Host{Terrain: slow, Locator: locate.NewFileLocator(far)})
	require.NoError(t, err)

	_, err = m.OnWorldTick("w")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return w.Counts()[model.Generating] == 1 }, 5*time.Second, time.Millisecond)

	require.NoError(t, m.OnWorldUnload("w"))
	assert.Zero(t, m.InFlight("w"))
	_, ok := m.World("w")
	assert.False(t, ok)

	// Interrupted, not failed.
	stored := store.Load(backend, "w", quiet())
	require.Len(t, stored.Connections, 1)
	assert.Equal(t, model.Generating, stored.Connections[0].Status)

	w, err = m.OnWorldLoad("w", Host{Terrain: terrain.Flat(64), Locator: nothing()})
	require.NoError(t, err)
	assert.Equal(t, 1, w.Counts()[model.Planned])
	assert.Len(t, w.Queued(), 1)
}

func TestReloadWaitsForUnloadToFinish(t *testing.T) {
	backend := store.NewMemoryBackend()
	cfg := testConfig()
	cfg.InitialLocatingCount = 2

	var armed atomic.Bool
	var entered sync.Once
	blocked := make(chan struct{})
	release := make(chan struct{})
	gated := terrain.QueryFunc(func(x, z int) int {
		if armed.Load() {
			entered.Do(func() { close(blocked) })
			<-release
		}
		return 64
	})
	far := []model.BlockPos{{X: 0, Y: 64, Z: 0}, {X: 5_000, Y: 64, Z: 0}}

	m := newManager(t, cfg, backend)
	_, err := m.OnWorldLoad("w", Host{Terrain: gated, Locator: locate.NewFileLocator(far)})
	require.NoError(t, err)
	armed.Store(true)
	_, err = m.OnWorldTick("w")
	require.NoError(t, err)
	<-blocked

	unloaded := make(chan error, 1)
	go func() { unloaded <- m.OnWorldUnload("w") }()
	require.Eventually(t, func() bool { return len(m.Worlds()) == 0 }, 5*time.Second, time.Millisecond)

	type loadResult struct {
		w   *World
		err error
	}
	loaded := make(chan loadResult, 1)
	go func() {
		w, err := m.OnWorldLoad("w", Host{Terrain: terrain.Flat(64), Locator: nothing()})
		loaded <- loadResult{w, err}
	}()

	// The old job is still running, so the reload must not open a registry yet.
	assert.Never(t, func() bool { return len(loaded) > 0 }, 100*time.Millisecond, 5*time.Millisecond)

	close(release)
	require.NoError(t, <-unloaded)
	res := <-loaded
	require.NoError(t, res.err)
	assert.Equal(t, 1, res.w.Counts()[model.Planned])
	assert.Len(t, res.w.Queued(), 1)
}

func TestShutdownThenLoadRecreatesPool(t *testing.T) {
	backend := store.NewMemoryBackend()
	cfg := testConfig()
	cfg.InitialLocatingCount = 2
	m := newManager(t, cfg, backend)

	_, err := m.OnWorldLoad("w", Host{Terrain: terrain.Flat(64), Locator: locate.NewFileLocator(square)})
	require.NoError(t, err)
	m.OnShutdown()
	m.Wait()
	assert.Empty(t, m.Worlds())
	assert.False(t, m.PoolRunning())

	w, err := m.OnWorldLoad("w", Host{Terrain: terrain.Flat(64), Locator: nothing()})
	require.NoError(t, err)
	drain(t, m, w)
	assert.Equal(t, 1, w.Counts()[model.Completed])
	assert.True(t, m.PoolRunning())
}

func TestChunkCadenceDiscoversNearPlayer(t *testing.T) {
	cfg := testConfig()
	cfg.InitialLocatingCount = 2
	cfg.MaxLocatingCount = 3
	cfg.ChunksPerLocate = 2

	var nearCalls int
	var mu sync.Mutex
	file := locate.NewFileLocator(square)
	loc := locate.Func(func(count int, nearPlayer bool) []model.BlockPos {
		if nearPlayer {
			mu.Lock()
			nearCalls++
			mu.Unlock()
		}
		return file.Locate(count, nearPlayer)
	})

	m := newManager(t, cfg, store.NewMemoryBackend())
	w, err := m.OnWorldLoad("w", Host{Terrain: terrain.Flat(64), Locator: loc})
	require.NoError(t, err)
	require.Len(t, w.Snapshot().Landmarks, 2)

	_, err = m.OnChunkGenerated("w", 0, 0)
	require.NoError(t, err)
	assert.Len(t, w.Snapshot().Landmarks, 2)

	_, err = m.OnChunkGenerated("w", 0, 1)
	require.NoError(t, err)
	assert.Len(t, w.Snapshot().Landmarks, 3)
	assert.Len(t, w.Queued(), 2)

	// The cap stops further discovery before the locator is consulted.
	for i := range 4 {
		_, err = m.OnChunkGenerated("w", 1, i)
		require.NoError(t, err)
	}
	assert.Len(t, w.Snapshot().Landmarks, 3)
	mu.Lock()
	assert.Equal(t, 1, nearCalls)
	mu.Unlock()
}

func TestLocateIntervalThrottles(t *testing.T) {
	cfg := testConfig()
	cfg.InitialLocatingCount = 1
	cfg.ChunksPerLocate = 1
	cfg.LocateInterval = config.Duration(time.Hour)

	m := newManager(t, cfg, store.NewMemoryBackend())
	w, err := m.OnWorldLoad("w", Host{Terrain: terrain.Flat(64), Locator: locate.NewFileLocator(square)})
	require.NoError(t, err)

	for i := range 5 {
		_, err := m.OnChunkGenerated("w", i, 0)
		require.NoError(t, err)
	}
	// One burst token: a single discovery in the hour.
	assert.Len(t, w.Snapshot().Landmarks, 2)
}

func TestChunkPlacementsFollowRoads(t *testing.T) {
	cfg := testConfig()
	cfg.InitialLocatingCount = 2
	m := newManager(t, cfg, store.NewMemoryBackend())
	w, err := m.OnWorldLoad("w", Host{Terrain: terrain.Flat(64), Locator: locate.NewFileLocator(square)})
	require.NoError(t, err)
	drain(t, m, w)

	// The road runs x=0..40 along z=0: chunk (1, 0) holds x=16..31.
	got, err := m.OnChunkGenerated("w", 1, 0)
	require.NoError(t, err)
	require.Len(t, got, 16)
	for _, p := range got {
		assert.Equal(t, 64, p.Center.Y)
		assert.Len(t, p.Positions, 3)
	}

	none, err := m.OnChunkGenerated("w", 5, 5)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestManagerErrors(t *testing.T) {
	bad := testConfig()
	bad.Widths = nil
	_, err := NewManager(bad, store.NewMemoryBackend())
	assert.ErrorIs(t, err, config.ErrInvalid)

	m := newManager(t, testConfig(), store.NewMemoryBackend())
	_, err = m.OnWorldTick("nowhere")
	assert.ErrorIs(t, err, ErrUnknownWorld)
	_, err = m.OnChunkGenerated("nowhere", 0, 0)
	assert.ErrorIs(t, err, ErrUnknownWorld)
	assert.ErrorIs(t, m.OnWorldUnload("nowhere"), ErrUnknownWorld)

	_, err = m.OnWorldLoad("w", Host{Terrain: terrain.Flat(64), Locator: nothing()})
	require.NoError(t, err)
	_, err = m.OnWorldLoad("w", Host{Terrain: terrain.Flat(64), Locator: nothing()})
	assert.ErrorIs(t, err, ErrWorldLoaded)
	assert.Equal(t, []string{"w"}, m.Worlds())
}

func TestWorldsAreIndependent(t *testing.T) {
	backend := store.NewMemoryBackend()
	cfg := testConfig()
	cfg.InitialLocatingCount = 2
	m := newManager(t, cfg, backend)

	a, err := m.OnWorldLoad("a", Host{Terrain: terrain.Flat(64), Locator: locate.NewFileLocator(square[:2])})
	require.NoError(t, err)
	b, err := m.OnWorldLoad("b", Host{Terrain: terrain.Flat(70), Locator: locate.NewFileLocator(square[2:])})
	require.NoError(t, err)

	drain(t, m, a)
	drain(t, m, b)
	require.Len(t, a.Records(), 1)
	require.Len(t, b.Records(), 1)
	assert.Equal(t, 64, a.Records()[0].Segments[1].Center.Y)
	assert.Equal(t, 70, b.Records()[0].Segments[1].Center.Y)
}

func TestPickStyle(t *testing.T) {
	cfg := testConfig()
	cfg.Widths = []int{3, 5}
	cfg.AllowArtificial = false
	m := newManager(t, cfg, store.NewMemoryBackend())
	w, err := m.OnWorldLoad("w", Host{Terrain: terrain.Flat(64), Locator: nothing()})
	require.NoError(t, err)

	widths := map[int]bool{}
	for range 200 {
		s, err := w.pickStyle()
		require.NoError(t, err)
		assert.Equal(t, model.Natural, s.material)
		assert.Contains(t, cfg.NaturalPalettes, s.palette)
		widths[s.width] = true
	}
	assert.Equal(t, map[int]bool{3: true, 5: true}, widths)
}
