// Package weaver ties the road network components to the host's world
// lifecycle: load, tick, chunk generation, unload and shutdown.
//
// Every loaded world owns its registry, queue, height cache and graph
// builder. The worker pool is shared and owned by the Manager.
package weaver

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"roadweaver/internal/config"
	"roadweaver/internal/events"
	"roadweaver/internal/locate"
	"roadweaver/internal/model"
	"roadweaver/internal/network"
	"roadweaver/internal/placement"
	"roadweaver/internal/registry"
	"roadweaver/internal/scheduler"
	"roadweaver/internal/store"
	"roadweaver/internal/terrain"
)

var (
	ErrUnknownWorld = errors.New("weaver: world not loaded")
	ErrWorldLoaded  = errors.New("weaver: world already loaded")
)

// unloadGrace bounds how long unload waits for cancelled jobs to return.
const unloadGrace = 5 * time.Second

// Host is what the embedding application supplies for a world.
type Host struct {
	Terrain terrain.Query
	Locator locate.Locator
}

// Manager tracks loaded worlds and the shared worker pool.
type Manager struct {
	cfg     config.Config
	backend store.Backend
	sink    events.Sink
	logger  *log.Logger
	seed    func() uint64
	sched   *scheduler.Scheduler

	mu      sync.Mutex
	worlds  map[string]*World
	closing map[string]chan struct{} // closed once the world's teardown is done
}

// Option configures a Manager.
type Option func(*Manager)

// WithSink publishes connection status changes to sink.
func WithSink(sink events.Sink) Option {
	return func(m *Manager) { m.sink = sink }
}

func WithLogger(logger *log.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithSeed makes the road style choices of every world reproducible.
func WithSeed(seed uint64) Option {
	return func(m *Manager) { m.seed = func() uint64 { return seed } }
}

// NewManager validates cfg and creates a Manager persisting to backend.
func NewManager(cfg config.Config, backend store.Backend, opts ...Option) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := &Manager{
		cfg:     cfg,
		backend: backend,
		sink:    events.Discard{},
		logger:  log.Default(),
		seed:    rand.Uint64,
		worlds:  make(map[string]*World),
		closing: make(map[string]chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.sched = scheduler.New(cfg.Workers, m.logger)
	return m, nil
}

func (m *Manager) worldLogger(id string) *log.Logger {
	return log.New(m.logger.Writer(), m.logger.Prefix()+"[world "+id+"] ", m.logger.Flags())
}

// OnWorldLoad loads a world, re-queues interrupted and pending connections
// and runs the bootstrap discovery. Recovery completes before the world can
// be ticked.
func (m *Manager) OnWorldLoad(id string, host Host) (*World, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	// A world being unloaded may still have a job saving to the store.
	for {
		done, ok := m.closing[id]
		if !ok {
			break
		}
		m.mu.Unlock()
		<-done
		m.mu.Lock()
	}
	if _, ok := m.worlds[id]; ok {
		return nil, fmt.Errorf("%w: %s", ErrWorldLoaded, id)
	}

	logger := m.worldLogger(id)
	limit := rate.Inf
	if m.cfg.LocateInterval > 0 {
		limit = rate.Every(time.Duration(m.cfg.LocateInterval))
	}
	seed := m.seed()
	w := &World{
		id:       id,
		cfg:      m.cfg,
		logger:   logger,
		registry: registry.Open(id, m.backend, m.sink, logger),
		queue:    scheduler.NewQueue(),
		cache:    terrain.NewHeightCache(host.Terrain, m.cfg.HeightCacheLimit),
		builder:  network.NewBuilder(),
		locator:  host.Locator,
		limiter:  rate.NewLimiter(limit, 1),
		rng:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}

	planned, err := w.registry.Recover()
	if err != nil {
		return nil, fmt.Errorf("recovering world %s: %w", id, err)
	}
	for _, c := range planned {
		w.queue.Push(c)
	}

	landmarks := w.registry.Landmarks()
	if ex, ok := host.Locator.(locate.Excluder); ok {
		ex.Exclude(landmarks...)
	}
	if missing := m.cfg.InitialLocatingCount - len(landmarks); missing > 0 {
		w.Discover(missing, false)
	}

	m.worlds[id] = w
	counts := w.Counts()
	logger.Printf("✅ loaded: %d landmarks, %d queued, %d completed, %d failed",
		len(w.registry.Landmarks()), w.queue.Len(), counts[model.Completed], counts[model.Failed])
	return w, nil
}

// World returns a loaded world.
func (m *Manager) World(id string) (*World, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.worlds[id]
	return w, ok
}

// Worlds returns the ids of the loaded worlds, sorted.
func (m *Manager) Worlds() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.worlds))
	for id := range m.worlds {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// OnWorldTick admits at most one queued connection of the world.
func (m *Manager) OnWorldTick(id string) (uuid.UUID, error) {
	w, ok := m.World(id)
	if !ok {
		return uuid.Nil, fmt.Errorf("%w: %s", ErrUnknownWorld, id)
	}
	job, err := m.sched.Tick(id, m.cfg.MaxConcurrentRoadGeneration, w.queue, w)
	if err != nil {
		return uuid.Nil, err
	}
	return job, nil
}

// PoolRunning reports whether the worker pool is started. It starts on the
// first admitted job and stops on shutdown.
func (m *Manager) PoolRunning() bool {
	return m.sched.Running()
}

// InFlight returns the number of running jobs of a world.
func (m *Manager) InFlight(id string) int {
	return m.sched.InFlight(id)
}

// OnChunkGenerated guards the height cache, runs the periodic near-player
// discovery and returns the road placements for the chunk.
func (m *Manager) OnChunkGenerated(id string, chunkX, chunkZ int) ([]placement.Placement, error) {
	w, ok := m.World(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownWorld, id)
	}
	return w.chunkGenerated(chunkX, chunkZ), nil
}

// OnWorldUnload cancels the world's jobs, waits briefly for them to return
// and releases its state. Interrupted connections stay GENERATING in the
// store until the next load.
func (m *Manager) OnWorldUnload(id string) error {
	m.mu.Lock()
	w, ok := m.worlds[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownWorld, id)
	}
	delete(m.worlds, id)
	done := make(chan struct{})
	m.closing[id] = done
	m.mu.Unlock()

	m.teardown(w)
	m.finishClosing(id, done)
	return nil
}

func (m *Manager) finishClosing(id string, done chan struct{}) {
	m.mu.Lock()
	delete(m.closing, id)
	m.mu.Unlock()
	close(done)
}

func (m *Manager) teardown(w *World) {
	n := m.sched.CancelWorld(w.id)
	ctx, cancel := context.WithTimeout(context.Background(), unloadGrace)
	defer cancel()
	if err := m.sched.WaitWorld(ctx, w.id); err != nil {
		w.logger.Printf("⚠️  jobs still running after %s", unloadGrace)
	}
	w.registry.Close()
	w.queue.Clear()
	w.cache.Clear()
	w.logger.Printf("👋 unloaded (%d job(s) cancelled)", n)
}

// OnShutdown cancels every job, stops the pool without draining it and
// unloads every world. A later OnWorldLoad starts a new pool.
func (m *Manager) OnShutdown() {
	m.sched.Shutdown()

	m.mu.Lock()
	worlds := m.worlds
	m.worlds = make(map[string]*World)
	pending := make(map[string]chan struct{}, len(worlds))
	for id := range worlds {
		pending[id] = make(chan struct{})
		m.closing[id] = pending[id]
	}
	m.mu.Unlock()

	for id, w := range worlds {
		m.teardown(w)
		m.finishClosing(id, pending[id])
	}
	m.logger.Printf("🛑 shut down %d world(s)", len(worlds))
}

// Wait blocks until the workers of a shut down pool have exited.
func (m *Manager) Wait() {
	m.sched.Wait()
}
