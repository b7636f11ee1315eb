package weaver

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"sync"

	"golang.org/x/time/rate"

	"roadweaver/internal/config"
	"roadweaver/internal/locate"
	"roadweaver/internal/model"
	"roadweaver/internal/network"
	"roadweaver/internal/placement"
	"roadweaver/internal/planner"
	"roadweaver/internal/registry"
	"roadweaver/internal/scheduler"
	"roadweaver/internal/terrain"
)

var (
	ErrPathNotFound         = errors.New("weaver: no path between landmarks")
	ErrAllRoadTypesDisabled = errors.New("weaver: every road type is disabled")
)

// World is the road network state of one loaded world. It is created by
// Manager.OnWorldLoad and dropped on unload.
type World struct {
	id       string
	cfg      config.Config
	logger   *log.Logger
	registry *registry.Registry
	queue    *scheduler.Queue
	cache    *terrain.HeightCache
	builder  *network.Builder
	locator  locate.Locator
	limiter  *rate.Limiter

	mu     sync.Mutex
	rng    *rand.Rand
	chunks int
}

func (w *World) ID() string { return w.id }

// Records returns the stored road records in completion order.
func (w *World) Records() []model.RoadRecord { return w.registry.Records() }

// Snapshot returns a copy of everything stored for the world.
func (w *World) Snapshot() model.WorldData { return w.registry.Snapshot() }

// Counts returns the number of connections per status.
func (w *World) Counts() map[model.Status]int { return w.registry.Counts() }

// Queued returns the connections waiting for a worker, head first.
func (w *World) Queued() []model.Connection { return w.queue.Items() }

// Cache exposes the world's height cache.
func (w *World) Cache() *terrain.HeightCache { return w.cache }

// Discover asks the locator for up to count new landmarks, links each one to
// its nearest neighbour and queues the resulting connections. Nothing is
// discovered once MaxLocatingCount landmarks exist. It returns the number of
// new landmarks.
func (w *World) Discover(count int, nearPlayer bool) int {
	room := w.cfg.MaxLocatingCount - len(w.registry.Landmarks())
	if count > room {
		count = room
	}
	if count < 1 {
		return 0
	}

	added := 0
	for _, p := range w.locator.Locate(count, nearPlayer) {
		ok, err := w.registry.AddLandmark(p)
		if err != nil {
			w.logger.Printf("❌ storing landmark %s: %v", p, err)
			continue
		}
		if !ok {
			continue
		}
		added++
		w.link()
	}
	if added > 0 {
		w.logger.Printf("🏘️  %d landmark(s) discovered", added)
	}
	return added
}

// link connects the newest landmark and queues the connection.
func (w *World) link() {
	conn, ok := w.builder.ConnectNewest(w.registry.Landmarks(), w.registry.Connections())
	if !ok {
		return
	}
	conn, err := w.registry.Add(conn)
	if err != nil {
		if !errors.Is(err, registry.ErrDuplicateConnection) {
			w.logger.Printf("❌ storing connection: %v", err)
		}
		return
	}
	w.queue.Push(conn)
	w.logger.Printf("🔗 planned %s", conn)
}

// chunkGenerated advances the locating cadence and replays roads for the
// chunk.
func (w *World) chunkGenerated(chunkX, chunkZ int) []placement.Placement {
	if w.cache.ClearIfOversized() {
		w.logger.Printf("🧹 height cache cleared")
	}

	w.mu.Lock()
	w.chunks++
	due := w.chunks%w.cfg.ChunksPerLocate == 0
	w.mu.Unlock()
	if due && w.limiter.Allow() {
		w.Discover(1, true)
	}

	return placement.ForChunk(w.registry.Records(), chunkX, chunkZ, w.cache,
		w.cfg.AveragingRadius, w.cfg.VillageClearance)
}

type style struct {
	width    int
	material model.Material
	palette  []string
}

// pickStyle draws a width, a material family among the allowed ones and a
// palette within it.
func (w *World) pickStyle() (style, error) {
	var families []model.Material
	if w.cfg.AllowArtificial {
		families = append(families, model.Artificial)
	}
	if w.cfg.AllowNatural {
		families = append(families, model.Natural)
	}
	if len(families) == 0 {
		return style{}, ErrAllRoadTypesDisabled
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	s := style{
		width:    w.cfg.Widths[w.rng.IntN(len(w.cfg.Widths))],
		material: families[w.rng.IntN(len(families))],
	}
	palettes := w.cfg.ArtificialPalettes
	if s.material == model.Natural {
		palettes = w.cfg.NaturalPalettes
	}
	if len(palettes) > 0 {
		s.palette = palettes[w.rng.IntN(len(palettes))]
	}
	return s, nil
}

// Run generates one connection. It is the scheduler job for this world.
func (w *World) Run(ctx context.Context, c model.Connection) {
	key := c.Key()
	if _, err := w.registry.Transition(key, model.Generating); err != nil {
		w.logger.Printf("⚠️  skipping %s: %v", c, err)
		return
	}
	defer func() {
		if r := recover(); r != nil {
			w.fail(key, fmt.Errorf("panic: %v", r))
			panic(r)
		}
	}()

	err := w.generate(ctx, c)
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// Left GENERATING; the next load resets it to PLANNED.
		w.logger.Printf("⏸️  interrupted %s", c)
	default:
		w.fail(key, err)
	}
}

func (w *World) fail(key model.PairKey, cause error) {
	w.logger.Printf("❌ %v -> FAILED: %v", key, cause)
	if _, err := w.registry.Transition(key, model.Failed); err != nil {
		w.logger.Printf("❌ marking %v failed: %v", key, err)
	}
}

func (w *World) generate(ctx context.Context, c model.Connection) error {
	s, err := w.pickStyle()
	if err != nil {
		return err
	}

	p := planner.New(w.cache,
		planner.WithMaterial(s.material),
		planner.WithMaxHeightDifference(w.cfg.MaxHeightDifference),
		planner.WithMaxTerrainStability(w.cfg.MaxTerrainStability),
		planner.WithLookaround(placement.Lookaround),
	)
	res, err := p.Plan(ctx, c.From, c.To, s.width, w.cfg.StepBudget)
	if err != nil {
		return err
	}
	if !res.Found {
		return fmt.Errorf("%w: %s after %d steps", ErrPathNotFound, c, res.Expanded)
	}

	_, err = w.registry.Complete(model.RoadRecord{
		From:     c.From,
		To:       c.To,
		Width:    s.width,
		Material: s.material,
		Palette:  s.palette,
		Segments: res.Segments,
	})
	if err != nil {
		return fmt.Errorf("storing road: %w", err)
	}
	w.logger.Printf("✅ built %s: %d segments, width %d, %s", c, len(res.Segments), s.width, s.material)
	return nil
}
