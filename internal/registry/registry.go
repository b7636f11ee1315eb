// Package registry tracks the lifecycle of every connection in a world and
// persists it.
//
// A connection moves PLANNED -> GENERATING -> COMPLETED or FAILED. COMPLETED
// is reachable only through Complete, which stores the road record in the
// same critical section. The single backwards move, GENERATING -> PLANNED,
// happens in Recover when a world is loaded after an interrupted run.
package registry

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/zyedidia/generic/mapset"

	"roadweaver/internal/events"
	"roadweaver/internal/model"
	"roadweaver/internal/store"
)

var (
	ErrDuplicateConnection = errors.New("registry: connection already exists")
	ErrUnknownConnection   = errors.New("registry: unknown connection")
	ErrInvalidTransition   = errors.New("registry: invalid status transition")
	ErrClosed              = errors.New("registry: closed")
)

// Registry owns one world's persisted data. All methods are safe for
// concurrent use; every mutation is saved before the lock is released.
type Registry struct {
	mu        sync.Mutex
	world     string
	data      model.WorldData
	index     map[model.PairKey]int // connection position in data.Connections
	landmarks mapset.Set[model.BlockPos]
	backend   store.Backend
	sink      events.Sink
	logger    *log.Logger
	now       func() time.Time
	closed    bool
}

// Open loads a world from backend. sink and logger may be nil.
func Open(world string, backend store.Backend, sink events.Sink, logger *log.Logger) *Registry {
	if sink == nil {
		sink = events.Discard{}
	}
	if logger == nil {
		logger = log.Default()
	}
	r := &Registry{
		world:     world,
		data:      store.Load(backend, world, logger),
		index:     make(map[model.PairKey]int),
		landmarks: mapset.New[model.BlockPos](),
		backend:   backend,
		sink:      sink,
		logger:    logger,
		now:       time.Now,
	}
	r.reindex()
	return r
}

// reindex rebuilds the lookup tables, dropping duplicate pairs and landmarks
// a damaged save may contain. The first occurrence wins.
func (r *Registry) reindex() {
	conns := r.data.Connections[:0]
	for _, c := range r.data.Connections {
		key := c.Key()
		if _, dup := r.index[key]; dup {
			r.logger.Printf("⚠️  dropping duplicate connection %s", c)
			continue
		}
		r.index[key] = len(conns)
		conns = append(conns, c)
	}
	r.data.Connections = conns

	landmarks := r.data.Landmarks[:0]
	for _, p := range r.data.Landmarks {
		if r.landmarks.Has(p) {
			continue
		}
		r.landmarks.Put(p)
		landmarks = append(landmarks, p)
	}
	r.data.Landmarks = landmarks
}

// World returns the world id.
func (r *Registry) World() string { return r.world }

// save persists the current data. Callers hold r.mu.
func (r *Registry) save() error {
	if r.closed {
		return ErrClosed
	}
	return store.Save(r.backend, r.world, r.data)
}

// Close makes every later mutation fail with ErrClosed. Jobs still running
// for an unloaded world can then no longer overwrite a newer save.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
}

func (r *Registry) publish(c model.Connection) {
	r.sink.Publish(events.Event{World: r.world, From: c.From, To: c.To, Status: c.Status, At: r.now()})
}

// AddLandmark appends p unless it is already known. It reports whether p was
// added.
func (r *Registry) AddLandmark(p model.BlockPos) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.landmarks.Has(p) {
		return false, nil
	}
	r.data.Landmarks = append(r.data.Landmarks, p)
	if err := r.save(); err != nil {
		r.data.Landmarks = r.data.Landmarks[:len(r.data.Landmarks)-1]
		return false, err
	}
	r.landmarks.Put(p)
	return true, nil
}

// Add stores a new connection as PLANNED. Either orientation of an existing
// pair is rejected with ErrDuplicateConnection.
func (r *Registry) Add(c model.Connection) (model.Connection, error) {
	c.Status = model.Planned

	r.mu.Lock()
	key := c.Key()
	if _, ok := r.index[key]; ok {
		r.mu.Unlock()
		return model.Connection{}, fmt.Errorf("%w: %s", ErrDuplicateConnection, c)
	}
	r.data.Connections = append(r.data.Connections, c)
	if err := r.save(); err != nil {
		r.data.Connections = r.data.Connections[:len(r.data.Connections)-1]
		r.mu.Unlock()
		return model.Connection{}, err
	}
	r.index[key] = len(r.data.Connections) - 1
	r.mu.Unlock()

	r.publish(c)
	return c, nil
}

func allowed(from, to model.Status) bool {
	switch from {
	case model.Planned:
		return to == model.Generating
	case model.Generating:
		return to == model.Failed
	}
	return false
}

// Transition moves a connection to status. Only PLANNED -> GENERATING and
// GENERATING -> FAILED are accepted; use Complete to finish a connection.
func (r *Registry) Transition(key model.PairKey, status model.Status) (model.Connection, error) {
	r.mu.Lock()
	i, ok := r.index[key]
	if !ok {
		r.mu.Unlock()
		return model.Connection{}, fmt.Errorf("%w: %v", ErrUnknownConnection, key)
	}
	c := &r.data.Connections[i]
	if !allowed(c.Status, status) {
		from := c.Status
		r.mu.Unlock()
		return model.Connection{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, status)
	}

	prev := c.Status
	c.Status = status
	if err := r.save(); err != nil {
		c.Status = prev
		r.mu.Unlock()
		return model.Connection{}, err
	}
	out := *c
	r.mu.Unlock()

	r.publish(out)
	return out, nil
}

// Complete appends record and marks its connection COMPLETED in one step. If
// the save fails neither change is kept.
func (r *Registry) Complete(record model.RoadRecord) (model.Connection, error) {
	key := model.NewPairKey(record.From, record.To)

	r.mu.Lock()
	i, ok := r.index[key]
	if !ok {
		r.mu.Unlock()
		return model.Connection{}, fmt.Errorf("%w: %v", ErrUnknownConnection, key)
	}
	c := &r.data.Connections[i]
	if c.Status != model.Generating {
		from := c.Status
		r.mu.Unlock()
		return model.Connection{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, model.Completed)
	}

	r.data.Roads = append(r.data.Roads, record)
	c.Status = model.Completed
	if err := r.save(); err != nil {
		r.data.Roads = r.data.Roads[:len(r.data.Roads)-1]
		c.Status = model.Generating
		r.mu.Unlock()
		return model.Connection{}, err
	}
	out := *c
	r.mu.Unlock()

	r.publish(out)
	return out, nil
}

// Recover demotes every GENERATING connection to PLANNED and returns all
// PLANNED connections in stored order. It is meant to run once, right after
// Open and before any job is admitted.
func (r *Registry) Recover() ([]model.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	demoted := 0
	for i := range r.data.Connections {
		if r.data.Connections[i].Status == model.Generating {
			r.data.Connections[i].Status = model.Planned
			demoted++
		}
	}
	if demoted > 0 {
		r.logger.Printf("🔄 %d interrupted connection(s) reset to PLANNED", demoted)
		if err := r.save(); err != nil {
			return nil, err
		}
	}

	var planned []model.Connection
	for _, c := range r.data.Connections {
		if c.Status == model.Planned {
			planned = append(planned, c)
		}
	}
	return planned, nil
}

// Get returns the connection for key.
func (r *Registry) Get(key model.PairKey) (model.Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.index[key]
	if !ok {
		return model.Connection{}, false
	}
	return r.data.Connections[i], true
}

// Snapshot returns a copy of the world data.
func (r *Registry) Snapshot() model.WorldData {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.data.Clone()
}

func (r *Registry) Landmarks() []model.BlockPos {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.BlockPos(nil), r.data.Landmarks...)
}

func (r *Registry) Connections() []model.Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Connection(nil), r.data.Connections...)
}

// Records returns the stored road records in completion order.
func (r *Registry) Records() []model.RoadRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.RoadRecord(nil), r.data.Roads...)
}

// Counts returns the number of connections per status.
func (r *Registry) Counts() map[model.Status]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[model.Status]int, 4)
	for _, c := range r.data.Connections {
		counts[c.Status]++
	}
	return counts
}
