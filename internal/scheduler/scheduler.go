// Package scheduler runs road generation jobs on a bounded worker pool.
//
// Admission happens on the caller's goroutine: each Tick for a world prunes
// finished jobs, checks the world's in-flight count against its ceiling and
// submits at most one queued connection. Workers run one job at a time to
// completion. Jobs are cancelled through their context on world unload and
// on Shutdown; a Tick after Shutdown starts a fresh pool.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"sync"

	"github.com/google/uuid"

	"roadweaver/internal/model"
)

// ErrPoolSaturated is returned by Tick when the submission buffer is full.
// The popped connection is back at the head of the queue.
var ErrPoolSaturated = errors.New("scheduler: worker pool saturated")

// DefaultWorkers is the pool size used when New is given a non-positive count.
const DefaultWorkers = 7

// Runner executes one connection. It must return promptly once ctx is done.
type Runner interface {
	Run(ctx context.Context, c model.Connection)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, c model.Connection)

func (f RunnerFunc) Run(ctx context.Context, c model.Connection) { f(ctx, c) }

type task struct {
	id     uuid.UUID
	world  string
	conn   model.Connection
	runner Runner
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func (t *task) finished() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Scheduler owns the worker pool and the in-flight task registry.
type Scheduler struct {
	mu      sync.Mutex
	workers int
	logger  *log.Logger

	running bool
	jobs    chan *task
	stop    chan struct{}
	wg      sync.WaitGroup

	tasks map[uuid.UUID]*task
}

// New creates a scheduler. The pool starts on the first Tick.
func New(workers int, logger *log.Logger) *Scheduler {
	if workers < 1 {
		workers = DefaultWorkers
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Scheduler{
		workers: workers,
		logger:  logger,
		tasks:   make(map[uuid.UUID]*task),
	}
}

// startLocked spins up a fresh pool. Callers hold s.mu.
func (s *Scheduler) startLocked() {
	s.jobs = make(chan *task, s.workers)
	s.stop = make(chan struct{})
	s.running = true
	for range s.workers {
		s.wg.Add(1)
		go s.worker(s.jobs, s.stop)
	}
	s.logger.Printf("🧵 worker pool started (%d workers)", s.workers)
}

func (s *Scheduler) worker(jobs <-chan *task, stop <-chan struct{}) {
	defer s.wg.Done()
	for {
		select {
		case <-stop:
			return
		case t := <-jobs:
			s.execute(t)
		}
	}
}

func (s *Scheduler) execute(t *task) {
	defer close(t.done)
	defer t.cancel()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Printf("❌ job %s (%s) panicked: %v\n%s", t.id, t.conn, r, debug.Stack())
		}
	}()

	// Tasks still buffered at shutdown are cancelled and skipped.
	if t.ctx.Err() != nil {
		return
	}
	t.runner.Run(t.ctx, t.conn)
}

// pruneLocked drops finished tasks. Callers hold s.mu.
func (s *Scheduler) pruneLocked() {
	for id, t := range s.tasks {
		if t.finished() {
			delete(s.tasks, id)
		}
	}
}

func (s *Scheduler) inFlightLocked(world string) int {
	n := 0
	for _, t := range s.tasks {
		if t.world == world {
			n++
		}
	}
	return n
}

// InFlight returns the number of unfinished jobs of world.
func (s *Scheduler) InFlight(world string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked()
	return s.inFlightLocked(world)
}

// Tick admits at most one connection of world from q. It returns the job id,
// or uuid.Nil when nothing was admitted.
func (s *Scheduler) Tick(world string, ceiling int, q *Queue, runner Runner) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked()
	if s.inFlightLocked(world) >= ceiling {
		return uuid.Nil, nil
	}
	c, ok := q.Pop()
	if !ok {
		return uuid.Nil, nil
	}
	if !s.running {
		s.startLocked()
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &task{
		id:     uuid.New(),
		world:  world,
		conn:   c,
		runner: runner,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	select {
	case s.jobs <- t:
		s.tasks[t.id] = t
		return t.id, nil
	default:
		cancel()
		q.PushFront(c)
		return uuid.Nil, fmt.Errorf("%w: %s", ErrPoolSaturated, c)
	}
}

// cancelJob interrupts one job. It reports whether the job was tracked.
func (s *Scheduler) cancelJob(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if ok {
		t.cancel()
	}
	return ok
}

// CancelWorld interrupts every tracked job of world and returns how many
// were cancelled.
func (s *Scheduler) CancelWorld(world string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked()
	n := 0
	for _, t := range s.tasks {
		if t.world == world {
			t.cancel()
			n++
		}
	}
	return n
}

// WaitWorld blocks until every job of world has returned or ctx is done.
func (s *Scheduler) WaitWorld(ctx context.Context, world string) error {
	s.mu.Lock()
	var pending []*task
	for _, t := range s.tasks {
		if t.world == world {
			pending = append(pending, t)
		}
	}
	s.mu.Unlock()

	for _, t := range pending {
		select {
		case <-t.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Shutdown cancels every job and stops the workers without draining the
// submission buffer. It does not wait; use Wait for that.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.tasks {
		t.cancel()
	}
	if !s.running {
		return
	}
	close(s.stop)
	dropped := 0
drain:
	for {
		select {
		case t := <-s.jobs:
			close(t.done)
			delete(s.tasks, t.id)
			dropped++
		default:
			break drain
		}
	}
	s.running = false
	s.jobs = nil
	s.logger.Printf("🛑 worker pool stopped (%d job(s) cancelled, %d never started)", len(s.tasks)+dropped, dropped)
}

// Wait blocks until the workers of every stopped pool have exited. Call it
// after Shutdown.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Running reports whether a pool is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
