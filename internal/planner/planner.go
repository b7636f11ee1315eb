// Package planner turns two landmark positions into a buildable road: an A*
// search over the block lattice priced by terrain height and roughness,
// followed by a width extrusion of the center line.
//
// The search has no wall-clock deadline. It is bounded only by the step
// budget (number of frontier expansions) and by the caller's context, which is
// polled inside the loop so that world unload and shutdown cancel promptly.
// Not finding a route is a value (Result.Found == false), never an error.
package planner

import (
	"container/heap"
	"context"
	"math"

	"roadweaver/internal/model"
)

// cancelPollInterval is how many expansions run between context checks.
const cancelPollInterval = 64

// Heights resolves surface heights; *terrain.HeightCache satisfies it.
type Heights interface {
	GetOrCompute(x, z int) int
}

// Result contains the outcome of a search.
type Result struct {
	Segments []model.RoadSegment
	Cost     float64
	Expanded int
	Found    bool
}

// Planner runs road searches against one height source.
// It holds no per-search state and is safe for concurrent use.
type Planner struct {
	heights Heights
	opts    Options
}

// New creates a Planner reading heights from h.
func New(h Heights, options ...Option) *Planner {
	opts := DefaultOptions()
	for _, option := range options {
		option(&opts)
	}
	return &Planner{heights: h, opts: opts}
}

// effective returns the options after defaults and overrides.
func (p *Planner) effective() Options { return p.opts }

// Plan searches a road from start to end, width blocks wide, expanding at most
// stepBudget nodes. The only error returned is the context's, when the search
// was cancelled; exhausting the budget or the frontier yields Found == false.
func (p *Planner) Plan(ctx context.Context, start, end model.BlockPos, width, stepBudget int) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if width < 1 || stepBudget < 1 {
		return Result{}, nil
	}

	startCell := cell{start.X, start.Z}
	goalCell := cell{end.X, end.Z}
	if startCell == goalCell {
		// A single column cannot form a road of two or more segments.
		return Result{}, nil
	}

	s := &search{
		planner:   p,
		goal:      goalCell,
		open:      &priorityQueue{},
		openSet:   make(map[cell]*node),
		closedSet: make(map[cell]bool),
		stability: make(map[cell]int),
	}
	heap.Init(s.open)

	h := p.opts.Heuristic.estimate(startCell, goalCell)
	startNode := &node{
		cell: startCell,
		y:    p.heights.GetOrCompute(startCell.x, startCell.z),
		h:    h,
		f:    h,
	}
	heap.Push(s.open, startNode)
	s.openSet[startCell] = startNode

	expanded := 0
	for s.open.Len() > 0 {
		if expanded >= stepBudget {
			return Result{Expanded: expanded}, nil
		}
		if expanded%cancelPollInterval == 0 {
			if err := ctx.Err(); err != nil {
				return Result{Expanded: expanded}, err
			}
		}

		current := heap.Pop(s.open).(*node)
		delete(s.openSet, current.cell)
		expanded++

		if current.cell == goalCell {
			centers := backtrack(current)
			return Result{
				Segments: extrude(centers, width, p.opts.Lookaround),
				Cost:     current.g,
				Expanded: expanded,
				Found:    true,
			}, nil
		}

		s.closedSet[current.cell] = true
		s.expand(current)
	}

	// Frontier exhausted: every reachable column was pruned.
	return Result{Expanded: expanded}, nil
}

// search is the mutable state of a single Plan call.
type search struct {
	planner   *Planner
	goal      cell
	open      *priorityQueue
	openSet   map[cell]*node
	closedSet map[cell]bool
	stability map[cell]int
}

func (s *search) expand(current *node) {
	opts := s.planner.opts
	for _, off := range neighbourOffsets {
		next := cell{current.cell.x + off[0], current.cell.z + off[1]}
		if s.closedSet[next] {
			continue
		}

		dist := 1.0
		if off[0] != 0 && off[1] != 0 {
			dist = math.Sqrt2
		}
		y := s.planner.heights.GetOrCompute(next.x, next.z)
		cost, ok := opts.stepCost(dist, y-current.y, s.stabilityAt(next))
		if !ok {
			continue
		}
		tentativeG := current.g + cost

		neighbour, exists := s.openSet[next]
		if !exists {
			h := opts.Heuristic.estimate(next, s.goal)
			neighbour = &node{
				cell:   next,
				y:      y,
				g:      tentativeG,
				h:      h,
				f:      tentativeG + h,
				parent: current,
			}
			heap.Push(s.open, neighbour)
			s.openSet[next] = neighbour
		} else if tentativeG < neighbour.g {
			// Found a better path to this neighbour
			neighbour.g = tentativeG
			neighbour.f = tentativeG + neighbour.h
			neighbour.parent = current
			heap.Fix(s.open, neighbour.index)
		}
	}
}

// stabilityAt returns the height range over the 3x3 block around c.
func (s *search) stabilityAt(c cell) int {
	if v, ok := s.stability[c]; ok {
		return v
	}
	lo, hi := math.MaxInt, math.MinInt
	for dx := -1; dx <= 1; dx++ {
		for dz := -1; dz <= 1; dz++ {
			y := s.planner.heights.GetOrCompute(c.x+dx, c.z+dz)
			lo = min(lo, y)
			hi = max(hi, y)
		}
	}
	s.stability[c] = hi - lo
	return hi - lo
}

// backtrack follows parent links from the goal and returns the center line
// from start to goal.
func backtrack(goal *node) []model.BlockPos {
	n := 0
	for nd := goal; nd != nil; nd = nd.parent {
		n++
	}
	centers := make([]model.BlockPos, n)
	for nd := goal; nd != nil; nd = nd.parent {
		n--
		centers[n] = model.BlockPos{X: nd.cell.x, Y: nd.y, Z: nd.cell.z}
	}
	return centers
}
