package planner

// node is one lattice column in the A* search.
type node struct {
	cell   cell
	y      int     // surface height of the column
	g      float64 // cost from start to this node
	h      float64 // heuristic cost from this node to the goal
	f      float64 // g + h
	parent *node
	index  int // index in the heap
}

type cell struct{ x, z int }

// fEpsilon absorbs float noise so that equal f-scores reached along different
// paths still fall through to the h tie-break.
const fEpsilon = 1e-9

// priorityQueue implements heap.Interface ordered by f, then by h.
type priorityQueue []*node

func (pq priorityQueue) Len() int { return len(pq) }

func (pq priorityQueue) Less(i, j int) bool {
	if d := pq[i].f - pq[j].f; d < -fEpsilon || d > fEpsilon {
		return d < 0
	}
	// Equal f: prefer the node closer to the goal, which keeps paths straight.
	return pq[i].h < pq[j].h
}

func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

func (pq *priorityQueue) Push(x interface{}) {
	n := len(*pq)
	nd := x.(*node)
	nd.index = n
	*pq = append(*pq, nd)
}

func (pq *priorityQueue) Pop() interface{} {
	old := *pq
	n := len(old)
	nd := old[n-1]
	old[n-1] = nil
	nd.index = -1
	*pq = old[0 : n-1]
	return nd
}
