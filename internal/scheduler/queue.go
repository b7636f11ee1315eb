package scheduler

import (
	"sync"

	"github.com/zyedidia/generic/mapset"

	"roadweaver/internal/model"
)

// Queue is a FIFO of connections waiting for generation. A pair is queued at
// most once regardless of orientation.
type Queue struct {
	mu      sync.Mutex
	items   []model.Connection
	members mapset.Set[model.PairKey]
}

func NewQueue() *Queue {
	return &Queue{members: mapset.New[model.PairKey]()}
}

// Push appends c. It reports false when the pair is already queued.
func (q *Queue) Push(c model.Connection) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	key := c.Key()
	if q.members.Has(key) {
		return false
	}
	q.members.Put(key)
	q.items = append(q.items, c)
	return true
}

// PushFront puts c back at the head, used when a popped connection could not
// be submitted.
func (q *Queue) PushFront(c model.Connection) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	key := c.Key()
	if q.members.Has(key) {
		return false
	}
	q.members.Put(key)
	q.items = append([]model.Connection{c}, q.items...)
	return true
}

// Pop removes and returns the head.
func (q *Queue) Pop() (model.Connection, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return model.Connection{}, false
	}
	c := q.items[0]
	q.items[0] = model.Connection{}
	q.items = q.items[1:]
	q.members.Remove(c.Key())
	return c, true
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) Contains(key model.PairKey) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.members.Has(key)
}

// Items returns the queued connections head first.
func (q *Queue) Items() []model.Connection {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]model.Connection(nil), q.items...)
}

// Clear empties the queue.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = nil
	q.members = mapset.New[model.PairKey]()
}
