package expand

import "container/heap"

type pqItem struct {
	depth int
	seq   int
	value interface{}
}

type rawHeap []*pqItem

func (h rawHeap) Len() int { return len(h) }
func (h rawHeap) Less(i, j int) bool {
	if h[i].depth != h[j].depth {
		return h[i].depth > h[j].depth // max-heap: deepest first
	}
	return h[i].seq < h[j].seq // ties broken by insertion order
}
func (h rawHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *rawHeap) Push(x interface{}) { *h = append(*h, x.(*pqItem)) }
func (h *rawHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// depthQueue is a priority queue ordered by descending depth, ties broken
// by a monotonic insertion counter captured at push time so equal-depth
// commits come out in the order they were pushed.
type depthQueue struct {
	h   rawHeap
	seq int
}

func newDepthQueue() *depthQueue { return &depthQueue{} }

// Push enqueues value at the given depth.
func (q *depthQueue) Push(depth int, value interface{}) {
	heap.Push(&q.h, &pqItem{depth: depth, seq: q.seq, value: value})
	q.seq++
}

// Len reports how many items remain.
func (q *depthQueue) Len() int { return q.h.Len() }

// Pop removes and returns the deepest remaining item.
func (q *depthQueue) Pop() (int, interface{}) {
	item := heap.Pop(&q.h).(*pqItem)
	return item.depth, item.value
}

// PeekDepth returns the depth of the next item without removing it.
func (q *depthQueue) PeekDepth() (int, bool) {
	if q.h.Len() == 0 {
		return 0, false
	}
	return q.h[0].depth, true
}
