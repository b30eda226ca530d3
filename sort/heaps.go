package sort

import "container/heap"

// ---------------------------------------------------------------------------
// Bounded priority queue over container/heap. The element that sorts first
// according to less is at the top.
// ---------------------------------------------------------------------------

type PriorityQueue[T any] struct {
	h queueHeap[T]
}

// NewPriorityQueue returns an empty queue that holds at most capacity items.
func NewPriorityQueue[T any](capacity int, less func(a, b T) bool) *PriorityQueue[T] {
	return &PriorityQueue[T]{h: queueHeap[T]{items: make([]T, 0, capacity), less: less, limit: capacity}}
}

func (pq *PriorityQueue[T]) Len() int { return pq.h.Len() }

// Push adds v, failing with ErrQueueFull when the queue is at capacity.
func (pq *PriorityQueue[T]) Push(v T) error {
	if len(pq.h.items) >= pq.h.limit {
		return ErrQueueFull
	}
	heap.Push(&pq.h, v)
	return nil
}

// Pop removes and returns the top item. ok is false on an empty queue.
func (pq *PriorityQueue[T]) Pop() (v T, ok bool) {
	if pq.h.Len() == 0 {
		return v, false
	}
	return heap.Pop(&pq.h).(T), true
}

type queueHeap[T any] struct {
	items []T
	less  func(a, b T) bool
	limit int
}

func (h queueHeap[T]) Len() int           { return len(h.items) }
func (h queueHeap[T]) Less(i, j int) bool { return h.less(h.items[i], h.items[j]) }
func (h queueHeap[T]) Swap(i, j int)      { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *queueHeap[T]) Push(x interface{}) {
	h.items = append(h.items, x.(T))
}
func (h *queueHeap[T]) Pop() interface{} {
	n := len(h.items)
	v := h.items[n-1]
	var zero T
	h.items[n-1] = zero
	h.items = h.items[:n-1]
	return v
}
