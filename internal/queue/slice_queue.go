package queue

// sliceQueue implements the Queue interface using a slice.
type sliceQueue[T any] struct {
	items []T
}

var _ Queue[int] = (*sliceQueue[int])(nil)

// NewSliceQueue creates a new slice backed queue with prealloc capacity.
func NewSliceQueue[T any](prealloc int) Queue[T] {
	return &sliceQueue[T]{items: make([]T, 0, prealloc)}
}

// Enqueue adds an item to the tail of the queue.
func (q *sliceQueue[T]) Enqueue(item T) {
	q.items = append(q.items, item)
}

// Dequeue removes and returns the item at the head of the queue.
func (q *sliceQueue[T]) Dequeue() (T, bool) {
	var zero T
	if len(q.items) == 0 {
		return zero, false
	}

	item := q.items[0]
	q.items[0] = zero // release reference for GC
	q.items = q.items[1:]

	return item, true
}

// Peek returns the item at the head of the queue without removing it.
func (q *sliceQueue[T]) Peek() (T, bool) {
	if len(q.items) == 0 {
		var zero T
		return zero, false
	}

	return q.items[0], true
}

// DrainAll removes and returns all items. The returned slice is owned by the caller.
func (q *sliceQueue[T]) DrainAll() []T {
	if len(q.items) == 0 {
		return nil
	}

	items := q.items
	q.items = make([]T, 0, cap(items))

	return items
}

// Reset resets the queue to an empty state.
func (q *sliceQueue[T]) Reset() {
	clear(q.items)
	q.items = q.items[:0]
}

// IsEmpty returns true if the queue is empty, false otherwise.
func (q *sliceQueue[T]) IsEmpty() bool {
	return len(q.items) == 0
}

// Length returns the number of items in the queue.
func (q *sliceQueue[T]) Length() int {
	return len(q.items)
}
