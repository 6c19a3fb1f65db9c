// Package sendq provides the unbounded FIFO that feeds a node's single writer
// goroutine.
package sendq

import "sync"

// Queue is a FIFO with one consumer. Enqueue never blocks; Dequeue blocks
// until an item is available or the queue is closed and drained.
type Queue[T any] struct {
    mu     sync.Mutex
    cond   *sync.Cond
    items  []T
    head   int
    closed bool
}

func New[T any]() *Queue[T] {
    q := &Queue[T]{}
    q.cond = sync.NewCond(&q.mu)
    return q
}

// Enqueue appends v. It returns false once the queue is closed.
func (q *Queue[T]) Enqueue(v T) bool {
    q.mu.Lock(); defer q.mu.Unlock()
    if q.closed { return false }
    q.items = append(q.items, v)
    q.cond.Signal()
    return true
}

// Dequeue pops the oldest item. ok is false when the queue is closed and empty.
func (q *Queue[T]) Dequeue() (v T, ok bool) {
    q.mu.Lock(); defer q.mu.Unlock()
    for q.head == len(q.items) && !q.closed { q.cond.Wait() }
    if q.head == len(q.items) { return v, false }
    v = q.items[q.head]
    var zero T
    q.items[q.head] = zero
    q.head++
    // compact once the consumed prefix dominates
    if q.head > 64 && q.head*2 >= len(q.items) {
        n := copy(q.items, q.items[q.head:])
        clear(q.items[n:])
        q.items = q.items[:n]
        q.head = 0
    }
    return v, true
}

// Close rejects further items; queued items are still delivered.
func (q *Queue[T]) Close() {
    q.mu.Lock(); defer q.mu.Unlock()
    q.closed = true
    q.cond.Broadcast()
}

// Abort closes the queue and drops everything not yet dequeued. It returns
// the number of dropped items.
func (q *Queue[T]) Abort() int {
    q.mu.Lock(); defer q.mu.Unlock()
    n := len(q.items) - q.head
    q.items, q.head, q.closed = nil, 0, true
    q.cond.Broadcast()
    return n
}

// Len reports the number of queued items.
func (q *Queue[T]) Len() int {
    q.mu.Lock(); defer q.mu.Unlock()
    return len(q.items) - q.head
}

// Closed reports whether Close or Abort was called.
func (q *Queue[T]) Closed() bool {
    q.mu.Lock(); defer q.mu.Unlock()
    return q.closed
}
