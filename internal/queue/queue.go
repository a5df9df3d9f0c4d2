// Package queue provides the unbounded FIFO used to hand data between a
// connection's I/O goroutine and the coordinator's frame loop.
package queue

import "sync"

// FIFO is a thread-safe first-in first-out queue.
//
// The queue is unbounded so that a producer on an I/O goroutine never blocks
// on a slow consumer; backpressure is applied further up by the peer buffer.
//
// The queue uses a channel for signaling so consumers can wait with select
// alongside a context or a shutdown channel.
type FIFO[T any] struct {
	mu     sync.Mutex
	items  []T
	closed bool
	signal chan struct{} // Signals item availability (buffered, size 1)
}

// New creates an empty queue.
func New[T any]() *FIFO[T] {
	return &FIFO[T]{
		items:  make([]T, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds an item to the back of the queue.
// Thread-safe: may be called from any goroutine.
// Returns false if the queue is closed.
func (q *FIFO[T]) Enqueue(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.items = append(q.items, item)

	// Non-blocking: the buffer of 1 coalesces multiple signals
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes and returns the front item without blocking.
// Returns (zero, false) if the queue is empty.
//
// Items enqueued before Close are still returned after it.
func (q *FIFO[T]) TryDequeue() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if len(q.items) == 0 {
		return zero, false
	}

	item := q.items[0]

	// Clear the slot so the backing array does not retain the item
	q.items[0] = zero

	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}

	return item, true
}

// Wait returns a channel that signals when items may be available.
// The channel is closed by Close, so waiters wake up on shutdown:
//
//	for {
//	    if item, ok := q.TryDequeue(); ok {
//	        // handle item
//	        continue
//	    }
//	    if q.Closed() {
//	        return
//	    }
//	    <-q.Wait()
//	}
func (q *FIFO[T]) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *FIFO[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Closed reports whether Close has been called.
func (q *FIFO[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close signals that no more items will be enqueued.
// Wakes any blocked waiters by closing the signal channel.
func (q *FIFO[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
