package server

import (
	"sync"

	"github.com/ganttproject/colloboque/internal/xlog"
)

// inputQueue is an unbounded FIFO of submissions. Submit never blocks the
// transport; Run drains it from a single goroutine.
type inputQueue struct {
	mu     sync.Mutex
	items  []xlog.InputXlog
	closed bool
	signal chan struct{} // buffered, size 1; closed by Close
}

func newInputQueue() *inputQueue {
	return &inputQueue{signal: make(chan struct{}, 1)}
}

// Enqueue appends in. It returns false once the queue is closed.
func (q *inputQueue) Enqueue(in xlog.InputXlog) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.items = append(q.items, in)

	// Non-blocking: one pending signal covers any number of items.
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue pops the front item without blocking.
func (q *inputQueue) TryDequeue() (xlog.InputXlog, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return xlog.InputXlog{}, false
	}
	in := q.items[0]
	q.items[0] = xlog.InputXlog{}
	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}
	return in, true
}

// Wait fires when items may be available or the queue was closed.
func (q *inputQueue) Wait() <-chan struct{} {
	return q.signal
}

// Drained reports whether the queue is closed and empty.
func (q *inputQueue) Drained() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed && len(q.items) == 0
}

func (q *inputQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops further Enqueues and wakes the waiter.
func (q *inputQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
