package session

import (
	"context"
	"sync"
)

// queue is an unbounded FIFO of work items. Push never blocks; Pop blocks
// until an item arrives, the queue is closed and drained, or ctx is done.
type queue struct {
	mu     sync.Mutex
	items  []WorkItem
	closed bool
	ready  chan struct{}
}

func newQueue() *queue {
	return &queue{ready: make(chan struct{}, 1)}
}

func (q *queue) push(item WorkItem) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, item)
	q.mu.Unlock()
	q.signal()
	return true
}

// close enqueues the end-of-work sentinel: items already queued are still
// delivered, later pushes are rejected.
func (q *queue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *queue) pop(ctx context.Context) (WorkItem, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.items[0]
			q.items[0] = WorkItem{}
			q.items = q.items[1:]
			more := len(q.items) > 0 || q.closed
			q.mu.Unlock()
			if more {
				q.signal()
			}
			return item, true
		}
		closed := q.closed
		q.mu.Unlock()

		if closed {
			return WorkItem{}, false
		}

		select {
		case <-ctx.Done():
			return WorkItem{}, false
		case <-q.ready:
		}
	}
}

func (q *queue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
