package utterance

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned by Push after Close, and by Wait once the queue is
// closed and empty.
var ErrClosed = errors.New("utterance queue closed")

// Stats counts utterances over the queue's lifetime.
type Stats struct {
	Pushed int64
	Taken  int64
}

// Queue is an unbounded FIFO. Push never blocks; Wait blocks until an item is
// available, the context ends, or the queue is closed and drained.
type Queue struct {
	mu     sync.Mutex
	items  []Utterance
	closed bool
	notify chan struct{}
	done   chan struct{}

	pushed atomic.Int64
	taken  atomic.Int64
}

// NewQueue returns an empty, open queue.
func NewQueue() *Queue {
	return &Queue{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Push appends u and wakes one waiter. It fails with ErrClosed after Close.
func (q *Queue) Push(u Utterance) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.items = append(q.items, u)
	q.mu.Unlock()
	q.pushed.Add(1)
	q.signal()
	return nil
}

// TryTake pops the head without blocking.
func (q *Queue) TryTake() (Utterance, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.popLocked()
}

// Wait pops the head, blocking while the queue is empty. Items pushed before
// Close are still delivered; after that it returns ErrClosed.
func (q *Queue) Wait(ctx context.Context) (Utterance, error) {
	for {
		q.mu.Lock()
		if u, ok := q.popLocked(); ok {
			q.mu.Unlock()
			return u, nil
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return Utterance{}, ErrClosed
		}
		select {
		case <-ctx.Done():
			return Utterance{}, ctx.Err()
		case <-q.notify:
		case <-q.done:
		}
	}
}

// Len is the number of utterances waiting to be taken.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close rejects further pushes and wakes blocked waiters. Queued items stay
// available to Wait and TryTake. Closing twice is a no-op.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}

// Stats is safe to call from any goroutine.
func (q *Queue) Stats() Stats {
	return Stats{Pushed: q.pushed.Load(), Taken: q.taken.Load()}
}

func (q *Queue) popLocked() (Utterance, bool) {
	if len(q.items) == 0 {
		return Utterance{}, false
	}
	u := q.items[0]
	q.items[0] = Utterance{}
	q.items = q.items[1:]
	q.taken.Add(1)
	if len(q.items) > 0 {
		q.signal()
	}
	return u, true
}

func (q *Queue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
