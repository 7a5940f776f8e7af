// Package inbox implements the inbound message queue that decouples network
// receipt from event-loop consumption.
package inbox

import (
	"sync"

	"github.com/roach88/lamportsim/internal/wire"
)

// Queue is a thread-safe FIFO of received messages.
//
// Connection handlers call Enqueue from their own goroutines while the
// machine's event loop drains with TryDequeue. The queue is unbounded unless
// WithLimit is given; with a limit, newly arriving messages are dropped once
// the limit is reached and counted in Dropped.
type Queue struct {
	mu      sync.Mutex
	msgs    []wire.Message
	limit   int
	dropped int64
	closed  bool
}

// Option configures a Queue.
type Option func(*Queue)

// WithLimit bounds the queue to n messages. n <= 0 means unbounded.
func WithLimit(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.limit = n
		}
	}
}

// New creates an empty queue.
func New(opts ...Option) *Queue {
	q := &Queue{
		msgs: make([]wire.Message, 0, 64),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue appends m to the back of the queue.
// Returns false if the queue is closed or full (the message is dropped).
func (q *Queue) Enqueue(m wire.Message) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	if q.limit > 0 && len(q.msgs) >= q.limit {
		q.dropped++
		return false
	}

	q.msgs = append(q.msgs, m)
	return true
}

// TryDequeue removes and returns the oldest message along with the number
// of messages still queued after the removal. The depth is read under the
// same lock as the removal, so it is exact for that dequeue.
// Returns ok=false if the queue is empty.
func (q *Queue) TryDequeue() (msg wire.Message, remaining int, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.msgs) == 0 {
		return wire.Message{}, 0, false
	}

	msg = q.msgs[0]
	if len(q.msgs) == 1 {
		// Reuse the backing array once drained.
		q.msgs = q.msgs[:0]
	} else {
		q.msgs = q.msgs[1:]
	}
	return msg, len(q.msgs), true
}

// Len returns the current queue depth.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.msgs)
}

// Dropped returns how many messages were rejected because the queue was full.
func (q *Queue) Dropped() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Close stops accepting messages.
// Messages already queued can still be dequeued.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
}
