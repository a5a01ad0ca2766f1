package queue

import (
	"context"
	"sync"
	"time"
)

// MemoryQueue is an in-process Queue used by tests. Delivery semantics match
// the Redis adapter: each message reaches exactly one consumer and is gone
// the moment it is delivered.
type MemoryQueue struct {
	mu     sync.Mutex
	queues map[string]chan []byte
	closed bool
	cap    int
}

// NewMemoryQueue creates an in-memory queue whose per-queue buffers hold up to
// capacity messages.
func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &MemoryQueue{
		queues: make(map[string]chan []byte),
		cap:    capacity,
	}
}

func (q *MemoryQueue) channel(queue string) chan []byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	ch, ok := q.queues[queue]
	if !ok {
		ch = make(chan []byte, q.cap)
		q.queues[queue] = ch
	}
	return ch
}

// Enqueue appends the payload, scheduling delayed messages with a timer.
// Priority is accepted for interface parity but ignored: the buffered channel
// has no ordering control beyond FIFO.
func (q *MemoryQueue) Enqueue(ctx context.Context, queue string, payload []byte, priority int, delay time.Duration) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.mu.Unlock()

	ch := q.channel(queue)
	if delay > 0 {
		time.AfterFunc(delay, func() {
			q.mu.Lock()
			closed := q.closed
			q.mu.Unlock()
			if !closed {
				ch <- payload
			}
		})
		return nil
	}

	select {
	case ch <- payload:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dequeue blocks until a message is available or the context is cancelled.
func (q *MemoryQueue) Dequeue(ctx context.Context, queue string) ([]byte, error) {
	select {
	case payload := <-q.channel(queue):
		return payload, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Len reports how many ready messages the named queue currently buffers.
func (q *MemoryQueue) Len(queue string) int {
	return len(q.channel(queue))
}

// Close stops the queue from accepting new messages.
func (q *MemoryQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}
