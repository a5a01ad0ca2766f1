// Package queue provides the durable queue connecting the ingestion pipeline
// to the consumer worker pool.
//
// Delivery is at-most-once by design: a message is removed from the queue the
// instant it is handed to a consumer, before processing completes. A consumer
// crash or persistence failure after delivery is therefore a permanent loss
// for that message, observed only in aggregate counters. This is a documented
// guarantee of the system, not an accident; upgrading to at-least-once would
// be a deliberate semantic change.
package queue

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned by operations on a queue that has been shut down.
var ErrClosed = errors.New("queue closed")

// Queue is the narrowed durable-queue interface the pipeline core needs.
type Queue interface {
	// Enqueue appends a payload to the named queue. A positive priority
	// places the message ahead of normal-priority traffic; a positive delay
	// withholds it from consumers until the delay elapses.
	Enqueue(ctx context.Context, queue string, payload []byte, priority int, delay time.Duration) error

	// Dequeue blocks until a message is available or the context is
	// cancelled, and removes the message from the queue on delivery
	// (no-acknowledgement, at-most-once). The underlying dispatch discipline
	// guarantees each message reaches exactly one consumer.
	Dequeue(ctx context.Context, queue string) ([]byte, error)
}
