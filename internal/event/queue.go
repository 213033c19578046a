package event

import (
	"context"
	"fmt"
)

// Queue is a FIFO handoff from any number of producers to a single consumer.
// Enqueue never blocks, so it is safe to call from edge handlers and timer
// goroutines; Dequeue blocks until an event is available.
type Queue struct {
	ch chan *Event
}

// NewQueue returns an initialised queue able to hold capacity events.
func NewQueue(capacity int) (*Queue, error) {
	q := &Queue{}
	if err := q.Init(capacity); err != nil {
		return nil, err
	}
	return q, nil
}

// Init prepares an empty queue. Calling it on a nil or already initialised
// queue fails with ErrInvalidArgument.
func (q *Queue) Init(capacity int) error {
	if q == nil {
		return fmt.Errorf("nil queue: %w", ErrInvalidArgument)
	}
	if q.ch != nil {
		return fmt.Errorf("queue already initialised: %w", ErrInvalidArgument)
	}
	if capacity <= 0 {
		return fmt.Errorf("queue capacity %d: %w", capacity, ErrInvalidArgument)
	}
	q.ch = make(chan *Event, capacity)
	return nil
}

// Enqueue appends e to the tail. Ownership of e passes to the queue.
func (q *Queue) Enqueue(e *Event) error {
	if q == nil || q.ch == nil || e == nil {
		return ErrInvalidArgument
	}
	select {
	case q.ch <- e:
		return nil
	default:
		return ErrQueueFull
	}
}

// Dequeue removes and returns the head, waiting until one is available or ctx
// is done. Ownership of the returned event passes to the caller.
func (q *Queue) Dequeue(ctx context.Context) (*Event, error) {
	if q == nil || q.ch == nil {
		return nil, ErrInvalidArgument
	}
	select {
	case e := <-q.ch:
		return e, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	if q == nil || q.ch == nil {
		return 0
	}
	return len(q.ch)
}
