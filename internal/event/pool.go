package event

import (
	"fmt"
	"sync/atomic"
)

// DefaultPoolSize bounds the number of events that can be in flight at once.
// A press produces at most two key events and a connection at most two
// lifecycle events before the consumer catches up.
const DefaultPoolSize = 16

// Pool is a fixed-capacity allocator for Event records. Alloc and Free are safe
// for concurrent use.
type Pool struct {
	slots []Event
	free  chan int

	inUse   atomic.Int32
	dropped atomic.Uint64
}

// PoolStats is a point-in-time view of pool usage.
type PoolStats struct {
	Capacity int
	InUse    int
	Dropped  uint64
}

// NewPool creates a pool holding size records.
func NewPool(size int) (*Pool, error) {
	if size <= 0 {
		return nil, fmt.Errorf("pool size %d: %w", size, ErrInvalidArgument)
	}
	p := &Pool{
		slots: make([]Event, size),
		free:  make(chan int, size),
	}
	for i := range p.slots {
		p.slots[i].pool = p
		p.slots[i].slot = i
		p.free <- i
	}
	return p, nil
}

// Alloc returns a zeroed record of the given kind. It never blocks; when the
// pool is exhausted it returns ErrOutOfMemory.
func (p *Pool) Alloc(kind Kind) (*Event, error) {
	if p == nil || !kind.valid() {
		return nil, ErrInvalidArgument
	}
	select {
	case i := <-p.free:
		e := &p.slots[i]
		e.reset(kind)
		e.live = true
		p.inUse.Add(1)
		return e, nil
	default:
		p.dropped.Add(1)
		return nil, ErrOutOfMemory
	}
}

// Free returns e to the pool. The caller must not touch e afterwards.
func (p *Pool) Free(e *Event) error {
	if p == nil || e == nil || e.pool != p {
		return ErrInvalidArgument
	}
	if !e.live {
		return fmt.Errorf("slot %d: %w", e.slot, ErrDoubleFree)
	}
	e.live = false
	p.inUse.Add(-1)
	p.free <- e.slot
	return nil
}

// Cap returns the pool capacity.
func (p *Pool) Cap() int {
	return len(p.slots)
}

// Stats returns the current usage counters.
func (p *Pool) Stats() PoolStats {
	return PoolStats{
		Capacity: len(p.slots),
		InUse:    int(p.inUse.Load()),
		Dropped:  p.dropped.Load(),
	}
}
