// Package event carries discrete events from producer contexts (the button
// debounce goroutine, wireless stack callbacks) to the single consumer that
// advances the power state machine.
//
// Events are allocated from a fixed-capacity Pool, handed to a Queue, and
// returned to the Pool by the consumer once processed. Ownership moves with the
// pointer: the producer gives it up on Enqueue, the consumer owns it after
// Dequeue until Free.
package event

import "errors"

var (
	// ErrInvalidArgument is returned for nil receivers, nil events, unknown
	// kinds and double initialisation.
	ErrInvalidArgument = errors.New("event: invalid argument")

	// ErrOutOfMemory is returned by Pool.Alloc when every record is in use.
	ErrOutOfMemory = errors.New("event: out of memory")

	// ErrDoubleFree is returned by Pool.Free for a record that is not live.
	ErrDoubleFree = errors.New("event: double free")

	// ErrQueueFull is returned by Queue.Enqueue when the backing buffer is full.
	// It cannot happen when the queue is at least as large as the pool feeding it.
	ErrQueueFull = errors.New("event: queue full")
)

// Kind discriminates the Event variant.
type Kind uint8

const (
	KindNone Kind = iota
	KindKey
	KindConnected
	KindDisconnected
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "NONE"
	case KindKey:
		return "KEY"
	case KindConnected:
		return "CONNECTED"
	case KindDisconnected:
		return "DISCONNECTED"
	}
	return "UNKNOWN"
}

func (k Kind) valid() bool {
	return k <= KindDisconnected
}

// KeyState is the settled state of the button.
type KeyState uint8

const (
	KeyPressed KeyState = iota
	KeyReleased
)

func (s KeyState) String() string {
	if s == KeyPressed {
		return "PRESSED"
	}
	return "RELEASED"
}

// Event is a tagged record. Only the fields matching Kind are meaningful:
// Key for KindKey, Peer for KindConnected, Peer and Reason for KindDisconnected.
type Event struct {
	Kind   Kind
	Key    KeyState
	Peer   string
	Reason uint8

	pool *Pool
	slot int
	live bool
}

// IsKey reports whether e is a key event with the given state.
func (e *Event) IsKey(s KeyState) bool {
	return e != nil && e.Kind == KindKey && e.Key == s
}

func (e *Event) reset(kind Kind) {
	e.Kind = kind
	e.Key = KeyPressed
	e.Peer = ""
	e.Reason = 0
}
