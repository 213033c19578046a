package gpio

import (
	"errors"
	"sync"
)

// FakeLine is a test double usable as a Button or an Output.
// It is safe for concurrent use.
type FakeLine struct {
	mu      sync.Mutex
	level   Level
	writes  []Level
	handler func()
	wake    bool

	// ReadError, if set, will be returned by Read.
	ReadError error

	// WriteError, if set, will be returned by Write.
	WriteError error
}

// NewFakeLine creates a FakeLine at the given level.
func NewFakeLine(initial Level) *FakeLine {
	return &FakeLine{level: initial}
}

// Read returns the current level.
func (f *FakeLine) Read() (Level, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ReadError != nil {
		return Low, f.ReadError
	}
	return f.level, nil
}

// Write records and applies the level.
func (f *FakeLine) Write(l Level) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.WriteError != nil {
		return f.WriteError
	}
	f.level = l
	f.writes = append(f.writes, l)
	return nil
}

// Writes returns a copy of every level written so far.
func (f *FakeLine) Writes() []Level {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Level(nil), f.writes...)
}

// Level returns the current level without going through Read.
func (f *FakeLine) Level() Level {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.level
}

// Set changes the level without firing an edge.
func (f *FakeLine) Set(l Level) {
	f.mu.Lock()
	f.level = l
	f.mu.Unlock()
}

// OnEdge registers the edge handler.
func (f *FakeLine) OnEdge(handler func()) {
	f.mu.Lock()
	f.handler = handler
	f.mu.Unlock()
}

// Fire invokes the edge handler as the hardware would on a transition.
func (f *FakeLine) Fire() error {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	if h == nil {
		return errors.New("no edge handler registered")
	}
	h()
	return nil
}

// Toggle sets the level and fires an edge if it changed.
func (f *FakeLine) Toggle(l Level) {
	f.mu.Lock()
	changed := f.level != l
	f.level = l
	h := f.handler
	f.mu.Unlock()
	if changed && h != nil {
		h()
	}
}

// ConfigureWake records that the line was armed as a wake source.
func (f *FakeLine) ConfigureWake() error {
	f.mu.Lock()
	f.wake = true
	f.mu.Unlock()
	return nil
}

// WakeConfigured reports whether ConfigureWake was called.
func (f *FakeLine) WakeConfigured() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.wake
}
