// Package platform wraps the power-management and clock facilities of the host.
package platform

import (
	"fmt"
	"sync"
	"time"
)

// PowerManager puts the system into its lowest power state.
type PowerManager interface {
	// ForceLowestPowerState does not return on success. A return (nil or
	// error) means the platform did not actually suspend.
	ForceLowestPowerState() error
}

// Clock reports device uptime.
type Clock interface {
	Uptime() time.Duration
}

// Clock sources accepted by NewClock.
const (
	ClockProcess = "process"
	ClockBoot    = "boot"
)

// ProcessClock measures uptime from process start. The daemon is started by the
// wake reset, so this is the uptime that matters for hold thresholds.
type ProcessClock struct {
	start time.Time
}

// NewProcessClock starts counting from now.
func NewProcessClock() *ProcessClock {
	return &ProcessClock{start: time.Now()}
}

// Uptime returns the time since the clock was created.
func (c *ProcessClock) Uptime() time.Duration {
	return time.Since(c.start)
}

// NewClock returns the clock for the named source.
func NewClock(source string) (Clock, error) {
	switch source {
	case "", ClockProcess:
		return NewProcessClock(), nil
	case ClockBoot:
		return BootClock{}, nil
	}
	return nil, fmt.Errorf("unknown clock source %q", source)
}

// FakeClock returns a settable uptime.
type FakeClock struct {
	mu sync.Mutex
	up time.Duration
}

// NewFakeClock creates a FakeClock at the given uptime.
func NewFakeClock(up time.Duration) *FakeClock {
	return &FakeClock{up: up}
}

// Uptime returns the current fake uptime.
func (c *FakeClock) Uptime() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.up
}

// Set changes the uptime.
func (c *FakeClock) Set(up time.Duration) {
	c.mu.Lock()
	c.up = up
	c.mu.Unlock()
}

// Advance moves the uptime forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.up += d
	c.mu.Unlock()
}

// FakePower records suspend requests and returns immediately.
type FakePower struct {
	mu    sync.Mutex
	calls int

	// Err, if set, is returned by ForceLowestPowerState.
	Err error
}

// ForceLowestPowerState counts the call.
func (p *FakePower) ForceLowestPowerState() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.Err
}

// Calls returns the number of suspend requests.
func (p *FakePower) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}
