// Package debounce turns a noisy button line into settled key events.
//
// The edge handler only re-arms the filter; a periodic tick counts down while
// armed and, once the line has been quiet for the configured number of ticks,
// the line is sampled and one key event is emitted.
//
// Counter holds the pure countdown logic. Filter runs it on a goroutine driven
// by a ticker, which is the only producer of key events.
package debounce

// Counter is the debounce countdown. It is not safe for concurrent use; the
// Filter goroutine owns it.
type Counter struct {
	threshold int
	maxArm    int

	active    bool
	remaining int
	armed     int // ticks since the first edge of the current burst
}

// NewCounter returns a counter that settles after threshold quiet ticks.
// If maxArm > 0 the counter also settles once it has been armed for maxArm
// ticks, even if edges keep arriving.
func NewCounter(threshold, maxArm int) *Counter {
	if threshold < 1 {
		threshold = 1
	}
	return &Counter{threshold: threshold, maxArm: maxArm}
}

// Arm reloads the countdown. An edge during an active countdown restarts the
// quiet period but not the maximum-arm budget.
func (c *Counter) Arm() {
	if !c.active {
		c.armed = 0
	}
	c.active = true
	c.remaining = c.threshold
}

// Tick advances the countdown by one period and reports whether the line is
// now considered stable. A settled counter is disarmed.
func (c *Counter) Tick() bool {
	if !c.active {
		return false
	}
	c.remaining--
	c.armed++
	if c.remaining > 0 && (c.maxArm <= 0 || c.armed < c.maxArm) {
		return false
	}
	c.active = false
	c.remaining = 0
	return true
}

// Active reports whether a countdown is in progress.
func (c *Counter) Active() bool {
	return c.active
}

// Remaining returns the ticks left before the line is considered stable.
func (c *Counter) Remaining() int {
	return c.remaining
}
