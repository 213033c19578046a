package power

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sweeney/powerctl/internal/event"
	"github.com/sweeney/powerctl/internal/gpio"
	"github.com/sweeney/powerctl/internal/platform"
)

// Thresholds are the button hold durations the states act on.
type Thresholds struct {
	// SystemOn is the uptime at first release needed to stay powered.
	SystemOn time.Duration
	// Pairing is the uptime at first release that requests pairing mode.
	Pairing time.Duration
	// PowerOffHold is the hold needed to power off once running.
	PowerOffHold time.Duration
}

// DefaultThresholds are the stock hold timings.
var DefaultThresholds = Thresholds{
	SystemOn:     2000 * time.Millisecond,
	Pairing:      4000 * time.Millisecond,
	PowerOffHold: 2000 * time.Millisecond,
}

// Radio starts and stops advertising.
type Radio interface {
	StartAdvertising(pairable bool) error
	StopAdvertising() error
}

// Link reports the wireless connection slot. It is updated from the wireless
// stack's callbacks. Refuse marks the held connection from peer as not
// allowed to drive the control points.
type Link interface {
	Connected() bool
	Peer() string
	Refuse(peer string)
}

// Context is the state shared by all states. Only the consumer goroutine
// touches it; Link is the one concurrently updated collaborator.
type Context struct {
	Indicator gpio.Output
	Button    gpio.Button
	Radio     Radio
	Link      Link
	Power     platform.PowerManager
	Clock     platform.Clock

	Thresholds Thresholds

	// PendingPairing is set when the power-on hold was long enough to request
	// pairing; it is consumed by the next connection.
	PendingPairing bool

	// BondedPeer is the peer accepted through PAIRING. Empty until the first
	// pairing; while empty any peer may connect.
	BondedPeer string

	holding   bool
	holdStart time.Duration

	log *logrus.Entry
}

func (c *Context) indicator(l gpio.Level) {
	if c.Indicator == nil {
		return
	}
	if err := c.Indicator.Write(l); err != nil {
		c.log.WithError(err).Warn("set indicator")
	}
}

func (c *Context) uptime() time.Duration {
	if c.Clock == nil {
		return 0
	}
	return c.Clock.Uptime()
}

func (c *Context) resetHold() {
	c.holding = false
	c.holdStart = 0
}

// powerOffGesture tracks press/release pairs and reports whether ev completes
// a hold long enough to power off.
func (c *Context) powerOffGesture(ev *event.Event) bool {
	switch {
	case ev.IsKey(event.KeyPressed):
		c.holding = true
		c.holdStart = c.uptime()
	case ev.IsKey(event.KeyReleased):
		if !c.holding {
			return false
		}
		held := c.uptime() - c.holdStart
		c.resetHold()
		c.log.WithField("held", held).Debug("button released")
		return held >= c.Thresholds.PowerOffHold
	}
	return false
}

// accept decides where a new connection from peer leads.
func (c *Context) accept(peer string) Next {
	if c.PendingPairing {
		return Goto(Pairing)
	}
	if c.BondedPeer == "" || c.BondedPeer == peer {
		return Goto(Connected)
	}
	c.log.WithFields(logrus.Fields{"peer": peer, "bonded": c.BondedPeer}).Warn("connection from unbonded peer")
	if c.Link != nil {
		c.Link.Refuse(peer)
	}
	return Stay
}

func (c *Context) startAdvertising() {
	if c.Radio == nil {
		return
	}
	if err := c.Radio.StartAdvertising(c.PendingPairing); err != nil {
		c.log.WithError(err).Error("start advertising")
	}
}

func (c *Context) stopAdvertising() {
	if c.Radio == nil {
		return
	}
	if err := c.Radio.StopAdvertising(); err != nil {
		c.log.WithError(err).Warn("stop advertising")
	}
}

func (c *Context) connected() (string, bool) {
	if c.Link == nil || !c.Link.Connected() {
		return "", false
	}
	return c.Link.Peer(), true
}
