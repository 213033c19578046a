package power

import (
	"github.com/sirupsen/logrus"

	"github.com/sweeney/powerctl/internal/event"
	"github.com/sweeney/powerctl/internal/gpio"
)

// DefaultStates returns one instance of every power state.
func DefaultStates() []State {
	return []State{
		deepSleepState{},
		resetState{},
		advertiseState{},
		pairingState{},
		connectedState{},
	}
}

// ------------------------------------------------------
//   DEEP_SLEEP
// ------------------------------------------------------

type deepSleepState struct{}

func (deepSleepState) ID() StateID { return DeepSleep }

func (deepSleepState) Entry(c *Context) Next {
	c.log.Info("entering deep sleep")

	c.stopAdvertising()
	c.indicator(gpio.Low)

	if c.Button != nil {
		if err := c.Button.ConfigureWake(); err != nil {
			c.log.WithError(err).Warn("configure wake source")
		}
	}

	if c.Power == nil {
		c.log.Warn("no power manager, staying up")
		return Stay
	}
	// Does not return when the platform suspends.
	if err := c.Power.ForceLowestPowerState(); err != nil {
		c.log.WithError(err).Error("force lowest power state")
		return Stay
	}
	c.log.Warn("platform returned from lowest power state")
	return Stay
}

func (deepSleepState) Run(c *Context, ev *event.Event) Next {
	c.log.WithField("event", kindOf(ev)).Warn("deep sleep run: platform did not suspend")
	return Stay
}

func (deepSleepState) Exit(c *Context) {
	c.log.Warn("deep sleep exit: platform did not suspend")
}

// ------------------------------------------------------
//   RESET
// ------------------------------------------------------

type resetState struct{}

func (resetState) ID() StateID { return Reset }

func (resetState) Entry(c *Context) Next {
	c.log.Info("reset")

	c.indicator(gpio.Low)
	c.PendingPairing = false
	c.resetHold()

	// The button may already be up: a glitch, or power was just connected.
	if c.Button == nil {
		return Goto(DeepSleep)
	}
	level, err := c.Button.Read()
	if err != nil {
		c.log.WithError(err).Warn("read button")
		return Goto(DeepSleep)
	}
	if !gpio.Pressed(level) {
		c.log.Info("button not pressed, going to deep sleep")
		return Goto(DeepSleep)
	}
	return Stay
}

func (resetState) Run(c *Context, ev *event.Event) Next {
	if !ev.IsKey(event.KeyReleased) {
		return Stay
	}

	up := c.uptime()
	c.log.WithField("uptime", up).Info("button released")

	next := DeepSleep
	if up >= c.Thresholds.SystemOn {
		c.log.Info("reached system on threshold")
		next = Advertise
	}
	if up >= c.Thresholds.Pairing {
		c.PendingPairing = true
	}
	return Goto(next)
}

func (resetState) Exit(c *Context) {}

// ------------------------------------------------------
//   ADVERTISE
// ------------------------------------------------------

type advertiseState struct{}

func (advertiseState) ID() StateID { return Advertise }

func (advertiseState) Entry(c *Context) Next {
	c.log.WithField("pending_pairing", c.PendingPairing).Info("advertising")

	c.indicator(gpio.High)

	if peer, ok := c.connected(); ok {
		return c.accept(peer)
	}
	c.startAdvertising()
	return Stay
}

func (advertiseState) Run(c *Context, ev *event.Event) Next {
	if ev == nil {
		return Stay
	}
	switch ev.Kind {
	case event.KindKey:
		if c.powerOffGesture(ev) {
			return Goto(DeepSleep)
		}
	case event.KindConnected:
		return c.accept(ev.Peer)
	case event.KindDisconnected:
		// A refused peer left; the slot is free again.
		c.log.WithField("peer", ev.Peer).Info("peer disconnected while advertising")
		c.startAdvertising()
	}
	return Stay
}

func (advertiseState) Exit(c *Context) {}

// ------------------------------------------------------
//   PAIRING
// ------------------------------------------------------

type pairingState struct{}

func (pairingState) ID() StateID { return Pairing }

// Entry bonds the peer that connected while pairing was pending.
func (pairingState) Entry(c *Context) Next {
	peer, ok := c.connected()
	if !ok {
		c.log.Warn("peer left before pairing completed")
		return Goto(Advertise)
	}
	c.log.WithField("peer", peer).Info("paired")
	c.BondedPeer = peer
	c.PendingPairing = false
	return Goto(Connected)
}

func (pairingState) Run(c *Context, ev *event.Event) Next {
	if ev != nil && ev.Kind == event.KindDisconnected {
		return Goto(Advertise)
	}
	return Stay
}

func (pairingState) Exit(c *Context) {}

// ------------------------------------------------------
//   CONNECTED
// ------------------------------------------------------

type connectedState struct{}

func (connectedState) ID() StateID { return Connected }

func (connectedState) Entry(c *Context) Next {
	peer, _ := c.connected()
	c.log.WithField("peer", peer).Info("connected")

	c.indicator(gpio.High)
	c.stopAdvertising()
	return Stay
}

func (connectedState) Run(c *Context, ev *event.Event) Next {
	if ev == nil {
		return Stay
	}
	switch ev.Kind {
	case event.KindKey:
		if c.powerOffGesture(ev) {
			return Goto(DeepSleep)
		}
	case event.KindDisconnected:
		c.log.WithFields(logrus.Fields{"peer": ev.Peer, "reason": ev.Reason}).Info("disconnected")
		return Goto(Advertise)
	}
	return Stay
}

func (connectedState) Exit(c *Context) {}

func kindOf(ev *event.Event) event.Kind {
	if ev == nil {
		return event.KindNone
	}
	return ev.Kind
}
