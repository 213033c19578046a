// Package power implements the device power state machine.
//
// Each state has entry, run and exit actions. Run receives the dequeued event
// and returns the next state (or Stay); the Machine applies the change after
// Run returns by running the old state's exit, switching, then the new state's
// entry. Entry may itself request a transition, which is followed the same way.
//
// The Machine is driven by a single consumer goroutine and holds no locks.
package power

import (
	"github.com/sweeney/powerctl/internal/event"
)

// StateID names a power state.
type StateID int

const (
	DeepSleep StateID = iota
	Reset
	Advertise
	Pairing
	Connected

	// None is reported by a machine that has not started.
	None StateID = -1
)

func (s StateID) String() string {
	switch s {
	case DeepSleep:
		return "DEEP_SLEEP"
	case Reset:
		return "RESET"
	case Advertise:
		return "ADVERTISE"
	case Pairing:
		return "PAIRING"
	case Connected:
		return "CONNECTED"
	case None:
		return "NONE"
	}
	return "UNKNOWN"
}

// Next is the outcome of an entry or run action.
type Next struct {
	to  StateID
	set bool
}

// Stay keeps the current state.
var Stay = Next{}

// Goto requests a transition to id.
func Goto(id StateID) Next {
	return Next{to: id, set: true}
}

// State returns the requested state and whether a transition was requested.
func (n Next) State() (StateID, bool) {
	return n.to, n.set
}

// State is one node of the machine.
type State interface {
	ID() StateID
	Entry(c *Context) Next
	Run(c *Context, ev *event.Event) Next
	Exit(c *Context)
}
