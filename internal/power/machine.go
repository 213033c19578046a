package power

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/sweeney/powerctl/internal/event"
)

var (
	// ErrTransitionLoop is returned when entry actions keep requesting
	// transitions without settling.
	ErrTransitionLoop = errors.New("power: transition loop")

	// ErrUnknownState is returned for a transition to an unregistered state.
	ErrUnknownState = errors.New("power: unknown state")

	// ErrNotStarted is returned by Dispatch before Start.
	ErrNotStarted = errors.New("power: machine not started")
)

// Transition describes a completed state change.
type Transition struct {
	From           StateID
	To             StateID
	PendingPairing bool
}

// Observer is told about each transition after the switch and before the new
// state's entry runs. Start reports the initial state as a transition from
// None. Observers run on the consumer goroutine and must not block for long.
type Observer func(Transition)

// Machine runs the states against one Context.
type Machine struct {
	ctx       *Context
	states    map[StateID]State
	current   State
	observers []Observer
	log       *logrus.Entry
}

// NewMachine creates a machine over ctx with the given states. With no states
// the default set is used.
func NewMachine(ctx *Context, log *logrus.Entry, states ...State) *Machine {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if len(states) == 0 {
		states = DefaultStates()
	}
	m := &Machine{
		ctx:    ctx,
		states: make(map[StateID]State, len(states)),
		log:    log.WithField("component", "power"),
	}
	for _, s := range states {
		m.states[s.ID()] = s
	}
	ctx.log = m.log
	return m
}

// Observe registers o for every later transition.
func (m *Machine) Observe(o Observer) {
	m.observers = append(m.observers, o)
}

// Start enters the initial state and follows any transitions its entry requests.
func (m *Machine) Start(initial StateID) error {
	s, ok := m.states[initial]
	if !ok {
		return fmt.Errorf("initial state %s: %w", initial, ErrUnknownState)
	}
	m.current = s
	m.log.WithField("state", initial).Debug("start")
	m.notify(Transition{From: None, To: initial, PendingPairing: m.ctx.PendingPairing})
	return m.follow(s.Entry(m.ctx))
}

// Dispatch runs the current state's run action with ev and applies the
// transition it requests, if any. ev may be nil.
func (m *Machine) Dispatch(ev *event.Event) error {
	if m.current == nil {
		return ErrNotStarted
	}
	m.log.WithFields(logrus.Fields{"state": m.current.ID(), "event": kindOf(ev)}).Debug("run")
	return m.follow(m.current.Run(m.ctx, ev))
}

func (m *Machine) follow(next Next) error {
	for hops := 0; ; hops++ {
		to, ok := next.State()
		if !ok {
			return nil
		}
		if hops >= len(m.states) {
			return fmt.Errorf("%s -> %s after %d hops: %w", m.current.ID(), to, hops, ErrTransitionLoop)
		}
		target, ok := m.states[to]
		if !ok {
			return fmt.Errorf("transition %s -> %s: %w", m.current.ID(), to, ErrUnknownState)
		}

		from := m.current.ID()
		m.current.Exit(m.ctx)
		m.current = target
		m.log.WithFields(logrus.Fields{"from": from, "to": to}).Info("transition")

		m.notify(Transition{From: from, To: to, PendingPairing: m.ctx.PendingPairing})

		next = target.Entry(m.ctx)
	}
}

func (m *Machine) notify(tr Transition) {
	for _, o := range m.observers {
		o(tr)
	}
}

// State returns the active state, or None before Start.
func (m *Machine) State() StateID {
	if m.current == nil {
		return None
	}
	return m.current.ID()
}

// Context returns the machine's context.
func (m *Machine) Context() *Context {
	return m.ctx
}
