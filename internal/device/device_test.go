package device

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/sweeney/powerctl/internal/ble"
	"github.com/sweeney/powerctl/internal/gpio"
	"github.com/sweeney/powerctl/internal/platform"
	"github.com/sweeney/powerctl/internal/power"
)

const waitTimeout = 2 * time.Second

type rig struct {
	dev         *Device
	button      *gpio.FakeLine
	indicator   *gpio.FakeLine
	controls    []*gpio.FakeLine
	stack       *ble.FakeStack
	power       *platform.FakePower
	clock       *platform.FakeClock
	transitions chan power.Transition

	cancel context.CancelFunc
	done   chan error
}

func newRig(t *testing.T, button gpio.Level, uptime time.Duration) *rig {
	t.Helper()
	logger, _ := test.NewNullLogger()

	r := &rig{
		button:      gpio.NewFakeLine(button),
		indicator:   gpio.NewFakeLine(gpio.Low),
		stack:       ble.NewFakeStack(),
		power:       &platform.FakePower{},
		clock:       platform.NewFakeClock(uptime),
		transitions: make(chan power.Transition, 32),
	}
	r.stack.ReadyOnEnable = true

	hw := Hardware{
		Button:    r.button,
		Indicator: r.indicator,
		Stack:     r.stack,
		Power:     r.power,
		Clock:     r.clock,
	}
	for i := 0; i < ble.NumControlPoints; i++ {
		l := gpio.NewFakeLine(gpio.Low)
		r.controls = append(r.controls, l)
		hw.Controls = append(hw.Controls, l)
	}

	dev, err := New(hw, DefaultConfig(), logrus.NewEntry(logger))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	dev.Observe(func(tr power.Transition) { r.transitions <- tr })
	r.dev = dev
	return r
}

func (r *rig) run(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan error, 1)
	go func() { r.done <- r.dev.Run(ctx) }()
	t.Cleanup(func() { r.stop(t) })
	r.expect(t, power.None, power.Reset)
}

func (r *rig) stop(t *testing.T) {
	t.Helper()
	if r.cancel == nil {
		return
	}
	r.cancel()
	r.cancel = nil
	select {
	case err := <-r.done:
		if err != nil {
			t.Errorf("run: %v", err)
		}
	case <-time.After(waitTimeout):
		t.Error("run did not return after cancel")
	}
}

func (r *rig) expect(t *testing.T, from, to power.StateID) power.Transition {
	t.Helper()
	select {
	case tr := <-r.transitions:
		if tr.From != from || tr.To != to {
			t.Fatalf("transition: got %s -> %s, want %s -> %s", tr.From, tr.To, from, to)
		}
		return tr
	case <-time.After(waitTimeout):
		t.Fatalf("timed out waiting for %s -> %s", from, to)
	}
	return power.Transition{}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

// settled waits until n key events have been emitted and every event has been
// dispatched and freed.
func (r *rig) settled(t *testing.T, n uint64) {
	t.Helper()
	waitFor(t, "events to drain", func() bool {
		s := r.dev.Stats()
		return s.KeyEvents == n && s.Pool.InUse == 0
	})
}

func advertising(stack *ble.FakeStack) func() bool {
	return func() bool {
		_, on := stack.Advertisement()
		return on
	}
}

func TestNewMissingHardware(t *testing.T) {
	full := Hardware{
		Button:    gpio.NewFakeLine(gpio.High),
		Indicator: gpio.NewFakeLine(gpio.Low),
		Stack:     ble.NewFakeStack(),
		Power:     &platform.FakePower{},
	}
	tests := []struct {
		name  string
		strip func(*Hardware)
	}{
		{"button", func(h *Hardware) { h.Button = nil }},
		{"indicator", func(h *Hardware) { h.Indicator = nil }},
		{"stack", func(h *Hardware) { h.Stack = nil }},
		{"power", func(h *Hardware) { h.Power = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hw := full
			tt.strip(&hw)
			if _, err := New(hw, DefaultConfig(), nil); !errors.Is(err, ErrInitFailure) {
				t.Errorf("expected ErrInitFailure, got %v", err)
			}
		})
	}

	if _, err := New(full, Config{}, nil); err != nil {
		t.Errorf("zero config should fall back to defaults: %v", err)
	}
}

func TestRunStackFailure(t *testing.T) {
	r := newRig(t, gpio.Low, 0)
	r.stack.EnableError = errors.New("simulated hci error")

	err := r.dev.Run(context.Background())
	if !errors.Is(err, ErrInitFailure) || !errors.Is(err, r.stack.EnableError) {
		t.Errorf("expected init failure wrapping the stack error, got %v", err)
	}
}

func TestRunButtonNotHeld(t *testing.T) {
	r := newRig(t, gpio.High, 0)
	r.run(t)

	r.expect(t, power.Reset, power.DeepSleep)
	waitFor(t, "power off", func() bool { return r.power.Calls() == 1 })
	if !r.button.WakeConfigured() {
		t.Error("button should be the wake source")
	}
	if _, on := r.stack.Advertisement(); on {
		t.Error("should not advertise")
	}
}

func TestRunShortPressSleeps(t *testing.T) {
	r := newRig(t, gpio.Low, 500*time.Millisecond)
	r.run(t)

	r.button.Toggle(gpio.High)
	r.expect(t, power.Reset, power.DeepSleep)
	waitFor(t, "power off", func() bool { return r.power.Calls() == 1 })
}

func TestRunConnectAndControl(t *testing.T) {
	r := newRig(t, gpio.Low, 2500*time.Millisecond)
	r.run(t)

	r.button.Toggle(gpio.High)
	tr := r.expect(t, power.Reset, power.Advertise)
	if tr.PendingPairing {
		t.Error("pending pairing should stay false")
	}
	waitFor(t, "advertising", advertising(r.stack))
	if adv, _ := r.stack.Advertisement(); adv.Pairable {
		t.Error("should not advertise in pairing mode")
	}
	if r.indicator.Level() != gpio.High {
		t.Error("indicator should be on")
	}

	r.stack.Connect("aa:bb:cc:dd:ee:01")
	r.expect(t, power.Advertise, power.Connected)

	if err := r.stack.Write(2, []byte{0x01, 0x00}, 0); err != nil {
		t.Fatalf("write: %v", err)
	}
	if r.controls[2].Level() != gpio.High {
		t.Error("control line 2 should be high")
	}
	if err := r.stack.Write(2, []byte{0x01, 0x00}, 1); !errors.Is(err, ble.ErrInvalidOffset) {
		t.Errorf("expected ErrInvalidOffset, got %v", err)
	}
	if got := r.dev.Stats().ControlLines[2]; got != 1 {
		t.Errorf("control value: got %d, want 1", got)
	}

	r.stack.Disconnect("aa:bb:cc:dd:ee:01", 0x13)
	r.expect(t, power.Connected, power.Advertise)
	waitFor(t, "advertising restart", advertising(r.stack))

	// The slot was released, so the next connection is accepted.
	r.stack.Connect("aa:bb:cc:dd:ee:02")
	r.expect(t, power.Advertise, power.Connected)
	if r.dev.Service().Peer() != "aa:bb:cc:dd:ee:02" {
		t.Errorf("peer: got %q", r.dev.Service().Peer())
	}

	r.stop(t)
	if s := r.dev.Stats(); s.Pool.InUse != 0 || s.Pool.Dropped != 0 {
		t.Errorf("pool after run: %+v", s.Pool)
	}
}

func TestRunPairing(t *testing.T) {
	r := newRig(t, gpio.Low, 4500*time.Millisecond)
	r.run(t)

	r.button.Toggle(gpio.High)
	tr := r.expect(t, power.Reset, power.Advertise)
	if !tr.PendingPairing {
		t.Error("pending pairing should be set")
	}
	waitFor(t, "advertising", advertising(r.stack))
	if adv, _ := r.stack.Advertisement(); !adv.Pairable {
		t.Error("should advertise in pairing mode")
	}

	r.stack.Connect("aa:bb:cc:dd:ee:01")
	r.expect(t, power.Advertise, power.Pairing)
	tr = r.expect(t, power.Pairing, power.Connected)
	if tr.PendingPairing {
		t.Error("pending pairing should be consumed")
	}
}

func TestRunUnbondedPeerCannotControl(t *testing.T) {
	r := newRig(t, gpio.Low, 4500*time.Millisecond)
	r.run(t)

	r.button.Toggle(gpio.High)
	r.expect(t, power.Reset, power.Advertise)
	r.stack.Connect("aa:bb:cc:dd:ee:01")
	r.expect(t, power.Advertise, power.Pairing)
	r.expect(t, power.Pairing, power.Connected)
	r.stack.Disconnect("aa:bb:cc:dd:ee:01", 0x13)
	r.expect(t, power.Connected, power.Advertise)
	waitFor(t, "advertising", advertising(r.stack))

	r.stack.Connect("aa:bb:cc:dd:ee:02")
	r.settled(t, 1)
	if r.dev.Service().Peer() != "aa:bb:cc:dd:ee:02" {
		t.Fatalf("peer: got %q", r.dev.Service().Peer())
	}

	if err := r.stack.Write(2, []byte{0x01, 0x00}, 0); !errors.Is(err, ble.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
	if r.controls[2].Level() != gpio.Low || len(r.controls[2].Writes()) != 0 {
		t.Error("control line 2 should be untouched")
	}
	if got := r.dev.Stats().ControlLines[2]; got != 0 {
		t.Errorf("control value: got %d, want 0", got)
	}

	r.stack.Disconnect("aa:bb:cc:dd:ee:02", 0x13)
	waitFor(t, "advertising restart", advertising(r.stack))

	select {
	case tr := <-r.transitions:
		t.Errorf("unexpected transition %s -> %s", tr.From, tr.To)
	default:
	}
	if got := r.dev.Stats().Peer; got != "" {
		t.Errorf("peer after disconnect: got %q", got)
	}

	// The bonded peer still gets through.
	r.stack.Connect("aa:bb:cc:dd:ee:01")
	r.expect(t, power.Advertise, power.Connected)
	if err := r.stack.Write(2, []byte{0x01, 0x00}, 0); err != nil {
		t.Fatalf("write: %v", err)
	}
	if r.controls[2].Level() != gpio.High {
		t.Error("control line 2 should be high")
	}
}

func TestRunPowerOffGesture(t *testing.T) {
	r := newRig(t, gpio.Low, 2500*time.Millisecond)
	r.run(t)

	r.button.Toggle(gpio.High)
	r.expect(t, power.Reset, power.Advertise)
	r.stack.Connect("aa:bb:cc:dd:ee:01")
	r.expect(t, power.Advertise, power.Connected)
	r.settled(t, 1)

	r.clock.Set(10 * time.Second)
	r.button.Toggle(gpio.Low)
	r.settled(t, 2)

	r.clock.Set(13 * time.Second)
	r.button.Toggle(gpio.High)
	r.expect(t, power.Connected, power.DeepSleep)
	waitFor(t, "power off", func() bool { return r.power.Calls() == 1 })
	if r.indicator.Level() != gpio.Low {
		t.Error("indicator should be off")
	}
}
