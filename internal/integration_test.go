package internal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"github.com/sweeney/powerctl/internal/ble"
	"github.com/sweeney/powerctl/internal/config"
	"github.com/sweeney/powerctl/internal/device"
	"github.com/sweeney/powerctl/internal/gpio"
	"github.com/sweeney/powerctl/internal/mqtt"
	"github.com/sweeney/powerctl/internal/platform"
	"github.com/sweeney/powerctl/internal/power"
	"github.com/sweeney/powerctl/internal/status"
	"github.com/sweeney/powerctl/internal/web"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

// TestIntegrationFullFlow drives the device from a button hold through a
// connection and control writes, publishing to MQTT and serving the status
// page, all on fakes.
func TestIntegrationFullFlow(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	log := logrus.NewEntry(logger)

	cfg, err := config.Parse([]byte("ble:\n  local_name: Desk Lamp\n"))
	if err != nil {
		t.Fatalf("config: %v", err)
	}

	button := gpio.NewFakeLine(gpio.Low)
	stack := ble.NewFakeStack()
	stack.ReadyOnEnable = true
	hw := device.Hardware{
		Button:    button,
		Indicator: gpio.NewFakeLine(gpio.Low),
		Stack:     stack,
		Power:     &platform.FakePower{},
		Clock:     platform.NewFakeClock(2500 * time.Millisecond),
	}
	var controls []*gpio.FakeLine
	for i := 0; i < ble.NumControlPoints; i++ {
		l := gpio.NewFakeLine(gpio.Low)
		controls = append(controls, l)
		hw.Controls = append(hw.Controls, l)
	}

	dev, err := device.New(hw, cfg.Device(), log)
	if err != nil {
		t.Fatalf("device: %v", err)
	}

	publisher := mqtt.NewFakePublisher()
	tracker := status.NewTracker(time.Now(), status.Config{Broker: cfg.MQTT.Broker, LocalName: cfg.BLE.LocalName})
	transitions := make(chan power.Transition, 16)
	dev.Observe(func(tr power.Transition) {
		tracker.RecordTransition(tr.From.String(), tr.To.String(), tr.PendingPairing)
		publisher.Publish(mqtt.Event{
			Timestamp: time.Now(),
			Type:      mqtt.EventStateChange,
			From:      tr.From.String(),
			To:        tr.To.String(),
		})
		transitions <- tr
	})
	dev.OnWrite(func(index int, value uint16) {
		tracker.RecordWrite(index, value)
		publisher.Publish(mqtt.Event{Timestamp: time.Now(), Type: mqtt.EventControlWrite, Index: index, Value: value})
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- dev.Run(ctx) }()

	expect := func(to power.StateID) {
		t.Helper()
		select {
		case tr := <-transitions:
			if tr.To != to {
				t.Fatalf("transition to %s, want %s", tr.To, to)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %s", to)
		}
	}

	expect(power.Reset)
	button.Toggle(gpio.High)
	expect(power.Advertise)
	waitFor(t, "advertising", func() bool { _, on := stack.Advertisement(); return on })

	adv, _ := stack.Advertisement()
	if adv.LocalName != "Desk Lamp" {
		t.Errorf("advertised name: got %q", adv.LocalName)
	}

	stack.Connect("aa:bb:cc:dd:ee:01")
	expect(power.Connected)

	writes := []struct {
		index int
		buf   []byte
		want  uint16
	}{
		{0, []byte{0x01, 0x00}, 1},
		{4, []byte{0x02, 0x01}, 0x0102},
		{0, []byte{0x00, 0x00}, 0},
	}
	for _, w := range writes {
		if err := stack.Write(w.index, w.buf, 0); err != nil {
			t.Fatalf("write %d: %v", w.index, err)
		}
	}
	if controls[0].Level() != gpio.Low || controls[4].Level() != gpio.High {
		t.Errorf("control levels: 0=%s 4=%s", controls[0].Level(), controls[4].Level())
	}

	stack.Disconnect("aa:bb:cc:dd:ee:01", 0x13)
	expect(power.Advertise)

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}

	// MQTT: RESET, ADVERTISE, CONNECTED, ADVERTISE transitions plus three writes.
	var states, controlWrites int
	for i, e := range publisher.Recorded() {
		switch e.Type {
		case mqtt.EventStateChange:
			states++
		case mqtt.EventControlWrite:
			controlWrites++
		}
		var p mqtt.Payload
		if err := json.Unmarshal(publisher.Payloads[i], &p); err != nil {
			t.Fatalf("payload %d: %v", i, err)
		}
		if p.Device.Event != string(e.Type) {
			t.Errorf("payload %d event: got %q, want %q", i, p.Device.Event, e.Type)
		}
	}
	if states != 4 || controlWrites != 3 {
		t.Errorf("published %d state changes and %d writes, want 4 and 3", states, controlWrites)
	}

	// Status page reflects the run.
	srv := httptest.NewServer(web.New(":0", tracker, log).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/index.json")
	if err != nil {
		t.Fatalf("GET /index.json: %v", err)
	}
	defer resp.Body.Close()

	var sj status.StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&sj); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sj.Status.State != "ADVERTISE" {
		t.Errorf("state: got %q, want ADVERTISE", sj.Status.State)
	}
	if sj.Status.Controls != [status.NumControls]uint16{0, 0, 0, 0, 0x0102} {
		t.Errorf("controls: got %v", sj.Status.Controls)
	}
	if sj.Status.Counts.Transitions != 3 || sj.Status.Counts.Writes != 3 {
		t.Errorf("counts: got %+v", sj.Status.Counts)
	}
}
