package main

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sweeney/powerctl/internal/mqtt"
	"github.com/sweeney/powerctl/internal/power"
	"github.com/sweeney/powerctl/internal/status"
)

// link reports the wireless link as seen by the control service.
type link interface {
	Advertising() bool
	Peer() string
}

// telemetry turns state machine transitions and control writes into MQTT
// events and status updates. transition runs on the device consumer
// goroutine and write runs in the wireless stack's callback context, so only
// transition may touch peer. The tracker and publisher are safe for
// concurrent use.
type telemetry struct {
	pub     mqtt.Publisher
	tracker *status.Tracker
	link    link
	now     func() time.Time
	log     *logrus.Entry

	peer string // peer reported by the last CONNECTED event
}

func newTelemetry(pub mqtt.Publisher, tracker *status.Tracker, l link, log *logrus.Entry) *telemetry {
	return &telemetry{
		pub:     pub,
		tracker: tracker,
		link:    l,
		now:     time.Now,
		log:     log.WithField("component", "telemetry"),
	}
}

func (t *telemetry) transition(tr power.Transition) {
	t.tracker.RecordTransition(tr.From.String(), tr.To.String(), tr.PendingPairing)

	now := t.now()
	t.publish(mqtt.Event{
		Timestamp:      now,
		Type:           mqtt.EventStateChange,
		From:           tr.From.String(),
		To:             tr.To.String(),
		PendingPairing: tr.PendingPairing,
	})

	switch {
	case tr.To == power.Connected:
		t.peer = t.link.Peer()
		t.publish(mqtt.Event{Timestamp: now, Type: mqtt.EventConnected, Peer: t.peer})
	case tr.From == power.Connected:
		t.publish(mqtt.Event{Timestamp: now, Type: mqtt.EventDisconnected, Peer: t.peer})
		t.peer = ""
	}
	t.tracker.SetLink(t.link.Advertising(), t.link.Peer())
}

func (t *telemetry) write(index int, value uint16) {
	t.tracker.RecordWrite(index, value)
	t.publish(mqtt.Event{
		Timestamp: t.now(),
		Type:      mqtt.EventControlWrite,
		Index:     index,
		Value:     value,
	})
}

func (t *telemetry) publish(e mqtt.Event) {
	t.log.WithField("event", e.Type).Debug("publishing")
	if err := t.pub.Publish(e); err != nil {
		// Don't crash on publish failure
		t.log.WithError(err).Warn("publish failed")
	}
}

// discardPublisher stands in when no broker is configured.
type discardPublisher struct{}

func (discardPublisher) Publish(mqtt.Event) error { return nil }
func (discardPublisher) PublishSystem(mqtt.SystemEvent) error { return nil }
func (discardPublisher) Close() error { return nil }
func (discardPublisher) IsConnected() bool { return false }
