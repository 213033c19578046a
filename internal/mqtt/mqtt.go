// Package mqtt provides telemetry publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"
)

// TopicEvents is the MQTT topic for device events.
const TopicEvents = "powerctl/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "powerctl/system"

// EventType names a device event.
type EventType string

const (
	EventStateChange  EventType = "STATE_CHANGE"
	EventControlWrite EventType = "CONTROL_WRITE"
	EventConnected    EventType = "CONNECTED"
	EventDisconnected EventType = "DISCONNECTED"
)

// Event is a device event. Only the fields relevant to Type are set.
type Event struct {
	Timestamp time.Time
	Type      EventType

	// STATE_CHANGE
	From           string
	To             string
	PendingPairing bool

	// CONTROL_WRITE
	Index int
	Value uint16

	// CONNECTED, DISCONNECTED
	Peer string
}

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a device event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Device DevicePayload `json:"device"`
}

// DevicePayload contains the device event details.
type DevicePayload struct {
	Timestamp string          `json:"timestamp"`
	Event     string          `json:"event"`
	State     *StatePayload   `json:"state,omitempty"`
	Control   *ControlPayload `json:"control,omitempty"`
	Peer      string          `json:"peer,omitempty"`
}

// StatePayload describes a power state transition.
type StatePayload struct {
	From           string `json:"from"`
	To             string `json:"to"`
	PendingPairing bool   `json:"pending_pairing"`
}

// ControlPayload describes a control point write.
type ControlPayload struct {
	Index int    `json:"index"`
	Value uint16 `json:"value"`
}

// FormatPayload creates the JSON payload for a device event.
func FormatPayload(event Event) ([]byte, error) {
	p := DevicePayload{
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
		Event:     string(event.Type),
		Peer:      event.Peer,
	}
	switch event.Type {
	case EventStateChange:
		p.State = &StatePayload{From: event.From, To: event.To, PendingPairing: event.PendingPairing}
	case EventControlWrite:
		p.Control = &ControlPayload{Index: event.Index, Value: event.Value}
	}
	return json.Marshal(Payload{Device: p})
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
