package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event          string              `json:"event,omitempty"`
	Reason         string              `json:"reason,omitempty"`
	State          string              `json:"state"`
	PendingPairing bool                `json:"pending_pairing"`
	Advertising    bool                `json:"advertising"`
	Connected      bool                `json:"connected"`
	Peer           string              `json:"peer,omitempty"`
	Controls       [NumControls]uint16 `json:"controls"`
	UptimeSeconds  int64               `json:"uptime_seconds"`
	StartTime      string              `json:"start_time"`
	Timestamp      string              `json:"timestamp"`
	MQTT           MQTTStatus          `json:"mqtt"`
	Counts         CountsJSON          `json:"counts"`
	Pipeline       PipelineJSON        `json:"pipeline"`
	Network        *NetworkJSON        `json:"network,omitempty"`
	Config         ConfigJSON          `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	Transitions int `json:"transitions"`
	Writes      int `json:"writes"`
	Connects    int `json:"connects"`
	Disconnects int `json:"disconnects"`
}

// PipelineJSON is the JSON representation of the event pipeline.
type PipelineJSON struct {
	KeyEvents    uint64 `json:"key_events"`
	KeyFailures  uint64 `json:"key_failures"`
	PoolCapacity int    `json:"pool_capacity"`
	PoolInUse    int    `json:"pool_in_use"`
	Dropped      uint64 `json:"dropped"`
	Queued       int    `json:"queued"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	DebounceMs    int64  `json:"debounce_ms"`
	DebounceTicks int    `json:"debounce_ticks"`
	SystemOnMs    int64  `json:"system_on_ms"`
	PairingMs     int64  `json:"pairing_ms"`
	PowerOffMs    int64  `json:"power_off_ms"`
	Heartbeat     string `json:"heartbeat"`
	Broker        string `json:"broker"`
	HTTPAddr      string `json:"http_addr"`
	LocalName     string `json:"local_name,omitempty"`
	DryRun        bool   `json:"dry_run"`
}

func buildInner(snap Snapshot) StatusInner {
	state := snap.State
	if state == "" {
		state = "UNKNOWN"
	}

	inner := StatusInner{
		State:          state,
		PendingPairing: snap.PendingPairing,
		Advertising:    snap.Advertising,
		Connected:      snap.Connected(),
		Peer:           snap.Peer,
		Controls:       snap.Controls,
		UptimeSeconds:  int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:      snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:      snap.Now.UTC().Format(time.RFC3339),
		MQTT:           MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts:         CountsJSON(snap.Counts),
		Pipeline:       PipelineJSON(snap.Pipeline),
		Config:         ConfigJSON(snap.Config),
	}
	if snap.Network != nil {
		n := NetworkJSON(*snap.Network)
		inner.Network = &n
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
