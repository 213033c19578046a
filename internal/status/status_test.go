package status

import (
	"encoding/json"
	"sync"
	"testing"
	"time"
)

var start = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestNewTracker(t *testing.T) {
	cfg := Config{DebounceMs: 10, DebounceTicks: 3, Broker: "tcp://localhost:1883", HTTPAddr: ":80"}
	tr := NewTracker(start, cfg)

	snap := tr.Snapshot()
	if !snap.StartTime.Equal(start) {
		t.Errorf("StartTime: got %v, want %v", snap.StartTime, start)
	}
	if snap.Config != cfg {
		t.Errorf("Config: got %+v, want %+v", snap.Config, cfg)
	}
	if snap.State != "" || snap.Connected() || snap.MQTTConnected {
		t.Errorf("unexpected initial snapshot: %+v", snap)
	}
}

func TestRecordTransition(t *testing.T) {
	tr := NewTracker(start, Config{})

	tr.RecordTransition("NONE", "RESET", false)
	snap := tr.Snapshot()
	if snap.State != "RESET" {
		t.Errorf("State: got %q, want RESET", snap.State)
	}
	if snap.Counts.Transitions != 0 {
		t.Errorf("initial state counted as transition: %d", snap.Counts.Transitions)
	}

	tr.RecordTransition("RESET", "ADVERTISE", true)
	tr.RecordTransition("ADVERTISE", "PAIRING", true)
	snap = tr.Snapshot()
	if snap.State != "PAIRING" || !snap.PendingPairing {
		t.Errorf("got state %q pending %v, want PAIRING pending", snap.State, snap.PendingPairing)
	}
	if snap.Counts.Transitions != 2 {
		t.Errorf("Transitions: got %d, want 2", snap.Counts.Transitions)
	}
}

func TestRecordWrite(t *testing.T) {
	tr := NewTracker(start, Config{})

	tr.RecordWrite(0, 1)
	tr.RecordWrite(4, 0x0201)
	tr.RecordWrite(5, 9)
	tr.RecordWrite(-1, 9)

	snap := tr.Snapshot()
	want := [NumControls]uint16{1, 0, 0, 0, 0x0201}
	if snap.Controls != want {
		t.Errorf("Controls: got %v, want %v", snap.Controls, want)
	}
	if snap.Counts.Writes != 2 {
		t.Errorf("Writes: got %d, want 2", snap.Counts.Writes)
	}
}

func TestSetLink(t *testing.T) {
	tr := NewTracker(start, Config{})

	steps := []struct {
		advertising bool
		peer        string
		connects    int
		disconnects int
	}{
		{true, "", 0, 0},
		{false, "peer-1", 1, 0},
		{false, "peer-1", 1, 0},
		{true, "", 1, 1},
		{false, "peer-2", 2, 1},
	}
	for i, s := range steps {
		tr.SetLink(s.advertising, s.peer)
		snap := tr.Snapshot()
		if snap.Advertising != s.advertising || snap.Peer != s.peer {
			t.Errorf("step %d: got advertising=%v peer=%q", i, snap.Advertising, snap.Peer)
		}
		if snap.Counts.Connects != s.connects || snap.Counts.Disconnects != s.disconnects {
			t.Errorf("step %d: got %+v", i, snap.Counts)
		}
	}
}

func TestUpdatePipeline(t *testing.T) {
	tr := NewTracker(start, Config{})
	p := Pipeline{KeyEvents: 4, PoolCapacity: 16, PoolInUse: 1, Dropped: 2, Queued: 1}
	tr.Update(p)
	if got := tr.Snapshot().Pipeline; got != p {
		t.Errorf("Pipeline: got %+v, want %+v", got, p)
	}
}

func TestSetMQTTConnected(t *testing.T) {
	tr := NewTracker(start, Config{})

	tr.SetMQTTConnected(true)
	if !tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=true")
	}

	tr.SetMQTTConnected(false)
	if tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=false")
	}
}

func TestSetNetwork(t *testing.T) {
	tr := NewTracker(start, Config{})

	if tr.Snapshot().Network != nil {
		t.Error("expected nil Network initially")
	}

	tr.SetNetwork(&NetworkInfo{Type: "wifi", IP: "192.168.1.42", Status: "connected"})

	snap := tr.Snapshot()
	if snap.Network == nil {
		t.Fatal("expected non-nil Network")
	}
	if snap.Network.IP != "192.168.1.42" {
		t.Errorf("Network.IP: got %q, want %q", snap.Network.IP, "192.168.1.42")
	}
}

func TestSnapshotUptime(t *testing.T) {
	tr := NewTracker(start, Config{})
	tr.now = func() time.Time { return start.Add(15 * time.Minute) }

	if got := tr.Snapshot().Uptime(); got != 15*time.Minute {
		t.Errorf("Uptime: got %v, want 15m", got)
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	tr := NewTracker(start, Config{})
	tr.RecordTransition("NONE", "RESET", false)
	tr.RecordWrite(1, 1)

	snap1 := tr.Snapshot()

	tr.RecordTransition("RESET", "ADVERTISE", false)
	tr.RecordWrite(1, 0)

	if snap1.State != "RESET" {
		t.Error("snapshot should be a copy; State was modified")
	}
	if snap1.Controls[1] != 1 {
		t.Error("snapshot should be a copy; Controls were modified")
	}
}

func connectedSnapshot() Snapshot {
	return Snapshot{
		State:         "CONNECTED",
		Peer:          "AA:BB:CC:DD:EE:FF",
		Controls:      [NumControls]uint16{1, 0, 1, 0, 0},
		Counts:        Counts{Transitions: 3, Writes: 2, Connects: 1},
		Pipeline:      Pipeline{KeyEvents: 2, PoolCapacity: 16},
		StartTime:     start,
		Now:           start.Add(15 * time.Minute),
		MQTTConnected: true,
		Config:        Config{DebounceMs: 10, DebounceTicks: 3, SystemOnMs: 2000, Heartbeat: "@every 15m", Broker: "tcp://localhost:1883", HTTPAddr: ":80"},
	}
}

func TestFormatJSON(t *testing.T) {
	data := FormatJSON(connectedSnapshot())

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	s := parsed.Status
	if s.State != "CONNECTED" {
		t.Errorf("State: got %q, want CONNECTED", s.State)
	}
	if !s.Connected || s.Peer != "AA:BB:CC:DD:EE:FF" {
		t.Errorf("link: connected=%v peer=%q", s.Connected, s.Peer)
	}
	if s.Controls != [NumControls]uint16{1, 0, 1, 0, 0} {
		t.Errorf("Controls: got %v", s.Controls)
	}
	if s.UptimeSeconds != 900 {
		t.Errorf("UptimeSeconds: got %d, want 900", s.UptimeSeconds)
	}
	if !s.MQTT.Connected || s.MQTT.Broker != "tcp://localhost:1883" {
		t.Errorf("MQTT: got %+v", s.MQTT)
	}
	if s.Counts.Writes != 2 || s.Pipeline.PoolCapacity != 16 {
		t.Errorf("counts %+v pipeline %+v", s.Counts, s.Pipeline)
	}
	if s.Config.Heartbeat != "@every 15m" || s.Config.SystemOnMs != 2000 {
		t.Errorf("Config: got %+v", s.Config)
	}
	if s.Event != "" || s.Reason != "" {
		t.Errorf("expected no event/reason for web format, got %q/%q", s.Event, s.Reason)
	}
}

func TestFormatJSONUnknownState(t *testing.T) {
	data := FormatJSON(Snapshot{StartTime: start, Now: start.Add(time.Second)})

	var parsed StatusJSON
	json.Unmarshal(data, &parsed)

	if parsed.Status.State != "UNKNOWN" {
		t.Errorf("State: got %q, want UNKNOWN", parsed.Status.State)
	}
	if parsed.Status.Connected {
		t.Error("expected Connected=false")
	}
}

func TestFormatStatusEvent(t *testing.T) {
	tests := []struct {
		event, reason string
	}{
		{"HEARTBEAT", ""},
		{"STARTUP", ""},
		{"SHUTDOWN", "SIGTERM"},
	}

	for _, tt := range tests {
		t.Run(tt.event, func(t *testing.T) {
			data := FormatStatusEvent(connectedSnapshot(), tt.event, tt.reason)

			var raw map[string]interface{}
			if err := json.Unmarshal(data, &raw); err != nil {
				t.Fatalf("invalid JSON: %v", err)
			}
			status := raw["status"].(map[string]interface{})
			if status["event"] != tt.event {
				t.Errorf("event: got %v, want %s", status["event"], tt.event)
			}
			reason, exists := status["reason"]
			if tt.reason == "" && exists {
				t.Error("reason should be omitted when empty")
			}
			if tt.reason != "" && reason != tt.reason {
				t.Errorf("reason: got %v, want %s", reason, tt.reason)
			}
			if status["state"] != "CONNECTED" {
				t.Errorf("state: got %v", status["state"])
			}
		})
	}
}

func TestFormatJSONWithNetwork(t *testing.T) {
	snap := connectedSnapshot()
	snap.Network = &NetworkInfo{Type: "wifi", IP: "192.168.1.42", Status: "connected", SSID: "MyNet"}

	var parsed StatusJSON
	json.Unmarshal(FormatJSON(snap), &parsed)

	if parsed.Status.Network == nil {
		t.Fatal("expected Network in JSON")
	}
	if parsed.Status.Network.IP != "192.168.1.42" || parsed.Status.Network.SSID != "MyNet" {
		t.Errorf("Network: got %+v", parsed.Status.Network)
	}

	snap.Network = nil
	var raw map[string]map[string]interface{}
	json.Unmarshal(FormatJSON(snap), &raw)
	if _, exists := raw["status"]["network"]; exists {
		t.Error("network should be omitted when nil")
	}
}

func TestConcurrentAccess(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			tr.RecordTransition("ADVERTISE", "CONNECTED", false)
			tr.RecordWrite(i%NumControls, uint16(i))
			tr.SetLink(i%2 == 0, "")
			tr.Update(Pipeline{KeyEvents: uint64(i)})
			tr.SetMQTTConnected(i%2 == 0)
			tr.SetNetwork(&NetworkInfo{IP: "1.2.3.4"})
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			snap := tr.Snapshot()
			_ = snap.Uptime()
		}
	}()

	wg.Wait()
}
