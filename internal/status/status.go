// Package status provides a thread-safe status tracker for the powerctl daemon.
// It is read by the HTTP handlers and the MQTT heartbeat.
package status

import (
	"sync"
	"time"
)

// NumControls is the number of control point values tracked.
const NumControls = 5

// NetworkInfo contains network state as reported by the host.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	DebounceMs    int64
	DebounceTicks int
	SystemOnMs    int64
	PairingMs     int64
	PowerOffMs    int64
	Heartbeat     string
	Broker        string
	HTTPAddr      string
	LocalName     string
	DryRun        bool
}

// Counts are monotonically increasing event counters.
type Counts struct {
	Transitions int
	Writes      int
	Connects    int
	Disconnects int
}

// Pipeline is the event pipeline's view as sampled by the run loop.
type Pipeline struct {
	KeyEvents    uint64
	KeyFailures  uint64
	PoolCapacity int
	PoolInUse    int
	Dropped      uint64
	Queued       int
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	State          string
	PendingPairing bool
	Advertising    bool
	Peer           string
	Controls       [NumControls]uint16
	Counts         Counts
	Pipeline       Pipeline
	StartTime      time.Time
	Now            time.Time
	MQTTConnected  bool
	Network        *NetworkInfo
	Config         Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Connected reports whether a peer holds the link.
func (s Snapshot) Connected() bool {
	return s.Peer != ""
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// RecordTransition sets the current power state. The first report (from no
// state) is not counted as a transition.
func (t *Tracker) RecordTransition(from, to string, pendingPairing bool) {
	t.mu.Lock()
	if t.snap.State != "" {
		t.snap.Counts.Transitions++
	}
	t.snap.State = to
	t.snap.PendingPairing = pendingPairing
	t.mu.Unlock()
}

// RecordWrite stores an applied control point value. Out of range indexes
// are ignored.
func (t *Tracker) RecordWrite(index int, value uint16) {
	if index < 0 || index >= NumControls {
		return
	}
	t.mu.Lock()
	t.snap.Controls[index] = value
	t.snap.Counts.Writes++
	t.mu.Unlock()
}

// SetLink sets the advertising flag and the connected peer ("" when none).
// Connects and disconnects are counted on peer changes.
func (t *Tracker) SetLink(advertising bool, peer string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.Advertising = advertising
	if peer == t.snap.Peer {
		return
	}
	if t.snap.Peer != "" {
		t.snap.Counts.Disconnects++
	}
	if peer != "" {
		t.snap.Counts.Connects++
	}
	t.snap.Peer = peer
}

// Update sets the pipeline counters. Called from the run loop on every tick.
func (t *Tracker) Update(p Pipeline) {
	t.mu.Lock()
	t.snap.Pipeline = p
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = t.now()
	return s
}
