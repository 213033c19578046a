package ble

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sweeney/powerctl/internal/event"
	"github.com/sweeney/powerctl/internal/gpio"
)

// WriteObserver is told about every applied control point write.
type WriteObserver func(index int, value uint16)

// Config is the service identity and advertising payload.
type Config struct {
	Advertisement     Advertisement
	ServiceUUID       uuid.UUID
	ControlPointUUIDs [NumControlPoints]uuid.UUID
}

// DefaultConfig returns the stock UUIDs and payload.
func DefaultConfig() Config {
	return Config{
		Advertisement:     DefaultAdvertisement,
		ServiceUUID:       ServiceUUID,
		ControlPointUUIDs: ControlPointUUIDs,
	}
}

// Service is the wireless control service. It satisfies the power state
// machine's Radio and Link interfaces.
type Service struct {
	stack Stack
	lines []gpio.Output
	out   event.Emitter
	cfg   Config
	log   *logrus.Entry

	conn slot

	mu          sync.Mutex
	adv         Advertisement
	ready       bool
	wantAdv     bool
	advertising bool
	values      [NumControlPoints]uint16
	observers   []WriteObserver
}

// NewService creates a service over stack. lines[i] is driven by control point
// i; missing lines make writes to that index a logged no-op. Connection events
// are emitted to out. Zero UUIDs in cfg take the defaults. A nil logger uses
// the logrus standard logger.
func NewService(stack Stack, lines []gpio.Output, out event.Emitter, cfg Config, log *logrus.Entry) *Service {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if cfg.ServiceUUID == uuid.Nil {
		cfg.ServiceUUID = ServiceUUID
	}
	for i, u := range cfg.ControlPointUUIDs {
		if u == uuid.Nil {
			cfg.ControlPointUUIDs[i] = ControlPointUUIDs[i]
		}
	}
	return &Service{
		stack: stack,
		lines: lines,
		out:   out,
		cfg:   cfg,
		adv:   cfg.Advertisement,
		log:   log.WithField("component", "ble"),
	}
}

// Start registers the service and connection callbacks and enables the stack.
// Advertising requested before the stack is ready starts once it is.
func (s *Service) Start() error {
	s.stack.SetConnectionHandlers(s.onConnected, s.onDisconnected)
	if err := s.stack.RegisterService(s.definition()); err != nil {
		return fmt.Errorf("register service: %w", err)
	}
	if err := s.stack.Enable(s.onReady); err != nil {
		return fmt.Errorf("enable stack: %w", err)
	}
	return nil
}

// OnWrite registers o for every later applied write.
func (s *Service) OnWrite(o WriteObserver) {
	s.mu.Lock()
	s.observers = append(s.observers, o)
	s.mu.Unlock()
}

func (s *Service) definition() ServiceDef {
	def := ServiceDef{
		UUID:       s.cfg.ServiceUUID,
		CCCChanged: s.onCCCChanged,
	}
	for i, u := range s.cfg.ControlPointUUIDs {
		index := i
		def.Characteristics = append(def.Characteristics, CharacteristicDef{
			UUID:  u,
			Index: index,
			Write: func(buf []byte, offset int) error {
				return s.HandleWrite(index, buf, offset)
			},
		})
	}
	return def
}

func (s *Service) onReady(err error) {
	if err != nil {
		s.log.WithError(err).Error("bluetooth init failed")
		return
	}
	s.log.Info("bluetooth initialized")

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = true
	if s.wantAdv {
		s.startLocked()
	}
}

// StartAdvertising starts advertising, in pairing mode if pairable. Before the
// stack is ready the request is remembered.
func (s *Service) StartAdvertising(pairable bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wantAdv = true
	s.adv.Pairable = pairable
	if !s.ready {
		s.log.Debug("advertising deferred until stack is ready")
		return nil
	}
	return s.startLocked()
}

func (s *Service) startLocked() error {
	if s.advertising {
		if err := s.stack.StopAdvertising(); err != nil {
			s.log.WithError(err).Warn("stop advertising")
		}
		s.advertising = false
	}
	if err := s.stack.StartAdvertising(s.adv); err != nil {
		s.log.WithError(err).Error("advertising failed to start")
		return fmt.Errorf("start advertising: %w", err)
	}
	s.advertising = true
	s.log.WithField("pairable", s.adv.Pairable).Info("advertising started")
	return nil
}

// StopAdvertising stops advertising and drops any deferred request.
func (s *Service) StopAdvertising() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wantAdv = false
	if !s.advertising {
		return nil
	}
	s.advertising = false
	if err := s.stack.StopAdvertising(); err != nil {
		return fmt.Errorf("stop advertising: %w", err)
	}
	s.log.Info("advertising stopped")
	return nil
}

// Advertising reports whether the stack is advertising.
func (s *Service) Advertising() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.advertising
}

// Connected reports whether a connection is held.
func (s *Service) Connected() bool {
	return s.conn.get() != nil
}

// Peer returns the address of the held connection, or "".
func (s *Service) Peer() string {
	c := s.conn.get()
	if c == nil {
		return ""
	}
	return c.Address()
}

// Refuse marks the held connection from peer as unbonded. Its writes are
// rejected until it disconnects.
func (s *Service) Refuse(peer string) {
	if !s.conn.refuse(peer) {
		s.log.WithField("peer", peer).Debug("refuse for a connection not held")
		return
	}
	s.log.WithField("peer", peer).Warn("connection refused, control writes blocked")
}

func (s *Service) onConnected(c Conn, err error) {
	if err != nil {
		s.log.WithError(err).Warn("connection failed")
		return
	}
	if c == nil {
		return
	}
	log := s.log.WithField("peer", c.Address())
	if !s.conn.acquire(c) {
		log.WithField("held", s.Peer()).Warn("connection slot busy, ignoring")
		return
	}
	log.Info("connected")

	s.mu.Lock()
	// Connectable advertising ends when a central connects.
	s.advertising = false
	s.mu.Unlock()

	peer := c.Address()
	s.emit(event.KindConnected, func(e *event.Event) { e.Peer = peer })
}

func (s *Service) onDisconnected(c Conn, reason uint8) {
	if c == nil {
		return
	}
	log := s.log.WithFields(logrus.Fields{"peer": c.Address(), "reason": fmt.Sprintf("0x%02x", reason)})
	if !s.conn.release(c) {
		log.Warn("disconnect for a connection not held")
		return
	}
	log.Info("disconnected")

	peer := c.Address()
	s.emit(event.KindDisconnected, func(e *event.Event) {
		e.Peer = peer
		e.Reason = reason
	})
}

func (s *Service) emit(kind event.Kind, fill func(*event.Event)) {
	if s.out == nil {
		return
	}
	// Emit logs drops itself.
	_ = s.out.Emit(kind, fill)
}

func (s *Service) onCCCChanged(value uint16) {
	s.log.WithField("notify", value == 1).Info("notification configuration changed")
}

// HandleWrite applies a write to control point index. buf lands at the start of
// the value; offset only bounds it. Writes past ValueWidth fail with
// ErrInvalidOffset and leave the line untouched. Writes on a refused
// connection fail with ErrUnauthorized. Indexes without a line are logged and
// ignored.
func (s *Service) HandleWrite(index int, buf []byte, offset int) error {
	log := s.log.WithField("index", index)
	if s.conn.isRefused() {
		log.WithField("peer", s.Peer()).Warn("write from refused connection")
		return ErrUnauthorized
	}
	if offset < 0 || offset+len(buf) > ValueWidth {
		log.WithFields(logrus.Fields{"offset": offset, "len": len(buf)}).Warn("write past end of value")
		return ErrInvalidOffset
	}
	if index < 0 || index >= len(s.lines) || index >= NumControlPoints || s.lines[index] == nil {
		log.Warn("no line for control point, ignoring write")
		return nil
	}

	var raw [ValueWidth]byte
	copy(raw[:], buf)
	value := binary.LittleEndian.Uint16(raw[:])

	if err := s.lines[index].Write(gpio.LevelOf(value)); err != nil {
		log.WithError(err).Error("set control line")
		return fmt.Errorf("control point %d: %w", index, err)
	}
	log.WithField("value", value).Debug("control point written")

	s.mu.Lock()
	s.values[index] = value
	observers := append([]WriteObserver(nil), s.observers...)
	s.mu.Unlock()

	for _, o := range observers {
		o(index, value)
	}
	return nil
}

// Values returns the last value written to each control point.
func (s *Service) Values() [NumControlPoints]uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values
}
