package ble

import "sync"

// slot holds at most one connection. It is written from the stack's callback
// context and read by the consumer.
type slot struct {
	mu      sync.Mutex
	conn    Conn
	refused bool
}

// acquire stores c if the slot is empty.
func (s *slot) acquire(c Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return false
	}
	s.conn = c
	s.refused = false
	return true
}

// release empties the slot if it holds a connection to the same address.
func (s *slot) release(c Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil || c == nil || s.conn.Address() != c.Address() {
		return false
	}
	s.conn = nil
	s.refused = false
	return true
}

// refuse marks the held connection if it is to addr.
func (s *slot) refuse(addr string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil || s.conn.Address() != addr {
		return false
	}
	s.refused = true
	return true
}

// isRefused reports whether the held connection was refused.
func (s *slot) isRefused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil && s.refused
}

func (s *slot) get() Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}
