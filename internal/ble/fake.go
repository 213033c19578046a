package ble

import (
	"errors"
	"sync"
)

// FakeConn is a connection identified by its address.
type FakeConn string

// Address returns the connection address.
func (c FakeConn) Address() string { return string(c) }

// FakeStack is a test double for Stack. Ready, Connect, Disconnect and Write
// drive the callbacks the way a real stack would.
// It is safe for concurrent use.
type FakeStack struct {
	mu           sync.Mutex
	ready        func(error)
	connected    func(Conn, error)
	disconnected func(Conn, uint8)
	services     []ServiceDef
	adv          Advertisement
	advertising  bool
	starts       int
	stops        int

	// ReadyOnEnable, if set, makes Enable report ready before it returns.
	ReadyOnEnable bool

	// EnableError, if set, will be returned by Enable.
	EnableError error

	// RegisterError, if set, will be returned by RegisterService.
	RegisterError error

	// AdvertiseError, if set, will be returned by StartAdvertising.
	AdvertiseError error
}

// NewFakeStack creates a FakeStack.
func NewFakeStack() *FakeStack {
	return &FakeStack{}
}

// Enable records the ready callback.
func (f *FakeStack) Enable(ready func(error)) error {
	f.mu.Lock()
	if f.EnableError != nil {
		f.mu.Unlock()
		return f.EnableError
	}
	f.ready = ready
	now := f.ReadyOnEnable
	f.mu.Unlock()
	if now {
		ready(nil)
	}
	return nil
}

// SetConnectionHandlers records the connection callbacks.
func (f *FakeStack) SetConnectionHandlers(connected func(Conn, error), disconnected func(Conn, uint8)) {
	f.mu.Lock()
	f.connected = connected
	f.disconnected = disconnected
	f.mu.Unlock()
}

// RegisterService records def.
func (f *FakeStack) RegisterService(def ServiceDef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RegisterError != nil {
		return f.RegisterError
	}
	f.services = append(f.services, def)
	return nil
}

// StartAdvertising records adv.
func (f *FakeStack) StartAdvertising(adv Advertisement) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.AdvertiseError != nil {
		return f.AdvertiseError
	}
	f.adv = adv
	f.advertising = true
	f.starts++
	return nil
}

// StopAdvertising records the stop.
func (f *FakeStack) StopAdvertising() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.advertising = false
	f.stops++
	return nil
}

// Advertisement returns the last payload and whether it is being advertised.
func (f *FakeStack) Advertisement() (Advertisement, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.adv, f.advertising
}

// AdvertisingCounts returns how many times advertising was started and stopped.
func (f *FakeStack) AdvertisingCounts() (starts, stops int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts, f.stops
}

// Services returns the registered services.
func (f *FakeStack) Services() []ServiceDef {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ServiceDef(nil), f.services...)
}

// Ready invokes the ready callback.
func (f *FakeStack) Ready(err error) error {
	f.mu.Lock()
	ready := f.ready
	f.mu.Unlock()
	if ready == nil {
		return errors.New("stack not enabled")
	}
	ready(err)
	return nil
}

// Connect invokes the connected callback for addr.
func (f *FakeStack) Connect(addr string) error {
	f.mu.Lock()
	h := f.connected
	f.advertising = false
	f.mu.Unlock()
	if h == nil {
		return errors.New("no connection handler registered")
	}
	h(FakeConn(addr), nil)
	return nil
}

// Disconnect invokes the disconnected callback for addr.
func (f *FakeStack) Disconnect(addr string, reason uint8) error {
	f.mu.Lock()
	h := f.disconnected
	f.mu.Unlock()
	if h == nil {
		return errors.New("no disconnection handler registered")
	}
	h(FakeConn(addr), reason)
	return nil
}

// Write delivers a client write to the characteristic at index of the first
// registered service.
func (f *FakeStack) Write(index int, buf []byte, offset int) error {
	f.mu.Lock()
	var w func([]byte, int) error
	if len(f.services) > 0 {
		for _, c := range f.services[0].Characteristics {
			if c.Index == index {
				w = c.Write
			}
		}
	}
	f.mu.Unlock()
	if w == nil {
		return errors.New("no such characteristic")
	}
	return w(buf, offset)
}

// WriteCCC delivers a notification configuration write.
func (f *FakeStack) WriteCCC(value uint16) error {
	f.mu.Lock()
	if len(f.services) == 0 || f.services[0].CCCChanged == nil {
		f.mu.Unlock()
		return errors.New("no descriptor registered")
	}
	h := f.services[0].CCCChanged
	f.mu.Unlock()
	h(value)
	return nil
}
