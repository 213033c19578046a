//go:build !linux

package gpio

import "errors"

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// Chip is not available on non-Linux platforms.
type Chip struct{}

// OpenChip returns an error on non-Linux platforms.
func OpenChip(name string) (*Chip, error) {
	return nil, errUnsupported
}

// RealButton is not available on non-Linux platforms.
type RealButton struct{}

// RealOutput is not available on non-Linux platforms.
type RealOutput struct{}

func (c *Chip) RequestButton(pin int) (*RealButton, error) { return nil, errUnsupported }
func (c *Chip) RequestOutput(pin int, initial Level) (*RealOutput, error) { return nil, errUnsupported }
func (c *Chip) Close() error { return nil }

func (b *RealButton) OnEdge(handler func()) {}
func (b *RealButton) Read() (Level, error) { return Low, errUnsupported }
func (b *RealButton) ConfigureWake() error { return errUnsupported }
func (o *RealOutput) Write(l Level) error { return errUnsupported }
func (o *RealOutput) Read() (Level, error) { return Low, errUnsupported }
