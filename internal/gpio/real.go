//go:build linux

package gpio

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/warthog618/go-gpiocdev"
)

const consumer = "powerctl"

// Chip hands out lines from a Linux GPIO character device.
type Chip struct {
	chip *gpiocdev.Chip

	mu      sync.Mutex
	buttons []*RealButton
	outputs []*RealOutput
}

// OpenChip opens the named GPIO chip, e.g. "gpiochip0".
func OpenChip(name string) (*Chip, error) {
	chip, err := gpiocdev.NewChip(name, gpiocdev.WithConsumer(consumer))
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	return &Chip{chip: chip}, nil
}

// RealButton is an edge-watched input line with pull-up.
type RealButton struct {
	line    *gpiocdev.Line
	pin     int
	handler atomic.Pointer[func()]
}

// RequestButton requests pin as an input with pull-up and both-edge detection.
// Edges are forwarded to the handler registered with OnEdge.
func (c *Chip) RequestButton(pin int) (*RealButton, error) {
	b := &RealButton{pin: pin}
	line, err := c.chip.RequestLine(pin,
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.WithBothEdges,
		gpiocdev.WithEventHandler(b.onEvent),
	)
	if err != nil {
		return nil, fmt.Errorf("request button pin %d: %w", pin, err)
	}
	b.line = line

	c.mu.Lock()
	c.buttons = append(c.buttons, b)
	c.mu.Unlock()
	return b, nil
}

func (b *RealButton) onEvent(gpiocdev.LineEvent) {
	if h := b.handler.Load(); h != nil {
		(*h)()
	}
}

// OnEdge registers the edge handler.
func (b *RealButton) OnEdge(handler func()) {
	b.handler.Store(&handler)
}

// Read returns the current raw level.
func (b *RealButton) Read() (Level, error) {
	v, err := b.line.Value()
	if err != nil {
		return Low, fmt.Errorf("read button pin %d: %w", b.pin, err)
	}
	return Level(v), nil
}

// ConfigureWake restricts edge detection to the falling (press) edge so the
// line only signals a new press while the system is down.
func (b *RealButton) ConfigureWake() error {
	if err := b.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullUp, gpiocdev.WithFallingEdge); err != nil {
		return fmt.Errorf("configure wake on pin %d: %w", b.pin, err)
	}
	return nil
}

// RealOutput is an output line.
type RealOutput struct {
	line *gpiocdev.Line
	pin  int
}

// RequestOutput requests pin as an output driven to initial.
func (c *Chip) RequestOutput(pin int, initial Level) (*RealOutput, error) {
	line, err := c.chip.RequestLine(pin, gpiocdev.AsOutput(int(initial)))
	if err != nil {
		return nil, fmt.Errorf("request output pin %d: %w", pin, err)
	}
	o := &RealOutput{line: line, pin: pin}

	c.mu.Lock()
	c.outputs = append(c.outputs, o)
	c.mu.Unlock()
	return o, nil
}

// Write drives the line.
func (o *RealOutput) Write(l Level) error {
	if err := o.line.SetValue(int(l)); err != nil {
		return fmt.Errorf("set output pin %d: %w", o.pin, err)
	}
	return nil
}

// Read returns the level the line is driven to.
func (o *RealOutput) Read() (Level, error) {
	v, err := o.line.Value()
	if err != nil {
		return Low, fmt.Errorf("read output pin %d: %w", o.pin, err)
	}
	return Level(v), nil
}

// Close drives outputs low, releases every requested line and closes the chip.
func (c *Chip) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for _, o := range c.outputs {
		if err := o.line.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("reset output pin %d: %w", o.pin, err))
		}
		if err := o.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close output pin %d: %w", o.pin, err))
		}
	}
	for _, b := range c.buttons {
		if err := b.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close button pin %d: %w", b.pin, err))
		}
	}
	c.outputs = nil
	c.buttons = nil

	if c.chip != nil {
		if err := c.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		c.chip = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
