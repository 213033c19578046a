// Package gpio provides the button input and output lines with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Level is the electrical level of a line.
type Level int

const (
	Low  Level = 0
	High Level = 1
)

func (l Level) String() string {
	if l == Low {
		return "LOW"
	}
	return "HIGH"
}

// LevelOf maps a non-zero value to High.
func LevelOf(v uint16) Level {
	if v != 0 {
		return High
	}
	return Low
}

// Input reads a line.
type Input interface {
	Read() (Level, error)
}

// Output drives a line.
type Output interface {
	Input
	Write(Level) error
}

// Button is the power button input. It is wired active-low with a pull-up:
// a pressed button reads Low.
type Button interface {
	Input

	// OnEdge registers the handler called on every rising and falling edge.
	// The handler runs in the edge-event context and must not block.
	OnEdge(handler func())

	// ConfigureWake sets the line up as the wake source before deep sleep.
	ConfigureWake() error
}

// Pressed reports whether a button level means pressed.
func Pressed(l Level) bool {
	return l == Low
}

// Default pin assignments (BCM numbering).
const (
	DefaultChip         = "gpiochip0"
	DefaultPinButton    = 17
	DefaultPinIndicator = 27
)

// DefaultPinsControl are the output lines bound to control points 0..4.
var DefaultPinsControl = []int{5, 6, 13, 19, 26}
