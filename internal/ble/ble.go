// Package ble provides the wireless control service: advertising, the single
// connection slot and the control points that drive the output lines.
// The real stack uses tinygo.org/x/bluetooth on Linux (BlueZ).
// The fake stack allows testing without a radio.
package ble

import (
	"fmt"

	"github.com/google/uuid"
)

// NumControlPoints is the number of writable characteristics in the service.
const NumControlPoints = 5

// ValueWidth is the size in bytes of a control point value (little-endian uint16).
const ValueWidth = 2

var (
	// ServiceUUID is the primary service.
	ServiceUUID = uuid.MustParse("5cf2ab1a-8b77-453e-9b21-57512e8100da")

	// ControlPointUUIDs are the characteristics for control points 0..4.
	ControlPointUUIDs = [NumControlPoints]uuid.UUID{
		uuid.MustParse("e15bf60d-8944-475f-aa56-84f79795d898"),
		uuid.MustParse("5ee60202-125d-48f5-aa98-d748a2524b6c"),
		uuid.MustParse("b5214d3f-d6f6-4751-bc9f-229ebc63df81"),
		uuid.MustParse("a77c33b3-0580-467a-a384-8fd683050507"),
		uuid.MustParse("c064e2b7-2bfb-4d45-bb4e-9b9e065bea0a"),
	}
)

// ProtocolError is an ATT error code returned to the client.
type ProtocolError uint8

func (e ProtocolError) Error() string {
	switch e {
	case ErrInvalidOffset:
		return "ble: invalid offset"
	case ErrUnauthorized:
		return "ble: insufficient authorization"
	}
	return fmt.Sprintf("ble: protocol error 0x%02x", uint8(e))
}

// ErrInvalidOffset is returned for writes past the end of a value.
const ErrInvalidOffset ProtocolError = 0x07

// ErrUnauthorized is returned for writes from a refused connection.
const ErrUnauthorized ProtocolError = 0x08

// Conn is a connection accepted by the stack.
type Conn interface {
	Address() string
}

// CharacteristicDef is one writable characteristic.
type CharacteristicDef struct {
	UUID  uuid.UUID
	Index int

	// Write is called for each write-without-response.
	Write func(buf []byte, offset int) error
}

// ServiceDef is a primary service and its characteristics.
type ServiceDef struct {
	UUID            uuid.UUID
	Characteristics []CharacteristicDef

	// CCCChanged is called when a client writes the notification
	// configuration descriptor.
	CCCChanged func(value uint16)
}

// Stack is the part of a wireless stack the service uses.
type Stack interface {
	// Enable brings the stack up. ready is called once the stack can
	// advertise, possibly before Enable returns.
	Enable(ready func(error)) error

	// SetConnectionHandlers registers the connection lifecycle callbacks.
	// They run in the stack's callback context.
	SetConnectionHandlers(connected func(Conn, error), disconnected func(Conn, uint8))

	// RegisterService adds a service. Must be called before Enable.
	RegisterService(ServiceDef) error

	StartAdvertising(Advertisement) error
	StopAdvertising() error
}
