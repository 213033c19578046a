//go:build !linux

package ble

import (
	"errors"

	"github.com/sirupsen/logrus"
)

var errUnsupported = errors.New("ble: not supported on this platform (requires Linux)")

// Adapter is not available on non-Linux platforms.
type Adapter struct{}

// NewAdapter returns an Adapter whose methods all fail.
func NewAdapter(log *logrus.Entry) *Adapter {
	return &Adapter{}
}

func (a *Adapter) Enable(ready func(error)) error { return errUnsupported }
func (a *Adapter) SetConnectionHandlers(connected func(Conn, error), disconnected func(Conn, uint8)) {}
func (a *Adapter) RegisterService(def ServiceDef) error { return errUnsupported }
func (a *Adapter) StartAdvertising(adv Advertisement) error { return errUnsupported }
func (a *Adapter) StopAdvertising() error { return errUnsupported }
