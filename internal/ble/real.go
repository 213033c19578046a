//go:build linux

package ble

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"tinygo.org/x/bluetooth"
)

var errNotEnabled = errors.New("ble: adapter not enabled")

// Adapter is a Stack backed by the BlueZ adapter.
type Adapter struct {
	adapter  *bluetooth.Adapter
	adv      *bluetooth.Advertisement
	services []ServiceDef
	log      *logrus.Entry
}

type address string

func (a address) Address() string { return string(a) }

// NewAdapter returns a Stack for the default adapter.
func NewAdapter(log *logrus.Entry) *Adapter {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Adapter{
		adapter: bluetooth.DefaultAdapter,
		log:     log.WithField("component", "bluez"),
	}
}

// Enable powers the adapter, adds the registered services and reports ready.
func (a *Adapter) Enable(ready func(error)) error {
	if err := a.adapter.Enable(); err != nil {
		return fmt.Errorf("enable adapter: %w", err)
	}
	for _, def := range a.services {
		if err := a.addService(def); err != nil {
			return err
		}
	}
	a.adv = a.adapter.DefaultAdvertisement()
	ready(nil)
	return nil
}

// SetConnectionHandlers maps the adapter's connect handler onto connected and
// disconnected. BlueZ does not report a disconnect reason.
func (a *Adapter) SetConnectionHandlers(connected func(Conn, error), disconnected func(Conn, uint8)) {
	a.adapter.SetConnectHandler(func(device bluetooth.Device, isConnected bool) {
		c := address(device.Address.String())
		if isConnected {
			connected(c, nil)
			return
		}
		disconnected(c, 0)
	})
}

// RegisterService queues def to be added when the adapter is enabled.
func (a *Adapter) RegisterService(def ServiceDef) error {
	a.services = append(a.services, def)
	return nil
}

// characteristicFlags returns the permissions for control point index. The
// first one also notifies so BlueZ adds a configuration descriptor to the
// service.
func characteristicFlags(index int) bluetooth.CharacteristicPermissions {
	flags := bluetooth.CharacteristicWriteWithoutResponsePermission
	if index == 0 {
		flags |= bluetooth.CharacteristicNotifyPermission
	}
	return flags
}

// addService adds def to the GATT server. BlueZ owns the notification
// configuration descriptor, so CCCChanged is never called.
func (a *Adapter) addService(def ServiceDef) error {
	su, err := toBluetooth(def.UUID)
	if err != nil {
		return err
	}
	chars := make([]bluetooth.CharacteristicConfig, 0, len(def.Characteristics))
	for _, c := range def.Characteristics {
		cu, err := toBluetooth(c.UUID)
		if err != nil {
			return err
		}
		index, write := c.Index, c.Write
		chars = append(chars, bluetooth.CharacteristicConfig{
			UUID:  cu,
			Value: make([]byte, ValueWidth),
			Flags: characteristicFlags(index),
			WriteEvent: func(client bluetooth.Connection, offset int, value []byte) {
				// The GATT server cannot return an ATT error from here.
				if err := write(value, offset); err != nil {
					a.log.WithError(err).WithField("index", index).Warn("write rejected")
				}
			},
		})
	}
	err = a.adapter.AddService(&bluetooth.Service{
		UUID:            su,
		Characteristics: chars,
	})
	if err != nil {
		return fmt.Errorf("add service %s: %w", def.UUID, err)
	}
	return nil
}

// StartAdvertising configures and starts the advertisement.
func (a *Adapter) StartAdvertising(adv Advertisement) error {
	if a.adv == nil {
		return errNotEnabled
	}
	opts := bluetooth.AdvertisementOptions{
		LocalName: adv.LocalName,
		ManufacturerData: []bluetooth.ManufacturerDataElement{{
			CompanyID: adv.ManufacturerID,
			Data:      adv.ManufacturerData()[2:],
		}},
	}
	for _, def := range a.services {
		u, err := toBluetooth(def.UUID)
		if err != nil {
			return err
		}
		opts.ServiceUUIDs = append(opts.ServiceUUIDs, u)
	}
	if err := a.adv.Configure(opts); err != nil {
		return fmt.Errorf("configure advertisement: %w", err)
	}
	if err := a.adv.Start(); err != nil {
		return fmt.Errorf("start advertisement: %w", err)
	}
	return nil
}

// StopAdvertising stops the advertisement.
func (a *Adapter) StopAdvertising() error {
	if a.adv == nil {
		return nil
	}
	return a.adv.Stop()
}

func toBluetooth(u uuid.UUID) (bluetooth.UUID, error) {
	bu, err := bluetooth.ParseUUID(u.String())
	if err != nil {
		return bluetooth.UUID{}, fmt.Errorf("uuid %s: %w", u, err)
	}
	return bu, nil
}
