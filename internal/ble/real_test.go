//go:build linux

package ble

import (
	"testing"

	"tinygo.org/x/bluetooth"
)

func TestCharacteristicFlags(t *testing.T) {
	for i := 0; i < NumControlPoints; i++ {
		flags := characteristicFlags(i)
		if flags&bluetooth.CharacteristicWriteWithoutResponsePermission == 0 {
			t.Errorf("control point %d: not writable without response", i)
		}
		notify := flags&bluetooth.CharacteristicNotifyPermission != 0
		if notify != (i == 0) {
			t.Errorf("control point %d: notify=%v", i, notify)
		}
	}
}
