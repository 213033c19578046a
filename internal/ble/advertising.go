package ble

import "encoding/binary"

// NumFeatures is the number of feature bytes after the manufacturer id.
const NumFeatures = 5

// AD structure types.
const (
	adFlags            = 0x01
	adCompleteName     = 0x09
	adManufacturerData = 0xFF

	// LE general discoverable, BR/EDR not supported.
	flagsGeneralNoBREDR = 0x06
)

// Advertisement is the advertising payload.
type Advertisement struct {
	LocalName      string
	ManufacturerID uint16
	Features       [NumFeatures]byte

	// Pairable marks the payload as advertising in pairing mode.
	Pairable bool
}

// DefaultAdvertisement is the stock payload: test manufacturer id 0xFFFF and
// the feature bytes DE AD BE EF 00.
var DefaultAdvertisement = Advertisement{
	ManufacturerID: 0xFFFF,
	Features:       [NumFeatures]byte{0xDE, 0xAD, 0xBE, 0xEF, 0x00},
}

// FeatureBytes returns the feature bytes as advertised. The last byte is 0x01
// in pairing mode.
func (a Advertisement) FeatureBytes() [NumFeatures]byte {
	f := a.Features
	if a.Pairable {
		f[NumFeatures-1] = 0x01
	}
	return f
}

// ManufacturerData returns the 7-byte manufacturer block: id (little-endian)
// then the feature bytes.
func (a Advertisement) ManufacturerData() []byte {
	b := make([]byte, 2, 2+NumFeatures)
	binary.LittleEndian.PutUint16(b, a.ManufacturerID)
	f := a.FeatureBytes()
	return append(b, f[:]...)
}

// Bytes encodes the payload as AD structures.
func (a Advertisement) Bytes() []byte {
	md := a.ManufacturerData()
	b := []byte{2, adFlags, flagsGeneralNoBREDR}
	b = append(b, byte(len(md)+1), adManufacturerData)
	b = append(b, md...)
	if a.LocalName != "" {
		b = append(b, byte(len(a.LocalName)+1), adCompleteName)
		b = append(b, a.LocalName...)
	}
	return b
}
