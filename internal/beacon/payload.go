// Package beacon broadcasts BME280 readings as BLE manufacturer data and
// scans for such broadcasts.
package beacon

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Payload format (little-endian): magic 0x01 0xD0, reading_id uint32,
// temperature float32, pressure float32, humidity float32.
const (
	magic0     = 0x01
	magic1     = 0xD0
	PayloadLen = 18

	// CompanyID is the reserved test identifier.
	CompanyID = 0xFFFF
)

// Payload is one advertised reading. ReadingID lets scanners drop repeats
// of the same advertisement.
type Payload struct {
	ReadingID    uint32
	TemperatureC float64
	PressureHPa  float64
	HumidityPct  float64
}

// Encode writes p into buf. Values are narrowed to float32.
func Encode(buf *[PayloadLen]byte, p Payload) {
	buf[0] = magic0
	buf[1] = magic1
	binary.LittleEndian.PutUint32(buf[2:6], p.ReadingID)
	binary.LittleEndian.PutUint32(buf[6:10], math.Float32bits(float32(p.TemperatureC)))
	binary.LittleEndian.PutUint32(buf[10:14], math.Float32bits(float32(p.PressureHPa)))
	binary.LittleEndian.PutUint32(buf[14:18], math.Float32bits(float32(p.HumidityPct)))
}

// Parse decodes manufacturer data. Trailing bytes are ignored.
func Parse(data []byte) (Payload, error) {
	if len(data) < PayloadLen {
		return Payload{}, fmt.Errorf("payload too short: %d", len(data))
	}
	if data[0] != magic0 || data[1] != magic1 {
		return Payload{}, fmt.Errorf("invalid magic: %02X %02X", data[0], data[1])
	}
	return Payload{
		ReadingID:    binary.LittleEndian.Uint32(data[2:6]),
		TemperatureC: float64(math.Float32frombits(binary.LittleEndian.Uint32(data[6:10]))),
		PressureHPa:  float64(math.Float32frombits(binary.LittleEndian.Uint32(data[10:14]))),
		HumidityPct:  float64(math.Float32frombits(binary.LittleEndian.Uint32(data[14:18]))),
	}, nil
}
