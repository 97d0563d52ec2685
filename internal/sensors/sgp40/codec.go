package sgp40

import (
	"fmt"
	"math"
	"time"
)

// Address is the fixed I2C address of the SGP40.
const Address uint16 = 0x59

// MeasureDelay is the time between sending the measure command and the
// result being readable.
const MeasureDelay = 30 * time.Millisecond

// measureRaw is the "measure raw signal" command with humidity and
// temperature compensation.
var measureRaw = [2]byte{0x26, 0x0F}

// ResponseLen is the size of a measure raw response: one word and its CRC.
const ResponseLen = 3

// ChecksumError reports a response word whose CRC does not match.
type ChecksumError struct {
	Got, Want byte
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("sgp40: crc mismatch: got 0x%02X, expected 0x%02X", e.Got, e.Want)
}

// ShortReadError reports a response with fewer bytes than the protocol needs.
type ShortReadError struct {
	Got, Want int
}

func (e *ShortReadError) Error() string {
	return fmt.Sprintf("sgp40: expected %d bytes, got %d", e.Want, e.Got)
}

// HumidityToTicks scales a relative humidity in % to the 16-bit sensor
// representation. Values outside 0..100 are clamped.
func HumidityToTicks(rh float64) uint16 {
	rh = min(max(rh, 0), 100)
	return uint16(math.RoundToEven(rh * 65535 / 100))
}

// TemperatureToTicks scales a temperature in °C to the 16-bit sensor
// representation. Values outside -45..130 are clamped.
func TemperatureToTicks(t float64) uint16 {
	t = min(max(t, -45), 130)
	return uint16(math.RoundToEven((t + 45) * 65535 / 175))
}

// BuildCommand returns the measure raw frame for the given compensation
// values: the command word followed by two CRC protected words.
func BuildCommand(rh, t float64) [8]byte {
	h := HumidityToTicks(rh)
	tt := TemperatureToTicks(t)

	var b [8]byte
	b[0], b[1] = measureRaw[0], measureRaw[1]
	b[2], b[3] = byte(h>>8), byte(h)
	b[4] = CRC8(b[2:4])
	b[5], b[6] = byte(tt>>8), byte(tt)
	b[7] = CRC8(b[5:7])
	return b
}

// DecodeResponse checks and returns the raw VOC signal in b.
func DecodeResponse(b []byte) (uint16, error) {
	if len(b) < ResponseLen {
		return 0, &ShortReadError{Got: len(b), Want: ResponseLen}
	}
	if want := CRC8(b[:2]); b[2] != want {
		return 0, &ChecksumError{Got: b[2], Want: want}
	}
	return uint16(b[0])<<8 | uint16(b[1]), nil
}

// EncodeResponse is the inverse of DecodeResponse, used by simulated devices.
func EncodeResponse(sraw uint16) [ResponseLen]byte {
	b := [ResponseLen]byte{byte(sraw >> 8), byte(sraw)}
	b[2] = CRC8(b[:2])
	return b
}
