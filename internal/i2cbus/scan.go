package i2cbus

import "periph.io/x/conn/v3/i2c"

// Valid 7-bit addresses; the rest are reserved.
const (
	firstAddr uint16 = 0x03
	lastAddr  uint16 = 0x77
)

// Present reports whether a device acknowledges a one byte read at addr.
func Present(bus i2c.Bus, addr uint16) bool {
	var b [1]byte
	return bus.Tx(addr, nil, b[:]) == nil
}

// Scan probes every valid address and returns the ones that answer.
func Scan(bus i2c.Bus) []uint16 {
	var found []uint16
	for a := firstAddr; a <= lastAddr; a++ {
		if Present(bus, a) {
			found = append(found, a)
		}
	}
	return found
}
