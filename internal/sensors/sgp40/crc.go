package sgp40

import "github.com/sigurn/crc8"

// Sensirion CRC-8: polynomial 0x31, init 0xFF, MSB first, no final xor.
var crcTable = crc8.MakeTable(crc8.Params{
	Poly:   0x31,
	Init:   0xFF,
	RefIn:  false,
	RefOut: false,
	XorOut: 0x00,
	Check:  0xF7,
	Name:   "CRC-8/NRSC-5",
})

// CRC8 returns the Sensirion checksum of b. Every 16-bit word on the bus is
// followed by the CRC8 of its two bytes.
func CRC8(b []byte) byte {
	return crc8.Checksum(b, crcTable)
}
