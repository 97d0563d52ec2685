package bme280

import (
	"rpi-weatherstation/internal/sensors"
)

// RegisterReader reads a single 8-bit register.
type RegisterReader interface {
	ReadRegister(reg byte) (byte, error)
}

// RegisterReaderFunc adapts a function to RegisterReader.
type RegisterReaderFunc func(reg byte) (byte, error)

func (f RegisterReaderFunc) ReadRegister(reg byte) (byte, error) {
	return f(reg)
}

// RegisterMap serves reads from a fixed set of register values. Missing
// registers read as zero.
type RegisterMap map[byte]byte

func (m RegisterMap) ReadRegister(reg byte) (byte, error) {
	return m[reg], nil
}

// TrimmingParameters is the factory calibration of one sensor. It is read
// once when the device is opened and never changes afterwards.
type TrimmingParameters struct {
	T1 uint16
	T2 int16
	T3 int16

	P1 uint16
	P2 int16
	P3 int16
	P4 int16
	P5 int16
	P6 int16
	P7 int16
	P8 int16
	P9 int16

	H1 uint8
	H2 int16
	H3 uint8
	H4 int16
	H5 int16
	H6 int8

	// E5 and E6 are the raw bytes H4 and H5 are unpacked from.
	E5 uint8
	E6 uint8
}

// registerDecoder reads registers until the first failure; later reads are
// skipped and the first error is kept.
type registerDecoder struct {
	r   RegisterReader
	err error
}

func (d *registerDecoder) u8(reg byte) uint8 {
	if d.err != nil {
		return 0
	}
	v, err := d.r.ReadRegister(reg)
	if err != nil {
		d.err = err
		return 0
	}
	return v
}

func (d *registerDecoder) s8(reg byte) int8 {
	return int8(d.u8(reg))
}

// u16 combines the byte at reg (low) with the byte at reg+1 (high).
func (d *registerDecoder) u16(reg byte) uint16 {
	lo := d.u8(reg)
	hi := d.u8(reg + 1)
	return uint16(hi)<<8 | uint16(lo)
}

func (d *registerDecoder) s16(reg byte) int16 {
	return int16(d.u16(reg))
}

// DecodeTrimming reads and decodes the calibration registers through r.
// Either every register is read or an *sensors.IOError is returned together
// with the zero value.
func DecodeTrimming(r RegisterReader) (TrimmingParameters, error) {
	d := &registerDecoder{r: r}

	e4 := d.s8(regDigH4)
	e5 := d.u8(regDigH5)
	e6 := d.s8(regE6)

	tp := TrimmingParameters{
		T1: d.u16(regDigT1),
		T2: d.s16(regDigT2),
		T3: d.s16(regDigT3),

		P1: d.u16(regDigP1),
		P2: d.s16(regDigP2),
		P3: d.s16(regDigP3),
		P4: d.s16(regDigP4),
		P5: d.s16(regDigP5),
		P6: d.s16(regDigP6),
		P7: d.s16(regDigP7),
		P8: d.s16(regDigP8),
		P9: d.s16(regDigP9),

		H1: d.u8(regDigH1),
		H2: d.s16(regDigH2),
		H3: d.u8(regDigH3),
		H4: UnpackH4(byte(e4), e5),
		H5: UnpackH5(byte(e6), e5),
		H6: d.s8(regDigH6),

		E5: e5,
		E6: byte(e6),
	}
	if d.err != nil {
		return TrimmingParameters{}, sensors.WrapIO("bme280", "read trimming parameters", d.err)
	}
	return tp, nil
}

// UnpackH4 combines register 0xE4 (signed, bits 11:4) with the low nibble of 0xE5.
func UnpackH4(e4, e5 byte) int16 {
	return int16(int8(e4))<<4 | int16(e5&0x0F)
}

// UnpackH5 combines register 0xE6 (signed, bits 11:4) with the high nibble of 0xE5.
func UnpackH5(e6, e5 byte) int16 {
	return int16(int8(e6))<<4 | int16(e5>>4)
}

// Registers encodes tp back into the register bytes DecodeTrimming reads.
func (tp TrimmingParameters) Registers() RegisterMap {
	m := RegisterMap{}
	putU16 := func(reg byte, v uint16) {
		m[reg] = byte(v)
		m[reg+1] = byte(v >> 8)
	}
	putU16(regDigT1, tp.T1)
	putU16(regDigT2, uint16(tp.T2))
	putU16(regDigT3, uint16(tp.T3))
	putU16(regDigP1, tp.P1)
	putU16(regDigP2, uint16(tp.P2))
	putU16(regDigP3, uint16(tp.P3))
	putU16(regDigP4, uint16(tp.P4))
	putU16(regDigP5, uint16(tp.P5))
	putU16(regDigP6, uint16(tp.P6))
	putU16(regDigP7, uint16(tp.P7))
	putU16(regDigP8, uint16(tp.P8))
	putU16(regDigP9, uint16(tp.P9))
	m[regDigH1] = tp.H1
	putU16(regDigH2, uint16(tp.H2))
	m[regDigH3] = tp.H3
	m[regDigH4] = byte(tp.H4 >> 4)
	m[regDigH5] = byte(tp.H5&0x0F)<<4 | byte(tp.H4&0x0F)
	m[regE6] = byte(tp.H5 >> 4)
	m[regDigH6] = byte(tp.H6)
	return m
}

// ReferenceTrimming is a complete calibration set used by the simulated bus
// and by the tests: the temperature and pressure words published in the
// Bosch datasheet example plus typical humidity words.
var ReferenceTrimming = TrimmingParameters{
	T1: 27504, T2: 26435, T3: -1000,
	P1: 36477, P2: -10685, P3: 3024, P4: 2855, P5: 140, P6: -7, P7: 15500, P8: -14600, P9: 6000,
	H1: 75, H2: 362, H3: 0, H4: 313, H5: 50, H6: 30,
	E5: 0x29, E6: 0x03,
}
