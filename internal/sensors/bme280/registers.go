package bme280

// Default I2C addresses. SDO low selects 0x76.
const (
	Address    uint16 = 0x76
	AddressAlt uint16 = 0x77
)

// ChipID is the value of regChipID on a BME280 (a BMP280 reports 0x58).
const ChipID byte = 0x60

// Calibration registers.
const (
	regDigT1 byte = 0x88
	regDigT2 byte = 0x8A
	regDigT3 byte = 0x8C

	regDigP1 byte = 0x8E
	regDigP2 byte = 0x90
	regDigP3 byte = 0x92
	regDigP4 byte = 0x94
	regDigP5 byte = 0x96
	regDigP6 byte = 0x98
	regDigP7 byte = 0x9A
	regDigP8 byte = 0x9C
	regDigP9 byte = 0x9E

	regDigH1 byte = 0xA1
	regDigH2 byte = 0xE1
	regDigH3 byte = 0xE3
	regDigH4 byte = 0xE4
	regDigH5 byte = 0xE5
	regE6    byte = 0xE6
	regDigH6 byte = 0xE7
)

// Calibration is stored in two disjoint register ranges.
const (
	calibTPStart byte = 0x88
	calibTPLen        = 26 // 0x88..0xA1
	calibHStart  byte = 0xE1
	calibHLen         = 7 // 0xE1..0xE7
)

// Control and data registers.
const (
	regChipID   byte = 0xD0
	regCtrlHum  byte = 0xF2
	regCtrlMeas byte = 0xF4
	regData     byte = 0xF7 // press_msb; the block runs to hum_lsb at 0xFE
)

const (
	// humidity oversampling x1
	ctrlHumX1 byte = 0x01
	// temperature x1, pressure x1, normal mode
	ctrlMeasNormal byte = 0x27
	// same oversampling, sleep mode
	ctrlMeasSleep byte = 0x24
)

// RawSampleLen is the size of the burst read starting at regData.
const RawSampleLen = 8
