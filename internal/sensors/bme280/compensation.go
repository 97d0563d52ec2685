package bme280

import (
	"fmt"

	"rpi-weatherstation/internal/sensors"
)

// Reading is one compensated measurement.
type Reading struct {
	TemperatureC float64 `json:"temperature_c"`
	PressureHPa  float64 `json:"pressure_hpa"`
	HumidityPct  float64 `json:"humidity_pct"`
}

func (r Reading) String() string {
	return fmt.Sprintf("%.2f°C %.2fhPa %.2f%%rH", r.TemperatureC, r.PressureHPa, r.HumidityPct)
}

// humidityMax is 100 %rH in the Q22.10 representation used before the final
// scaling.
const humidityMax = 419430400

// RawSample is the burst read of registers 0xF7..0xFE: pressure (3 bytes),
// temperature (3 bytes), humidity (2 bytes), all big-endian. The low nibble
// of each XLSB byte carries no data.
type RawSample [RawSampleLen]byte

// ParseRawSample copies the first RawSampleLen bytes of b.
func ParseRawSample(b []byte) (RawSample, error) {
	var s RawSample
	if len(b) < RawSampleLen {
		return s, sensors.WrapIO("bme280", "read data", fmt.Errorf("short read: got %d bytes, want %d", len(b), RawSampleLen))
	}
	copy(s[:], b)
	return s, nil
}

// ADC unpacks the 20-bit pressure and temperature counts and the 16-bit
// humidity count.
func (s RawSample) ADC() (adcP, adcT, adcH int32) {
	adcP = int32(s[0])<<12 | int32(s[1])<<4 | int32(s[2])>>4
	adcT = int32(s[3])<<12 | int32(s[4])<<4 | int32(s[5])>>4
	adcH = int32(s[6])<<8 | int32(s[7])
	return adcP, adcT, adcH
}

// EncodeRawSample lays out raw counts the way the sensor presents them.
func EncodeRawSample(adcP, adcT, adcH int32) RawSample {
	return RawSample{
		byte(adcP >> 12), byte(adcP >> 4), byte(adcP&0x0F) << 4,
		byte(adcT >> 12), byte(adcT >> 4), byte(adcT&0x0F) << 4,
		byte(adcH >> 8), byte(adcH),
	}
}

// Compensate converts one raw sample to physical units. Temperature is
// computed first because pressure and humidity both depend on t_fine.
func Compensate(tp TrimmingParameters, s RawSample) Reading {
	adcP, adcT, adcH := s.ADC()
	tFine, t := CompensateTemperature(tp, adcT)
	return Reading{
		TemperatureC: t,
		PressureHPa:  CompensatePressure(tp, tFine, adcP),
		HumidityPct:  CompensateHumidity(tp, tFine, adcH),
	}
}

// CompensateTemperature returns t_fine and the temperature in °C.
func CompensateTemperature(tp TrimmingParameters, adcT int32) (tFine int64, celsius float64) {
	t := int64(adcT)
	t1 := int64(tp.T1)
	t2 := int64(tp.T2)
	t3 := int64(tp.T3)

	var1 := (((t >> 3) - (t1 << 1)) * t2) >> 11
	d := (t >> 4) - t1
	var2 := (((d * d) >> 12) * t3) >> 14
	tFine = var1 + var2
	return tFine, float64((tFine*5+128)>>8) / 100.0
}

// CompensatePressure returns the pressure in hPa, or exactly 0 when the
// calibration makes the divisor vanish.
func CompensatePressure(tp TrimmingParameters, tFine int64, adcP int32) float64 {
	var1 := tFine - 128000
	var2 := var1 * var1 * int64(tp.P6)
	var2 += (var1 * int64(tp.P5)) << 17
	var2 += int64(tp.P4) << 35
	var1 = ((var1 * var1 * int64(tp.P3)) >> 8) + ((var1 * int64(tp.P2)) << 12)
	var1 = (((int64(1) << 47) + var1) * int64(tp.P1)) >> 33
	if var1 == 0 {
		return 0
	}

	p := 1048576 - int64(adcP)
	p = (((p << 31) - var2) * 3125) / var1
	var1 = (int64(tp.P9) * (p >> 13) * (p >> 13)) >> 25
	var2 = (int64(tp.P8) * p) >> 19
	p = ((p + var1 + var2) >> 8) + (int64(tp.P7) << 4)
	return float64(p) / 25600.0
}

// CompensateHumidity returns the relative humidity in %, always within [0, 100].
func CompensateHumidity(tp TrimmingParameters, tFine int64, adcH int32) float64 {
	h1 := int64(tp.H1)
	h2 := int64(tp.H2)
	h3 := int64(tp.H3)
	h4 := int64(tp.H4)
	h5 := int64(tp.H5)
	h6 := int64(tp.H6)

	v := tFine - 76800
	v = ((((int64(adcH) << 14) - (h4 << 20) - (h5 * v)) + 16384) >> 15) *
		(((((((v*h6)>>10)*(((v*h3)>>11)+32768))>>10)+2097152)*h2 + 8192) >> 14)
	v -= ((((v >> 15) * (v >> 15)) >> 7) * h1) >> 4
	v = min(max(v, 0), humidityMax)
	return float64(v>>12) / 1024.0
}
