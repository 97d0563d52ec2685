package bme280

import (
	"rpi-weatherstation/internal/inversion"
)

const (
	adc20Max = 1<<20 - 1
	adc16Max = 1<<16 - 1

	fixtureIterations = 100
	fixtureTolerance  = 0.01
)

// Fixture is a raw sample that compensates to (approximately) chosen
// physical values under a given calibration.
type Fixture struct {
	ADCT  int32     `json:"adc_t"`
	ADCP  int32     `json:"adc_p"`
	ADCH  int32     `json:"adc_h"`
	Block RawSample `json:"block"`

	Reading Reading `json:"reading"`
}

// MakeFixture searches the ADC ranges for the counts that produce the target
// temperature, pressure and humidity. The temperature count is fixed first
// since the other two stages depend on its t_fine.
func MakeFixture(tp TrimmingParameters, temperatureC, pressureHPa, humidityPct float64) Fixture {
	adcT := inversion.Search(func(x int64) float64 {
		_, t := CompensateTemperature(tp, int32(x))
		return t
	}, temperatureC, 0, adc20Max, fixtureIterations, fixtureTolerance)

	tFine, _ := CompensateTemperature(tp, int32(adcT))

	adcP := inversion.Search(func(x int64) float64 {
		return CompensatePressure(tp, tFine, int32(x))
	}, pressureHPa, 0, adc20Max, fixtureIterations, fixtureTolerance)

	adcH := inversion.Search(func(x int64) float64 {
		return CompensateHumidity(tp, tFine, int32(x))
	}, humidityPct, 0, adc16Max, fixtureIterations, fixtureTolerance)

	block := EncodeRawSample(int32(adcP), int32(adcT), int32(adcH))
	return Fixture{
		ADCT:    int32(adcT),
		ADCP:    int32(adcP),
		ADCH:    int32(adcH),
		Block:   block,
		Reading: Compensate(tp, block),
	}
}
