// Package readings holds the timestamped records the sampler produces and
// every sink, the repository and the HTTP API consume.
package readings

import (
	"fmt"
	"time"

	"rpi-weatherstation/internal/sensors/bme280"
	"rpi-weatherstation/internal/sensors/sgp40"
	"rpi-weatherstation/internal/sensors/veml7700"
)

// Device names a sensor. The values are the path segments used by the API.
type Device string

const (
	BME280   Device = "bme"
	VEML7700 Device = "veml"
	SGP40    Device = "sgp"
)

// Devices lists every sensor in sampling order.
var Devices = []Device{BME280, VEML7700, SGP40}

// ParseDevice accepts the API names.
func ParseDevice(s string) (Device, error) {
	for _, d := range Devices {
		if string(d) == s {
			return d, nil
		}
	}
	return "", fmt.Errorf("unknown device %q (allowed: bme, veml, sgp)", s)
}

// Table returns the SQL table that stores the device's readings.
func (d Device) Table() string {
	switch d {
	case BME280:
		return "bme280_readings"
	case VEML7700:
		return "veml7700_readings"
	case SGP40:
		return "sgp40_readings"
	}
	return ""
}

// Source identifies where a reading came from.
type Source struct {
	Bus     string `json:"bus"`
	Address string `json:"address"`
}

// NewSource formats addr the way it is stored.
func NewSource(bus string, addr uint16) Source {
	return Source{Bus: bus, Address: fmt.Sprintf("0x%02x", addr)}
}

// BME280Reading is one compensated temperature, pressure and humidity reading.
type BME280Reading struct {
	Time time.Time `json:"time_utc"`
	bme280.Reading
	Source
}

// VEML7700Reading is one light reading.
type VEML7700Reading struct {
	Time time.Time `json:"time_utc"`
	veml7700.Reading
	Source
}

// SGP40Reading is one VOC reading and the compensation values it was
// measured with.
type SGP40Reading struct {
	Time time.Time `json:"time_utc"`
	sgp40.Sample
	TemperatureC float64 `json:"temperature_c"`
	HumidityPct  float64 `json:"humidity_pct"`
	Source
}

// Stamp returns t in the form readings are stored and published with:
// UTC, whole seconds.
func Stamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}
