package mqtt

import (
	"fmt"
	"time"
)

// Telemetry is the BME280 message. Subscribers that already consume
// station telemetry can read it unchanged.
type Telemetry struct {
	StationID   string    `json:"station_id"`
	Timestamp   time.Time `json:"timestamp"`
	Temperature *float64  `json:"temperature_c,omitempty"`
	Humidity    *float64  `json:"humidity_pct,omitempty"`
	Pressure    *float64  `json:"pressure_hpa,omitempty"`
	Sequence    *int      `json:"sequence,omitempty"`
}

type Light struct {
	StationID         string    `json:"station_id"`
	Timestamp         time.Time `json:"timestamp"`
	Lux               float64   `json:"lux"`
	ALS               uint16    `json:"als"`
	White             uint16    `json:"white"`
	Gain              float64   `json:"gain"`
	IntegrationTimeMS int64     `json:"integration_time_ms"`
	Saturated         bool      `json:"saturated"`
}

type AirQuality struct {
	StationID    string    `json:"station_id"`
	Timestamp    time.Time `json:"timestamp"`
	SRAW         uint16    `json:"sraw"`
	VOCIndex     *int      `json:"voc_index,omitempty"`
	Label        string    `json:"voc_label,omitempty"`
	Rating       string    `json:"voc_rating,omitempty"`
	TemperatureC float64   `json:"temperature_c"`
	HumidityPct  float64   `json:"humidity_pct"`
}

type StationHealth struct {
	StationID string    `json:"station_id"`
	LastSeen  time.Time `json:"last_seen"`
	Healthy   bool      `json:"healthy"`
}

func telemetryTopic(stationID string) string  { return fmt.Sprintf("stations/%s/telemetry", stationID) }
func lightTopic(stationID string) string      { return fmt.Sprintf("stations/%s/light", stationID) }
func airQualityTopic(stationID string) string { return fmt.Sprintf("stations/%s/voc", stationID) }
func healthTopic(stationID string) string     { return fmt.Sprintf("stations/%s/health", stationID) }
