package controller

import (
	"net/http"
	"time"

	"rpi-weatherstation/internal/modules/readings/repository"
	"rpi-weatherstation/internal/readings"
)

// Station is the live side of the API: the sampler's latest readings and
// device switches.
type Station interface {
	LatestBME280() *readings.BME280Reading
	LatestVEML7700() *readings.VEML7700Reading
	LatestSGP40() *readings.SGP40Reading
	Enabled(d readings.Device) bool
	Enable(d readings.Device) error
	Disable(d readings.Device)
}

type ReadingsController interface {
	RegisterRoutes(mux *http.ServeMux)
}

type readingsControllerImpl struct {
	repository repository.ReadingsRepository
	station    Station
	stationID  string
	now        func() time.Time
}

func NewReadingsController(repo repository.ReadingsRepository, station Station, stationID string) ReadingsController {
	return &readingsControllerImpl{repository: repo, station: station, stationID: stationID, now: time.Now}
}

func (c *readingsControllerImpl) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", c.handleHealth)
	mux.HandleFunc("GET /api/status", c.handleStatus)
	mux.HandleFunc("GET /api/{device}/latest", c.handleLatest)
	mux.HandleFunc("GET /api/{device}/readings", c.handleReadings)
	mux.HandleFunc("PUT /api/{device}/{state}", c.handleSwitch)
	mux.HandleFunc("GET /api/db/sizes", c.handleSizes)
	mux.HandleFunc("GET /api/current", c.handleCurrent)
	mux.HandleFunc("GET /{$}", c.handleDashboard)
	mux.HandleFunc("GET /partials/current", c.handleCurrentPartial)
}
