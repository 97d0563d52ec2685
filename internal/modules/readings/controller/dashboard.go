package controller

import (
	"log/slog"
	"net/http"

	"rpi-weatherstation/internal/modules/readings/views"
	"rpi-weatherstation/internal/readings"
	"rpi-weatherstation/internal/utils"
)

type currentResponse struct {
	BME280   *readings.BME280Reading   `json:"bme"`
	VEML7700 *readings.VEML7700Reading `json:"veml"`
	SGP40    *readings.SGP40Reading    `json:"sgp"`
}

func (c *readingsControllerImpl) current() currentResponse {
	var out currentResponse
	if v := c.station.LatestBME280(); v != nil {
		r := roundBME280(*v)
		out.BME280 = &r
	}
	if v := c.station.LatestVEML7700(); v != nil {
		r := roundVEML7700(*v)
		out.VEML7700 = &r
	}
	if v := c.station.LatestSGP40(); v != nil {
		r := roundSGP40(*v)
		out.SGP40 = &r
	}
	return out
}

// handleCurrent returns every device's latest reading in one response.
func (c *readingsControllerImpl) handleCurrent(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, c.current())
}

func (c *readingsControllerImpl) dashboardData() *views.DashboardData {
	cur := c.current()
	enabled := make(map[string]bool, len(readings.Devices))
	for _, d := range readings.Devices {
		enabled[string(d)] = c.station.Enabled(d)
	}
	return &views.DashboardData{
		StationID: c.stationID,
		Updated:   c.now(),
		BME280:    cur.BME280,
		VEML7700:  cur.VEML7700,
		SGP40:     cur.SGP40,
		Enabled:   enabled,
	}
}

func (c *readingsControllerImpl) handleDashboard(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := views.RenderDashboard(w, c.dashboardData()); err != nil {
		slog.Error("render dashboard", "error", err)
		http.Error(w, "failed to render dashboard", http.StatusInternalServerError)
	}
}

func (c *readingsControllerImpl) handleCurrentPartial(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := views.RenderCurrentPartial(w, c.dashboardData()); err != nil {
		slog.Error("render current partial", "error", err)
		http.Error(w, "failed to render readings", http.StatusInternalServerError)
	}
}
