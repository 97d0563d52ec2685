package controller

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"rpi-weatherstation/internal/readings"
	"rpi-weatherstation/internal/sampler"
	"rpi-weatherstation/internal/utils"
)

type healthResponse struct {
	Status string    `json:"status"`
	Time   time.Time `json:"time"`
}

type statusResponse struct {
	healthResponse
	Devices map[readings.Device]bool `json:"devices"`
}

func (c *readingsControllerImpl) health() healthResponse {
	return healthResponse{Status: "ok", Time: readings.Stamp(c.now())}
}

func (c *readingsControllerImpl) handleHealth(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, c.health())
}

func (c *readingsControllerImpl) handleStatus(w http.ResponseWriter, r *http.Request) {
	devices := make(map[readings.Device]bool, len(readings.Devices))
	for _, d := range readings.Devices {
		devices[d] = c.station.Enabled(d)
	}
	utils.WriteJSON(w, http.StatusOK, statusResponse{healthResponse: c.health(), Devices: devices})
}

func deviceFromPath(w http.ResponseWriter, r *http.Request) (readings.Device, bool) {
	d, err := readings.ParseDevice(r.PathValue("device"))
	if err != nil {
		utils.WriteError(w, http.StatusNotFound, err.Error())
		return "", false
	}
	return d, true
}

// handleLatest answers null until the device has produced a reading.
func (c *readingsControllerImpl) handleLatest(w http.ResponseWriter, r *http.Request) {
	d, ok := deviceFromPath(w, r)
	if !ok {
		return
	}
	var body any
	switch d {
	case readings.BME280:
		if v := c.station.LatestBME280(); v != nil {
			body = roundBME280(*v)
		}
	case readings.VEML7700:
		if v := c.station.LatestVEML7700(); v != nil {
			body = roundVEML7700(*v)
		}
	case readings.SGP40:
		if v := c.station.LatestSGP40(); v != nil {
			body = roundSGP40(*v)
		}
	}
	utils.WriteJSON(w, http.StatusOK, body)
}

func (c *readingsControllerImpl) handleReadings(w http.ResponseWriter, r *http.Request) {
	d, ok := deviceFromPath(w, r)
	if !ok {
		return
	}
	from, to, limit, err := parseReadingsQuery(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	var body any
	switch d {
	case readings.BME280:
		body, err = c.repository.GetBME280Readings(ctx, from, to, limit)
	case readings.VEML7700:
		body, err = c.repository.GetVEML7700Readings(ctx, from, to, limit)
	case readings.SGP40:
		body, err = c.repository.GetSGP40Readings(ctx, from, to, limit)
	}
	if err != nil {
		slog.Error("readings query failed", "device", d, "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load readings")
		return
	}
	utils.WriteJSON(w, http.StatusOK, body)
}

func (c *readingsControllerImpl) handleSwitch(w http.ResponseWriter, r *http.Request) {
	d, ok := deviceFromPath(w, r)
	if !ok {
		return
	}
	switch state := r.PathValue("state"); state {
	case "on":
		if err := c.station.Enable(d); err != nil {
			if errors.Is(err, sampler.ErrNoDevice) {
				utils.WriteError(w, http.StatusConflict, err.Error())
				return
			}
			utils.WriteError(w, http.StatusInternalServerError, err.Error())
			return
		}
	case "off":
		c.station.Disable(d)
	default:
		utils.WriteError(w, http.StatusNotFound, "unknown state "+state+" (allowed: on, off)")
		return
	}
	slog.Info("device switched", "device", d, "state", r.PathValue("state"))
	utils.WriteJSON(w, http.StatusOK, c.health())
}

func (c *readingsControllerImpl) handleSizes(w http.ResponseWriter, r *http.Request) {
	sizes, err := c.repository.GetLatestSizeSnapshots(r.Context())
	if err != nil {
		slog.Error("size snapshot query failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load size snapshots")
		return
	}
	utils.WriteJSON(w, http.StatusOK, sizes)
}

func roundBME280(v readings.BME280Reading) readings.BME280Reading {
	v.TemperatureC = utils.Round2(v.TemperatureC)
	v.PressureHPa = utils.Round2(v.PressureHPa)
	v.HumidityPct = utils.Round2(v.HumidityPct)
	return v
}

func roundVEML7700(v readings.VEML7700Reading) readings.VEML7700Reading {
	v.Lux = utils.Round2(v.Lux)
	return v
}

func roundSGP40(v readings.SGP40Reading) readings.SGP40Reading {
	v.TemperatureC = utils.Round2(v.TemperatureC)
	v.HumidityPct = utils.Round2(v.HumidityPct)
	return v
}
