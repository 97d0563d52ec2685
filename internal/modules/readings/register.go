package readings

import (
	"database/sql"
	"net/http"

	"rpi-weatherstation/internal/modules/readings/controller"
	"rpi-weatherstation/internal/modules/readings/repository"
	"rpi-weatherstation/internal/modules/readings/views"
)

// RegisterFeature loads the dashboard templates and mounts the readings
// routes on mux.
func RegisterFeature(mux *http.ServeMux, db *sql.DB, station controller.Station, stationID string) error {
	if err := views.LoadTemplates(); err != nil {
		return err
	}
	readingsRepository := repository.NewRepository(db)
	readingsController := controller.NewReadingsController(readingsRepository, station, stationID)
	readingsController.RegisterRoutes(mux)
	return nil
}
