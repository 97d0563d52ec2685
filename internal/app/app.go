package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"rpi-weatherstation/internal/beacon"
	"rpi-weatherstation/internal/config"
	"rpi-weatherstation/internal/db"
	"rpi-weatherstation/internal/httpapi"
	"rpi-weatherstation/internal/i2cbus"
	"rpi-weatherstation/internal/influx"
	"rpi-weatherstation/internal/metrics"
	"rpi-weatherstation/internal/migrate"
	readingsmodule "rpi-weatherstation/internal/modules/readings"
	"rpi-weatherstation/internal/modules/readings/repository"
	"rpi-weatherstation/internal/mqtt"
	"rpi-weatherstation/internal/sampler"
)

func Run(ctx context.Context, cfg config.Config) error {
	slog.Info("config loaded",
		"appEnv", cfg.AppEnv,
		"logLevel", cfg.LogLevel.String(),
		"httpAddr", cfg.HTTPAddr,
		"stationID", cfg.StationID,
		"i2cBus", cfg.I2CBus,
		"muxAddress", cfg.MuxAddress,
		"sampleEvery", cfg.SampleEvery,
		"samplerTick", cfg.SamplerTick,
		"retention", cfg.Retention,
		"sqliteDriver", cfg.SQLiteDriver,
		"sqlitePath", cfg.SQLitePath,
		"sqliteMaxOpenConns", cfg.SQLiteMaxOpenConns,
		"mqttEnabled", cfg.MQTTEnabled,
		"mqttBroker", cfg.MQTTBroker,
		"mqttPort", cfg.MQTTPort,
		"influxEnabled", cfg.InfluxEnabled(),
		"bleEnabled", cfg.BLEEnabled,
	)
	logger := slog.Default()

	dbConn, err := db.Open(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(dbConn); closeErr != nil {
			slog.Error("db close", "error", closeErr)
		}
	}()

	if _, err := migrate.Run(ctx, dbConn); err != nil {
		return err
	}

	var ok int
	if err := dbConn.QueryRowContext(ctx, `SELECT 1`).Scan(&ok); err != nil {
		return err
	}
	if ok != 1 {
		return errors.New("database connection failed")
	}
	slog.Info("database connection successful")

	bus, err := i2cbus.Open(cfg.I2CBus)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := bus.Close(); closeErr != nil {
			slog.Error("i2c close", "error", closeErr)
		}
	}()

	devices, err := OpenDevices(ctx, bus, cfg, logger)
	if err != nil {
		return err
	}

	repo := repository.NewRepository(dbConn)
	prom := metrics.New(cfg.StationID)
	sinks := []sampler.Sink{repository.Sink{Repo: repo}, prom}

	var mqttClient *mqtt.Client
	if cfg.MQTTEnabled {
		mqttClient, err = mqtt.NewClient(cfg, logger)
		if err != nil {
			return err
		}
		// A short connect timeout keeps startup from blocking when the
		// broker is down; the client keeps retrying in the background.
		connectCtx, connectCancel := context.WithTimeout(ctx, 5*time.Second)
		err = mqttClient.Connect(connectCtx)
		connectCancel()
		if err != nil {
			slog.Warn("mqtt connection failed (continuing without mqtt)", "error", err)
		}
		sinks = append(sinks, mqttClient)
	}

	if cfg.InfluxEnabled() {
		influxSink := influx.NewSink(cfg, logger)
		defer influxSink.Close()
		sinks = append(sinks, influxSink)
	}

	if cfg.BLEEnabled {
		adv, err := beacon.NewAdvertiser(cfg.BLEName, logger)
		if err != nil {
			slog.Warn("ble advertiser could not be initialized; station continues without BLE", "error", err)
		} else {
			defer func() { _ = adv.Close() }()
			sinks = append(sinks, adv)
		}
	}

	station := sampler.New(devices, sinks, repo, logger, &sampler.Options{
		Tick:        cfg.SamplerTick,
		SampleEvery: cfg.SampleEvery,
		Retention:   cfg.Retention,
		Autorange:   cfg.VEML7700Autorange,
	})

	mux := httpapi.NewMux(dbConn, prom.Handler())
	if err := readingsmodule.RegisterFeature(mux, dbConn, station, cfg.StationID); err != nil {
		return err
	}
	srv := httpapi.NewServer(cfg, mux)

	samplerCtx, stopSampler := context.WithCancel(ctx)
	defer stopSampler()
	samplerDone := make(chan struct{})
	go func() {
		defer close(samplerDone)
		if err := station.Run(samplerCtx); err != nil {
			slog.Error("sampler stopped", "error", err)
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http listening", "addr", cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	// Sinks and the database outlive the sampler.
	stopSampler()
	<-samplerDone

	if mqttClient != nil {
		slog.Info("mqtt disconnecting")
		mqttClient.Disconnect()
	}

	if serveErr != nil {
		if errors.Is(serveErr, http.ErrServerClosed) {
			return nil
		}
		return serveErr
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	slog.Info("http shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	err = <-errCh
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return ctx.Err()
}
