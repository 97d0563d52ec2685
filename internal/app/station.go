package app

import (
	"context"
	"fmt"
	"log/slog"

	"periph.io/x/conn/v3/i2c"

	"rpi-weatherstation/internal/config"
	"rpi-weatherstation/internal/i2cbus"
	"rpi-weatherstation/internal/readings"
	"rpi-weatherstation/internal/sampler"
	"rpi-weatherstation/internal/sensors/bme280"
	"rpi-weatherstation/internal/sensors/sgp40"
	"rpi-weatherstation/internal/sensors/voc"
	"rpi-weatherstation/internal/sensors/veml7700"
)

// OpenDevices opens every configured sensor on bus. A sensor that does not
// answer is left out with a warning; the station runs with what it has.
func OpenDevices(ctx context.Context, bus i2c.Bus, cfg config.Config, log *slog.Logger) (sampler.Devices, error) {
	dev := sampler.Devices{Sources: map[readings.Device]readings.Source{}}

	var mux *i2cbus.Mux
	if cfg.MuxAddress != 0 {
		mux = i2cbus.NewMux(bus, cfg.MuxAddress)
		log.Info("using i2c mux", "address", fmt.Sprintf("0x%02x", cfg.MuxAddress))
	}
	busName := cfg.I2CBus
	if busName == "" {
		busName = fmt.Sprint(bus)
	}

	route := func(name readings.Device, addr uint16, channel int) (i2c.Bus, bool, error) {
		b, err := i2cbus.Route(bus, mux, channel)
		if err != nil {
			return nil, false, fmt.Errorf("%s: %w", name, err)
		}
		if !i2cbus.Present(b, addr) {
			log.Warn("sensor not found", "device", name, "address", fmt.Sprintf("0x%02x", addr), "channel", channel)
			return nil, false, nil
		}
		dev.Sources[name] = readings.NewSource(busName, addr)
		return b, true, nil
	}

	if b, ok, err := route(readings.BME280, cfg.BME280Address, cfg.BME280Channel); err != nil {
		return dev, err
	} else if ok {
		d, err := bme280.NewI2C(b, cfg.BME280Address, &bme280.DefaultOpts)
		if err != nil {
			log.Warn("bme280 init failed", "error", err)
		} else {
			dev.BME280 = d
			log.Info("sensor ready", "device", d.String())
		}
	}

	if b, ok, err := route(readings.VEML7700, cfg.VEML7700Address, cfg.VEML7700Channel); err != nil {
		return dev, err
	} else if ok {
		d, err := veml7700.NewI2C(ctx, b, cfg.VEML7700Address, &veml7700.Opts{
			Gain:            cfg.VEML7700Gain,
			IntegrationTime: cfg.VEML7700IntegrationTime,
			NoSettle:        cfg.I2CBus == i2cbus.SimName,
		})
		if err != nil {
			log.Warn("veml7700 init failed", "error", err)
		} else {
			dev.VEML7700 = d
			log.Info("sensor ready", "device", d.String())
		}
	}

	if b, ok, err := route(readings.SGP40, cfg.SGP40Address, cfg.SGP40Channel); err != nil {
		return dev, err
	} else if ok {
		d := sgp40.New(b, cfg.SGP40Address, voc.NewBaseline(voc.DefaultAlpha, voc.DefaultScale), nil)
		dev.SGP40 = d
		log.Info("sensor ready", "device", d.String())
	}

	return dev, nil
}
