// Package influx mirrors readings into an InfluxDB 2 bucket.
package influx

import (
	"context"
	"fmt"
	"log/slog"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"rpi-weatherstation/internal/config"
	"rpi-weatherstation/internal/readings"
)

// requestTimeout is in seconds.
const requestTimeout = 10

// Sink writes each reading as one point. It satisfies sampler.Sink.
type Sink struct {
	client    influxdb2.Client
	writer    api.WriteAPIBlocking
	stationID string
	logger    *slog.Logger
}

func NewSink(cfg config.Config, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	client := influxdb2.NewClientWithOptions(
		cfg.InfluxURL,
		cfg.InfluxToken,
		influxdb2.DefaultOptions().SetHTTPRequestTimeout(requestTimeout),
	)
	return &Sink{
		client:    client,
		writer:    client.WriteAPIBlocking(cfg.InfluxOrg, cfg.InfluxBucket),
		stationID: cfg.StationID,
		logger:    logger.With("component", "influx"),
	}
}

func (s *Sink) tags(src readings.Source) map[string]string {
	return map[string]string{
		"station": s.stationID,
		"bus":     src.Bus,
		"address": src.Address,
	}
}

func (s *Sink) bme280Point(r readings.BME280Reading) *write.Point {
	return influxdb2.NewPoint("bme280", s.tags(r.Source), map[string]any{
		"temperature_c": r.TemperatureC,
		"pressure_hpa":  r.PressureHPa,
		"humidity_pct":  r.HumidityPct,
	}, r.Time)
}

func (s *Sink) veml7700Point(r readings.VEML7700Reading) *write.Point {
	return influxdb2.NewPoint("veml7700", s.tags(r.Source), map[string]any{
		"lux":                 r.Lux,
		"als":                 int64(r.ALS),
		"white":               int64(r.White),
		"gain":                r.Gain,
		"integration_time_ms": r.IntegrationTimeMS,
		"saturated":           r.Saturated,
	}, r.Time)
}

func (s *Sink) sgp40Point(r readings.SGP40Reading) *write.Point {
	fields := map[string]any{
		"sraw":          int64(r.SRAW),
		"temperature_c": r.TemperatureC,
		"humidity_pct":  r.HumidityPct,
	}
	// The index is absent while the algorithm warms up.
	if r.VOCIndex != nil {
		fields["voc_index"] = int64(*r.VOCIndex)
		fields["voc_label"] = r.Label
		fields["voc_rating"] = r.Rating
	}
	return influxdb2.NewPoint("sgp40", s.tags(r.Source), fields, r.Time)
}

func (s *Sink) write(ctx context.Context, p *write.Point) error {
	if err := s.writer.WritePoint(ctx, p); err != nil {
		return fmt.Errorf("influx write %s: %w", p.Name(), err)
	}
	return nil
}

func (s *Sink) WriteBME280(ctx context.Context, r readings.BME280Reading) error {
	return s.write(ctx, s.bme280Point(r))
}

func (s *Sink) WriteVEML7700(ctx context.Context, r readings.VEML7700Reading) error {
	return s.write(ctx, s.veml7700Point(r))
}

func (s *Sink) WriteSGP40(ctx context.Context, r readings.SGP40Reading) error {
	return s.write(ctx, s.sgp40Point(r))
}

func (s *Sink) Close() {
	s.client.Close()
	s.logger.Info("influx client closed")
}
