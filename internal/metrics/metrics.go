// Package metrics exposes the latest readings as Prometheus gauges.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rpi-weatherstation/internal/readings"
)

var labels = []string{"station", "address"}

func newGauge(name string, help string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "weather",
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

// Metrics owns a private registry so tests and multiple stations in one
// process do not collide. It satisfies sampler.Sink.
type Metrics struct {
	registry  *prometheus.Registry
	stationID string

	temperature *prometheus.GaugeVec
	pressure    *prometheus.GaugeVec
	humidity    *prometheus.GaugeVec
	lux         *prometheus.GaugeVec
	als         *prometheus.GaugeVec
	saturated   *prometheus.GaugeVec
	sraw        *prometheus.GaugeVec
	vocIndex    *prometheus.GaugeVec
	samples     *prometheus.CounterVec
}

func New(stationID string) *Metrics {
	m := &Metrics{
		registry:    prometheus.NewRegistry(),
		stationID:   stationID,
		temperature: newGauge("temperature_celsius", "Air temperature (units: degrees Celsius)"),
		pressure:    newGauge("pressure_hpa", "Atmospheric pressure (units: hPa)"),
		humidity:    newGauge("humidity_percent", "Relative humidity (units: %)"),
		lux:         newGauge("light_lux", "Ambient light (units: lux)"),
		als:         newGauge("light_als_counts", "Raw ambient light channel"),
		saturated:   newGauge("light_saturated", "1 if the last light reading was saturated"),
		sraw:        newGauge("voc_sraw", "Raw VOC signal (units: ticks)"),
		vocIndex:    newGauge("voc_index", "VOC index (1 to 500, 100 is the running average)"),
		samples: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "weather",
				Name:      "samples_total",
				Help:      "Readings delivered by the sampler",
			},
			[]string{"station", "device"},
		),
	}
	m.registry.MustRegister(
		m.temperature, m.pressure, m.humidity,
		m.lux, m.als, m.saturated,
		m.sraw, m.vocIndex,
		m.samples,
		collectors.NewBuildInfoCollector(),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the text or OpenMetrics format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		Registry:          m.registry,
	})
}

func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

func (m *Metrics) WriteBME280(_ context.Context, r readings.BME280Reading) error {
	m.temperature.WithLabelValues(m.stationID, r.Address).Set(r.TemperatureC)
	m.pressure.WithLabelValues(m.stationID, r.Address).Set(r.PressureHPa)
	m.humidity.WithLabelValues(m.stationID, r.Address).Set(r.HumidityPct)
	m.samples.WithLabelValues(m.stationID, string(readings.BME280)).Inc()
	return nil
}

func (m *Metrics) WriteVEML7700(_ context.Context, r readings.VEML7700Reading) error {
	m.lux.WithLabelValues(m.stationID, r.Address).Set(r.Lux)
	m.als.WithLabelValues(m.stationID, r.Address).Set(float64(r.ALS))
	sat := 0.0
	if r.Saturated {
		sat = 1
	}
	m.saturated.WithLabelValues(m.stationID, r.Address).Set(sat)
	m.samples.WithLabelValues(m.stationID, string(readings.VEML7700)).Inc()
	return nil
}

func (m *Metrics) WriteSGP40(_ context.Context, r readings.SGP40Reading) error {
	m.sraw.WithLabelValues(m.stationID, r.Address).Set(float64(r.SRAW))
	if r.VOCIndex != nil {
		m.vocIndex.WithLabelValues(m.stationID, r.Address).Set(float64(*r.VOCIndex))
	}
	m.samples.WithLabelValues(m.stationID, string(readings.SGP40)).Inc()
	return nil
}
