// Package sampler runs the station's acquisition loop. The BME280 and
// VEML7700 are read on capture ticks, every SampleEvery ticks. The SGP40 is
// read on every tick because its VOC algorithm expects a 1 Hz signal; it is
// compensated with the latest BME280 humidity and temperature and only
// handed to the sinks on capture ticks.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"rpi-weatherstation/internal/readings"
	"rpi-weatherstation/internal/sensors/bme280"
	"rpi-weatherstation/internal/sensors/sgp40"
	"rpi-weatherstation/internal/sensors/veml7700"
)

const (
	DefaultTick           = time.Second
	DefaultSampleEvery    = 60
	DefaultHousekeepEvery = time.Hour

	// Compensation used for the SGP40 until the BME280 produces a reading.
	DefaultHumidityPct  = 50.0
	DefaultTemperatureC = 25.0
)

// ErrNoDevice is returned by Enable for a device that is not attached.
var ErrNoDevice = errors.New("device not attached")

type BME280 interface {
	Read() (bme280.Reading, error)
	String() string
}

type VEML7700 interface {
	Read(ctx context.Context, autorange bool) (veml7700.Reading, error)
	String() string
}

type SGP40 interface {
	Read(ctx context.Context, rh, t float64) (sgp40.Sample, error)
	String() string
}

// Devices are the attached sensors. Any of them may be nil.
type Devices struct {
	BME280   BME280
	VEML7700 VEML7700
	SGP40    SGP40

	// Sources label stored and published readings.
	Sources map[readings.Device]readings.Source
}

// Sink receives captured readings.
type Sink interface {
	WriteBME280(ctx context.Context, r readings.BME280Reading) error
	WriteVEML7700(ctx context.Context, r readings.VEML7700Reading) error
	WriteSGP40(ctx context.Context, r readings.SGP40Reading) error
}

// Housekeeper trims and measures the reading store.
type Housekeeper interface {
	Purge(ctx context.Context, cutoff time.Time) (int64, error)
	SnapshotSizes(ctx context.Context, now time.Time) (bool, error)
}

type Options struct {
	Tick        time.Duration
	SampleEvery int

	// Retention is how long stored readings are kept. Zero keeps everything.
	Retention      time.Duration
	HousekeepEvery time.Duration

	// Autorange lets the VEML7700 adjust gain and integration time.
	Autorange bool

	Now func() time.Time
}

func (o *Options) withDefaults() Options {
	out := Options{}
	if o != nil {
		out = *o
	}
	if out.Tick <= 0 {
		out.Tick = DefaultTick
	}
	if out.SampleEvery <= 0 {
		out.SampleEvery = DefaultSampleEvery
	}
	if out.HousekeepEvery <= 0 {
		out.HousekeepEvery = DefaultHousekeepEvery
	}
	if out.Now == nil {
		out.Now = time.Now
	}
	return out
}

type Sampler struct {
	dev   Devices
	opts  Options
	sinks []Sink
	hk    Housekeeper
	log   *slog.Logger

	mu         sync.RWMutex
	enabled    map[readings.Device]bool
	latestBME  *readings.BME280Reading
	latestVEML *readings.VEML7700Reading
	latestSGP  *readings.SGP40Reading

	counter       int
	lastHousekeep time.Time
}

// New returns a sampler with every attached device enabled. hk may be nil.
func New(dev Devices, sinks []Sink, hk Housekeeper, log *slog.Logger, opts *Options) *Sampler {
	if log == nil {
		log = slog.Default()
	}
	o := opts.withDefaults()
	s := &Sampler{
		dev:     dev,
		opts:    o,
		sinks:   sinks,
		hk:      hk,
		log:     log.With("component", "sampler"),
		enabled: map[readings.Device]bool{},
		// The first tick is a capture tick.
		counter: o.SampleEvery - 1,
	}
	for _, d := range readings.Devices {
		s.enabled[d] = s.attached(d)
	}
	return s
}

func (s *Sampler) attached(d readings.Device) bool {
	switch d {
	case readings.BME280:
		return s.dev.BME280 != nil
	case readings.VEML7700:
		return s.dev.VEML7700 != nil
	case readings.SGP40:
		return s.dev.SGP40 != nil
	}
	return false
}

// Run ticks until ctx is done.
func (s *Sampler) Run(ctx context.Context) error {
	s.log.Info("sampler started", "tick", s.opts.Tick, "sample_every", s.opts.SampleEvery)
	t := time.NewTicker(s.opts.Tick)
	defer t.Stop()
	for {
		s.Step(ctx)
		select {
		case <-ctx.Done():
			s.log.Info("sampler stopped")
			return nil
		case <-t.C:
		}
	}
}

// Step runs one tick and reports whether it was a capture tick.
func (s *Sampler) Step(ctx context.Context) bool {
	s.counter++
	capture := s.counter >= s.opts.SampleEvery
	if capture {
		s.counter = 0
		s.housekeep(ctx)
		if s.Enabled(readings.BME280) {
			s.sampleBME280(ctx)
		}
		if s.Enabled(readings.VEML7700) {
			s.sampleVEML7700(ctx)
		}
	}
	if s.Enabled(readings.SGP40) {
		s.sampleSGP40(ctx, capture)
	}
	return capture
}

func (s *Sampler) now() time.Time {
	return readings.Stamp(s.opts.Now())
}

func (s *Sampler) sampleBME280(ctx context.Context) {
	r, err := s.dev.BME280.Read()
	if err != nil {
		s.log.Warn("bme280 read failed", "device", s.dev.BME280.String(), "err", err)
		return
	}
	rec := readings.BME280Reading{Time: s.now(), Reading: r, Source: s.dev.Sources[readings.BME280]}
	s.mu.Lock()
	if s.enabled[readings.BME280] {
		s.latestBME = &rec
	}
	s.mu.Unlock()
	s.fanOut(ctx, "bme280", func(k Sink) error { return k.WriteBME280(ctx, rec) })
}

func (s *Sampler) sampleVEML7700(ctx context.Context) {
	r, err := s.dev.VEML7700.Read(ctx, s.opts.Autorange)
	if err != nil {
		s.log.Warn("veml7700 read failed", "device", s.dev.VEML7700.String(), "err", err)
		return
	}
	rec := readings.VEML7700Reading{Time: s.now(), Reading: r, Source: s.dev.Sources[readings.VEML7700]}
	s.mu.Lock()
	if s.enabled[readings.VEML7700] {
		s.latestVEML = &rec
	}
	s.mu.Unlock()
	s.fanOut(ctx, "veml7700", func(k Sink) error { return k.WriteVEML7700(ctx, rec) })
}

func (s *Sampler) sampleSGP40(ctx context.Context, capture bool) {
	rh, t := DefaultHumidityPct, DefaultTemperatureC
	if b := s.LatestBME280(); b != nil {
		rh, t = b.HumidityPct, b.TemperatureC
	}
	sample, err := s.dev.SGP40.Read(ctx, rh, t)
	if err != nil {
		s.log.Warn("sgp40 read failed", "device", s.dev.SGP40.String(), "err", err)
		return
	}
	rec := readings.SGP40Reading{
		Time:         s.now(),
		Sample:       sample,
		TemperatureC: t,
		HumidityPct:  rh,
		Source:       s.dev.Sources[readings.SGP40],
	}
	s.mu.Lock()
	if s.enabled[readings.SGP40] {
		s.latestSGP = &rec
	}
	s.mu.Unlock()
	if capture {
		s.fanOut(ctx, "sgp40", func(k Sink) error { return k.WriteSGP40(ctx, rec) })
	}
}

func (s *Sampler) fanOut(ctx context.Context, device string, write func(Sink) error) {
	for _, k := range s.sinks {
		if err := write(k); err != nil && ctx.Err() == nil {
			s.log.Warn("sink write failed", "device", device, "sink", fmt.Sprintf("%T", k), "err", err)
		}
	}
}

func (s *Sampler) housekeep(ctx context.Context) {
	if s.hk == nil {
		return
	}
	now := s.opts.Now().UTC()
	if !s.lastHousekeep.IsZero() && now.Sub(s.lastHousekeep) < s.opts.HousekeepEvery {
		return
	}
	s.lastHousekeep = now

	if s.opts.Retention > 0 {
		n, err := s.hk.Purge(ctx, now.Add(-s.opts.Retention))
		if err != nil {
			s.log.Warn("purge failed", "err", err)
		} else if n > 0 {
			s.log.Info("purged old readings", "rows", n, "retention", s.opts.Retention)
		}
	}
	if taken, err := s.hk.SnapshotSizes(ctx, now); err != nil {
		s.log.Warn("size snapshot failed", "err", err)
	} else if taken {
		s.log.Info("recorded database size snapshot")
	}
}

// Enabled reports whether d is sampled.
func (s *Sampler) Enabled(d readings.Device) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enabled[d]
}

// Enable resumes sampling d. It fails with ErrNoDevice when d is not attached.
func (s *Sampler) Enable(d readings.Device) error {
	if !s.attached(d) {
		return fmt.Errorf("enable %s: %w", d, ErrNoDevice)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled[d] = true
	return nil
}

// Disable stops sampling d and forgets its latest reading.
func (s *Sampler) Disable(d readings.Device) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled[d] = false
	switch d {
	case readings.BME280:
		s.latestBME = nil
	case readings.VEML7700:
		s.latestVEML = nil
	case readings.SGP40:
		s.latestSGP = nil
	}
}

func (s *Sampler) LatestBME280() *readings.BME280Reading {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latestBME == nil {
		return nil
	}
	r := *s.latestBME
	return &r
}

func (s *Sampler) LatestVEML7700() *readings.VEML7700Reading {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latestVEML == nil {
		return nil
	}
	r := *s.latestVEML
	return &r
}

func (s *Sampler) LatestSGP40() *readings.SGP40Reading {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latestSGP == nil {
		return nil
	}
	r := *s.latestSGP
	return &r
}
