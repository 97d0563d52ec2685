package sampler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"rpi-weatherstation/internal/i2cbus"
	"rpi-weatherstation/internal/readings"
	"rpi-weatherstation/internal/sensors/bme280"
	"rpi-weatherstation/internal/sensors/sgp40"
	"rpi-weatherstation/internal/sensors/veml7700"
	"rpi-weatherstation/internal/sensors/voc"
)

var garden = i2cbus.Conditions{TemperatureC: 14, PressureHPa: 1021, HumidityPct: 72, Lux: 800, SRAW: 31000}

type recordingSink struct {
	mu   sync.Mutex
	bme  []readings.BME280Reading
	veml []readings.VEML7700Reading
	sgp  []readings.SGP40Reading
	err  error
}

func (r *recordingSink) WriteBME280(_ context.Context, v readings.BME280Reading) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bme = append(r.bme, v)
	return r.err
}

func (r *recordingSink) WriteVEML7700(_ context.Context, v readings.VEML7700Reading) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.veml = append(r.veml, v)
	return r.err
}

func (r *recordingSink) WriteSGP40(_ context.Context, v readings.SGP40Reading) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sgp = append(r.sgp, v)
	return r.err
}

type fakeHousekeeper struct {
	purges    []time.Time
	snapshots int
}

func (f *fakeHousekeeper) Purge(_ context.Context, cutoff time.Time) (int64, error) {
	f.purges = append(f.purges, cutoff)
	return 3, nil
}

func (f *fakeHousekeeper) SnapshotSizes(context.Context, time.Time) (bool, error) {
	f.snapshots++
	return true, nil
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

type station struct {
	bus *i2cbus.SimBus
	dev Devices
	sgp *i2cbus.SimSGP40
}

func newStation(t *testing.T, cond i2cbus.Conditions) station {
	t.Helper()
	bus := i2cbus.NewSimBus()
	bus.Attach(bme280.Address, i2cbus.NewSimBME280(bme280.ReferenceTrimming, func() bme280.Reading {
		return bme280.Reading{TemperatureC: cond.TemperatureC, PressureHPa: cond.PressureHPa, HumidityPct: cond.HumidityPct}
	}))
	bus.Attach(veml7700.Address, i2cbus.NewSimVEML7700(func() float64 { return cond.Lux }))
	simSGP := i2cbus.NewSimSGP40(func() uint16 { return cond.SRAW })
	bus.Attach(sgp40.Address, simSGP)

	b, err := bme280.NewI2C(bus, bme280.Address, &bme280.Opts{})
	if err != nil {
		t.Fatalf("bme280: %v", err)
	}
	v, err := veml7700.NewI2C(context.Background(), bus, veml7700.Address, &veml7700.Opts{
		Gain: 0.25, IntegrationTime: 100 * time.Millisecond, NoSettle: true,
	})
	if err != nil {
		t.Fatalf("veml7700: %v", err)
	}
	g := sgp40.New(bus, sgp40.Address, voc.NewBaseline(voc.DefaultAlpha, voc.DefaultScale), &sgp40.Opts{MeasureDelay: time.Millisecond})
	return station{
		bus: bus,
		dev: Devices{
			BME280: b, VEML7700: v, SGP40: g,
			Sources: map[readings.Device]readings.Source{
				readings.BME280: readings.NewSource("sim", bme280.Address),
			},
		},
		sgp: simSGP,
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStep_captureSchedule(t *testing.T) {
	st := newStation(t, garden)
	sink := &recordingSink{}
	s := New(st.dev, []Sink{sink}, nil, quietLogger(), &Options{SampleEvery: 3})

	var captures []bool
	for range 7 {
		captures = append(captures, s.Step(context.Background()))
	}
	want := []bool{true, false, false, true, false, false, true}
	for i := range want {
		if captures[i] != want[i] {
			t.Fatalf("capture ticks = %v; want %v", captures, want)
		}
	}
	if len(sink.bme) != 3 || len(sink.veml) != 3 || len(sink.sgp) != 3 {
		t.Errorf("sink got %d bme, %d veml, %d sgp; want 3 each", len(sink.bme), len(sink.veml), len(sink.sgp))
	}
	if _, _, n := st.sgp.LastCompensation(); n != 7 {
		t.Errorf("sgp40 measured %d times; want every tick (7)", n)
	}
	if got := sink.bme[0].Source; got.Address != "0x76" || got.Bus != "sim" {
		t.Errorf("bme source = %+v", got)
	}
}

func TestStep_sgp40Compensation(t *testing.T) {
	st := newStation(t, garden)
	st.dev.BME280 = nil
	s := New(st.dev, nil, nil, quietLogger(), &Options{SampleEvery: 2})

	s.Step(context.Background())
	rh, temp, _ := st.sgp.LastCompensation()
	if math.Abs(rh-DefaultHumidityPct) > 0.01 || math.Abs(temp-DefaultTemperatureC) > 0.01 {
		t.Errorf("compensation without a bme280 reading = %v, %v; want defaults", rh, temp)
	}

	st = newStation(t, garden)
	s = New(st.dev, nil, nil, quietLogger(), &Options{SampleEvery: 2})
	s.Step(context.Background())
	rh, temp, _ = st.sgp.LastCompensation()
	if math.Abs(rh-garden.HumidityPct) > 3 || math.Abs(temp-garden.TemperatureC) > 0.2 {
		t.Errorf("compensation = %v, %v; want the latest bme280 reading", rh, temp)
	}
	latest := s.LatestSGP40()
	if latest == nil {
		t.Fatal("no latest sgp40 reading")
	}
	if latest.SRAW != garden.SRAW || latest.VOCIndex == nil || *latest.VOCIndex != 100 {
		t.Errorf("latest sgp40 = %+v", latest)
	}
}

func TestStep_readErrorsAreNotFatal(t *testing.T) {
	st := newStation(t, garden)
	sink := &recordingSink{err: errors.New("disk full")}
	s := New(st.dev, []Sink{sink}, nil, quietLogger(), &Options{SampleEvery: 1})

	st.bus.Fail(bme280.Address, errors.New("arbitration lost"))
	s.Step(context.Background())
	if s.LatestBME280() != nil {
		t.Error("latest bme280 set despite a failed read")
	}
	if s.LatestVEML7700() == nil || s.LatestSGP40() == nil {
		t.Error("a bme280 failure stopped the other devices")
	}

	st.bus.Fail(bme280.Address, nil)
	s.Step(context.Background())
	if s.LatestBME280() == nil {
		t.Error("bme280 did not recover")
	}
}

func TestEnableDisable(t *testing.T) {
	st := newStation(t, garden)
	st.dev.SGP40 = nil
	sink := &recordingSink{}
	s := New(st.dev, []Sink{sink}, nil, quietLogger(), &Options{SampleEvery: 1})

	if s.Enabled(readings.SGP40) {
		t.Error("missing sgp40 reported enabled")
	}
	if err := s.Enable(readings.SGP40); !errors.Is(err, ErrNoDevice) {
		t.Errorf("Enable(missing) = %v; want ErrNoDevice", err)
	}

	s.Step(context.Background())
	if s.LatestVEML7700() == nil {
		t.Fatal("no veml7700 reading")
	}
	s.Disable(readings.VEML7700)
	if s.LatestVEML7700() != nil {
		t.Error("Disable kept the latest reading")
	}
	s.Step(context.Background())
	if s.LatestVEML7700() != nil || len(sink.veml) != 1 {
		t.Errorf("disabled veml7700 was sampled: %d writes", len(sink.veml))
	}

	if err := s.Enable(readings.VEML7700); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	s.Step(context.Background())
	if s.LatestVEML7700() == nil || len(sink.veml) != 2 {
		t.Errorf("re-enabled veml7700 not sampled: %d writes", len(sink.veml))
	}
}

func TestLatest_returnsCopies(t *testing.T) {
	st := newStation(t, garden)
	s := New(st.dev, nil, nil, quietLogger(), &Options{SampleEvery: 1})
	s.Step(context.Background())

	a := s.LatestBME280()
	a.TemperatureC = -100
	if b := s.LatestBME280(); b.TemperatureC == -100 {
		t.Error("LatestBME280 returned shared state")
	}
}

func TestHousekeeping_hourly(t *testing.T) {
	st := newStation(t, garden)
	c := &clock{t: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	hk := &fakeHousekeeper{}
	s := New(st.dev, nil, hk, quietLogger(), &Options{SampleEvery: 1, Retention: 24 * time.Hour, Now: c.now})

	s.Step(context.Background())
	c.t = c.t.Add(30 * time.Minute)
	s.Step(context.Background())
	if len(hk.purges) != 1 || hk.snapshots != 1 {
		t.Fatalf("purges=%d snapshots=%d after 30 min; want 1 each", len(hk.purges), hk.snapshots)
	}
	if want := time.Date(2024, 2, 29, 10, 0, 0, 0, time.UTC); !hk.purges[0].Equal(want) {
		t.Errorf("cutoff = %v; want %v", hk.purges[0], want)
	}

	c.t = c.t.Add(31 * time.Minute)
	s.Step(context.Background())
	if len(hk.purges) != 2 || hk.snapshots != 2 {
		t.Errorf("purges=%d snapshots=%d after 61 min; want 2 each", len(hk.purges), hk.snapshots)
	}
}

func TestHousekeeping_noRetention(t *testing.T) {
	st := newStation(t, garden)
	hk := &fakeHousekeeper{}
	s := New(st.dev, nil, hk, quietLogger(), &Options{SampleEvery: 1})
	s.Step(context.Background())
	if len(hk.purges) != 0 {
		t.Error("purged with zero retention")
	}
	if hk.snapshots != 1 {
		t.Errorf("snapshots = %d; want 1", hk.snapshots)
	}
}

func TestRun_stopsOnCancel(t *testing.T) {
	st := newStation(t, garden)
	sink := &recordingSink{}
	s := New(st.dev, []Sink{sink}, nil, quietLogger(), &Options{Tick: 5 * time.Millisecond, SampleEvery: 1})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		sink.mu.Lock()
		n := len(sink.bme)
		sink.mu.Unlock()
		if n >= 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("sampler did not capture twice")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
