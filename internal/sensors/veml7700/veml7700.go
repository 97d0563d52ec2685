// Package veml7700 drives the Vishay VEML7700 ambient light sensor with
// optional auto-ranging of gain and integration time.
package veml7700

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"periph.io/x/conn/v3/i2c"

	"rpi-weatherstation/internal/sensors"
)

// Address is the fixed I2C address of the VEML7700.
const Address uint16 = 0x10

const (
	regALSConf  byte = 0x00
	regALSWH    byte = 0x01
	regALSWL    byte = 0x02
	regPSM      byte = 0x03
	regALS      byte = 0x04
	regWhite    byte = 0x05
	regDeviceID byte = 0x07
)

// Gains and IntegrationTimes are the supported settings, ordered from least
// to most sensitive.
var (
	Gains            = []float64{0.125, 0.25, 1, 2}
	IntegrationTimes = []time.Duration{
		25 * time.Millisecond,
		50 * time.Millisecond,
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
	}
)

var gainBits = map[float64]uint16{
	1:     0b00,
	2:     0b01,
	0.125: 0b10,
	0.25:  0b11,
}

var itBits = map[time.Duration]uint16{
	25 * time.Millisecond:  0b1100,
	50 * time.Millisecond:  0b1000,
	100 * time.Millisecond: 0b0000,
	200 * time.Millisecond: 0b0001,
	400 * time.Millisecond: 0b0010,
	800 * time.Millisecond: 0b0011,
}

const (
	baseGain       = 0.25
	baseIT         = 100 * time.Millisecond
	baseResolution = 0.2304 // lx per count at baseGain, baseIT

	// SaturationCount and LowCount are the ALS thresholds used by auto-ranging.
	SaturationCount = 65500
	LowCount        = 50
)

type setting struct {
	gain float64
	it   time.Duration
}

// resolutionTable overrides the scaled resolution where the datasheet gives
// an exact figure.
var resolutionTable = map[setting]float64{
	{baseGain, baseIT}:             baseResolution,
	{0.125, 25 * time.Millisecond}: 1.8432,
}

// Resolution returns the lux per count for a gain and integration time.
// Sensitivity is proportional to gain times integration time.
func Resolution(gain float64, it time.Duration) float64 {
	if r, ok := resolutionTable[setting{gain, it}]; ok {
		return r
	}
	itMS := float64(it.Milliseconds())
	return baseResolution * (baseGain * float64(baseIT.Milliseconds())) / (gain * itMS)
}

// ConfWord builds the ALS_CONF register value: gain in bits 12:11,
// integration time in bits 9:6, persistence 1, interrupt disabled, powered on.
// Unsupported values fall back to the base settings.
func ConfWord(gain float64, it time.Duration) uint16 {
	g, ok := gainBits[gain]
	if !ok {
		g = gainBits[baseGain]
	}
	t, ok := itBits[it]
	if !ok {
		t = itBits[baseIT]
	}
	return (g&0b11)<<11 | (t&0b1111)<<6
}

// ParseConfWord is the inverse of ConfWord. ok is false when the gain or
// integration time bits hold a reserved value.
func ParseConfWord(w uint16) (gain float64, it time.Duration, ok bool) {
	g := (w >> 11) & 0b11
	t := (w >> 6) & 0b1111
	gainOK, itOK := false, false
	for k, v := range gainBits {
		if v == g {
			gain, gainOK = k, true
		}
	}
	for k, v := range itBits {
		if v == t {
			it, itOK = k, true
		}
	}
	return gain, it, gainOK && itOK
}

// NearestGain snaps g to the closest supported gain.
func NearestGain(g float64) float64 {
	best := Gains[0]
	for _, v := range Gains[1:] {
		if math.Abs(v-g) < math.Abs(best-g) {
			best = v
		}
	}
	return best
}

// NearestIntegrationTime snaps it to the closest supported integration time.
func NearestIntegrationTime(it time.Duration) time.Duration {
	best := IntegrationTimes[0]
	for _, v := range IntegrationTimes[1:] {
		if (v - it).Abs() < (best - it).Abs() {
			best = v
		}
	}
	return best
}

// Reading is one light measurement and the settings it was taken with.
type Reading struct {
	ALS               uint16  `json:"als"`
	White             uint16  `json:"white"`
	Lux               float64 `json:"lux"`
	Saturated         bool    `json:"saturated"`
	Gain              float64 `json:"gain"`
	IntegrationTimeMS int64   `json:"integration_time_ms"`
}

// Opts configures a device.
type Opts struct {
	Gain            float64
	IntegrationTime time.Duration
	// NoSettle skips the wait of one integration period after each
	// configuration write. Only useful with simulated buses.
	NoSettle bool
}

// DefaultOpts is gain 1/4 and 100 ms, roughly 0 to 15 klx.
var DefaultOpts = Opts{Gain: baseGain, IntegrationTime: baseIT}

// Dev is an opened VEML7700.
type Dev struct {
	mu       sync.Mutex
	d        i2c.Dev
	gain     float64
	it       time.Duration
	noSettle bool
}

// NewI2C snaps the requested settings to supported values, writes the
// configuration, clears the thresholds and power saving mode, and waits one
// integration period.
func NewI2C(ctx context.Context, b i2c.Bus, addr uint16, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	d := &Dev{
		d:        i2c.Dev{Bus: b, Addr: addr},
		gain:     NearestGain(opts.Gain),
		it:       NearestIntegrationTime(opts.IntegrationTime),
		noSettle: opts.NoSettle,
	}
	if err := d.apply(ctx, true); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Dev) String() string {
	return fmt.Sprintf("VEML7700{%s, 0x%02x}", d.d.Bus, d.d.Addr)
}

// Settings returns the current gain and integration time.
func (d *Dev) Settings() (float64, time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gain, d.it
}

func (d *Dev) write16(reg byte, v uint16) error {
	return d.d.Tx([]byte{reg, byte(v), byte(v >> 8)}, nil)
}

func (d *Dev) read16(reg byte) (uint16, error) {
	var b [2]byte
	if err := d.d.Tx([]byte{reg}, b[:]); err != nil {
		return 0, err
	}
	return uint16(b[0]) | uint16(b[1])<<8, nil
}

func (d *Dev) apply(ctx context.Context, initial bool) error {
	if err := d.write16(regALSConf, ConfWord(d.gain, d.it)); err != nil {
		return sensors.WrapIO("veml7700", "write configuration", err)
	}
	if initial {
		for _, reg := range []byte{regALSWH, regALSWL, regPSM} {
			if err := d.write16(reg, 0); err != nil {
				return sensors.WrapIO("veml7700", "write configuration", err)
			}
		}
	}
	if d.noSettle {
		return nil
	}
	t := time.NewTimer(d.it)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ReadID returns the device id register (0xC481 on production parts).
func (d *Dev) ReadID() (uint16, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id, err := d.read16(regDeviceID)
	if err != nil {
		return 0, sensors.WrapIO("veml7700", "read id", err)
	}
	return id, nil
}

func (d *Dev) readCounts() (als, white uint16, err error) {
	if als, err = d.read16(regALS); err != nil {
		return 0, 0, sensors.WrapIO("veml7700", "read als", err)
	}
	if white, err = d.read16(regWhite); err != nil {
		return 0, 0, sensors.WrapIO("veml7700", "read white", err)
	}
	return als, white, nil
}

// Read takes one measurement. With autorange a saturated reading lowers the
// sensitivity (integration time first, then gain) and a reading below
// LowCount raises it (gain first, then integration time); after a change the
// counts are read again with the new settings.
func (d *Dev) Read(ctx context.Context, autorange bool) (Reading, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	als, white, err := d.readCounts()
	if err != nil {
		return Reading{}, err
	}

	if autorange {
		changed := false
		switch {
		case als >= SaturationCount:
			changed = d.decreaseSensitivity()
		case als < LowCount:
			changed = d.increaseSensitivity()
		}
		if changed {
			if err := d.apply(ctx, false); err != nil {
				return Reading{}, err
			}
			if als, white, err = d.readCounts(); err != nil {
				return Reading{}, err
			}
		}
	}

	return Reading{
		ALS:               als,
		White:             white,
		Lux:               float64(als) * Resolution(d.gain, d.it),
		Saturated:         als >= SaturationCount,
		Gain:              d.gain,
		IntegrationTimeMS: d.it.Milliseconds(),
	}, nil
}

func indexOf[T comparable](s []T, v T) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return -1
}

func (d *Dev) increaseSensitivity() bool {
	if gi := indexOf(Gains, d.gain); gi < len(Gains)-1 {
		d.gain = Gains[gi+1]
		return true
	}
	if ii := indexOf(IntegrationTimes, d.it); ii < len(IntegrationTimes)-1 {
		d.it = IntegrationTimes[ii+1]
		return true
	}
	return false
}

func (d *Dev) decreaseSensitivity() bool {
	if ii := indexOf(IntegrationTimes, d.it); ii > 0 {
		d.it = IntegrationTimes[ii-1]
		return true
	}
	if gi := indexOf(Gains, d.gain); gi > 0 {
		d.gain = Gains[gi-1]
		return true
	}
	return false
}

// Halt powers the sensor down (ALS_SD set).
func (d *Dev) Halt() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.write16(regALSConf, ConfWord(d.gain, d.it)|0x0001); err != nil {
		return sensors.WrapIO("veml7700", "halt", err)
	}
	return nil
}
