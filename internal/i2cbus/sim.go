package i2cbus

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"periph.io/x/conn/v3/physic"

	"rpi-weatherstation/internal/sensors/bme280"
	"rpi-weatherstation/internal/sensors/sgp40"
	"rpi-weatherstation/internal/sensors/veml7700"
)

// ErrNoAck is returned by SimBus for addresses with no attached device.
var ErrNoAck = errors.New("i2c sim: no ack")

// Device is a simulated peripheral. w and r are as in i2c.Bus.Tx.
type Device interface {
	Tx(w, r []byte) error
}

// SimBus is an in-memory i2c.BusCloser.
type SimBus struct {
	mu      sync.Mutex
	devices map[uint16]Device
	faults  map[uint16]error
	speed   physic.Frequency
}

// NewSimBus returns an empty bus.
func NewSimBus() *SimBus {
	return &SimBus{
		devices: map[uint16]Device{},
		faults:  map[uint16]error{},
	}
}

// Attach puts d at addr, replacing any device already there.
func (b *SimBus) Attach(addr uint16, d Device) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.devices[addr] = d
}

// Detach removes the device at addr.
func (b *SimBus) Detach(addr uint16) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.devices, addr)
}

// Fail makes every transaction with addr return err. A nil err clears it.
func (b *SimBus) Fail(addr uint16, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		delete(b.faults, addr)
		return
	}
	b.faults[addr] = err
}

func (b *SimBus) String() string {
	return "sim"
}

func (b *SimBus) Tx(addr uint16, w, r []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err, ok := b.faults[addr]; ok {
		return err
	}
	d, ok := b.devices[addr]
	if !ok {
		return fmt.Errorf("%w at 0x%02x", ErrNoAck, addr)
	}
	return d.Tx(w, r)
}

func (b *SimBus) SetSpeed(f physic.Frequency) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.speed = f
	return nil
}

func (b *SimBus) Close() error {
	return nil
}

// RegisterFile is a device with 256 byte registers and an auto-incrementing
// register pointer, the BME280 access model. The first written byte sets the
// pointer; further bytes are stored from there.
type RegisterFile struct {
	mu   sync.Mutex
	regs [256]byte
	ptr  byte

	// BeforeRead, if set, runs before each read with the register pointer.
	BeforeRead func(regs *[256]byte, ptr byte)
}

// NewRegisterFile returns a register file preloaded with init.
func NewRegisterFile(init map[byte]byte) *RegisterFile {
	f := &RegisterFile{}
	for reg, v := range init {
		f.regs[reg] = v
	}
	return f
}

// Get returns the value of register reg.
func (f *RegisterFile) Get(reg byte) byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.regs[reg]
}

func (f *RegisterFile) Tx(w, r []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(w) > 0 {
		f.ptr = w[0]
		for _, v := range w[1:] {
			f.regs[f.ptr] = v
			f.ptr++
		}
	}
	if len(r) > 0 {
		if f.BeforeRead != nil {
			f.BeforeRead(&f.regs, f.ptr)
		}
		p := f.ptr
		for i := range r {
			r[i] = f.regs[p]
			p++
		}
	}
	return nil
}

// Conditions is the simulated environment.
type Conditions struct {
	TemperatureC float64
	PressureHPa  float64
	HumidityPct  float64
	Lux          float64
	SRAW         uint16
}

// ConditionsFunc returns the environment at a point in time.
type ConditionsFunc func(time.Time) Conditions

// DefaultConditions follows a daily cycle: warmest, driest and brightest
// at midday UTC.
func DefaultConditions(now time.Time) Conditions {
	day := float64(now.UTC().Unix()%86400) / 86400
	s := math.Sin(2 * math.Pi * (day - 0.25))
	return Conditions{
		TemperatureC: 18 + 6*s,
		PressureHPa:  1013 + 4*math.Sin(2*math.Pi*day/2),
		HumidityPct:  55 - 15*s,
		Lux:          max(0, 20000*s),
		SRAW:         uint16(30000 + 1500*math.Sin(2*math.Pi*day*24)),
	}
}

// NewSimBME280 is a BME280 with trimming tp whose data registers encode
// the readings returned by src.
func NewSimBME280(tp bme280.TrimmingParameters, src func() bme280.Reading) *RegisterFile {
	f := NewRegisterFile(tp.Registers())
	f.regs[0xD0] = bme280.ChipID
	f.BeforeRead = func(regs *[256]byte, ptr byte) {
		if ptr != 0xF7 {
			return
		}
		r := src()
		fx := bme280.MakeFixture(tp, r.TemperatureC, r.PressureHPa, r.HumidityPct)
		copy(regs[0xF7:], fx.Block[:])
	}
	return f
}

// SimVEML7700 models the VEML7700 word registers. The ALS count follows from
// the lux returned by src and the configured gain and integration time, so
// auto-ranging behaves as on hardware.
type SimVEML7700 struct {
	mu   sync.Mutex
	regs map[byte]uint16
	ptr  byte
	src  func() float64
}

// NewSimVEML7700 returns a powered-down sensor with the default configuration.
func NewSimVEML7700(src func() float64) *SimVEML7700 {
	return &SimVEML7700{
		regs: map[byte]uint16{0x07: 0xC481},
		src:  src,
	}
}

// Conf returns the last written configuration word.
func (v *SimVEML7700) Conf() uint16 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.regs[0x00]
}

func (v *SimVEML7700) counts() (als, white uint16) {
	gain, it, ok := veml7700.ParseConfWord(v.regs[0x00])
	if !ok {
		return 0, 0
	}
	c := v.src() / veml7700.Resolution(gain, it)
	return uint16(min(math.Round(c), 65535)), uint16(min(math.Round(c*1.2), 65535))
}

func (v *SimVEML7700) Tx(w, r []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(w) > 0 {
		v.ptr = w[0]
	}
	if len(w) >= 3 {
		v.regs[v.ptr] = uint16(w[1]) | uint16(w[2])<<8
	}
	if len(r) == 0 {
		return nil
	}
	word := v.regs[v.ptr]
	switch v.ptr {
	case 0x04:
		word, _ = v.counts()
	case 0x05:
		_, word = v.counts()
	}
	r[0] = byte(word)
	if len(r) > 1 {
		r[1] = byte(word >> 8)
	}
	return nil
}

// SimSGP40 answers measure raw commands with the signal returned by src.
type SimSGP40 struct {
	mu     sync.Mutex
	src    func() uint16
	resp   [sgp40.ResponseLen]byte
	rh, t  float64
	frames int
}

// NewSimSGP40 returns a simulated SGP40.
func NewSimSGP40(src func() uint16) *SimSGP40 {
	return &SimSGP40{src: src}
}

// LastCompensation returns the humidity and temperature decoded from the
// most recent command and the number of commands received.
func (s *SimSGP40) LastCompensation() (rh, t float64, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rh, s.t, s.frames
}

func (s *SimSGP40) Tx(w, r []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(w) > 0 {
		if len(w) != 8 || w[0] != 0x26 || w[1] != 0x0F {
			return fmt.Errorf("sgp40 sim: unsupported command % X", w)
		}
		if sgp40.CRC8(w[2:4]) != w[4] || sgp40.CRC8(w[5:7]) != w[7] {
			return fmt.Errorf("sgp40 sim: bad parameter crc in % X", w)
		}
		s.rh = float64(uint16(w[2])<<8|uint16(w[3])) * 100 / 65535
		s.t = float64(uint16(w[5])<<8|uint16(w[6]))*175/65535 - 45
		s.frames++
		s.resp = sgp40.EncodeResponse(s.src())
	}
	copy(r, s.resp[:])
	return nil
}

// SimMux accepts TCA9548A channel selections.
type SimMux struct {
	mu   sync.Mutex
	mask byte
}

// Mask returns the last selected channel mask.
func (m *SimMux) Mask() byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mask
}

func (m *SimMux) Tx(w, r []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(w) > 0 {
		m.mask = w[len(w)-1]
	}
	for i := range r {
		r[i] = m.mask
	}
	return nil
}

// NewSimStation returns a bus with the station's devices at their default
// addresses: a TCA9548A, a BME280 using bme280.ReferenceTrimming, a VEML7700
// and an SGP40. The mux does not route; every device answers on every channel.
func NewSimStation(cond ConditionsFunc) *SimBus {
	now := func() Conditions { return cond(time.Now()) }

	b := NewSimBus()
	b.Attach(MuxAddress, &SimMux{})
	b.Attach(bme280.Address, NewSimBME280(bme280.ReferenceTrimming, func() bme280.Reading {
		c := now()
		return bme280.Reading{TemperatureC: c.TemperatureC, PressureHPa: c.PressureHPa, HumidityPct: c.HumidityPct}
	}))
	b.Attach(veml7700.Address, NewSimVEML7700(func() float64 { return now().Lux }))
	b.Attach(sgp40.Address, NewSimSGP40(func() uint16 { return now().SRAW }))
	return b
}
