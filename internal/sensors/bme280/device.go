package bme280

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/i2c"

	"rpi-weatherstation/internal/sensors"
)

// ErrChipID is returned by NewI2C when the device at the address is not a BME280.
var ErrChipID = errors.New("bme280: unexpected chip id")

// Opts configures a device.
type Opts struct {
	// SettleDelay is waited after the first configuration write so the
	// first normal-mode conversion has completed before Read is called.
	SettleDelay time.Duration
}

// DefaultOpts matches the settle time used on the station.
var DefaultOpts = Opts{SettleDelay: 100 * time.Millisecond}

// Dev is an opened BME280.
type Dev struct {
	mu   sync.Mutex
	d    i2c.Dev
	tp   TrimmingParameters
	name string
}

// NewI2C checks the chip id, reads the trimming parameters and puts the
// sensor in normal mode with x1 oversampling on all three channels.
func NewI2C(b i2c.Bus, addr uint16, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	d := &Dev{
		d:    i2c.Dev{Bus: b, Addr: addr},
		name: fmt.Sprintf("BME280{%s, 0x%02x}", b, addr),
	}

	var id [1]byte
	if err := d.d.Tx([]byte{regChipID}, id[:]); err != nil {
		return nil, sensors.WrapIO("bme280", "read chip id", err)
	}
	if id[0] != ChipID {
		return nil, fmt.Errorf("%w: got 0x%02x, want 0x%02x", ErrChipID, id[0], ChipID)
	}

	regs, err := d.readCalibration()
	if err != nil {
		return nil, err
	}
	tp, err := DecodeTrimming(regs)
	if err != nil {
		return nil, err
	}
	d.tp = tp

	// ctrl_hum only takes effect after the following ctrl_meas write.
	if err := d.writeReg(regCtrlHum, ctrlHumX1); err != nil {
		return nil, sensors.WrapIO("bme280", "write ctrl_hum", err)
	}
	if err := d.writeReg(regCtrlMeas, ctrlMeasNormal); err != nil {
		return nil, sensors.WrapIO("bme280", "write ctrl_meas", err)
	}
	if opts.SettleDelay > 0 {
		time.Sleep(opts.SettleDelay)
	}
	return d, nil
}

// readCalibration burst reads both calibration ranges into a RegisterMap.
func (d *Dev) readCalibration() (RegisterMap, error) {
	regs := RegisterMap{}
	blocks := []struct {
		start byte
		n     int
	}{
		{calibTPStart, calibTPLen},
		{calibHStart, calibHLen},
	}
	for _, blk := range blocks {
		buf := make([]byte, blk.n)
		if err := d.d.Tx([]byte{blk.start}, buf); err != nil {
			return nil, sensors.WrapIO("bme280", "read trimming parameters", err)
		}
		for i, v := range buf {
			regs[blk.start+byte(i)] = v
		}
	}
	return regs, nil
}

func (d *Dev) writeReg(reg, v byte) error {
	return d.d.Tx([]byte{reg, v}, nil)
}

// ReadRaw returns the current data block without compensating it.
func (d *Dev) ReadRaw() (RawSample, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	buf := make([]byte, RawSampleLen)
	if err := d.d.Tx([]byte{regData}, buf); err != nil {
		return RawSample{}, sensors.WrapIO("bme280", "read data", err)
	}
	return ParseRawSample(buf)
}

// Read returns one compensated reading.
func (d *Dev) Read() (Reading, error) {
	raw, err := d.ReadRaw()
	if err != nil {
		return Reading{}, err
	}
	return Compensate(d.tp, raw), nil
}

// Trimming returns the calibration read at open time.
func (d *Dev) Trimming() TrimmingParameters {
	return d.tp
}

func (d *Dev) String() string {
	return d.name
}

// Halt puts the sensor in sleep mode.
func (d *Dev) Halt() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.writeReg(regCtrlMeas, ctrlMeasSleep); err != nil {
		return sensors.WrapIO("bme280", "halt", err)
	}
	return nil
}
