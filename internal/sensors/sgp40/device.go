package sgp40

import (
	"context"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/i2c"

	"rpi-weatherstation/internal/sensors"
	"rpi-weatherstation/internal/sensors/voc"
)

// Sample is one SGP40 measurement. VOCIndex, Label and Rating are only set
// when the device has a VOC algorithm.
type Sample struct {
	SRAW     uint16 `json:"sraw"`
	VOCIndex *int   `json:"voc_index"`
	Label    string `json:"voc_label,omitempty"`
	Rating   string `json:"voc_rating,omitempty"`
}

// Opts configures a device.
type Opts struct {
	// MeasureDelay overrides the wait between command and response.
	// Zero keeps MeasureDelay.
	MeasureDelay time.Duration
}

// Dev is an SGP40 on an I2C bus.
type Dev struct {
	mu    sync.Mutex
	d     i2c.Dev
	algo  voc.Algorithm
	delay time.Duration
}

// New returns a device handle. The SGP40 has no identification register
// worth checking, so nothing is sent on the bus until the first measurement.
// algo may be nil.
func New(b i2c.Bus, addr uint16, algo voc.Algorithm, opts *Opts) *Dev {
	d := &Dev{
		d:     i2c.Dev{Bus: b, Addr: addr},
		algo:  algo,
		delay: MeasureDelay,
	}
	if opts != nil && opts.MeasureDelay > 0 {
		d.delay = opts.MeasureDelay
	}
	return d
}

func (d *Dev) String() string {
	return fmt.Sprintf("SGP40{%s, 0x%02x}", d.d.Bus, d.d.Addr)
}

// MeasureRaw runs one compensated measurement and returns the raw signal.
func (d *Dev) MeasureRaw(ctx context.Context, rh, t float64) (uint16, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	cmd := BuildCommand(rh, t)
	if err := d.d.Tx(cmd[:], nil); err != nil {
		return 0, sensors.WrapIO("sgp40", "write command", err)
	}

	timer := time.NewTimer(d.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-timer.C:
	}

	buf := make([]byte, ResponseLen)
	if err := d.d.Tx(nil, buf); err != nil {
		return 0, sensors.WrapIO("sgp40", "read response", err)
	}
	return DecodeResponse(buf)
}

// Read measures and, when an algorithm is configured, derives the VOC index
// and its classification.
func (d *Dev) Read(ctx context.Context, rh, t float64) (Sample, error) {
	sraw, err := d.MeasureRaw(ctx, rh, t)
	if err != nil {
		return Sample{}, err
	}
	s := Sample{SRAW: sraw}
	if d.algo != nil {
		idx := d.algo.Process(sraw)
		c := voc.Classify(idx)
		s.VOCIndex = &idx
		s.Label = c.Label
		s.Rating = c.Rating
	}
	return s, nil
}

// Halt is a no-op; the SGP40 idles between measure commands.
func (d *Dev) Halt() error {
	return nil
}
