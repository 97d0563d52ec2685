// Package i2cbus opens the station's I2C bus and provides the pieces that
// sit between the bus and the sensor drivers: TCA9548A channel selection,
// presence probing, and a simulated bus for machines without hardware.
package i2cbus

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// SimName selects the simulated bus in Open.
const SimName = "sim"

var hostOnce sync.Once
var hostErr error

// Open returns the named bus. An empty name is the first registered bus,
// usually /dev/i2c-1 on a Raspberry Pi. SimName returns NewSimStation with
// the default conditions.
func Open(name string) (i2c.BusCloser, error) {
	if name == SimName {
		return NewSimStation(DefaultConditions), nil
	}

	hostOnce.Do(func() {
		_, hostErr = host.Init()
	})
	if hostErr != nil {
		return nil, fmt.Errorf("host init: %w", hostErr)
	}

	b, err := i2creg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %q: %w", name, err)
	}
	return b, nil
}
