package i2cbus

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

// MuxAddress is the default TCA9548A address.
const MuxAddress uint16 = 0x70

// NoChannel means a device is wired directly to the bus.
const NoChannel = -1

// Mux is a TCA9548A I2C switch. Each channel is exposed as its own i2c.Bus
// that selects the channel before every transaction.
type Mux struct {
	mu   sync.Mutex
	bus  i2c.Bus
	addr uint16
}

// NewMux returns a switch at addr on bus.
func NewMux(bus i2c.Bus, addr uint16) *Mux {
	return &Mux{bus: bus, addr: addr}
}

// Channel returns a bus for channel ch (0..7).
func (m *Mux) Channel(ch int) (i2c.Bus, error) {
	if ch < 0 || ch > 7 {
		return nil, fmt.Errorf("mux channel %d out of range 0..7", ch)
	}
	return &channelBus{mux: m, ch: ch}, nil
}

// tx serializes channel selection with the transaction so two channels can
// not interleave.
func (m *Mux) tx(ch int, addr uint16, w, r []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.bus.Tx(m.addr, []byte{1 << ch}, nil); err != nil {
		return fmt.Errorf("mux 0x%02x select channel %d: %w", m.addr, ch, err)
	}
	return m.bus.Tx(addr, w, r)
}

type channelBus struct {
	mux *Mux
	ch  int
}

func (c *channelBus) String() string {
	return fmt.Sprintf("%s/mux0x%02x/%d", c.mux.bus, c.mux.addr, c.ch)
}

func (c *channelBus) Tx(addr uint16, w, r []byte) error {
	return c.mux.tx(c.ch, addr, w, r)
}

func (c *channelBus) SetSpeed(f physic.Frequency) error {
	return c.mux.bus.SetSpeed(f)
}

// Route returns the bus a device should use. With a nil mux or channel
// NoChannel the device is on bus directly.
func Route(bus i2c.Bus, mux *Mux, channel int) (i2c.Bus, error) {
	if mux == nil || channel == NoChannel {
		return bus, nil
	}
	return mux.Channel(channel)
}
