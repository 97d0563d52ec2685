package beacon

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"

	"rpi-weatherstation/internal/readings"
)

const advertisingInterval = 500 * time.Millisecond

type advertisement interface {
	Configure(bluetooth.AdvertisementOptions) error
	Start() error
	Stop() error
}

// Advertiser keeps advertising the most recent BME280 reading until the
// next one replaces it. It satisfies sampler.Sink; light and VOC readings
// are not advertised.
type Advertiser struct {
	mu      sync.Mutex
	adv     advertisement
	name    string
	next    uint32
	active  bool
	payload [PayloadLen]byte
	logger  *slog.Logger
}

// NewAdvertiser enables the default adapter.
func NewAdvertiser(localName string, logger *slog.Logger) (*Advertiser, error) {
	adapter := bluetooth.DefaultAdapter
	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("ble enable: %w", err)
	}
	return newAdvertiser(adapter.DefaultAdvertisement(), localName, logger), nil
}

func newAdvertiser(adv advertisement, localName string, logger *slog.Logger) *Advertiser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Advertiser{
		adv:    adv,
		name:   localName,
		logger: logger.With("component", "beacon"),
	}
}

func (a *Advertiser) WriteBME280(_ context.Context, r readings.BME280Reading) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	id := a.next
	a.next++
	Encode(&a.payload, Payload{
		ReadingID:    id,
		TemperatureC: r.TemperatureC,
		PressureHPa:  r.PressureHPa,
		HumidityPct:  r.HumidityPct,
	})

	if a.active {
		if err := a.adv.Stop(); err != nil {
			a.logger.Debug("ble: stop before reconfigure", "error", err)
		}
		a.active = false
	}
	err := a.adv.Configure(bluetooth.AdvertisementOptions{
		AdvertisementType: bluetooth.AdvertisingTypeNonConnInd,
		LocalName:         a.name,
		Interval:          bluetooth.NewDuration(advertisingInterval),
		ManufacturerData: []bluetooth.ManufacturerDataElement{
			{CompanyID: CompanyID, Data: append([]byte(nil), a.payload[:]...)},
		},
	})
	if err != nil {
		return fmt.Errorf("ble configure: %w", err)
	}
	if err := a.adv.Start(); err != nil {
		_ = a.adv.Stop()
		return fmt.Errorf("ble start: %w", err)
	}
	a.active = true
	a.logger.Debug("ble: advertising", "reading_id", id)
	return nil
}

func (a *Advertiser) WriteVEML7700(context.Context, readings.VEML7700Reading) error { return nil }

func (a *Advertiser) WriteSGP40(context.Context, readings.SGP40Reading) error { return nil }

// Close stops advertising.
func (a *Advertiser) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.active {
		return nil
	}
	a.active = false
	return a.adv.Stop()
}
