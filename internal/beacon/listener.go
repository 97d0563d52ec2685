package beacon

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"
)

// Match is a decoded advertisement from a station.
type Match struct {
	Address   string
	RSSI      int16
	LocalName string
	Payload   Payload
	Data      []byte
	SeenAt    time.Time
}

type Options struct {
	Adapter   string // "hci0" by default
	LocalName string // empty matches any name
}

// Listener scans with a BlueZ adapter until its context is cancelled.
type Listener struct {
	adapter *bluetooth.Adapter
	opts    Options
	logger  *slog.Logger
	dedup   *dedup
}

func NewListener(opts Options, logger *slog.Logger) *Listener {
	if opts.Adapter == "" {
		opts.Adapter = "hci0"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{
		adapter: bluetooth.NewAdapter(opts.Adapter),
		opts:    opts,
		logger:  logger.With("component", "beacon"),
		dedup:   newDedup(dedupMaxIDsPerDevice),
	}
}

// Run calls onMatch once per new reading. A cancelled ctx is a clean stop.
func (l *Listener) Run(ctx context.Context, onMatch func(Match)) error {
	if err := l.adapter.Enable(); err != nil {
		return fmt.Errorf("ble enable (%s): %w", l.opts.Adapter, err)
	}

	go func() {
		<-ctx.Done()
		_ = l.adapter.StopScan()
	}()

	l.logger.Info("ble: scanning started", "adapter", l.opts.Adapter, "filter_name", l.opts.LocalName)

	// Scan blocks until StopScan or an error.
	err := l.adapter.Scan(func(_ *bluetooth.Adapter, r bluetooth.ScanResult) {
		if l.opts.LocalName != "" && r.LocalName() != l.opts.LocalName {
			return
		}
		for _, md := range r.ManufacturerData() {
			m, ok := l.match(r.Address.String(), md.CompanyID, md.Data)
			if !ok {
				continue
			}
			m.RSSI = r.RSSI
			m.LocalName = r.LocalName()
			if onMatch != nil {
				onMatch(m)
			}
			return
		}
	})

	if ctx.Err() != nil {
		l.logger.Info("ble: scanning stopped (context canceled)")
		return nil
	}
	if err != nil {
		return fmt.Errorf("ble scan: %w", err)
	}
	return nil
}

func (l *Listener) match(addr string, companyID uint16, data []byte) (Match, bool) {
	if companyID != CompanyID || !bytes.HasPrefix(data, []byte{magic0, magic1}) {
		return Match{}, false
	}
	p, err := Parse(data)
	if err != nil {
		l.logger.Debug("ble: ignore malformed payload", "addr", addr, "error", err)
		return Match{}, false
	}
	if !l.dedup.first(addr, p.ReadingID) {
		return Match{}, false
	}
	return Match{
		Address: addr,
		Payload: p,
		Data:    append([]byte(nil), data...),
		SeenAt:  time.Now(),
	}, true
}

const dedupMaxIDsPerDevice = 500

// dedup remembers recent reading ids per address. The set for an address
// is reset once it holds limit entries.
type dedup struct {
	mu    sync.Mutex
	limit int
	seen  map[string]map[uint32]struct{}
}

func newDedup(limit int) *dedup {
	return &dedup{limit: limit, seen: map[string]map[uint32]struct{}{}}
}

func (d *dedup) first(addr string, id uint32) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	ids := d.seen[addr]
	if ids == nil {
		ids = map[uint32]struct{}{}
		d.seen[addr] = ids
	}
	if _, ok := ids[id]; ok {
		return false
	}
	if len(ids) >= d.limit {
		ids = map[uint32]struct{}{}
		d.seen[addr] = ids
	}
	ids[id] = struct{}{}
	return true
}
