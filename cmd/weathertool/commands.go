package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/bmxx80"

	"rpi-weatherstation/internal/beacon"
	"rpi-weatherstation/internal/config"
	"rpi-weatherstation/internal/db"
	"rpi-weatherstation/internal/i2cbus"
	"rpi-weatherstation/internal/migrate"
	"rpi-weatherstation/internal/sensors/bme280"
	"rpi-weatherstation/internal/utils"
)

var stdout io.Writer = os.Stdout

func printJSON(v any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runMigrate(ctx context.Context, cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	status := fs.Bool("status", false, "list pending migrations without applying them")
	if err := fs.Parse(args); err != nil {
		return err
	}

	conn, err := db.Open(cfg, slog.Default())
	if err != nil {
		return err
	}
	defer func() { _ = db.Close(conn) }()

	if *status {
		pending, err := migrate.Pending(ctx, conn)
		if err != nil {
			return err
		}
		for _, m := range pending {
			fmt.Fprintf(stdout, "pending %s %s\n", m.Version, m.Name)
		}
		fmt.Fprintf(stdout, "%d pending\n", len(pending))
		return nil
	}

	applied, err := migrate.Run(ctx, conn)
	if err != nil {
		return err
	}
	for _, m := range applied {
		fmt.Fprintf(stdout, "applied %s %s\n", m.Version, m.Name)
	}
	fmt.Fprintln(stdout, "migrations applied")
	return nil
}

// busFlags adds the flags shared by the bus commands.
func busFlags(fs *flag.FlagSet, cfg config.Config) (name *string, addr *uint) {
	name = fs.String("bus", cfg.I2CBus, `i2c bus name ("sim" for the simulated station)`)
	addr = fs.Uint("addr", uint(cfg.BME280Address), "BME280 address")
	return name, addr
}

// openBME280Bus opens the bus and routes to the BME280's mux channel.
func openBME280Bus(cfg config.Config, name string) (i2c.BusCloser, i2c.Bus, error) {
	bus, err := i2cbus.Open(name)
	if err != nil {
		return nil, nil, err
	}
	var mux *i2cbus.Mux
	if cfg.MuxAddress != 0 {
		mux = i2cbus.NewMux(bus, cfg.MuxAddress)
	}
	b, err := i2cbus.Route(bus, mux, cfg.BME280Channel)
	if err != nil {
		_ = bus.Close()
		return nil, nil, err
	}
	return bus, b, nil
}

func runScan(_ context.Context, cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("scan", flag.ContinueOnError)
	name := fs.String("bus", cfg.I2CBus, "i2c bus name")
	withMux := fs.Bool("mux", false, "also scan every channel of the mux at MUX_ADDRESS")
	if err := fs.Parse(args); err != nil {
		return err
	}

	bus, err := i2cbus.Open(*name)
	if err != nil {
		return err
	}
	defer func() { _ = bus.Close() }()

	result := map[string][]string{"direct": hexAddrs(i2cbus.Scan(bus))}
	if *withMux {
		if cfg.MuxAddress == 0 {
			return fmt.Errorf("-mux needs MUX_ADDRESS")
		}
		mux := i2cbus.NewMux(bus, cfg.MuxAddress)
		for ch := 0; ch < 8; ch++ {
			b, _ := mux.Channel(ch)
			result[fmt.Sprintf("channel_%d", ch)] = hexAddrs(i2cbus.Scan(b))
		}
	}
	return printJSON(result)
}

func hexAddrs(addrs []uint16) []string {
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, fmt.Sprintf("0x%02x", a))
	}
	return out
}

func runChipID(_ context.Context, cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("chip-id", flag.ContinueOnError)
	name, addr := busFlags(fs, cfg)
	if err := fs.Parse(args); err != nil {
		return err
	}
	bus, b, err := openBME280Bus(cfg, *name)
	if err != nil {
		return err
	}
	defer func() { _ = bus.Close() }()

	id := make([]byte, 1)
	if err := b.Tx(uint16(*addr), []byte{0xD0}, id); err != nil {
		return fmt.Errorf("read chip id at 0x%02x: %w", *addr, err)
	}
	return printJSON(map[string]any{
		"address": fmt.Sprintf("0x%02x", *addr),
		"chip_id": fmt.Sprintf("0x%02x", id[0]),
		"bme280":  id[0] == bme280.ChipID,
	})
}

func runDumpTrimming(_ context.Context, cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("dump-trimming", flag.ContinueOnError)
	name, addr := busFlags(fs, cfg)
	if err := fs.Parse(args); err != nil {
		return err
	}
	bus, b, err := openBME280Bus(cfg, *name)
	if err != nil {
		return err
	}
	defer func() { _ = bus.Close() }()

	dev := i2c.Dev{Bus: b, Addr: uint16(*addr)}
	tp, err := bme280.DecodeTrimming(bme280.RegisterReaderFunc(func(reg byte) (byte, error) {
		v := make([]byte, 1)
		if err := dev.Tx([]byte{reg}, v); err != nil {
			return 0, err
		}
		return v[0], nil
	}))
	if err != nil {
		return err
	}

	regs := map[string]string{}
	for reg, v := range tp.Registers() {
		regs[fmt.Sprintf("0x%02X", reg)] = fmt.Sprintf("0x%02X", v)
	}
	return printJSON(map[string]any{
		"address":   fmt.Sprintf("0x%02x", *addr),
		"trimming":  tp,
		"registers": regs,
	})
}

func runMakeFixture(_ context.Context, cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("make-fixture", flag.ContinueOnError)
	t := fs.Float64("t", 21, "temperature (°C)")
	p := fs.Float64("p", 1013, "pressure (hPa)")
	h := fs.Float64("h", 50, "relative humidity (%)")
	fromDevice := fs.Bool("from-device", false, "use the trimming of the attached BME280 instead of the reference set")
	name, addr := busFlags(fs, cfg)
	if err := fs.Parse(args); err != nil {
		return err
	}

	tp := bme280.ReferenceTrimming
	if *fromDevice {
		bus, b, err := openBME280Bus(cfg, *name)
		if err != nil {
			return err
		}
		dev, err := bme280.NewI2C(b, uint16(*addr), &bme280.Opts{})
		if err != nil {
			_ = bus.Close()
			return err
		}
		tp = dev.Trimming()
		_ = dev.Halt()
		_ = bus.Close()
	}

	fx := bme280.MakeFixture(tp, *t, *p, *h)
	return printJSON(map[string]any{
		"fixture":   fx,
		"block_hex": utils.BytesToHex(fx.Block[:]),
	})
}

type comparison struct {
	Ours      bme280.Reading `json:"ours"`
	Reference bme280.Reading `json:"bmxx80"`
	DeltaT    float64        `json:"delta_temperature_c"`
	DeltaP    float64        `json:"delta_pressure_hpa"`
	DeltaH    float64        `json:"delta_humidity_pct"`
}

func fromEnv(e physic.Env) bme280.Reading {
	return bme280.Reading{
		TemperatureC: e.Temperature.Celsius(),
		PressureHPa:  float64(e.Pressure) / float64(100*physic.Pascal),
		HumidityPct:  float64(e.Humidity) / float64(physic.PercentRH),
	}
}

func compare(ours, ref bme280.Reading) comparison {
	return comparison{
		Ours:      ours,
		Reference: ref,
		DeltaT:    utils.Round2(math.Abs(ours.TemperatureC - ref.TemperatureC)),
		DeltaP:    utils.Round2(math.Abs(ours.PressureHPa - ref.PressureHPa)),
		DeltaH:    utils.Round2(math.Abs(ours.HumidityPct - ref.HumidityPct)),
	}
}

// runCrosscheck reads the sensor with both drivers back to back. The
// readings differ by the conversion that happened in between, so small
// deltas are expected.
func runCrosscheck(_ context.Context, cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("crosscheck", flag.ContinueOnError)
	name, addr := busFlags(fs, cfg)
	if err := fs.Parse(args); err != nil {
		return err
	}
	bus, b, err := openBME280Bus(cfg, *name)
	if err != nil {
		return err
	}
	defer func() { _ = bus.Close() }()

	ref, err := bmxx80.NewI2C(b, uint16(*addr), &bmxx80.DefaultOpts)
	if err != nil {
		return fmt.Errorf("bmxx80: %w", err)
	}
	var env physic.Env
	if err := ref.Sense(&env); err != nil {
		return fmt.Errorf("bmxx80 sense: %w", err)
	}
	_ = ref.Halt()

	dev, err := bme280.NewI2C(b, uint16(*addr), &bme280.DefaultOpts)
	if err != nil {
		return err
	}
	defer func() { _ = dev.Halt() }()
	ours, err := dev.Read()
	if err != nil {
		return err
	}

	return printJSON(compare(ours, fromEnv(env)))
}

func runListen(ctx context.Context, cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("listen", flag.ContinueOnError)
	adapter := fs.String("adapter", "hci0", "BlueZ adapter")
	localName := fs.String("name", cfg.BLEName, "only report this local name (empty for any)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	l := beacon.NewListener(beacon.Options{Adapter: *adapter, LocalName: *localName}, slog.Default())
	return l.Run(ctx, func(m beacon.Match) {
		_ = printJSON(map[string]any{
			"address":       m.Address,
			"rssi":          m.RSSI,
			"reading_id":    m.Payload.ReadingID,
			"temperature_c": utils.Round2(m.Payload.TemperatureC),
			"pressure_hpa":  utils.Round2(m.Payload.PressureHPa),
			"humidity_pct":  utils.Round2(m.Payload.HumidityPct),
			"data":          utils.BytesToHex(m.Data),
			"seen_at":       m.SeenAt.UTC(),
		})
	})
}
