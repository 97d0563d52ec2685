package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"rpi-weatherstation/internal/config"
	"rpi-weatherstation/internal/logging"
)

var version = "dev"
var appName = "weathertool"

type command struct {
	name  string
	usage string
	run   func(ctx context.Context, cfg config.Config, args []string) error
}

var commands = []command{
	{"migrate", "apply pending schema migrations (-status lists them)", runMigrate},
	{"scan", "list addresses that answer on the bus (-mux scans every channel)", runScan},
	{"chip-id", "read the BME280 chip id register", runChipID},
	{"dump-trimming", "read the BME280 calibration registers one by one", runDumpTrimming},
	{"make-fixture", "build a raw BME280 sample for target values", runMakeFixture},
	{"crosscheck", "compare the BME280 driver against periph's bmxx80", runCrosscheck},
	{"listen", "print station beacons seen over BLE", runListen},
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s <command> [flags]\n", os.Args[0])
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %-14s %s\n", c.name, c.usage)
	}
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	// Command output goes to stdout; logs must not mix with it.
	slog.SetDefault(logging.NewWriter(os.Stderr, cfg, version, appName))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	name := os.Args[1]
	for _, c := range commands {
		if c.name != name {
			continue
		}
		if err := c.run(ctx, cfg, os.Args[2:]); err != nil && !errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
			os.Exit(1)
		}
		return
	}
	fmt.Fprintf(os.Stderr, "unknown command: %s\n", name)
	usage()
	os.Exit(2)
}
