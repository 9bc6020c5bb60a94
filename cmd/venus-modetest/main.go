// venus-modetest exercises a Venus device by hand: it reads the battery
// status with retries, switches to AI mode and verifies the switch, then
// restores the neutral manual schedule.
//
// It talks to the device only; MQTT, the database and the API are not used.
//
// Usage:
//
//	venus-modetest [-config path] [-host addr] [-no-color] [-skip-switch]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/venus-bridge/internal/infrastructure/config"
	"github.com/nerrad567/venus-bridge/internal/retry"
	"github.com/nerrad567/venus-bridge/internal/transition"
	"github.com/nerrad567/venus-bridge/internal/venus"
)

const defaultConfigPath = "configs/config.yaml"

// errFailed is returned when any check failed.
var errFailed = errors.New("one or more checks failed")

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		if !errors.Is(err, errFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("venus-modetest", flag.ContinueOnError)
	configPath := fs.String("config", getConfigPath(), "path to config.yaml")
	host := fs.String("host", "", "device address, overriding device.host")
	noColor := fs.Bool("no-color", false, "disable ANSI colours")
	skipSwitch := fs.Bool("skip-switch", false, "only read battery status, do not change the mode")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if *host != "" {
		cfg.Device.Host = *host
	}

	client := venus.NewClient(venus.Config{
		Host:    cfg.Device.Host,
		Port:    cfg.Device.Port,
		Timeout: cfg.RequestTimeout(),
		RPCID:   cfg.Device.RPCID,
	})

	out := newConsole(stdout, !*noColor)
	controller := transition.NewController(client, transition.Config{
		DeviceID:       cfg.Device.ID,
		AutoSettle:     cfg.AutoSettle(),
		ManualSettle:   cfg.ManualSettle(),
		VerifySchedule: retry.Schedule(cfg.VerifySchedule()),
		RestoreDelay:   cfg.RestoreDelay(),
	}, nil, out)

	h := &harness{
		gateway:    client,
		controller: controller,
		out:        out,
		clock:      retry.SystemClock{},
		skipSwitch: *skipSwitch,
		target:     client.Addr(),
	}
	if !h.run(ctx) {
		return errFailed
	}
	return nil
}

// getConfigPath returns VENUSBRIDGE_CONFIG if set, otherwise the default.
func getConfigPath() string {
	if path := os.Getenv("VENUSBRIDGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
