// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/ffutop/mmsetup/internal/config"
	"github.com/ffutop/mmsetup/internal/dump"
	"github.com/ffutop/mmsetup/internal/registers"
	"github.com/ffutop/mmsetup/internal/settings"
	"github.com/ffutop/mmsetup/internal/setup"
	"github.com/ffutop/mmsetup/transport"
	"github.com/ffutop/mmsetup/transport/goburrow"
	"github.com/ffutop/mmsetup/transport/local"
	"github.com/ffutop/mmsetup/transport/rtu"
)

const usage = `Usage: mmsetup [flags] [setup|dump]

  setup  find the meter, move it to the Flomac map at the low baud rate and
         write the settings table (default)
  dump   print the registers of both maps at --baud

Flags:
`

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flags := pflag.NewFlagSet("mmsetup", pflag.ContinueOnError)
	flags.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flags.PrintDefaults()
	}
	configFile := flags.StringP("config", "c", "", "Path to config file")
	flags.StringP("device", "d", "/dev/ttymxc4", "Serial device")
	flags.IntP("address", "a", 1, "Slave address of the meter")
	flags.BoolP("straight", "s", false, "Sensor is mounted in flow direction")
	flags.BoolP("reversed", "r", false, "Sensor is mounted against flow direction")
	flags.StringP("transport", "t", config.TransportRTU, "Link: rtu, goburrow or local")
	flags.IntP("baud", "b", int(registers.Baud9600), "Baud rate used by dump")
	flags.StringP("log-level", "v", "info", "Log level: debug, info, warn, error")
	flags.String("settings", "", "YAML settings table replacing the built-in one")

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 1
	}

	command := "setup"
	switch flags.NArg() {
	case 0:
	case 1:
		command = flags.Arg(0)
	default:
		flags.Usage()
		return 1
	}
	if command != "setup" && command != "dump" {
		fmt.Fprintf(os.Stderr, "unknown command %q\n", command)
		flags.Usage()
		return 1
	}

	// Load Configuration
	cfg, err := config.LoadConfig(*configFile, flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return 1
	}

	// dump owns stdout
	logOut := io.Writer(os.Stdout)
	if command == "dump" {
		logOut = os.Stderr
	}
	logger := setupLogger(cfg.Log, logOut)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	port, closePort, err := newPort(cfg)
	if err != nil {
		logger.Error("Failed to create transport", "transport", cfg.Transport, "err", err)
		return 1
	}
	defer closePort()

	switch command {
	case "dump":
		err = runDump(ctx, cfg, port, logger)
	default:
		err = runSetup(ctx, cfg, port, logger)
	}
	if err != nil {
		logger.Error("mmsetup failed", "command", command, "err", err)
		return 1
	}
	return 0
}

func newPort(cfg *config.Config) (transport.Port, func(), error) {
	slaveID := byte(cfg.Device.SlaveID)
	switch cfg.Transport {
	case config.TransportGoburrow:
		return goburrow.NewPort(cfg.Serial, slaveID), func() {}, nil
	case config.TransportLocal:
		p, err := local.NewPort(cfg.Simulator, slaveID)
		if err != nil {
			return nil, nil, err
		}
		return p, func() {
			if err := p.Close(); err != nil {
				slog.Warn("Failed to close simulated meter", "err", err)
			}
		}, nil
	default:
		return rtu.NewPort(cfg.Serial, slaveID), func() {}, nil
	}
}

func loadTable(cfg config.SettingsConfig) (settings.Table, error) {
	table := settings.Default()
	if cfg.File != "" {
		t, err := settings.LoadFile(cfg.File)
		if err != nil {
			return nil, err
		}
		table = t
	}
	table, err := table.Override(cfg.Overrides)
	if err != nil {
		return nil, err
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}
	return table, nil
}

func runSetup(ctx context.Context, cfg *config.Config, port transport.Port, logger *slog.Logger) error {
	table, err := loadTable(cfg.Settings)
	if err != nil {
		return fmt.Errorf("settings: %w", err)
	}
	direction, err := settings.ParseDirection(cfg.Device.Direction)
	if err != nil {
		return err
	}
	high, err := registers.ParseBaud(cfg.Device.HighBaud)
	if err != nil {
		return err
	}
	low, err := registers.ParseBaud(cfg.Device.LowBaud)
	if err != nil {
		return err
	}

	logger.Info("Starting meter setup",
		"transport", cfg.Transport, "device", cfg.Serial.Device, "address", cfg.Device.SlaveID,
		"high", high, "low", low, "direction", direction, "settings", len(table))

	sum, err := setup.Run(ctx, port, setup.Options{
		Registers:   setup.DefaultRegisters(),
		High:        high,
		Low:         low,
		Direction:   direction,
		Table:       table,
		SettleDelay: cfg.Device.SettleDelay,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	if sum.Failed > 0 {
		logger.Warn("Some settings were not applied", "failed", sum.Failed, "applied", sum.Applied)
	}
	return nil
}

func runDump(ctx context.Context, cfg *config.Config, port transport.Port, logger *slog.Logger) error {
	baud, err := registers.ParseBaud(cfg.Serial.BaudRate)
	if err != nil {
		return err
	}
	conn, err := port.Open(ctx, baud)
	if err != nil {
		return err
	}
	defer conn.Close()

	return dump.New(logger).Dump(ctx, conn, os.Stdout, dump.Header{
		Device:  cfg.Serial.Device,
		Baud:    baud,
		SlaveID: cfg.Device.SlaveID,
		Time:    time.Now(),
	})
}

func setupLogger(cfg config.LogConfig, stdout io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.File != "" && cfg.File != "-" {
		f, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file, falling back to stdout: %v\n", err)
			handler = slog.NewTextHandler(stdout, opts)
		} else {
			handler = slog.NewTextHandler(f, opts)
		}
	} else {
		handler = slog.NewTextHandler(stdout, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
