// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func testFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("mmsetup", pflag.ContinueOnError)
	fs.StringP("device", "d", "", "")
	fs.IntP("address", "a", 1, "")
	fs.BoolP("straight", "s", false, "")
	fs.BoolP("reversed", "r", false, "")
	fs.StringP("transport", "t", "rtu", "")
	fs.IntP("baud", "b", 9600, "")
	fs.StringP("log-level", "v", "info", "")
	return fs
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "log:\n  level: debug\n"), nil)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, TransportRTU, cfg.Transport)
	assert.Equal(t, "/dev/ttymxc4", cfg.Serial.Device)
	assert.Equal(t, 8, cfg.Serial.DataBits)
	assert.Equal(t, "N", cfg.Serial.Parity)
	assert.Equal(t, 1, cfg.Serial.StopBits)
	assert.Equal(t, 100*time.Millisecond, cfg.Serial.Timeout)
	assert.True(t, cfg.Serial.RS485)

	assert.Equal(t, 1, cfg.Device.SlaveID)
	assert.Equal(t, 115200, cfg.Device.HighBaud)
	assert.Equal(t, 9600, cfg.Device.LowBaud)
	assert.Equal(t, "straight", cfg.Device.Direction)
	assert.Equal(t, 100*time.Millisecond, cfg.Device.SettleDelay)
}

func TestLoadConfig_File(t *testing.T) {
	path := writeConfig(t, `
transport: local
serial:
  parity: e
  timeout: 250ms
device:
  slave_id: 12
  direction: Reversed
  settle_delay: 0s
settings:
  overrides:
    mmi_display_mode: 1
simulator:
  mode: mmi
  baud: 19200
  persistence:
    type: file
    path: /tmp/meter.bin
`)
	cfg, err := LoadConfig(path, nil)
	require.NoError(t, err)

	assert.Equal(t, TransportLocal, cfg.Transport)
	assert.Equal(t, "E", cfg.Serial.Parity)
	assert.Equal(t, 250*time.Millisecond, cfg.Serial.Timeout)
	assert.Equal(t, 12, cfg.Device.SlaveID)
	assert.Equal(t, "reversed", cfg.Device.Direction)
	assert.Equal(t, time.Duration(0), cfg.Device.SettleDelay)
	assert.Equal(t, map[string]uint16{"mmi_display_mode": 1}, cfg.Settings.Overrides)
	assert.Equal(t, "mmi", cfg.Simulator.Mode)
	assert.Equal(t, 19200, cfg.Simulator.Baud)
	assert.Equal(t, PersistenceConfig{Type: "file", Path: "/tmp/meter.bin"}, cfg.Simulator.Persistence)
}

func TestLoadConfig_Flags(t *testing.T) {
	fs := testFlags()
	require.NoError(t, fs.Parse([]string{"-d", "/dev/ttyUSB0", "-a", "5", "-r", "-b", "115200"}))

	cfg, err := LoadConfig(writeConfig(t, "device:\n  slave_id: 3\n"), fs)
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyUSB0", cfg.Serial.Device)
	assert.Equal(t, 5, cfg.Device.SlaveID)
	assert.Equal(t, "reversed", cfg.Device.Direction)
	assert.Equal(t, 115200, cfg.Serial.BaudRate)
}

func TestLoadConfig_FlagsKeepFileValues(t *testing.T) {
	fs := testFlags()
	require.NoError(t, fs.Parse(nil))

	cfg, err := LoadConfig(writeConfig(t, "device:\n  slave_id: 3\n  direction: reversed\n"), fs)
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Device.SlaveID)
	assert.Equal(t, "reversed", cfg.Device.Direction)
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Transport: TransportRTU,
			Serial:    SerialConfig{Device: "/dev/ttymxc4", BaudRate: 9600},
			Device: DeviceConfig{
				SlaveID:   1,
				HighBaud:  115200,
				LowBaud:   9600,
				Direction: "straight",
			},
			Simulator: SimulatorConfig{Mode: "flomac", Baud: 115200},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"transport", func(c *Config) { c.Transport = "tcp" }},
		{"device", func(c *Config) { c.Serial.Device = "" }},
		{"slave id zero", func(c *Config) { c.Device.SlaveID = 0 }},
		{"slave id high", func(c *Config) { c.Device.SlaveID = 248 }},
		{"high baud", func(c *Config) { c.Device.HighBaud = 250000 }},
		{"low baud", func(c *Config) { c.Device.LowBaud = 0 }},
		{"direction", func(c *Config) { c.Device.Direction = "sideways" }},
		{"settle delay", func(c *Config) { c.Device.SettleDelay = -time.Second }},
		{"simulator mode", func(c *Config) { c.Transport = TransportLocal; c.Simulator.Mode = "x" }},
		{"simulator baud", func(c *Config) { c.Transport = TransportLocal; c.Simulator.Baud = 300 }},
	}

	c := valid()
	require.NoError(t, c.Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}
