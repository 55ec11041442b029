// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ffutop/mmsetup/internal/registers"
	"github.com/ffutop/mmsetup/internal/settings"
)

// Transport types.
const (
	TransportRTU      = "rtu"
	TransportGoburrow = "goburrow"
	TransportLocal    = "local"
)

// Config defines the global configuration structure
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Transport string          `mapstructure:"transport"` // "rtu", "goburrow", "local"
	Serial    SerialConfig    `mapstructure:"serial"`
	Device    DeviceConfig    `mapstructure:"device"`
	Settings  SettingsConfig  `mapstructure:"settings"`
	Simulator SimulatorConfig `mapstructure:"simulator"`
}

// LogConfig defines logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
	File  string `mapstructure:"file"`  // Log file path
}

// SerialConfig defines RTU settings
type SerialConfig struct {
	Device   string        `mapstructure:"device"`
	BaudRate int           `mapstructure:"baud_rate"` // Speed used by dump
	DataBits int           `mapstructure:"data_bits"`
	Parity   string        `mapstructure:"parity"`
	StopBits int           `mapstructure:"stop_bits"`
	Timeout  time.Duration `mapstructure:"timeout"` // Response timeout

	// RS485 specific
	RS485              bool          `mapstructure:"rs485"`
	DelayRtsBeforeSend time.Duration `mapstructure:"delay_rts_before_send"`
	DelayRtsAfterSend  time.Duration `mapstructure:"delay_rts_after_send"`
	RtsHighDuringSend  bool          `mapstructure:"rts_high_during_send"`
	RtsHighAfterSend   bool          `mapstructure:"rts_high_after_send"`
	RxDuringTx         bool          `mapstructure:"rx_during_tx"`
}

// DeviceConfig describes the transducer and the link goal.
type DeviceConfig struct {
	SlaveID     int           `mapstructure:"slave_id"`
	HighBaud    int           `mapstructure:"high_baud"` // Probed first
	LowBaud     int           `mapstructure:"low_baud"`  // Probed second; reconcile goal
	Direction   string        `mapstructure:"direction"` // "straight", "reversed"
	SettleDelay time.Duration `mapstructure:"settle_delay"`
}

// SettingsConfig selects the settings table.
type SettingsConfig struct {
	File      string            `mapstructure:"file"`      // YAML table replacing the built-in one
	Overrides map[string]uint16 `mapstructure:"overrides"` // Per-name values
}

// SimulatorConfig defines the in-process transducer used by the "local" transport.
type SimulatorConfig struct {
	Mode        string            `mapstructure:"mode"` // Initial map of a fresh store
	Baud        int               `mapstructure:"baud"` // Initial speed of a fresh store
	Persistence PersistenceConfig `mapstructure:"persistence"`
}

// PersistenceConfig defines data storage settings
type PersistenceConfig struct {
	Type string `mapstructure:"type"` // "memory", "file", "mmap"
	Path string `mapstructure:"path"` // File path for "file/mmap" type
}

// LoadConfig loads configuration from file, then applies flags that were set
// on the command line. A missing config file is not an error when configFile
// is empty.
func LoadConfig(configFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/mmsetup/")
		v.AddConfigPath("$HOME/.mmsetup")
		v.AddConfigPath(".")
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if flags != nil {
		if err := bindFlags(v, flags); err != nil {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	fixupSerial(&config.Serial)
	config.Transport = strings.ToLower(config.Transport)
	config.Device.Direction = strings.ToLower(config.Device.Direction)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("transport", TransportRTU)

	v.SetDefault("serial.device", "/dev/ttymxc4")
	v.SetDefault("serial.baud_rate", int(registers.Baud9600))
	v.SetDefault("serial.data_bits", 8)
	v.SetDefault("serial.parity", "N")
	v.SetDefault("serial.stop_bits", 1)
	v.SetDefault("serial.timeout", 100*time.Millisecond)
	v.SetDefault("serial.rs485", true)

	v.SetDefault("device.slave_id", 1)
	v.SetDefault("device.high_baud", int(registers.Baud115200))
	v.SetDefault("device.low_baud", int(registers.Baud9600))
	v.SetDefault("device.direction", settings.Straight.String())
	v.SetDefault("device.settle_delay", 100*time.Millisecond)

	v.SetDefault("simulator.mode", registers.ModeFlomac.String())
	v.SetDefault("simulator.baud", int(registers.Baud115200))
	v.SetDefault("simulator.persistence.type", "memory")
}

// flagKeys maps command line flags onto config keys.
var flagKeys = map[string]string{
	"device":    "serial.device",
	"address":   "device.slave_id",
	"transport": "transport",
	"baud":      "serial.baud_rate",
	"log-level": "log.level",
	"settings":  "settings.file",
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("failed to bind flag %q: %w", name, err)
		}
	}

	// -s / -r are two booleans for one setting; reversed wins if both are given.
	if f := flags.Lookup("straight"); f != nil && f.Changed {
		v.Set("device.direction", settings.Straight.String())
	}
	if f := flags.Lookup("reversed"); f != nil && f.Changed {
		v.Set("device.direction", settings.Reversed.String())
	}
	return nil
}

func fixupSerial(s *SerialConfig) {
	s.Parity = strings.ToUpper(s.Parity)
	if s.Parity == "" {
		s.Parity = "N"
	}
	if s.DataBits == 0 {
		s.DataBits = 8
	}
	if s.StopBits == 0 {
		s.StopBits = 1
	}
	if s.Timeout == 0 {
		s.Timeout = 100 * time.Millisecond
	}
}

// Validate checks values that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	switch c.Transport {
	case TransportRTU, TransportGoburrow, TransportLocal:
	default:
		return fmt.Errorf("config: unknown transport %q", c.Transport)
	}
	if c.Transport != TransportLocal && c.Serial.Device == "" {
		return errors.New("config: serial.device is required")
	}
	if c.Device.SlaveID < 1 || c.Device.SlaveID > 247 {
		return fmt.Errorf("config: slave id %d out of range 1..247", c.Device.SlaveID)
	}
	for key, baud := range map[string]int{
		"device.high_baud": c.Device.HighBaud,
		"device.low_baud":  c.Device.LowBaud,
		"serial.baud_rate": c.Serial.BaudRate,
	} {
		if _, err := registers.ParseBaud(baud); err != nil {
			return fmt.Errorf("config: %s: %w", key, err)
		}
	}
	if _, err := settings.ParseDirection(c.Device.Direction); err != nil {
		return fmt.Errorf("config: device.direction: %w", err)
	}
	if c.Device.SettleDelay < 0 {
		return fmt.Errorf("config: negative settle delay %v", c.Device.SettleDelay)
	}
	if c.Transport == TransportLocal {
		if _, err := registers.ParseMode(c.Simulator.Mode); err != nil {
			return fmt.Errorf("config: simulator.mode: %w", err)
		}
		if _, err := registers.ParseBaud(c.Simulator.Baud); err != nil {
			return fmt.Errorf("config: simulator.baud: %w", err)
		}
	}
	return nil
}
