// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"context"
	"log/slog"

	"github.com/ffutop/mmsetup/internal/config"
	"github.com/ffutop/mmsetup/internal/registers"
	"github.com/ffutop/mmsetup/transport"
)

// Port opens RTU links to one slave on a serial device, one per baud rate.
type Port struct {
	cfg     config.SerialConfig
	slaveID byte
}

// NewPort creates a Port. cfg.BaudRate is ignored; every Open picks its own.
func NewPort(cfg config.SerialConfig, slaveID byte) *Port {
	return &Port{cfg: cfg, slaveID: slaveID}
}

// Open opens the serial device at baud.
func (p *Port) Open(ctx context.Context, baud registers.Baud) (transport.Conn, error) {
	cfg := p.cfg
	cfg.BaudRate = int(baud)

	client := NewClient(cfg)
	if err := client.Connect(ctx); err != nil {
		return nil, err
	}
	slog.Debug("serial port opened", "device", cfg.Device, "baud", cfg.BaudRate, "slaveID", p.slaveID)
	return transport.NewSession(client, p.slaveID), nil
}
