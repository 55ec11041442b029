// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package local

import (
	"context"
	"log/slog"

	"github.com/ffutop/mmsetup/internal/config"
	"github.com/ffutop/mmsetup/internal/registers"
	"github.com/ffutop/mmsetup/internal/simulator"
	"github.com/ffutop/mmsetup/internal/simulator/persistence"
	"github.com/ffutop/mmsetup/modbus"
	"github.com/ffutop/mmsetup/transport"
)

// Port connects to an in-process simulated meter.
type Port struct {
	meter   *simulator.Meter
	slaveID byte
}

// NewPort builds the simulated meter described by cfg. The meter answers to
// slaveID.
func NewPort(cfg config.SimulatorConfig, slaveID byte) (*Port, error) {
	mode, err := registers.ParseMode(cfg.Mode)
	if err != nil {
		return nil, err
	}
	baud, err := registers.ParseBaud(cfg.Baud)
	if err != nil {
		return nil, err
	}

	storage, err := persistence.New(cfg.Persistence.Type, cfg.Persistence.Path)
	if err != nil {
		return nil, err
	}
	slog.Info("Initializing simulated meter", "persistence", cfg.Persistence.Type, "path", cfg.Persistence.Path)

	meter, err := simulator.New(slaveID, storage, mode, baud)
	if err != nil {
		storage.Close()
		return nil, err
	}
	return NewPortFor(meter, slaveID), nil
}

// NewPortFor connects to an existing meter, addressing it as slaveID.
func NewPortFor(meter *simulator.Meter, slaveID byte) *Port {
	return &Port{meter: meter, slaveID: slaveID}
}

// Meter returns the simulated meter.
func (p *Port) Meter() *simulator.Meter {
	return p.meter
}

// Open returns a link at baud. Like a serial line it opens whatever speed the
// meter is at; requests at the wrong speed go unanswered.
func (p *Port) Open(ctx context.Context, baud registers.Baud) (transport.Conn, error) {
	return transport.NewSession(&Client{meter: p.meter, baud: baud}, p.slaveID), nil
}

// Close closes the meter's storage.
func (p *Port) Close() error {
	return p.meter.Close()
}

// Client sends PDUs to the simulated meter as if over a line at one speed.
type Client struct {
	meter *simulator.Meter
	baud  registers.Baud
}

// Send processes the PDU locally.
func (c *Client) Send(ctx context.Context, slaveID byte, pdu modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
	if err := ctx.Err(); err != nil {
		return modbus.ProtocolDataUnit{}, err
	}
	return c.meter.Serve(c.baud, slaveID, pdu)
}

// Close is a no-op; the meter outlives its links.
func (c *Client) Close() error {
	return nil
}
