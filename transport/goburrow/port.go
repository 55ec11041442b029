// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package goburrow links to the meter through the goburrow RTU master.
package goburrow

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"

	"github.com/goburrow/modbus"

	"github.com/ffutop/mmsetup/internal/config"
	"github.com/ffutop/mmsetup/internal/registers"
	"github.com/ffutop/mmsetup/transport"
)

// Port opens goburrow RTU handlers on a serial device, one per baud rate.
type Port struct {
	cfg     config.SerialConfig
	slaveID byte
}

// NewPort creates a Port. cfg.BaudRate is ignored; every Open picks its own.
func NewPort(cfg config.SerialConfig, slaveID byte) *Port {
	return &Port{cfg: cfg, slaveID: slaveID}
}

// Open connects the serial device at baud.
func (p *Port) Open(ctx context.Context, baud registers.Baud) (transport.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h := modbus.NewRTUClientHandler(p.cfg.Device)
	h.BaudRate = int(baud)
	h.DataBits = p.cfg.DataBits
	h.Parity = p.cfg.Parity
	h.StopBits = p.cfg.StopBits
	h.SlaveId = p.slaveID
	h.Timeout = p.cfg.Timeout
	if slog.Default().Enabled(ctx, slog.LevelDebug) {
		h.Logger = slog.NewLogLogger(slog.Default().Handler(), slog.LevelDebug)
	}

	if err := h.Connect(); err != nil {
		return nil, fmt.Errorf("could not open %s: %w", p.cfg.Device, err)
	}
	return NewConn(modbus.NewClient(h), h), nil
}

// Conn adapts a goburrow client to transport.Conn. The context is only
// checked before each request; goburrow bounds requests with its own timeout.
type Conn struct {
	client modbus.Client
	closer io.Closer
}

// NewConn wraps client; closer releases the line behind it.
func NewConn(client modbus.Client, closer io.Closer) *Conn {
	return &Conn{client: client, closer: closer}
}

func (c *Conn) ReadRegisters(ctx context.Context, address, quantity uint16) ([]uint16, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := c.client.ReadHoldingRegisters(address, quantity)
	if err != nil {
		return nil, err
	}
	if len(data) != int(quantity)*2 {
		return nil, fmt.Errorf("modbus: response data size '%v' does not match count '%v'", len(data), quantity*2)
	}
	values := make([]uint16, quantity)
	for i := range values {
		values[i] = binary.BigEndian.Uint16(data[i*2:])
	}
	return values, nil
}

func (c *Conn) WriteRegisters(ctx context.Context, address uint16, values []uint16) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data := make([]byte, len(values)*2)
	for i, v := range values {
		binary.BigEndian.PutUint16(data[i*2:], v)
	}
	_, err := c.client.WriteMultipleRegisters(address, uint16(len(values)), data)
	return err
}

func (c *Conn) WriteCoil(ctx context.Context, address uint16, on bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	value := uint16(0x0000)
	if on {
		value = 0xFF00
	}
	_, err := c.client.WriteSingleCoil(address, value)
	return err
}

func (c *Conn) ReadCoils(ctx context.Context, address, quantity uint16) ([]bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := c.client.ReadCoils(address, quantity)
	if err != nil {
		return nil, err
	}
	if len(data) != (int(quantity)+7)/8 {
		return nil, fmt.Errorf("modbus: read-coils payload does not match quantity '%v'", quantity)
	}
	bits := make([]bool, quantity)
	for i := range bits {
		bits[i] = data[i/8]&(1<<uint(i%8)) != 0
	}
	return bits, nil
}

func (c *Conn) Close() error {
	return c.closer.Close()
}
