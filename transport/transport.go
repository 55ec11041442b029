// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package transport

import (
	"context"

	"github.com/ffutop/mmsetup/internal/registers"
	"github.com/ffutop/mmsetup/modbus"
)

// Port opens links to one slave on the bus.
//
// Open only prepares the link at the requested speed. It does not check that
// a device answers; the first request does that.
type Port interface {
	Open(ctx context.Context, baud registers.Baud) (Conn, error)
}

// Conn is an open link to one slave at one speed.
// Every error is a transport failure for the caller: timeouts, CRC errors and
// exception responses are not told apart.
type Conn interface {
	ReadRegisters(ctx context.Context, address, quantity uint16) ([]uint16, error)
	WriteRegisters(ctx context.Context, address uint16, values []uint16) error
	WriteCoil(ctx context.Context, address uint16, on bool) error
	ReadCoils(ctx context.Context, address, quantity uint16) ([]bool, error)
	Close() error
}

// Sender exchanges one PDU with a slave. It is what a PDU level link (RTU
// over serial, the simulator) has to offer to be wrapped in a Session.
type Sender interface {
	Send(ctx context.Context, slaveID byte, pdu modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error)
	Close() error
}
