// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package setup

import (
	"context"
	"fmt"

	"github.com/ffutop/mmsetup/internal/registers"
	"github.com/ffutop/mmsetup/transport"
)

// Registers names the two registers the link protocol itself touches.
type Registers struct {
	ModeSelect uint16
	BaudRate   uint16
}

// DefaultRegisters returns the addresses used by the meter.
func DefaultRegisters() Registers {
	return Registers{
		ModeSelect: registers.MapSelect,
		BaudRate:   registers.FlomacBaudRate,
	}
}

// LinkState is what the host believes about the meter.
type LinkState struct {
	Mode registers.Mode
	Baud registers.Baud
}

func (s LinkState) String() string {
	return fmt.Sprintf("%s@%s", s.Mode, s.Baud)
}

// Link is the one open connection of a run together with the state it was
// found in. It is not safe for concurrent use.
type Link struct {
	State LinkState

	port transport.Port
	conn transport.Conn
}

// Conn returns the open connection, or nil after Close.
func (l *Link) Conn() transport.Conn {
	return l.conn
}

// Reopen closes the connection and opens a new one at baud.
func (l *Link) Reopen(ctx context.Context, baud registers.Baud) error {
	// the old line is at the wrong speed by now; a failed close changes nothing
	_ = l.Close()
	conn, err := l.port.Open(ctx, baud)
	if err != nil {
		return err
	}
	l.conn = conn
	l.State.Baud = baud
	return nil
}

// Close releases the connection. It is safe to call more than once.
func (l *Link) Close() error {
	if l.conn == nil {
		return nil
	}
	err := l.conn.Close()
	l.conn = nil
	return err
}
