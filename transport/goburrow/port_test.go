// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package goburrow

import (
	"context"
	"testing"

	"github.com/goburrow/modbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ffutop/mmsetup/internal/registers"
	"github.com/ffutop/mmsetup/internal/simulator"
	"github.com/ffutop/mmsetup/internal/simulator/persistence"
	"github.com/ffutop/mmsetup/transport/rtu"
)

// lineTransporter carries RTU frames to a simulated meter at one speed.
type lineTransporter struct {
	meter  *simulator.Meter
	baud   registers.Baud
	closed bool
}

func (l *lineTransporter) Send(aduRequest []byte) ([]byte, error) {
	req, err := rtu.Decode(aduRequest)
	if err != nil {
		return nil, err
	}
	resp, err := l.meter.Serve(l.baud, req.SlaveID, req.Pdu)
	if err != nil {
		return nil, err
	}
	out := &rtu.ApplicationDataUnit{SlaveID: req.SlaveID, Pdu: resp}
	return out.Encode()
}

func (l *lineTransporter) Close() error {
	l.closed = true
	return nil
}

func newSimConn(t *testing.T, baud registers.Baud) (*Conn, *simulator.Meter, *lineTransporter) {
	t.Helper()
	meter, err := simulator.New(1, persistence.NewMemoryStorage(), registers.ModeFlomac, registers.Baud9600)
	require.NoError(t, err)

	packager := modbus.NewRTUClientHandler("")
	packager.SlaveId = 1
	line := &lineTransporter{meter: meter, baud: baud}
	return NewConn(modbus.NewClient2(packager, line), line), meter, line
}

func TestConn_RoundTrip(t *testing.T) {
	conn, meter, line := newSimConn(t, registers.Baud9600)
	ctx := context.Background()

	require.NoError(t, conn.WriteRegisters(ctx, registers.FlomacTotalizer1Mode, []uint16{2}))
	assert.Equal(t, uint16(2), meter.Register(registers.ModeFlomac, registers.FlomacTotalizer1Mode))

	values, err := conn.ReadRegisters(ctx, registers.FlomacTotalizer1Mode, 1)
	require.NoError(t, err)
	assert.Equal(t, []uint16{2}, values)

	require.NoError(t, conn.WriteRegisters(ctx, registers.MapSelect, []uint16{uint16(registers.ModeMMI)}))
	require.NoError(t, conn.WriteCoil(ctx, registers.MMICoilTotalizers, true))
	assert.True(t, meter.Coil(registers.ModeMMI, registers.MMICoilTotalizers))

	bits, err := conn.ReadCoils(ctx, registers.MMICoilTotalizers-1, 3)
	require.NoError(t, err)
	assert.Equal(t, []bool{false, true, false}, bits)

	require.NoError(t, conn.Close())
	assert.True(t, line.closed)
}

func TestConn_Errors(t *testing.T) {
	conn, _, _ := newSimConn(t, registers.Baud19200)
	_, err := conn.ReadRegisters(context.Background(), registers.MapSelect, 1)
	assert.ErrorIs(t, err, simulator.ErrNoResponse)

	conn, _, _ = newSimConn(t, registers.Baud9600)
	err = conn.WriteRegisters(context.Background(), registers.MapSelect, []uint16{7})
	var merr *modbus.ModbusError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, byte(modbus.ExceptionCodeIllegalDataValue), merr.ExceptionCode)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, conn.WriteCoil(ctx, 1, true), context.Canceled)
}
