// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package simulator

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ffutop/mmsetup/internal/registers"
	"github.com/ffutop/mmsetup/internal/simulator/persistence"
	"github.com/ffutop/mmsetup/modbus"
)

func newMeter(t *testing.T, mode registers.Mode, baud registers.Baud) *Meter {
	t.Helper()
	m, err := New(1, persistence.NewMemoryStorage(), mode, baud)
	require.NoError(t, err)
	return m
}

func pdu(fc byte, data ...byte) modbus.ProtocolDataUnit {
	return modbus.ProtocolDataUnit{FunctionCode: fc, Data: data}
}

func TestMeter_Silence(t *testing.T) {
	m := newMeter(t, registers.ModeFlomac, registers.Baud115200)
	read := pdu(modbus.FuncCodeReadHoldingRegisters, 0x01, 0xB4, 0x00, 0x01)

	_, err := m.Serve(registers.Baud9600, 1, read)
	assert.ErrorIs(t, err, ErrNoResponse)

	_, err = m.Serve(registers.Baud115200, 2, read)
	assert.ErrorIs(t, err, ErrNoResponse)

	resp, err := m.Serve(registers.Baud115200, 1, read)
	require.NoError(t, err)
	assert.Equal(t, pdu(0x03, 0x02, 0x00, 0x00), resp)
}

func TestMeter_MapSwitch(t *testing.T) {
	m := newMeter(t, registers.ModeFlomac, registers.Baud9600)

	// same address, different quantity per map
	_, err := m.Serve(registers.Baud9600, 1, pdu(0x10, 0x00, 0x22, 0x00, 0x01, 0x02, 0x00, 0x07))
	require.NoError(t, err)

	resp, err := m.Serve(registers.Baud9600, 1, pdu(0x10, 0x01, 0xB4, 0x00, 0x01, 0x02, 0x00, 0x01))
	require.NoError(t, err)
	assert.Equal(t, pdu(0x10, 0x01, 0xB4, 0x00, 0x01), resp)
	assert.Equal(t, registers.ModeMMI, m.Mode())

	_, err = m.Serve(registers.Baud9600, 1, pdu(0x10, 0x00, 0x22, 0x00, 0x01, 0x02, 0x00, 0x02))
	require.NoError(t, err)

	assert.Equal(t, uint16(7), m.Register(registers.ModeFlomac, 34))
	assert.Equal(t, uint16(2), m.Register(registers.ModeMMI, 34))

	// the map register reads the same in both maps
	resp, err = m.Serve(registers.Baud9600, 1, pdu(0x03, 0x01, 0xB3, 0x00, 0x02))
	require.NoError(t, err)
	assert.Equal(t, pdu(0x03, 0x04, 0x00, 0x00, 0x00, 0x01), resp)
}

func TestMeter_InvalidMapValue(t *testing.T) {
	m := newMeter(t, registers.ModeFlomac, registers.Baud9600)

	resp, err := m.Serve(registers.Baud9600, 1, pdu(0x10, 0x01, 0xB4, 0x00, 0x01, 0x02, 0x00, 0x05))
	require.NoError(t, err)
	assert.Equal(t, modbus.NewException(0x10, modbus.ExceptionCodeIllegalDataValue), resp)
	assert.Equal(t, registers.ModeFlomac, m.Mode())
}

func TestMeter_BaudChangeAfterResponse(t *testing.T) {
	m := newMeter(t, registers.ModeFlomac, registers.Baud115200)

	resp, err := m.Serve(registers.Baud115200, 1, pdu(0x10, 0x01, 0xAF, 0x00, 0x01, 0x02, 0x00, 0x03))
	require.NoError(t, err)
	assert.False(t, resp.IsException())
	assert.Equal(t, registers.Baud9600, m.Baud())

	_, err = m.Serve(registers.Baud115200, 1, pdu(0x03, 0x01, 0xB4, 0x00, 0x01))
	assert.ErrorIs(t, err, ErrNoResponse)

	resp, err = m.Serve(registers.Baud9600, 1, pdu(0x10, 0x01, 0xAF, 0x00, 0x01, 0x02, 0x00, 0x0A))
	require.NoError(t, err)
	assert.Equal(t, modbus.NewException(0x10, modbus.ExceptionCodeIllegalDataValue), resp)
	assert.Equal(t, registers.Baud9600, m.Baud())
}

func TestMeter_BaudRegisterOnlyInFlomacMap(t *testing.T) {
	m := newMeter(t, registers.ModeMMI, registers.Baud9600)

	_, err := m.Serve(registers.Baud9600, 1, pdu(0x10, 0x01, 0xAF, 0x00, 0x01, 0x02, 0x00, 0x09))
	require.NoError(t, err)
	assert.Equal(t, registers.Baud9600, m.Baud())
	assert.Equal(t, uint16(9), m.Register(registers.ModeMMI, registers.FlomacBaudRate))
}

func TestMeter_Coils(t *testing.T) {
	m := newMeter(t, registers.ModeMMI, registers.Baud9600)

	resp, err := m.Serve(registers.Baud9600, 1, pdu(0x05, 0x00, 0x26, 0xFF, 0x00))
	require.NoError(t, err)
	assert.Equal(t, pdu(0x05, 0x00, 0x26, 0xFF, 0x00), resp)
	assert.True(t, m.Coil(registers.ModeMMI, 38))
	assert.False(t, m.Coil(registers.ModeFlomac, 38))

	resp, err = m.Serve(registers.Baud9600, 1, pdu(0x01, 0x00, 0x25, 0x00, 0x03))
	require.NoError(t, err)
	assert.Equal(t, pdu(0x01, 0x01, 0x02), resp)

	resp, err = m.Serve(registers.Baud9600, 1, pdu(0x05, 0x00, 0x26, 0x12, 0x34))
	require.NoError(t, err)
	assert.True(t, resp.IsException())
}

func TestMeter_IllegalFunction(t *testing.T) {
	m := newMeter(t, registers.ModeFlomac, registers.Baud9600)
	resp, err := m.Serve(registers.Baud9600, 1, pdu(0x2B, 0x0E, 0x01, 0x00))
	require.NoError(t, err)
	assert.Equal(t, modbus.NewException(0x2B, modbus.ExceptionCodeIllegalFunction), resp)
}

func TestMeter_PersistsAcrossRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meter.bin")

	m, err := New(1, persistence.NewMmapStorage(path), registers.ModeMMI, registers.Baud115200)
	require.NoError(t, err)
	_, err = m.Serve(registers.Baud115200, 1, pdu(0x10, 0x01, 0xB4, 0x00, 0x01, 0x02, 0x00, 0x00))
	require.NoError(t, err)
	_, err = m.Serve(registers.Baud115200, 1, pdu(0x10, 0x01, 0xAF, 0x00, 0x01, 0x02, 0x00, 0x03))
	require.NoError(t, err)
	require.NoError(t, m.Close())

	// initial values only seed a fresh store
	m, err = New(1, persistence.NewMmapStorage(path), registers.ModeMMI, registers.Baud115200)
	require.NoError(t, err)
	defer m.Close()
	assert.Equal(t, registers.ModeFlomac, m.Mode())
	assert.Equal(t, registers.Baud9600, m.Baud())
}

func TestNew_UnsupportedBaud(t *testing.T) {
	_, err := New(1, persistence.NewMemoryStorage(), registers.ModeFlomac, registers.Baud(300))
	assert.Error(t, err)
}
