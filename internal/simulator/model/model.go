// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package model

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/ffutop/mmsetup/internal/registers"
)

const (
	MaxAddress = 65535

	// MetaWords is the size of the header shared by both banks.
	MetaWords = 4
)

// Header words.
const (
	metaMagicHigh = iota
	metaMagicLow
	metaMode
)

const (
	magicHigh uint16 = 0x4D4D // "MM"
	magicLow  uint16 = 0x5331 // "S1"
)

// TableType represents the type of Modbus data table.
type TableType int

const (
	TableMeta TableType = iota
	TableCoils
	TableHoldingRegisters
)

// Bank is the data behind one register map.
type Bank struct {
	// 0x Coils (Read/Write). Stored as 1 (ON) or 0 (OFF).
	Coils []byte
	// 4x Holding Registers (Read/Write).
	HoldingRegisters []uint16
}

// DataModel holds both register maps of the meter, flat over the full 16-bit
// address space, plus a small header with the active map.
type DataModel struct {
	mu sync.RWMutex

	Meta  []uint16
	Banks [2]Bank
}

// NewDataModel creates a new memory model initialized to zero.
func NewDataModel() *DataModel {
	m := &DataModel{Meta: make([]uint16, MetaWords)}
	for i := range m.Banks {
		m.Banks[i] = Bank{
			Coils:            make([]byte, MaxAddress+1),
			HoldingRegisters: make([]uint16, MaxAddress+1),
		}
	}
	return m
}

// Seeded reports whether the model was seeded by Seed.
func (m *DataModel) Seeded() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Meta[metaMagicHigh] == magicHigh && m.Meta[metaMagicLow] == magicLow
}

// Seed marks the model as initialized with an active map and a baud code.
func (m *DataModel) Seed(mode registers.Mode, baudCode uint16) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Meta[metaMagicHigh] = magicHigh
	m.Meta[metaMagicLow] = magicLow
	m.Meta[metaMode] = uint16(mode)
	m.Banks[registers.ModeFlomac].HoldingRegisters[registers.FlomacBaudRate] = baudCode
}

// Mode returns the active register map.
func (m *DataModel) Mode() registers.Mode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return registers.Mode(m.Meta[metaMode])
}

// SetMode switches the active register map.
func (m *DataModel) SetMode(mode registers.Mode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Meta[metaMode] = uint16(mode)
}

// Register returns one holding register of a bank.
func (m *DataModel) Register(mode registers.Mode, address uint16) uint16 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, err := m.bank(mode)
	if err != nil {
		return 0
	}
	return b.HoldingRegisters[address]
}

// Coil returns one coil of a bank.
func (m *DataModel) Coil(mode registers.Mode, address uint16) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, err := m.bank(mode)
	if err != nil {
		return false
	}
	return b.Coils[address] != 0
}

func (m *DataModel) bank(mode registers.Mode) (*Bank, error) {
	if int(mode) >= len(m.Banks) {
		return nil, fmt.Errorf("no bank for %v", mode)
	}
	return &m.Banks[mode], nil
}

// ReadCoils reads a range of coils and returns them as packed bytes (Modbus format).
func (m *DataModel) ReadCoils(mode registers.Mode, address, quantity uint16) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, err := m.bank(mode)
	if err != nil {
		return nil, err
	}
	if err := validateRange(address, quantity); err != nil {
		return nil, err
	}

	// Calculate byte count: (quantity + 7) / 8
	byteCount := (int(quantity) + 7) / 8
	result := make([]byte, byteCount)

	for i := 0; i < int(quantity); i++ {
		if b.Coils[int(address)+i] != 0 {
			result[i/8] |= 1 << uint(i%8)
		}
	}
	return result, nil
}

// WriteSingleCoil writes a single coil. value must be 0xFF00 (ON) or 0x0000 (OFF).
func (m *DataModel) WriteSingleCoil(mode registers.Mode, address uint16, value uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, err := m.bank(mode)
	if err != nil {
		return err
	}

	switch value {
	case 0xFF00:
		b.Coils[address] = 1
	case 0x0000:
		b.Coils[address] = 0
	default:
		return fmt.Errorf("invalid coil value %#04x", value)
	}
	return nil
}

// ReadHoldingRegisters reads a range of holding registers and returns them as BigEndian bytes.
func (m *DataModel) ReadHoldingRegisters(mode registers.Mode, address, quantity uint16) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, err := m.bank(mode)
	if err != nil {
		return nil, err
	}
	if err := validateRange(address, quantity); err != nil {
		return nil, err
	}

	result := make([]byte, int(quantity)*2)
	for i := 0; i < int(quantity); i++ {
		binary.BigEndian.PutUint16(result[i*2:], b.HoldingRegisters[int(address)+i])
	}
	return result, nil
}

// WriteMultipleRegisters writes a range of holding registers from BigEndian bytes.
func (m *DataModel) WriteMultipleRegisters(mode registers.Mode, address, quantity uint16, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, err := m.bank(mode)
	if err != nil {
		return err
	}
	if err := validateRange(address, quantity); err != nil {
		return err
	}
	if len(data) < int(quantity)*2 {
		return fmt.Errorf("insufficient data length")
	}

	for i := 0; i < int(quantity); i++ {
		b.HoldingRegisters[int(address)+i] = binary.BigEndian.Uint16(data[i*2:])
	}
	return nil
}

func validateRange(address, quantity uint16) error {
	if quantity == 0 {
		return fmt.Errorf("quantity must be greater than 0")
	}
	// address is 0-based.
	if int(address)+int(quantity) > MaxAddress+1 {
		return fmt.Errorf("address range out of bounds")
	}
	return nil
}
