// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package simulator is an in-process mass meter answering Modbus requests.
//
// It keeps both register maps, follows the map register and the baud rate
// register the way the real meter does, and stays silent when the host talks
// at the wrong speed or to another slave id.
package simulator

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ffutop/mmsetup/internal/registers"
	"github.com/ffutop/mmsetup/internal/simulator/model"
	"github.com/ffutop/mmsetup/internal/simulator/persistence"
	"github.com/ffutop/mmsetup/modbus"
)

// ErrNoResponse is what the host sees when the meter stays silent.
var ErrNoResponse = errors.New("simulator: no response")

// Meter implements the meter's Modbus behaviour on top of a DataModel.
type Meter struct {
	mu      sync.Mutex
	slaveID byte
	model   *model.DataModel
	storage persistence.Storage
}

// New loads the meter from storage. A store that was never used starts in
// mode at baud.
func New(slaveID byte, storage persistence.Storage, mode registers.Mode, baud registers.Baud) (*Meter, error) {
	code, ok := baud.Code()
	if !ok {
		return nil, fmt.Errorf("simulator: unsupported baud rate %v", baud)
	}

	m, err := storage.Load()
	if err != nil {
		return nil, fmt.Errorf("simulator: failed to load data: %w", err)
	}
	if !m.Seeded() {
		slog.Debug("seeding simulated meter", "map", mode, "baud", baud)
		m.Seed(mode, code)
		if err := storage.Save(m); err != nil {
			return nil, fmt.Errorf("simulator: failed to save data: %w", err)
		}
	}

	return &Meter{slaveID: slaveID, model: m, storage: storage}, nil
}

// Mode returns the active register map.
func (mt *Meter) Mode() registers.Mode {
	return mt.model.Mode()
}

// Baud returns the speed the meter currently listens at.
func (mt *Meter) Baud() registers.Baud {
	b, _ := registers.BaudFromCode(mt.model.Register(registers.ModeFlomac, registers.FlomacBaudRate))
	return b
}

// Register returns a holding register of one map, whichever map is active.
func (mt *Meter) Register(mode registers.Mode, address uint16) uint16 {
	if address == registers.MapSelect {
		return uint16(mt.model.Mode())
	}
	return mt.model.Register(mode, address)
}

// Coil returns a coil of one map, whichever map is active.
func (mt *Meter) Coil(mode registers.Mode, address uint16) bool {
	return mt.model.Coil(mode, address)
}

// Serve handles one request sent by a host at baud to slaveID. It returns
// ErrNoResponse when the real meter would not answer.
func (mt *Meter) Serve(baud registers.Baud, slaveID byte, req modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	if slaveID != mt.slaveID || baud != mt.Baud() {
		return modbus.ProtocolDataUnit{}, ErrNoResponse
	}
	return mt.process(req), nil
}

// Close releases the storage.
func (mt *Meter) Close() error {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	return mt.storage.Close()
}

func (mt *Meter) process(req modbus.ProtocolDataUnit) modbus.ProtocolDataUnit {
	switch req.FunctionCode {
	case modbus.FuncCodeReadCoils:
		return mt.handleReadCoils(req)
	case modbus.FuncCodeReadHoldingRegisters:
		return mt.handleReadHoldingRegisters(req)
	case modbus.FuncCodeWriteSingleCoil:
		return mt.handleWriteSingleCoil(req)
	case modbus.FuncCodeWriteSingleRegister:
		return mt.handleWriteSingleRegister(req)
	case modbus.FuncCodeWriteMultipleRegisters:
		return mt.handleWriteMultipleRegisters(req)
	default:
		return modbus.NewException(req.FunctionCode, modbus.ExceptionCodeIllegalFunction)
	}
}

func (mt *Meter) handleReadCoils(req modbus.ProtocolDataUnit) modbus.ProtocolDataUnit {
	if len(req.Data) != 4 {
		return modbus.NewException(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}
	address := binary.BigEndian.Uint16(req.Data[0:2])
	quantity := binary.BigEndian.Uint16(req.Data[2:4])

	if quantity < 1 || quantity > 2000 {
		return modbus.NewException(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}

	data, err := mt.model.ReadCoils(mt.model.Mode(), address, quantity)
	if err != nil {
		return modbus.NewException(req.FunctionCode, modbus.ExceptionCodeIllegalDataAddress)
	}

	respData := make([]byte, 1+len(data))
	respData[0] = byte(len(data))
	copy(respData[1:], data)

	return modbus.ProtocolDataUnit{
		FunctionCode: req.FunctionCode,
		Data:         respData,
	}
}

func (mt *Meter) handleReadHoldingRegisters(req modbus.ProtocolDataUnit) modbus.ProtocolDataUnit {
	if len(req.Data) != 4 {
		return modbus.NewException(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}
	address := binary.BigEndian.Uint16(req.Data[0:2])
	quantity := binary.BigEndian.Uint16(req.Data[2:4])

	if quantity < 1 || quantity > 125 {
		return modbus.NewException(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}

	mode := mt.model.Mode()
	data, err := mt.model.ReadHoldingRegisters(mode, address, quantity)
	if err != nil {
		return modbus.NewException(req.FunctionCode, modbus.ExceptionCodeIllegalDataAddress)
	}
	// the map register lives outside the banks
	if off := int(registers.MapSelect) - int(address); off >= 0 && off < int(quantity) {
		binary.BigEndian.PutUint16(data[off*2:], uint16(mode))
	}

	respData := make([]byte, 1+len(data))
	respData[0] = byte(len(data))
	copy(respData[1:], data)

	return modbus.ProtocolDataUnit{
		FunctionCode: req.FunctionCode,
		Data:         respData,
	}
}

func (mt *Meter) handleWriteSingleCoil(req modbus.ProtocolDataUnit) modbus.ProtocolDataUnit {
	if len(req.Data) != 4 {
		return modbus.NewException(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}
	address := binary.BigEndian.Uint16(req.Data[0:2])
	value := binary.BigEndian.Uint16(req.Data[2:4])

	if err := mt.model.WriteSingleCoil(mt.model.Mode(), address, value); err != nil {
		return modbus.NewException(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}
	mt.storage.OnWrite(model.TableCoils, address, 1)

	return req // Echo request
}

func (mt *Meter) handleWriteSingleRegister(req modbus.ProtocolDataUnit) modbus.ProtocolDataUnit {
	if len(req.Data) != 4 {
		return modbus.NewException(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}
	address := binary.BigEndian.Uint16(req.Data[0:2])

	if code := mt.writeRegisters(address, 1, req.Data[2:4]); code != 0 {
		return modbus.NewException(req.FunctionCode, code)
	}
	return req // Echo request
}

func (mt *Meter) handleWriteMultipleRegisters(req modbus.ProtocolDataUnit) modbus.ProtocolDataUnit {
	if len(req.Data) < 7 {
		return modbus.NewException(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}
	address := binary.BigEndian.Uint16(req.Data[0:2])
	quantity := binary.BigEndian.Uint16(req.Data[2:4])
	byteCount := req.Data[4]

	if quantity < 1 || quantity > 123 {
		return modbus.NewException(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}

	if len(req.Data)-5 != int(byteCount) || int(byteCount) != int(quantity)*2 {
		return modbus.NewException(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}

	if code := mt.writeRegisters(address, quantity, req.Data[5:]); code != 0 {
		return modbus.NewException(req.FunctionCode, code)
	}

	respData := make([]byte, 4)
	binary.BigEndian.PutUint16(respData[0:2], address)
	binary.BigEndian.PutUint16(respData[2:4], quantity)

	return modbus.ProtocolDataUnit{
		FunctionCode: req.FunctionCode,
		Data:         respData,
	}
}

// writeRegisters stores values into the active map and applies the map and
// baud rate registers. It returns an exception code, or 0.
func (mt *Meter) writeRegisters(address, quantity uint16, data []byte) byte {
	mode := mt.model.Mode()
	value := func(a uint16) (uint16, bool) {
		off := int(a) - int(address)
		if off < 0 || off >= int(quantity) {
			return 0, false
		}
		return binary.BigEndian.Uint16(data[off*2:]), true
	}

	newMode, setMode := value(registers.MapSelect)
	if setMode && newMode != uint16(registers.ModeFlomac) && newMode != uint16(registers.ModeMMI) {
		return modbus.ExceptionCodeIllegalDataValue
	}
	if mode == registers.ModeFlomac {
		if code, ok := value(registers.FlomacBaudRate); ok {
			if _, valid := registers.BaudFromCode(code); !valid {
				return modbus.ExceptionCodeIllegalDataValue
			}
		}
	}

	if err := mt.model.WriteMultipleRegisters(mode, address, quantity, data); err != nil {
		return modbus.ExceptionCodeIllegalDataAddress
	}
	mt.storage.OnWrite(model.TableHoldingRegisters, address, quantity)

	if setMode && registers.Mode(newMode) != mode {
		slog.Debug("simulated meter switched map", "from", mode, "to", registers.Mode(newMode))
		mt.model.SetMode(registers.Mode(newMode))
		mt.storage.OnWrite(model.TableMeta, 0, model.MetaWords)
	}
	return 0
}
