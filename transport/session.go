// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package transport

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/ffutop/mmsetup/modbus"
)

const (
	maxReadRegisters  = 125
	maxWriteRegisters = 123
	maxReadCoils      = 2000
)

// Session implements Conn on top of a PDU Sender bound to one slave id.
type Session struct {
	sender  Sender
	slaveID byte
}

// NewSession wraps sender for slaveID.
func NewSession(sender Sender, slaveID byte) *Session {
	return &Session{sender: sender, slaveID: slaveID}
}

func (s *Session) ReadRegisters(ctx context.Context, address, quantity uint16) ([]uint16, error) {
	if quantity < 1 || quantity > maxReadRegisters {
		return nil, fmt.Errorf("modbus: quantity '%v' must be between '1' and '%v'", quantity, maxReadRegisters)
	}
	resp, err := s.send(ctx, modbus.FuncCodeReadHoldingRegisters, pack(address, quantity))
	if err != nil {
		return nil, err
	}
	if len(resp.Data) < 1 {
		return nil, fmt.Errorf("modbus: short read-registers payload")
	}
	count := int(resp.Data[0])
	if count != int(quantity)*2 || len(resp.Data)-1 != count {
		return nil, fmt.Errorf("modbus: response data size '%v' does not match count '%v'", len(resp.Data)-1, quantity*2)
	}
	values := make([]uint16, quantity)
	for i := range values {
		values[i] = binary.BigEndian.Uint16(resp.Data[1+i*2:])
	}
	return values, nil
}

func (s *Session) WriteRegisters(ctx context.Context, address uint16, values []uint16) error {
	quantity := len(values)
	if quantity < 1 || quantity > maxWriteRegisters {
		return fmt.Errorf("modbus: quantity '%v' must be between '1' and '%v'", quantity, maxWriteRegisters)
	}
	data := make([]byte, 5+quantity*2)
	binary.BigEndian.PutUint16(data[0:], address)
	binary.BigEndian.PutUint16(data[2:], uint16(quantity))
	data[4] = byte(quantity * 2)
	for i, v := range values {
		binary.BigEndian.PutUint16(data[5+i*2:], v)
	}

	resp, err := s.send(ctx, modbus.FuncCodeWriteMultipleRegisters, data)
	if err != nil {
		return err
	}
	return checkEcho(resp, address, uint16(quantity))
}

func (s *Session) WriteCoil(ctx context.Context, address uint16, on bool) error {
	value := modbus.CoilOff
	if on {
		value = modbus.CoilOn
	}
	resp, err := s.send(ctx, modbus.FuncCodeWriteSingleCoil, pack(address, value))
	if err != nil {
		return err
	}
	return checkEcho(resp, address, value)
}

func (s *Session) ReadCoils(ctx context.Context, address, quantity uint16) ([]bool, error) {
	if quantity < 1 || quantity > maxReadCoils {
		return nil, fmt.Errorf("modbus: quantity '%v' must be between '1' and '%v'", quantity, maxReadCoils)
	}
	resp, err := s.send(ctx, modbus.FuncCodeReadCoils, pack(address, quantity))
	if err != nil {
		return nil, err
	}
	want := (int(quantity) + 7) / 8
	if len(resp.Data) < 1 || int(resp.Data[0]) != want || len(resp.Data)-1 != want {
		return nil, fmt.Errorf("modbus: read-coils payload does not match quantity '%v'", quantity)
	}
	bits := make([]bool, quantity)
	for i := range bits {
		bits[i] = resp.Data[1+i/8]&(1<<uint(i%8)) != 0
	}
	return bits, nil
}

func (s *Session) Close() error {
	return s.sender.Close()
}

func (s *Session) send(ctx context.Context, funcCode byte, data []byte) (modbus.ProtocolDataUnit, error) {
	resp, err := s.sender.Send(ctx, s.slaveID, modbus.ProtocolDataUnit{FunctionCode: funcCode, Data: data})
	if err != nil {
		return modbus.ProtocolDataUnit{}, err
	}
	if resp.IsException() {
		var code byte
		if len(resp.Data) > 0 {
			code = resp.Data[0]
		}
		return modbus.ProtocolDataUnit{}, &modbus.Exception{FunctionCode: resp.FunctionCode, ExceptionCode: code}
	}
	if resp.FunctionCode != funcCode {
		return modbus.ProtocolDataUnit{}, fmt.Errorf("modbus: response function '%v' does not match request '%v'", resp.FunctionCode, funcCode)
	}
	return resp, nil
}

func pack(a, b uint16) []byte {
	data := make([]byte, 4)
	binary.BigEndian.PutUint16(data[0:], a)
	binary.BigEndian.PutUint16(data[2:], b)
	return data
}

func checkEcho(resp modbus.ProtocolDataUnit, a, b uint16) error {
	if len(resp.Data) != 4 {
		return fmt.Errorf("modbus: response data size '%v' does not match expected '4'", len(resp.Data))
	}
	if got := binary.BigEndian.Uint16(resp.Data[0:]); got != a {
		return fmt.Errorf("modbus: response address '%v' does not match request '%v'", got, a)
	}
	if got := binary.BigEndian.Uint16(resp.Data[2:]); got != b {
		return fmt.Errorf("modbus: response value '%v' does not match request '%v'", got, b)
	}
	return nil
}
