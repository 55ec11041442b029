// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package setup

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ffutop/mmsetup/internal/registers"
	"github.com/ffutop/mmsetup/transport"
)

var errNoResponse = errors.New("no response")

// fakeMeter is a meter on a bus that records every host operation.
type fakeMeter struct {
	mode registers.Mode
	baud registers.Baud

	ops  []string
	fail map[string]bool

	// values written per map, keyed by "kind:address"
	values map[registers.Mode]map[string]uint16
}

func newFakeMeter(mode registers.Mode, baud registers.Baud) *fakeMeter {
	return &fakeMeter{
		mode:   mode,
		baud:   baud,
		fail:   map[string]bool{},
		values: map[registers.Mode]map[string]uint16{},
	}
}

func (m *fakeMeter) record(op string) error {
	m.ops = append(m.ops, op)
	if m.fail[op] {
		return errNoResponse
	}
	return nil
}

// writes returns the recorded operations that change the meter.
func (m *fakeMeter) writes() []string {
	var out []string
	for _, op := range m.ops {
		if strings.HasPrefix(op, "write") || strings.HasPrefix(op, "coil") {
			out = append(out, op)
		}
	}
	return out
}

func (m *fakeMeter) count(prefix string) int {
	n := 0
	for _, op := range m.ops {
		if strings.HasPrefix(op, prefix) {
			n++
		}
	}
	return n
}

func (m *fakeMeter) set(kind string, address, value uint16) {
	bank := m.values[m.mode]
	if bank == nil {
		bank = map[string]uint16{}
		m.values[m.mode] = bank
	}
	bank[fmt.Sprintf("%s:%d", kind, address)] = value
}

func (m *fakeMeter) Open(ctx context.Context, baud registers.Baud) (transport.Conn, error) {
	if err := m.record(fmt.Sprintf("open %d", baud)); err != nil {
		return nil, err
	}
	return &fakeConn{meter: m, baud: baud}, nil
}

type fakeConn struct {
	meter *fakeMeter
	baud  registers.Baud
}

func (c *fakeConn) answer(op string) error {
	if err := c.meter.record(op); err != nil {
		return err
	}
	if c.baud != c.meter.baud {
		return errNoResponse
	}
	return nil
}

func (c *fakeConn) ReadRegisters(ctx context.Context, address, quantity uint16) ([]uint16, error) {
	if err := c.answer(fmt.Sprintf("read %d", address)); err != nil {
		return nil, err
	}
	values := make([]uint16, quantity)
	if address == registers.MapSelect {
		values[0] = uint16(c.meter.mode)
	}
	return values, nil
}

func (c *fakeConn) WriteRegisters(ctx context.Context, address uint16, values []uint16) error {
	if err := c.answer(fmt.Sprintf("write %d=%d", address, values[0])); err != nil {
		return err
	}
	switch {
	case address == registers.MapSelect:
		c.meter.mode = registers.Mode(values[0])
	case address == registers.FlomacBaudRate && c.meter.mode == registers.ModeFlomac:
		baud, ok := registers.BaudFromCode(values[0])
		if !ok {
			return errors.New("illegal data value")
		}
		c.meter.baud = baud
	default:
		c.meter.set("reg", address, values[0])
	}
	return nil
}

func (c *fakeConn) WriteCoil(ctx context.Context, address uint16, on bool) error {
	v := uint16(0)
	if on {
		v = 1
	}
	if err := c.answer(fmt.Sprintf("coil %d=%d", address, v)); err != nil {
		return err
	}
	c.meter.set("coil", address, v)
	return nil
}

func (c *fakeConn) ReadCoils(ctx context.Context, address, quantity uint16) ([]bool, error) {
	if err := c.answer(fmt.Sprintf("readcoils %d", address)); err != nil {
		return nil, err
	}
	return make([]bool, quantity), nil
}

func (c *fakeConn) Close() error {
	c.meter.record("close")
	return nil
}
