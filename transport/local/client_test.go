// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package local

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ffutop/mmsetup/internal/config"
	"github.com/ffutop/mmsetup/internal/registers"
	"github.com/ffutop/mmsetup/internal/settings"
	"github.com/ffutop/mmsetup/internal/setup"
	"github.com/ffutop/mmsetup/internal/simulator"
)

func TestPort_NoResponseAtWrongSpeed(t *testing.T) {
	p, err := NewPort(config.SimulatorConfig{Mode: "flomac", Baud: 19200}, 1)
	require.NoError(t, err)
	defer p.Close()

	conn, err := p.Open(context.Background(), registers.Baud9600)
	require.NoError(t, err)
	_, err = conn.ReadRegisters(context.Background(), registers.MapSelect, 1)
	assert.ErrorIs(t, err, simulator.ErrNoResponse)

	conn, err = p.Open(context.Background(), registers.Baud19200)
	require.NoError(t, err)
	v, err := conn.ReadRegisters(context.Background(), registers.MapSelect, 1)
	require.NoError(t, err)
	assert.Equal(t, []uint16{0}, v)
}

func TestNewPort_BadConfig(t *testing.T) {
	_, err := NewPort(config.SimulatorConfig{Mode: "x", Baud: 9600}, 1)
	assert.Error(t, err)
	_, err = NewPort(config.SimulatorConfig{Mode: "mmi", Baud: 9601}, 1)
	assert.Error(t, err)
	_, err = NewPort(config.SimulatorConfig{Mode: "mmi", Baud: 9600, Persistence: config.PersistenceConfig{Type: "mmap"}}, 1)
	assert.Error(t, err)
}

func runSetup(t *testing.T, p *Port, dir settings.Direction) setup.Summary {
	t.Helper()
	sum, err := setup.Run(context.Background(), p, setup.Options{
		Registers:   setup.DefaultRegisters(),
		High:        registers.Baud115200,
		Low:         registers.Baud9600,
		Direction:   dir,
		Table:       settings.Default(),
		SettleDelay: time.Millisecond,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	return sum
}

func TestSetupAgainstSimulator(t *testing.T) {
	p, err := NewPort(config.SimulatorConfig{
		Mode:        "mmi",
		Baud:        115200,
		Persistence: config.PersistenceConfig{Type: "file", Path: filepath.Join(t.TempDir(), "meter.bin")},
	}, 1)
	require.NoError(t, err)
	defer p.Close()

	sum := runSetup(t, p, settings.Reversed)
	assert.Equal(t, setup.Summary{Applied: len(settings.Default())}, sum)

	m := p.Meter()
	assert.Equal(t, registers.Baud9600, m.Baud())
	assert.Equal(t, registers.ModeMMI, m.Mode())
	assert.Equal(t, uint16(2), m.Register(registers.ModeFlomac, registers.FlomacTotalizer1Mode))
	assert.Equal(t, uint16(2), m.Register(registers.ModeFlomac, registers.FlomacTotalizer2Mode))
	assert.Equal(t, uint16(2), m.Register(registers.ModeMMI, registers.MMIDisplayMode))
	assert.True(t, m.Coil(registers.ModeMMI, registers.MMICoilTotalizers))
	assert.False(t, m.Coil(registers.ModeMMI, registers.MMICoilSimulation))

	// a second run finds the meter at the low speed and does it again
	sum = runSetup(t, p, settings.Straight)
	assert.Equal(t, setup.Summary{Applied: len(settings.Default())}, sum)
	assert.Equal(t, uint16(1), m.Register(registers.ModeFlomac, registers.FlomacTotalizer1Mode))
}
