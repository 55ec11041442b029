// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package dump prints the interesting registers of both maps of a meter.
package dump

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/ffutop/mmsetup/internal/registers"
	"github.com/ffutop/mmsetup/transport"
)

// Header describes the line for the comment block at the top of a dump.
type Header struct {
	Device  string
	Baud    registers.Baud
	SlaveID int
	Time    time.Time
}

// Dumper reads register regions over an open link.
type Dumper struct {
	MapSelect uint16
	Flomac    []registers.Region
	MMI       []registers.Region
	Logger    *slog.Logger
}

// New returns a Dumper for the meter's regions.
func New(logger *slog.Logger) *Dumper {
	return &Dumper{
		MapSelect: registers.MapSelect,
		Flomac:    registers.FlomacDump,
		MMI:       registers.MMIDump,
		Logger:    logger,
	}
}

// Dump writes the Flomac regions then the MMI regions to w, one value per
// line. The map that was active before the dump is selected again when Dump
// returns, unless the first read failed. A failed region read ends the dump.
func (d *Dumper) Dump(ctx context.Context, conn transport.Conn, w io.Writer, h Header) (err error) {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	bw := bufio.NewWriter(w)
	defer func() {
		if ferr := bw.Flush(); err == nil {
			err = ferr
		}
	}()

	fmt.Fprintf(bw, "# Starting registers dump on %s\n", h.Time.Format("2006/01/02 at 15:04:05"))
	fmt.Fprintf(bw, "# dump is done for bus %q at baud %04d device at address %d\n", h.Device, int(h.Baud), h.SlaveID)

	values, err := conn.ReadRegisters(ctx, d.MapSelect, 1)
	if err != nil {
		return fmt.Errorf("failed to read map register %d: %w", d.MapSelect, err)
	}
	original := registers.Mode(values[0])
	fmt.Fprintf(bw, "# received device mode = %d\n", uint16(original))

	defer func() {
		// restore the map on every path once it is known
		if rerr := conn.WriteRegisters(ctx, d.MapSelect, []uint16{uint16(original)}); rerr != nil {
			logger.Warn("failed to restore register map", "map", original, "err", rerr)
			if err == nil {
				err = fmt.Errorf("failed to restore %v map: %w", original, rerr)
			}
		}
	}()

	if err := d.dumpMap(ctx, conn, bw, registers.ModeFlomac, d.Flomac); err != nil {
		return err
	}
	return d.dumpMap(ctx, conn, bw, registers.ModeMMI, d.MMI)
}

func (d *Dumper) dumpMap(ctx context.Context, conn transport.Conn, w io.Writer, mode registers.Mode, regions []registers.Region) error {
	if err := conn.WriteRegisters(ctx, d.MapSelect, []uint16{uint16(mode)}); err != nil {
		return fmt.Errorf("failed to select %v map: %w", mode, err)
	}
	fmt.Fprintf(w, "# reading %s mode\n", mode)

	for _, r := range regions {
		fmt.Fprintf(w, "# Reading %s at %d\n", r.Name, r.Address)
		if err := dumpRegion(ctx, conn, w, r); err != nil {
			return fmt.Errorf("failed to read %s (%v map): %w", r.Name, mode, err)
		}
	}
	return nil
}

func dumpRegion(ctx context.Context, conn transport.Conn, w io.Writer, r registers.Region) error {
	if r.Coils {
		bits, err := conn.ReadCoils(ctx, r.Address, r.Quantity)
		if err != nil {
			return err
		}
		for i, b := range bits {
			v := 0
			if b {
				v = 1
			}
			fmt.Fprintf(w, "%03d -> %d\n", int(r.Address)+i, v)
		}
		return nil
	}

	values, err := conn.ReadRegisters(ctx, r.Address, r.Quantity)
	if err != nil {
		return err
	}
	for i, v := range values {
		fmt.Fprintf(w, "%03d -> %04X\n", int(r.Address)+i, v)
	}
	return nil
}
