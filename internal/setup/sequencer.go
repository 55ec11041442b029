// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package setup

import (
	"cmp"
	"context"
	"log/slog"
	"slices"

	"github.com/ffutop/mmsetup/internal/registers"
	"github.com/ffutop/mmsetup/internal/settings"
)

// Groups is a sorted batch split by the map and primitive it needs.
type Groups struct {
	ModeA          []settings.Entry
	ModeBCoils     []settings.Entry
	ModeBRegisters []settings.Entry
}

// Summary counts the outcome of an Apply.
type Summary struct {
	Applied int
	Failed  int
}

// Sort orders batch in place: Flomac entries before MMI entries, coils
// before registers within a map, then by address. Equal keys keep their
// relative order.
func Sort(batch []settings.Entry) {
	slices.SortStableFunc(batch, func(a, b settings.Entry) int {
		if c := cmp.Compare(mapRank(a.Mode), mapRank(b.Mode)); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Kind, b.Kind); c != 0 {
			return c
		}
		return cmp.Compare(a.Address, b.Address)
	})
}

// mapRank puts every map other than MMI first; those entries are applied
// with the Flomac map selected.
func mapRank(m registers.Mode) int {
	if m == registers.ModeMMI {
		return 1
	}
	return 0
}

// Partition splits a sorted batch. The order inside each group is kept.
func Partition(batch []settings.Entry) Groups {
	var g Groups
	for _, e := range batch {
		switch {
		case e.Mode != registers.ModeMMI:
			g.ModeA = append(g.ModeA, e)
		case e.Kind == settings.Coil:
			g.ModeBCoils = append(g.ModeBCoils, e)
		default:
			g.ModeBRegisters = append(g.ModeBRegisters, e)
		}
	}
	return g
}

// Sequencer writes a settings batch over a link that has the Flomac map
// selected.
type Sequencer struct {
	Registers Registers
	Logger    *slog.Logger
}

// Apply sorts a copy of batch and writes it: the Flomac group, one map
// switch to MMI, then MMI coils and MMI registers. A failed entry is logged
// and counted. Only a failed map switch, or a cancelled ctx, ends Apply with
// an error.
func (s *Sequencer) Apply(ctx context.Context, link *Link, batch settings.Table) (Summary, error) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	sorted := batch.Clone()
	Sort(sorted)
	groups := Partition(sorted)

	var sum Summary
	if err := s.applyGroup(ctx, link, groups.ModeA, &sum, logger); err != nil {
		return sum, err
	}

	logger.Info("selecting register map", "from", link.State.Mode, "to", registers.ModeMMI)
	if err := link.Conn().WriteRegisters(ctx, s.Registers.ModeSelect, []uint16{uint16(registers.ModeMMI)}); err != nil {
		return sum, &ReconcileError{Op: "select mmi map", Err: err}
	}
	link.State.Mode = registers.ModeMMI

	if err := s.applyGroup(ctx, link, groups.ModeBCoils, &sum, logger); err != nil {
		return sum, err
	}
	if err := s.applyGroup(ctx, link, groups.ModeBRegisters, &sum, logger); err != nil {
		return sum, err
	}
	return sum, nil
}

func (s *Sequencer) applyGroup(ctx context.Context, link *Link, group []settings.Entry, sum *Summary, logger *slog.Logger) error {
	for _, e := range group {
		if err := ctx.Err(); err != nil {
			return err
		}

		attrs := []any{"name", e.Name, "map", e.Mode, "kind", e.Kind, "address", e.Address, "value", e.Value}

		var err error
		if e.Kind == settings.Coil {
			err = link.Conn().WriteCoil(ctx, e.Address, e.Value != 0)
		} else {
			err = link.Conn().WriteRegisters(ctx, e.Address, []uint16{e.Value})
		}
		if err != nil {
			sum.Failed++
			logger.Warn("setting failed", append(attrs, "err", err)...)
			continue
		}
		sum.Applied++
		logger.Info("setting applied", attrs...)
	}
	return nil
}
