// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package setup brings a mass meter to a known map and speed and writes its
// settings.
//
// A run is strictly sequential: Probe finds the meter, the Reconciler moves
// it to the Flomac map at the low speed, and the Sequencer applies the
// settings table with a single switch to the MMI map halfway through.
package setup

import (
	"context"
	"log/slog"
	"time"

	"github.com/ffutop/mmsetup/internal/registers"
	"github.com/ffutop/mmsetup/internal/settings"
	"github.com/ffutop/mmsetup/transport"
)

// Options configures a Run.
type Options struct {
	Registers   Registers
	High        registers.Baud
	Low         registers.Baud
	Direction   settings.Direction
	Table       settings.Table
	SettleDelay time.Duration
	Logger      *slog.Logger

	// Sleep replaces the settle wait; nil waits for real.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Run probes, reconciles and applies opts.Table. The link is closed before
// Run returns, whatever the outcome.
func Run(ctx context.Context, port transport.Port, opts Options) (Summary, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	link, err := Probe(ctx, port, opts.Registers, opts.High, opts.Low, logger)
	if err != nil {
		return Summary{}, err
	}
	defer link.Close()

	rec := &Reconciler{
		Registers:   opts.Registers,
		SettleDelay: opts.SettleDelay,
		Logger:      logger,
		Sleep:       opts.Sleep,
	}
	if err := rec.Reconcile(ctx, link, opts.Low); err != nil {
		return Summary{}, err
	}
	logger.Info("link ready", "state", link.State)

	batch := opts.Table.Patch(opts.Direction)
	seq := &Sequencer{Registers: opts.Registers, Logger: logger}
	sum, err := seq.Apply(ctx, link, batch)
	if err != nil {
		return sum, err
	}
	logger.Info("setup finished", "applied", sum.Applied, "failed", sum.Failed, "direction", opts.Direction)
	return sum, nil
}
