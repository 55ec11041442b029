// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package setup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ffutop/mmsetup/internal/registers"
)

// Reconciler drives a link to the Flomac map at a goal speed.
type Reconciler struct {
	Registers Registers
	// SettleDelay is waited after the baud register is written, before the
	// host reopens the line at the new speed.
	SettleDelay time.Duration
	Logger      *slog.Logger

	// Sleep defaults to a context aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Reconcile selects the Flomac map if needed, then changes the speed to goal
// if needed. A link already in that state sees no write at all. Every
// failure is a *ReconcileError.
func (r *Reconciler) Reconcile(ctx context.Context, link *Link, goal registers.Baud) error {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sleep := r.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	if link.State.Mode != registers.ModeFlomac {
		logger.Info("selecting register map", "from", link.State.Mode, "to", registers.ModeFlomac)
		if err := link.Conn().WriteRegisters(ctx, r.Registers.ModeSelect, []uint16{uint16(registers.ModeFlomac)}); err != nil {
			return &ReconcileError{Op: "select flomac map", Err: err}
		}
		link.State.Mode = registers.ModeFlomac
	}

	if link.State.Baud == goal {
		return nil
	}

	code, ok := goal.Code()
	if !ok {
		return &ReconcileError{Op: "set baud rate", Err: fmt.Errorf("unsupported baud rate %v", goal)}
	}
	logger.Info("changing baud rate", "from", link.State.Baud, "to", goal)
	if err := link.Conn().WriteRegisters(ctx, r.Registers.BaudRate, []uint16{code}); err != nil {
		return &ReconcileError{Op: "set baud rate", Err: err}
	}
	if err := sleep(ctx, r.SettleDelay); err != nil {
		return &ReconcileError{Op: "settle", Err: err}
	}
	if err := link.Reopen(ctx, goal); err != nil {
		return &ReconcileError{Op: "reconnect", Err: err}
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
