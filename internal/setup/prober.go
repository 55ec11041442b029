// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package setup

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ffutop/mmsetup/internal/registers"
	"github.com/ffutop/mmsetup/transport"
)

// Probe finds the speed the meter answers at by reading the map register,
// first at high and then at low. It never writes.
//
// On success the returned Link is open and owned by the caller.
func Probe(ctx context.Context, port transport.Port, regs Registers, high, low registers.Baud, logger *slog.Logger) (*Link, error) {
	if logger == nil {
		logger = slog.Default()
	}

	candidates := []registers.Baud{high}
	if low != high {
		candidates = append(candidates, low)
	}

	var lastErr error
	for _, baud := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		conn, err := port.Open(ctx, baud)
		if err != nil {
			logger.Info("probe failed", "baud", baud, "err", err)
			lastErr = err
			continue
		}

		values, err := conn.ReadRegisters(ctx, regs.ModeSelect, 1)
		if err != nil {
			logger.Info("probe failed", "baud", baud, "err", err)
			conn.Close()
			lastErr = err
			continue
		}

		state := LinkState{Mode: registers.Mode(values[0]), Baud: baud}
		logger.Info("meter found", "baud", baud, "map", state.Mode)
		return &Link{State: state, port: port, conn: conn}, nil
	}
	return nil, fmt.Errorf("%w: %v", ErrUnreachable, lastErr)
}
