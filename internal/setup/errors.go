// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package setup

import "errors"

// ErrUnreachable is returned when the meter answers at none of the candidate
// speeds. Nothing has been written when it is returned.
var ErrUnreachable = errors.New("setup: meter does not answer at any candidate speed")

// ReconcileError reports a failed step of bringing the link to its goal
// state. The meter may be left in an intermediate map or speed.
type ReconcileError struct {
	Op  string
	Err error
}

func (e *ReconcileError) Error() string {
	return "setup: " + e.Op + ": " + e.Err.Error()
}

func (e *ReconcileError) Unwrap() error {
	return e.Err
}
