// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"fmt"

	"github.com/ffutop/mmsetup/internal/simulator/model"
)

// Storage defines the interface for persisting the simulated meter.
type Storage interface {
	// Load loads the data model from storage.
	// If no data exists, it returns a zeroed model that is not Seeded.
	Load() (*model.DataModel, error)

	// Save saves the current data model to storage.
	Save(model *model.DataModel) error

	// OnWrite is a hook called whenever a register is modified.
	// It allows the storage to perform real-time persistence (e.g. sync to disk).
	OnWrite(table model.TableType, address, quantity uint16)

	Close() error
}

// New returns the Storage named by kind: "memory" (or empty), "file" or "mmap".
func New(kind, path string) (Storage, error) {
	switch kind {
	case "", "memory":
		return NewMemoryStorage(), nil
	case "file", "mmap":
		if path == "" {
			return nil, fmt.Errorf("persistence %q needs a path", kind)
		}
		if kind == "file" {
			return NewFileStorage(path), nil
		}
		return NewMmapStorage(path), nil
	default:
		return nil, fmt.Errorf("unknown persistence type %q", kind)
	}
}
