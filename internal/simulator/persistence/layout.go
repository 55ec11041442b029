// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"unsafe"

	"github.com/ffutop/mmsetup/internal/simulator/model"
)

const (
	sizeMeta    = model.MetaWords * 2
	sizeCoils   = model.MaxAddress + 1
	sizeHolding = (model.MaxAddress + 1) * 2
	sizeBank    = sizeCoils + sizeHolding
	totalSize   = sizeMeta + 2*sizeBank

	offsetMeta  = 0
	offsetBanks = offsetMeta + sizeMeta
)

// mapBytesToModel constructs a DataModel backed by the provided data slice:
// the header, then for each map its coils followed by its holding registers.
// Warning: This function uses unsafe pointers to cast byte slices to uint16 slices.
// The resulting DataModel relies on the host's endianness for multi-byte values.
// This provides zero-copy access but sacrifices portability across architectures
// with different endianness.
func mapBytesToModel(data []byte) *model.DataModel {
	m := &model.DataModel{}

	metaBytes := data[offsetMeta : offsetMeta+sizeMeta]
	m.Meta = unsafe.Slice((*uint16)(unsafe.Pointer(&metaBytes[0])), sizeMeta/2)

	for i := range m.Banks {
		base := offsetBanks + i*sizeBank

		// Coils (Bytes)
		m.Banks[i].Coils = data[base : base+sizeCoils]

		// Holding Registers (Uint16)
		holdingBytes := data[base+sizeCoils : base+sizeBank]
		m.Banks[i].HoldingRegisters = unsafe.Slice((*uint16)(unsafe.Pointer(&holdingBytes[0])), sizeHolding/2)
	}
	return m
}
