// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package registers holds the register map of the Elmetro mass meter.
//
// The meter exposes two register maps over the same address space. Which one
// answers is selected by the map register, readable and writable in both maps.
package registers

import (
	"fmt"
	"strconv"
	"strings"
)

// Mode selects the active register map.
type Mode uint16

const (
	ModeFlomac Mode = 0
	ModeMMI    Mode = 1
)

func (m Mode) String() string {
	switch m {
	case ModeFlomac:
		return "flomac"
	case ModeMMI:
		return "mmi"
	default:
		return "mode(" + strconv.Itoa(int(m)) + ")"
	}
}

// ParseMode accepts "flomac"/"mmi" or the raw register value.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "flomac", "a", "0":
		return ModeFlomac, nil
	case "mmi", "b", "1":
		return ModeMMI, nil
	}
	return 0, fmt.Errorf("unknown register map %q", s)
}

// Baud is a link speed supported by the meter.
type Baud int

const (
	Baud1200   Baud = 1200
	Baud2400   Baud = 2400
	Baud4800   Baud = 4800
	Baud9600   Baud = 9600
	Baud14400  Baud = 14400
	Baud19200  Baud = 19200
	Baud28800  Baud = 28800
	Baud38400  Baud = 38400
	Baud57600  Baud = 57600
	Baud115200 Baud = 115200
)

// baudCodes is indexed by the value of the baud rate register.
var baudCodes = [...]Baud{
	Baud1200, Baud2400, Baud4800, Baud9600, Baud14400,
	Baud19200, Baud28800, Baud38400, Baud57600, Baud115200,
}

// Code returns the value the baud rate register takes for b.
func (b Baud) Code() (uint16, bool) {
	for i, v := range baudCodes {
		if v == b {
			return uint16(i), true
		}
	}
	return 0, false
}

func (b Baud) Valid() bool {
	_, ok := b.Code()
	return ok
}

func (b Baud) String() string {
	return strconv.Itoa(int(b))
}

// BaudFromCode is the inverse of Baud.Code.
func BaudFromCode(code uint16) (Baud, bool) {
	if int(code) >= len(baudCodes) {
		return 0, false
	}
	return baudCodes[code], true
}

// ParseBaud validates a numeric speed against the supported set.
func ParseBaud(v int) (Baud, error) {
	b := Baud(v)
	if !b.Valid() {
		return 0, fmt.Errorf("unsupported baud rate %d", v)
	}
	return b, nil
}

// Registers present in both maps.
const (
	// MapSelect reports and selects the active map.
	MapSelect uint16 = 436
)

// Flomac map: process values (float, two registers each).
const (
	FlomacMassFlow         uint16 = 300
	FlomacVolumeFlow       uint16 = 302
	FlomacDensity          uint16 = 304
	FlomacTemperature      uint16 = 306
	FlomacReferenceDensity uint16 = 308
	FlomacCorrectedVolFlow uint16 = 310
	FlomacPressure         uint16 = 312
	FlomacDriveGain        uint16 = 323
	FlomacTotalizer1       uint16 = 708
	FlomacTotalizer2       uint16 = 807
	FlomacTotalizer3       uint16 = 757
	FlomacTotalizer4       uint16 = 857
)

// Flomac map: communication and identification.
const (
	FlomacDeviceAddress   uint16 = 430
	FlomacBaudRate        uint16 = 431
	FlomacParity          uint16 = 432
	FlomacWriteProtect    uint16 = 433
	FlomacBusMode         uint16 = 436
	FlomacFloatByteOrder  uint16 = 437
	FlomacHardwareVersion uint16 = 400
	FlomacReleaseYear     uint16 = 405
)

// Flomac map: engineering units.
const (
	FlomacUnitMassFlow         uint16 = 314
	FlomacUnitVolumeFlow       uint16 = 315
	FlomacUnitDensity          uint16 = 316
	FlomacUnitTemperature      uint16 = 317
	FlomacUnitCorrectedVolFlow uint16 = 318
	FlomacUnitReferenceDensity uint16 = 319
	FlomacUnitPressure         uint16 = 439
)

// Flomac map: display and frequency outputs.
const (
	FlomacDisplayContrast  uint16 = 600
	FlomacImageOrientation uint16 = 601
	FlomacLanguage         uint16 = 602
	FlomacQuickTotalMenu   uint16 = 603
	FlomacF1Assign         uint16 = 604
	FlomacF2Assign         uint16 = 614
)

// Flomac map: totalizers. Each totalizer block is assign, unit, state, mode, reset.
const (
	FlomacTotalizerFailsafe uint16 = 700

	FlomacTotalizer1Assign uint16 = 701
	FlomacTotalizer1Unit   uint16 = 702
	FlomacTotalizer1State  uint16 = 703
	FlomacTotalizer1Mode   uint16 = 704
	FlomacTotalizer1Reset  uint16 = 705

	FlomacTotalizer3Assign uint16 = 750
	FlomacTotalizer3Unit   uint16 = 751
	FlomacTotalizer3State  uint16 = 752
	FlomacTotalizer3Mode   uint16 = 753

	FlomacTotalizer2Assign uint16 = 800
	FlomacTotalizer2Unit   uint16 = 801
	FlomacTotalizer2State  uint16 = 802
	FlomacTotalizer2Mode   uint16 = 803

	FlomacTotalizer4Assign uint16 = 850
	FlomacTotalizer4Unit   uint16 = 851
	FlomacTotalizer4State  uint16 = 852
	FlomacTotalizer4Mode   uint16 = 853
)

// MMI map.
const (
	MMIDisplayMode    uint16 = 34
	MMIMaxPressure    uint16 = 45
	MMIGasFluidBorder uint16 = 53
	MMISensorType     uint16 = 9
	MMISensorDiameter uint16 = 10

	// coils
	MMICoilZeroCalibration uint16 = 1
	MMICoilTotalizers      uint16 = 38
	MMICoilLowFlowCutoff   uint16 = 55
	MMICoilSimulation      uint16 = 81
)

// Region is a contiguous run of registers or coils read by the dump tool.
type Region struct {
	Name     string
	Address  uint16
	Quantity uint16
	Coils    bool
}

// FlomacDump lists the Flomac regions worth dumping.
var FlomacDump = []Region{
	{Name: "process values", Address: FlomacMassFlow, Quantity: FlomacPressure - FlomacMassFlow + 2},
	{Name: "drive gain", Address: FlomacDriveGain, Quantity: 2},
	{Name: "totalizer 1", Address: FlomacTotalizer1, Quantity: 2},
	{Name: "totalizer 2", Address: FlomacTotalizer2, Quantity: 2},
	{Name: "totalizer 3", Address: FlomacTotalizer3, Quantity: 2},
	{Name: "totalizer 4", Address: FlomacTotalizer4, Quantity: 2},
	{Name: "communication", Address: FlomacDeviceAddress, Quantity: 4},
	{Name: "bus mode", Address: FlomacBusMode, Quantity: 1},
	{Name: "float byte order", Address: FlomacFloatByteOrder, Quantity: 1},
	{Name: "identification", Address: FlomacHardwareVersion, Quantity: FlomacReleaseYear - FlomacHardwareVersion + 1},
}

// MMIDump lists the MMI regions worth dumping.
var MMIDump = []Region{
	{Name: "coils 1", Address: 1, Quantity: 4, Coils: true},
	{Name: "coils 55", Address: 55, Quantity: 2, Coils: true},
	{Name: "coils 81", Address: 81, Quantity: 1, Coils: true},
	{Name: "service", Address: 0, Quantity: 15},
	{Name: "technological", Address: 38, Quantity: 8},
	{Name: "identification", Address: 208, Quantity: 9},
	{Name: "diagnostics", Address: 246, Quantity: 20},
	{Name: "status", Address: 284, Quantity: 10},
	{Name: "setpoints", Address: 140, Quantity: 2},
	{Name: "limits", Address: 148, Quantity: 2},
	{Name: "outputs", Address: 194, Quantity: 8},
	{Name: "bus map", Address: MapSelect, Quantity: 1},
	{Name: "calibration", Address: 450, Quantity: 2},
	{Name: "zero", Address: 520, Quantity: 1},
}
