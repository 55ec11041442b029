// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package settings

import "github.com/ffutop/mmsetup/internal/registers"

// DisplayMode is the name of the MMI display mode entry. The vendor setup
// program sets it to 2 while the manual shows 1; override it per site when needed.
const DisplayMode = "mmi_display_mode"

var defaultTable = Table{
	// Flomac map
	{Name: "totalizer1_assign", Mode: registers.ModeFlomac, Kind: Register, Address: registers.FlomacTotalizer1Assign, Value: 1},
	{Name: "totalizer1_unit", Mode: registers.ModeFlomac, Kind: Register, Address: registers.FlomacTotalizer1Unit, Value: 2},
	{Name: "totalizer1_mode", Mode: registers.ModeFlomac, Kind: Register, Address: registers.FlomacTotalizer1Mode,
		Directional: &Directional{Straight: 1, Reversed: 2}},
	{Name: "totalizer2_assign", Mode: registers.ModeFlomac, Kind: Register, Address: registers.FlomacTotalizer2Assign, Value: 2},
	{Name: "totalizer2_unit", Mode: registers.ModeFlomac, Kind: Register, Address: registers.FlomacTotalizer2Unit, Value: 3},
	{Name: "totalizer2_mode", Mode: registers.ModeFlomac, Kind: Register, Address: registers.FlomacTotalizer2Mode,
		Directional: &Directional{Straight: 1, Reversed: 2}},
	{Name: "unit_mass_flow", Mode: registers.ModeFlomac, Kind: Register, Address: registers.FlomacUnitMassFlow, Value: 3},
	{Name: "unit_density", Mode: registers.ModeFlomac, Kind: Register, Address: registers.FlomacUnitDensity, Value: 1},
	{Name: "unit_temperature", Mode: registers.ModeFlomac, Kind: Register, Address: registers.FlomacUnitTemperature, Value: 0},
	{Name: "float_byte_order", Mode: registers.ModeFlomac, Kind: Register, Address: registers.FlomacFloatByteOrder, Value: 1},
	{Name: "quick_total_menu", Mode: registers.ModeFlomac, Kind: Register, Address: registers.FlomacQuickTotalMenu, Value: 1},

	// MMI map
	{Name: DisplayMode, Mode: registers.ModeMMI, Kind: Register, Address: registers.MMIDisplayMode, Value: 2},
	{Name: "mmi_totalizers_enabled", Mode: registers.ModeMMI, Kind: Coil, Address: registers.MMICoilTotalizers, Value: 1},
	{Name: "mmi_low_flow_cutoff", Mode: registers.ModeMMI, Kind: Coil, Address: registers.MMICoilLowFlowCutoff, Value: 1},
	{Name: "mmi_simulation", Mode: registers.ModeMMI, Kind: Coil, Address: registers.MMICoilSimulation, Value: 0},
}

// Default returns a fresh copy of the built-in settings table.
func Default() Table {
	return defaultTable.Clone()
}
