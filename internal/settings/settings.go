// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package settings

import (
	"fmt"
	"strings"

	"github.com/ffutop/mmsetup/internal/registers"
)

// Kind tells which write primitive an entry needs.
type Kind int

const (
	Coil Kind = iota
	Register
)

func (k Kind) String() string {
	switch k {
	case Coil:
		return "coil"
	case Register:
		return "register"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind accepts "coil" or "register".
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "coil", "coils":
		return Coil, nil
	case "register", "registers", "holding", "":
		return Register, nil
	}
	return 0, fmt.Errorf("unknown register kind %q", s)
}

// Direction is how the sensor is plumbed into the line.
type Direction int

const (
	Straight Direction = iota
	Reversed
)

func (d Direction) String() string {
	if d == Reversed {
		return "reversed"
	}
	return "straight"
}

// ParseDirection accepts "straight" or "reversed".
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "straight", "s", "":
		return Straight, nil
	case "reversed", "reverse", "r":
		return Reversed, nil
	}
	return 0, fmt.Errorf("unknown direction %q", s)
}

// Directional holds the two candidate values of an entry that depends on
// the flow direction.
type Directional struct {
	Straight uint16
	Reversed uint16
}

// Entry is one value to be written to the meter.
type Entry struct {
	Name    string
	Mode    registers.Mode
	Kind    Kind
	Address uint16
	Value   uint16

	// Directional, when set, replaces Value during Patch.
	Directional *Directional
}

func (e Entry) String() string {
	return fmt.Sprintf("%s(%s %s %d=%d)", e.Name, e.Mode, e.Kind, e.Address, e.Value)
}

// Table is an ordered list of entries. Tables handed out by this package are
// fresh copies; callers own them.
type Table []Entry

// Clone returns a deep copy of t.
func (t Table) Clone() Table {
	out := make(Table, len(t))
	for i, e := range t {
		if e.Directional != nil {
			d := *e.Directional
			e.Directional = &d
		}
		out[i] = e
	}
	return out
}

// Patch resolves directional entries for dir and returns a new table.
// Entries without a directional value are copied unchanged.
func (t Table) Patch(dir Direction) Table {
	out := t.Clone()
	for i := range out {
		d := out[i].Directional
		if d == nil {
			continue
		}
		if dir == Reversed {
			out[i].Value = d.Reversed
		} else {
			out[i].Value = d.Straight
		}
	}
	return out
}

// Override replaces values by entry name and returns a new table. An
// overridden entry is no longer directional. Unknown names are an error so a
// typo in the config cannot silently skip a setting.
func (t Table) Override(values map[string]uint16) (Table, error) {
	out := t.Clone()
	if len(values) == 0 {
		return out, nil
	}

	index := make(map[string]int, len(out))
	for i, e := range out {
		index[strings.ToLower(e.Name)] = i
	}

	for name, v := range values {
		i, ok := index[strings.ToLower(name)]
		if !ok {
			return nil, fmt.Errorf("override for unknown setting %q", name)
		}
		out[i].Value = v
		out[i].Directional = nil
	}
	return out, nil
}

// Validate checks names are unique and kinds and modes are known.
func (t Table) Validate() error {
	seen := make(map[string]struct{}, len(t))
	for i, e := range t {
		if e.Name == "" {
			return fmt.Errorf("setting #%d: name required", i)
		}
		key := strings.ToLower(e.Name)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("setting %q: duplicate name", e.Name)
		}
		seen[key] = struct{}{}

		if e.Mode != registers.ModeFlomac && e.Mode != registers.ModeMMI {
			return fmt.Errorf("setting %q: unknown register map %d", e.Name, e.Mode)
		}
		if e.Kind != Coil && e.Kind != Register {
			return fmt.Errorf("setting %q: unknown kind %d", e.Name, e.Kind)
		}
		if e.Kind == Coil && e.Value > 1 && e.Directional == nil {
			return fmt.Errorf("setting %q: coil value must be 0 or 1, got %d", e.Name, e.Value)
		}
	}
	return nil
}
