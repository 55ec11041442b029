// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package settings

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ffutop/mmsetup/internal/registers"
)

// fileTable is the on-disk shape of a settings table:
//
//	settings:
//	  - name: totalizer1_mode
//	    map: flomac
//	    kind: register
//	    address: 704
//	    straight: 1
//	    reversed: 2
//	  - name: mmi_totalizers_enabled
//	    map: mmi
//	    kind: coil
//	    address: 38
//	    value: 1
type fileTable struct {
	Settings []fileEntry `yaml:"settings"`
}

type fileEntry struct {
	Name     string  `yaml:"name"`
	Map      string  `yaml:"map"`
	Kind     string  `yaml:"kind"`
	Address  *uint16 `yaml:"address"`
	Value    *uint16 `yaml:"value"`
	Straight *uint16 `yaml:"straight"`
	Reversed *uint16 `yaml:"reversed"`
}

// LoadFile reads a settings table from a YAML file.
func LoadFile(path string) (Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open settings file: %w", err)
	}
	defer f.Close()

	t, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("settings file %s: %w", path, err)
	}
	return t, nil
}

// Decode parses a YAML settings table and validates it.
func Decode(r io.Reader) (Table, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var ft fileTable
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&ft); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}

	t := make(Table, 0, len(ft.Settings))
	for i, fe := range ft.Settings {
		e, err := fe.entry()
		if err != nil {
			return nil, fmt.Errorf("setting #%d (%s): %w", i, fe.Name, err)
		}
		t = append(t, e)
	}

	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

func (fe fileEntry) entry() (Entry, error) {
	mode, err := registers.ParseMode(fe.Map)
	if err != nil {
		return Entry{}, err
	}
	kind, err := ParseKind(fe.Kind)
	if err != nil {
		return Entry{}, err
	}
	if fe.Address == nil {
		return Entry{}, fmt.Errorf("address required")
	}

	e := Entry{
		Name:    fe.Name,
		Mode:    mode,
		Kind:    kind,
		Address: *fe.Address,
	}

	switch {
	case fe.Straight != nil || fe.Reversed != nil:
		if fe.Straight == nil || fe.Reversed == nil {
			return Entry{}, fmt.Errorf("directional setting needs both straight and reversed")
		}
		if fe.Value != nil {
			return Entry{}, fmt.Errorf("value and straight/reversed are mutually exclusive")
		}
		e.Directional = &Directional{Straight: *fe.Straight, Reversed: *fe.Reversed}
	case fe.Value != nil:
		e.Value = *fe.Value
	default:
		return Entry{}, fmt.Errorf("value required")
	}
	return e, nil
}
