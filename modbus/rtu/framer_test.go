// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"
)

func TestCalculateResponseLength(t *testing.T) {
	tests := []struct {
		name string
		adu  []byte
		want int
	}{
		{"ReadHoldingRegisters_1", []byte{0x01, 0x03, 0x01, 0xB4, 0x00, 0x01, 0, 0}, 4 + 1 + 2},
		{"ReadHoldingRegisters_14", []byte{0x01, 0x03, 0x01, 0x2C, 0x00, 0x0E, 0, 0}, 4 + 1 + 28},
		{"ReadCoils_9", []byte{0x01, 0x01, 0x00, 0x26, 0x00, 0x09, 0, 0}, 4 + 1 + 2},
		{"WriteSingleCoil", []byte{0x01, 0x05, 0x00, 0x26, 0xFF, 0x00, 0, 0}, 8},
		{"WriteMultipleRegisters", []byte{0x01, 0x10, 0x01, 0xAF, 0x00, 0x01, 0x02, 0x00, 0x03, 0, 0}, 8},
		{"Short", []byte{0x01, 0x03}, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CalculateResponseLength(tt.adu); got != tt.want {
				t.Errorf("CalculateResponseLength() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestReadResponse(t *testing.T) {
	deadline := time.Now().Add(time.Second)

	tests := []struct {
		name    string
		input   []byte
		fc      byte
		want    []byte
		wantErr bool
	}{
		{
			name:  "ReadHolding",
			input: []byte{0x01, 0x03, 0x02, 0x00, 0x01, 0xAA, 0xBB},
			fc:    0x03,
			want:  []byte{0x01, 0x03, 0x02, 0x00, 0x01, 0xAA, 0xBB},
		},
		{
			name:  "LeadingNoise",
			input: []byte{0x00, 0x7F, 0x01, 0x06, 0x01, 0x05, 0x00, 0x26, 0xFF, 0x00, 0xAA, 0xBB},
			fc:    0x05,
			want:  []byte{0x01, 0x05, 0x00, 0x26, 0xFF, 0x00, 0xAA, 0xBB},
		},
		{
			name:  "Exception",
			input: []byte{0x01, 0x83, 0x02, 0xAA, 0xBB},
			fc:    0x03,
			want:  []byte{0x01, 0x83, 0x02, 0xAA, 0xBB},
		},
		{
			name:    "ZeroLength",
			input:   []byte{0x01, 0x03, 0x00},
			fc:      0x03,
			wantErr: true,
		},
		{
			name:    "Truncated",
			input:   []byte{0x01, 0x03, 0x02, 0x00},
			fc:      0x03,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReadResponse(0x01, tt.fc, bytes.NewReader(tt.input), deadline)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ReadResponse() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("ReadResponse() = %X, want %X", got, tt.want)
			}
		})
	}
}

func TestReadResponse_Deadline(t *testing.T) {
	_, err := ReadResponse(0x01, 0x03, bytes.NewReader(nil), time.Now().Add(-time.Millisecond))
	if !errors.Is(err, ErrRequestTimedOut) {
		t.Fatalf("expected ErrRequestTimedOut, got %v", err)
	}

	_, err = ReadResponse(0x01, 0x03, bytes.NewReader(nil), time.Now().Add(time.Second))
	if !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}
