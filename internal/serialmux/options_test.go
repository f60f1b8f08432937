package serialmux

import (
	"testing"

	"go.bug.st/serial"
)

func TestPortOptionsNormalizeDefaults(t *testing.T) {
	opts, err := PortOptions{}.Normalize()
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if opts.BaudRate != 115200 || opts.DataBits != 8 || opts.StopBits != 1 || opts.Parity != "N" {
		t.Errorf("Normalize() = %+v, want 115200 8N1", opts)
	}
	if got := (PortOptions{}).String(); got != "115200 8N1" {
		t.Errorf("String() = %q, want %q", got, "115200 8N1")
	}
}

func TestPortOptionsNormalizeInvalid(t *testing.T) {
	tests := []struct {
		name string
		opts PortOptions
	}{
		{"data bits too small", PortOptions{DataBits: 4}},
		{"data bits too large", PortOptions{DataBits: 9}},
		{"stop bits", PortOptions{StopBits: 3}},
		{"parity", PortOptions{Parity: "mark"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.opts.Normalize(); err == nil {
				t.Errorf("Normalize(%+v) expected error", tt.opts)
			}
			if _, err := tt.opts.SerialMode(); err == nil {
				t.Errorf("SerialMode(%+v) expected error", tt.opts)
			}
		})
	}
}

func TestParseFraming(t *testing.T) {
	opts, err := ParseFraming(9600, "7e2")
	if err != nil {
		t.Fatalf("ParseFraming error = %v", err)
	}
	if opts.String() != "9600 7E2" {
		t.Errorf("ParseFraming = %s, want 9600 7E2", opts)
	}

	for _, bad := range []string{"", "8N", "8X1", "9N1", "8N3"} {
		if _, err := ParseFraming(115200, bad); err == nil {
			t.Errorf("ParseFraming(%q) expected error", bad)
		}
	}
}

func TestSerialMode(t *testing.T) {
	mode, err := PortOptions{StopBits: 2, Parity: "odd"}.SerialMode()
	if err != nil {
		t.Fatalf("SerialMode error = %v", err)
	}
	if mode.BaudRate != 115200 {
		t.Errorf("BaudRate = %d, want 115200", mode.BaudRate)
	}
	if mode.StopBits != serial.TwoStopBits {
		t.Errorf("StopBits = %v, want TwoStopBits", mode.StopBits)
	}
	if mode.Parity != serial.OddParity {
		t.Errorf("Parity = %v, want OddParity", mode.Parity)
	}
	if mode.InitialStatusBits == nil || mode.InitialStatusBits.DTR || mode.InitialStatusBits.RTS {
		t.Errorf("InitialStatusBits = %+v, want both lines low", mode.InitialStatusBits)
	}

	mode, err = PortOptions{}.SerialMode()
	if err != nil {
		t.Fatalf("SerialMode error = %v", err)
	}
	if mode.StopBits != serial.OneStopBit || mode.Parity != serial.NoParity {
		t.Errorf("default mode = %+v, want 8N1", mode)
	}
}
