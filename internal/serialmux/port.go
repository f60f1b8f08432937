package serialmux

import (
	"errors"
	"io"
)

// SerialPorter defines the minimal interface needed for a serial port.
// This abstraction enables unit testing without real serial hardware.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}

// ModemController is implemented by ports that can drive the modem control
// lines. Many USB serial boards wire DTR and RTS to reset and boot-mode pins.
type ModemController interface {
	SetDTR(bool) error
	SetRTS(bool) error
}

// ReplayPort adapts a recorded capture, such as a log file of device output,
// into a read-only SerialPorter.
type ReplayPort struct {
	io.ReadCloser
}

// NewReplayPort wraps rc.
func NewReplayPort(rc io.ReadCloser) *ReplayPort {
	return &ReplayPort{ReadCloser: rc}
}

// Write always fails; a replay cannot be written to.
func (*ReplayPort) Write([]byte) (int, error) {
	return 0, errors.New("replay port is read-only")
}
