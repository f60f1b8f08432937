package telemetry

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

// Emitter receives the telemetry stream.
type Emitter interface {
	WriteHeader() error
	WriteRecord(Record) error
	WriteDiagnostic(Diagnostic) error
}

// Writer emits newline-terminated lines to any io.Writer: stdout, a file or
// a serial port.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriter returns a Writer over w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteHeader writes the column header line.
func (w *Writer) WriteHeader() error {
	return w.line(Header)
}

// WriteRecord writes one data line.
func (w *Writer) WriteRecord(r Record) error {
	s, err := FormatRecord(r)
	if err != nil {
		return err
	}
	return w.line(s)
}

// WriteDiagnostic writes one comment line.
func (w *Writer) WriteDiagnostic(d Diagnostic) error {
	return w.line(FormatDiagnostic(d))
}

func (w *Writer) line(s string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := io.WriteString(w.w, s+"\n"); err != nil {
		return fmt.Errorf("write telemetry: %w", err)
	}
	return nil
}

// Multi fans every call out to each emitter in order. All emitters are
// attempted; the errors are joined.
type Multi []Emitter

// WriteHeader implements Emitter.
func (m Multi) WriteHeader() error {
	var errs []error
	for _, e := range m {
		errs = append(errs, e.WriteHeader())
	}
	return errors.Join(errs...)
}

// WriteRecord implements Emitter.
func (m Multi) WriteRecord(r Record) error {
	var errs []error
	for _, e := range m {
		errs = append(errs, e.WriteRecord(r))
	}
	return errors.Join(errs...)
}

// WriteDiagnostic implements Emitter.
func (m Multi) WriteDiagnostic(d Diagnostic) error {
	var errs []error
	for _, e := range m {
		errs = append(errs, e.WriteDiagnostic(d))
	}
	return errors.Join(errs...)
}

// Discard drops everything.
var Discard Emitter = discard{}

type discard struct{}

func (discard) WriteHeader() error { return nil }
func (discard) WriteRecord(Record) error { return nil }
func (discard) WriteDiagnostic(Diagnostic) error { return nil }
