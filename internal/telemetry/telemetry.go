// Package telemetry formats contrast samples as the line-oriented CSV stream
// the host tools read, and delivers it to one or more outputs.
package telemetry

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Header is the first line of every stream.
const Header = "time_s,K_filt"

// CommentPrefix starts every diagnostic line. Parsers skip these.
const CommentPrefix = "#"

var (
	// ErrNonFinite is returned when a record carries NaN or Inf. Nothing
	// non-finite is ever written to a stream.
	ErrNonFinite = errors.New("non-finite telemetry value")

	// ErrNotRecord is returned by ParseRecord for lines that are not data:
	// the header, diagnostics, boot output and malformed rows.
	ErrNotRecord = errors.New("not a telemetry record")
)

// Record is one emitted sample.
type Record struct {
	T     float64 // seconds since the first active sample
	KFilt float64 // filtered speckle contrast
}

// Diagnostic is the periodic state dump written when debug output is on.
type Diagnostic struct {
	Cycle   int
	T       float64
	Mean    float64
	Std     float64
	KRaw    float64
	KFilt   float64
	Dt      float64
	Skipped int  // cycles skipped for no frame or bad geometry
	Clamped int  // intervals replaced by the fallback
	RingOK  bool // moving-average running sum matches its contents
	Warmup  int  // cycles spent warming up
}

// FormatRecord renders r as a data line without the trailing newline.
func FormatRecord(r Record) (string, error) {
	if !finite(r.T) || !finite(r.KFilt) {
		return "", fmt.Errorf("%w: t=%v k_filt=%v", ErrNonFinite, r.T, r.KFilt)
	}
	return fmt.Sprintf("%.4f,%.6f", r.T, r.KFilt), nil
}

// FormatDiagnostic renders d as a comment line without the trailing newline.
func FormatDiagnostic(d Diagnostic) string {
	return fmt.Sprintf("# cycle=%d t=%.4f mean=%.2f std=%.3f k_raw=%.6f k_filt=%.6f dt=%.4f skipped=%d clamped=%d ring_ok=%t warmup=%d",
		d.Cycle, d.T, d.Mean, d.Std, d.KRaw, d.KFilt, d.Dt, d.Skipped, d.Clamped, d.RingOK, d.Warmup)
}

// ParseRecord parses one line of a stream. Lines that carry no sample
// return an error wrapping ErrNotRecord so readers can skip them.
func ParseRecord(line string) (Record, error) {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return Record{}, fmt.Errorf("%w: empty line", ErrNotRecord)
	case strings.HasPrefix(line, CommentPrefix):
		return Record{}, fmt.Errorf("%w: diagnostic", ErrNotRecord)
	case line == Header:
		return Record{}, fmt.Errorf("%w: header", ErrNotRecord)
	}

	fields := strings.Split(line, ",")
	if len(fields) != 2 {
		return Record{}, fmt.Errorf("%w: want 2 fields, got %d in %q", ErrNotRecord, len(fields), line)
	}
	t, err := strconv.ParseFloat(strings.TrimSpace(fields[0]), 64)
	if err != nil {
		return Record{}, fmt.Errorf("%w: time %q", ErrNotRecord, fields[0])
	}
	k, err := strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
	if err != nil {
		return Record{}, fmt.Errorf("%w: k_filt %q", ErrNotRecord, fields[1])
	}
	if !finite(t) || !finite(k) {
		return Record{}, fmt.Errorf("%w: %w", ErrNotRecord, ErrNonFinite)
	}
	return Record{T: t, KFilt: k}, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
