package serialmux

import (
	"strings"

	"github.com/banshee-data/speckle/internal/telemetry"
)

// LineKind classifies a line of device output.
type LineKind int

const (
	LineUnknown LineKind = iota
	LineHeader
	LineRecord
	LineDiagnostic
	LineBoot
)

func (k LineKind) String() string {
	switch k {
	case LineHeader:
		return "header"
	case LineRecord:
		return "record"
	case LineDiagnostic:
		return "diagnostic"
	case LineBoot:
		return "boot"
	default:
		return "unknown"
	}
}

// bootPrefixes are the starts of lines the ESP32 ROM bootloader and the
// Arduino core print after a reset.
var bootPrefixes = []string{"ESP32", "ESP-ROM", "rst:", "ets ", "configsip", "clk_drv", "mode:", "load:", "entry ", "Build:", "SPIWP"}

// Classify parses line and reports what it is. For LineRecord the parsed
// record is returned as well.
func Classify(line string) (LineKind, telemetry.Record) {
	trimmed := strings.TrimSpace(line)
	if rec, err := telemetry.ParseRecord(trimmed); err == nil {
		return LineRecord, rec
	}
	switch {
	case strings.HasPrefix(trimmed, "time"):
		return LineHeader, telemetry.Record{}
	case strings.HasPrefix(trimmed, telemetry.CommentPrefix):
		return LineDiagnostic, telemetry.Record{}
	}
	for _, p := range bootPrefixes {
		if strings.HasPrefix(trimmed, p) {
			return LineBoot, telemetry.Record{}
		}
	}
	return LineUnknown, telemetry.Record{}
}
