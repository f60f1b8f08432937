// Package analysis summarises recorded contrast series in the time domain and
// renders them as PNG plots.
package analysis

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/banshee-data/speckle/internal/telemetry"
)

// Series is a recording as parallel time and value columns.
type Series struct {
	T     []float64 // seconds
	KFilt []float64
}

// Len returns the number of samples.
func (s Series) Len() int { return len(s.T) }

// FromRecords builds a series from telemetry records in order.
func FromRecords(recs []telemetry.Record) Series {
	s := Series{T: make([]float64, 0, len(recs)), KFilt: make([]float64, 0, len(recs))}
	for _, r := range recs {
		s.T = append(s.T, r.T)
		s.KFilt = append(s.KFilt, r.KFilt)
	}
	return s
}

// Load reads a recording CSV. The header, diagnostic lines and anything
// else that is not a data record are skipped and counted.
func Load(r io.Reader) (Series, int, error) {
	var (
		s       Series
		skipped int
	)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		rec, err := telemetry.ParseRecord(sc.Text())
		if errors.Is(err, telemetry.ErrNotRecord) {
			skipped++
			continue
		}
		if err != nil {
			return Series{}, skipped, err
		}
		s.T = append(s.T, rec.T)
		s.KFilt = append(s.KFilt, rec.KFilt)
	}
	if err := sc.Err(); err != nil {
		return Series{}, skipped, fmt.Errorf("read recording: %w", err)
	}
	return s, skipped, nil
}

// After returns the samples at or after t0+offset seconds, where t0 is the
// first sample's time.
func (s Series) After(offset float64) Series {
	if s.Len() == 0 {
		return s
	}
	cut := s.T[0] + offset
	for i, t := range s.T {
		if t >= cut {
			return Series{T: s.T[i:], KFilt: s.KFilt[i:]}
		}
	}
	return Series{}
}

// Intervals returns the differences between consecutive timestamps.
func (s Series) Intervals() []float64 {
	if s.Len() < 2 {
		return nil
	}
	dt := make([]float64, s.Len()-1)
	for i := 1; i < s.Len(); i++ {
		dt[i-1] = s.T[i] - s.T[i-1]
	}
	return dt
}
