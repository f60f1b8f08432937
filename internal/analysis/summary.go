package analysis

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ErrTooFewSamples is returned when fewer than two samples remain to
// measure intervals from.
var ErrTooFewSamples = errors.New("too few samples")

// DefaultWarmup is the leading span dropped before measuring. It matches
// the warm-up of the contrast loop.
const DefaultWarmup = 5 * time.Second

// OutlierFactor marks an interval as a likely dropped sample when it exceeds
// this multiple of the median interval.
const OutlierFactor = 1.5

// Summary describes the sampling behaviour of a recording after warm-up.
type Summary struct {
	N           int     `json:"n"`
	DurationS   float64 `json:"duration_s"`
	DtMedian    float64 `json:"dt_median_s"`
	DtMean      float64 `json:"dt_mean_s"`
	DtStd       float64 `json:"dt_std_s"`
	DtMin       float64 `json:"dt_min_s"`
	DtMax       float64 `json:"dt_max_s"`
	SampleRate  float64 `json:"fs_hz"`
	OutlierRate float64 `json:"outlier_pct"`
	KMean       float64 `json:"k_mean"`
	KStd        float64 `json:"k_std"`
}

// Summarise drops the first warmup of the series and measures what is left.
func Summarise(s Series, warmup time.Duration) (Summary, error) {
	s = s.After(warmup.Seconds())
	dt := s.Intervals()
	if len(dt) == 0 {
		return Summary{}, fmt.Errorf("%d samples after %v warm-up: %w", s.Len(), warmup, ErrTooFewSamples)
	}

	sum := Summary{
		N:         s.Len(),
		DurationS: s.T[s.Len()-1] - s.T[0],
		DtMedian:  median(dt),
		DtMin:     floats.Min(dt),
		DtMax:     floats.Max(dt),
	}
	sum.DtMean, sum.DtStd = stat.PopMeanStdDev(dt, nil)
	sum.KMean, sum.KStd = stat.PopMeanStdDev(s.KFilt, nil)
	if sum.DtMedian > 0 {
		sum.SampleRate = 1 / sum.DtMedian
	}

	outliers := 0
	for _, d := range dt {
		if d > OutlierFactor*sum.DtMedian {
			outliers++
		}
	}
	sum.OutlierRate = 100 * float64(outliers) / float64(len(dt))
	return sum, nil
}

// median interpolates between the two middle values for even lengths.
func median(x []float64) float64 {
	sorted := append([]float64(nil), x...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// String renders the summary as a short report.
func (s Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "samples:      %d over %.2f s\n", s.N, s.DurationS)
	fmt.Fprintf(&b, "dt median:    %.4f s (fs %.2f Hz)\n", s.DtMedian, s.SampleRate)
	fmt.Fprintf(&b, "dt mean/std:  %.4f / %.4f s\n", s.DtMean, s.DtStd)
	fmt.Fprintf(&b, "dt min/max:   %.4f / %.4f s\n", s.DtMin, s.DtMax)
	fmt.Fprintf(&b, "dt outliers:  %.2f %% (> %.1f x median)\n", s.OutlierRate, OutlierFactor)
	fmt.Fprintf(&b, "K_filt mean:  %.6f std %.6f\n", s.KMean, s.KStd)
	return b.String()
}
