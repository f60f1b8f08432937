// Package roi computes speckle contrast over a fixed square window of a
// grayscale frame.
package roi

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/speckle/internal/frame"
)

// ErrOutOfBounds is returned when a window does not fit inside the frame.
var ErrOutOfBounds = errors.New("roi outside frame bounds")

// MinMean is the floor applied to the ROI mean before it is used as the
// contrast divisor, so a near-black window cannot produce an extreme or
// undefined ratio.
const MinMean = 1.0

// Window is a square region of interest. X and Y are the offsets of its
// top-left pixel.
type Window struct {
	Size int
	X    int
	Y    int
}

// Centered returns a size x size window centered in a width x height frame.
// Bounds are validated here, once, so Compute never has to.
func Centered(size, width, height int) (Window, error) {
	w := Window{
		Size: size,
		X:    (width - size) / 2,
		Y:    (height - size) / 2,
	}
	if err := w.Validate(width, height); err != nil {
		return Window{}, err
	}
	return w, nil
}

// Validate reports whether the window lies fully inside a width x height
// frame.
func (w Window) Validate(width, height int) error {
	if w.Size <= 0 {
		return fmt.Errorf("roi size must be positive, got %d", w.Size)
	}
	if w.X < 0 || w.Y < 0 || w.X+w.Size > width || w.Y+w.Size > height {
		return fmt.Errorf("%dx%d window at (%d,%d) in %dx%d frame: %w",
			w.Size, w.Size, w.X, w.Y, width, height, ErrOutOfBounds)
	}
	return nil
}

// Count is the number of pixels in the window.
func (w Window) Count() int { return w.Size * w.Size }

// Stats is the result of one ROI reduction.
type Stats struct {
	Mean float64 // mean intensity, before the MinMean floor
	Std  float64 // population standard deviation
	KRaw float64 // speckle contrast std / max(mean, MinMean)
}

// Compute reduces the window of f to its mean, standard deviation and speckle
// contrast in a single pass. The window must have been validated against the
// frame geometry.
func Compute(f *frame.Frame, w Window) Stats {
	var sum, sumSq uint64
	for y := w.Y; y < w.Y+w.Size; y++ {
		row := f.Pix[y*f.Width+w.X : y*f.Width+w.X+w.Size]
		for _, px := range row {
			v := uint64(px)
			sum += v
			sumSq += v * v
		}
	}
	return fromSums(float64(sum), float64(sumSq), float64(w.Count()))
}

func fromSums(sum, sumSq, count float64) Stats {
	mean := sum / count
	variance := sumSq/count - mean*mean
	if variance < 0 {
		variance = 0
	}
	std := math.Sqrt(variance)

	divisor := mean
	if divisor < MinMean {
		divisor = MinMean
	}
	return Stats{
		Mean: mean,
		Std:  std,
		KRaw: std / divisor,
	}
}
