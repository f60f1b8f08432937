// Package frame defines the grayscale frame type shared by the capture
// sources and the contrast pipeline, and the pooled buffers frames live in.
package frame

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNoFrame reports that no frame was ready this cycle. It is transient:
	// callers skip the cycle and try again on the next one.
	ErrNoFrame = errors.New("no frame available")

	// ErrEndOfStream reports that a finite source (a recorded video) has no
	// more frames. Callers stop their loop.
	ErrEndOfStream = errors.New("end of frame stream")

	// ErrDoubleRelease is returned when a frame is released more than once.
	ErrDoubleRelease = errors.New("frame released twice")

	// ErrForeignFrame is returned when a frame is released to a pool that
	// did not hand it out.
	ErrForeignFrame = errors.New("frame does not belong to this pool")
)

// Frame is one 8-bit grayscale capture. Pix is row-major with stride Width.
//
// A Frame is owned by the Source that produced it. Consumers borrow it for a
// single cycle and must hand it back with Source.Release exactly once.
type Frame struct {
	Width    int
	Height   int
	Pix      []byte
	Captured time.Time
	Seq      uint64

	pool     *Pool
	borrowed bool
}

// At returns the intensity at (x, y). It is meant for tests and tooling; hot
// loops index Pix directly.
func (f *Frame) At(x, y int) uint8 {
	return f.Pix[y*f.Width+x]
}

func (f *Frame) String() string {
	return fmt.Sprintf("frame #%d %dx%d", f.Seq, f.Width, f.Height)
}

// Source is the frame acquisition collaborator.
type Source interface {
	// Geometry reports the width and height of every frame the source
	// produces. It is fixed for the life of the source.
	Geometry() (width, height int)

	// Acquire returns the next frame. It returns ErrNoFrame when nothing is
	// ready this cycle and ErrEndOfStream when the source is exhausted.
	Acquire() (*Frame, error)

	// Release returns a frame obtained from Acquire. It must be called
	// exactly once per successful Acquire.
	Release(*Frame) error

	// Close stops the source and frees its resources.
	Close() error
}
