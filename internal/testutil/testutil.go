// Package testutil provides shared test utilities and fixtures.
//
// This package centralises common test helpers to reduce code duplication
// across test files and improve test maintainability.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/banshee-data/speckle/internal/frame"
)

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// NewTestRequest creates a test HTTP request.
func NewTestRequest(method, path string) *http.Request {
	return httptest.NewRequest(method, path, nil)
}

// NewTestRecorder creates a test response recorder.
func NewTestRecorder() *httptest.ResponseRecorder {
	return httptest.NewRecorder()
}

// UniformFrame returns a width x height frame with every pixel set to v.
func UniformFrame(width, height int, v uint8) *frame.Frame {
	pix := make([]byte, width*height)
	for i := range pix {
		pix[i] = v
	}
	return &frame.Frame{Width: width, Height: height, Pix: pix}
}

// FrameFromRows builds a frame from explicit pixel rows. All rows must have
// the same length.
func FrameFromRows(rows [][]uint8) *frame.Frame {
	h := len(rows)
	w := len(rows[0])
	pix := make([]byte, 0, w*h)
	for _, r := range rows {
		if len(r) != w {
			panic("testutil: ragged frame rows")
		}
		pix = append(pix, r...)
	}
	return &frame.Frame{Width: w, Height: h, Pix: pix}
}

// CheckerboardFrame returns a frame alternating lo and hi, starting with lo at
// (0, 0).
func CheckerboardFrame(width, height int, lo, hi uint8) *frame.Frame {
	f := UniformFrame(width, height, lo)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if (x+y)&1 == 1 {
				f.Pix[y*width+x] = hi
			}
		}
	}
	return f
}
