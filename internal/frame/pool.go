package frame

import (
	"fmt"
	"sync"
)

// Pool is a fixed set of frame buffers of one geometry. Sources take buffers
// with Get and consumers give them back through Source.Release, which calls
// Put. When every buffer is out, Get fails and the source reports ErrNoFrame,
// which is how a leaked release shows up as starvation.
type Pool struct {
	mu          sync.Mutex
	width       int
	height      int
	free        []*Frame
	size        int
	outstanding int
	seq         uint64
}

// NewPool allocates size buffers of width x height pixels.
func NewPool(size, width, height int) (*Pool, error) {
	if size <= 0 {
		return nil, fmt.Errorf("pool size must be positive, got %d", size)
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid frame geometry %dx%d", width, height)
	}
	p := &Pool{
		width:  width,
		height: height,
		size:   size,
		free:   make([]*Frame, 0, size),
	}
	for i := 0; i < size; i++ {
		p.free = append(p.free, &Frame{
			Width:  width,
			Height: height,
			Pix:    make([]byte, width*height),
			pool:   p,
		})
	}
	return p, nil
}

// Get takes a free buffer. The second result is false when the pool is
// exhausted.
func (p *Pool) Get() (*Frame, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.free)
	if n == 0 {
		return nil, false
	}
	f := p.free[n-1]
	p.free = p.free[:n-1]
	f.borrowed = true
	p.seq++
	f.Seq = p.seq
	p.outstanding++
	return f, true
}

// Put returns a buffer to the pool.
func (p *Pool) Put(f *Frame) error {
	if f == nil {
		return fmt.Errorf("release of nil frame")
	}
	if f.pool != p {
		return ErrForeignFrame
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !f.borrowed {
		return fmt.Errorf("%v: %w", f, ErrDoubleRelease)
	}
	f.borrowed = false
	p.outstanding--
	p.free = append(p.free, f)
	return nil
}

// Outstanding returns the number of buffers currently handed out.
func (p *Pool) Outstanding() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outstanding
}

// Size returns the total number of buffers.
func (p *Pool) Size() int { return p.size }

// Geometry returns the buffer dimensions.
func (p *Pool) Geometry() (int, int) { return p.width, p.height }
