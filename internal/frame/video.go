package frame

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/banshee-data/speckle/internal/timeutil"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// VideoSource replays a recorded speckle video. ffmpeg decodes it to raw 8-bit
// gray frames scaled to the pool geometry and resampled to a fixed rate, and
// Acquire reads one frame per call from the decoder pipe.
type VideoSource struct {
	pool   *Pool
	clock  timeutil.Clock
	r      *io.PipeReader
	cancel context.CancelFunc

	mu     sync.Mutex
	stderr bytes.Buffer
	done   chan struct{}
	runErr error
}

// OpenVideo starts decoding path at fps frames per second into frames of the
// pool geometry.
func OpenVideo(ctx context.Context, path string, fps int, pool *Pool) (*VideoSource, error) {
	if fps <= 0 {
		return nil, fmt.Errorf("fps must be positive, got %d", fps)
	}
	w, h := pool.Geometry()

	ctx, cancel := context.WithCancel(ctx)
	pr, pw := io.Pipe()
	v := &VideoSource{
		pool:   pool,
		clock:  timeutil.RealClock{},
		r:      pr,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	cmd := ffmpeg.Input(path).
		Output("pipe:1", ffmpeg.KwArgs{
			"format":  "rawvideo",
			"pix_fmt": "gray",
			"s":       fmt.Sprintf("%dx%d", w, h),
			"r":       strconv.Itoa(fps),
		}).
		WithOutput(pw).
		WithErrorOutput(&lockedWriter{mu: &v.mu, w: &v.stderr})
	cmd.Context = ctx

	go func() {
		defer close(v.done)
		err := cmd.Run()
		v.mu.Lock()
		v.runErr = err
		v.mu.Unlock()
		if err != nil {
			pw.CloseWithError(fmt.Errorf("ffmpeg: %w", err))
			return
		}
		pw.Close()
	}()

	return v, nil
}

// Geometry reports the decoded frame size.
func (v *VideoSource) Geometry() (int, int) { return v.pool.Geometry() }

// Acquire reads the next decoded frame. It blocks until ffmpeg produces one.
func (v *VideoSource) Acquire() (*Frame, error) {
	f, ok := v.pool.Get()
	if !ok {
		return nil, ErrNoFrame
	}
	if _, err := io.ReadFull(v.r, f.Pix); err != nil {
		_ = v.pool.Put(f)
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrEndOfStream
		}
		return nil, fmt.Errorf("read decoded frame: %w (%s)", err, v.stderrTail())
	}
	f.Captured = v.clock.Now()
	return f, nil
}

// Release returns the frame to the pool.
func (v *VideoSource) Release(f *Frame) error { return v.pool.Put(f) }

// Close stops the decoder and waits for it to exit.
func (v *VideoSource) Close() error {
	v.cancel()
	v.r.Close()
	<-v.done
	return nil
}

func (v *VideoSource) stderrTail() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	b := v.stderr.Bytes()
	const max = 512
	if len(b) > max {
		b = b[len(b)-max:]
	}
	return string(bytes.TrimSpace(b))
}

type lockedWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// videoProbe is the subset of ffprobe output describing video streams.
type videoProbe struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
}

// ProbeGeometry returns the native width and height of the first video
// stream in path.
func ProbeGeometry(path string) (int, int, error) {
	out, err := ffmpeg.Probe(path)
	if err != nil {
		return 0, 0, fmt.Errorf("ffprobe %s: %w", path, err)
	}
	return parseProbe(out)
}

func parseProbe(out string) (int, int, error) {
	var probe videoProbe
	if err := json.Unmarshal([]byte(out), &probe); err != nil {
		return 0, 0, fmt.Errorf("parse ffprobe output: %w", err)
	}
	for _, s := range probe.Streams {
		if s.CodecType == "video" && s.Width > 0 && s.Height > 0 {
			return s.Width, s.Height, nil
		}
	}
	return 0, 0, fmt.Errorf("no video stream found")
}
