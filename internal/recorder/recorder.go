// Package recorder captures device telemetry from a serial mux into the
// session database, optionally mirroring every record to a CSV emitter.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"tailscale.com/tsweb"

	"github.com/banshee-data/speckle/internal/db"
	"github.com/banshee-data/speckle/internal/monitoring"
	"github.com/banshee-data/speckle/internal/serialmux"
	"github.com/banshee-data/speckle/internal/telemetry"
	"github.com/banshee-data/speckle/internal/timeutil"
)

// Store is the write side of the session database.
type Store interface {
	CreateSession(source, note string, startedAt time.Time) (db.Session, error)
	InsertSamples(id string, firstSeq int64, recs []telemetry.Record, receivedAt time.Time) error
	EndSession(id string, endedAt time.Time, linesRead, linesSkipped int64) error
}

// Config controls a recording.
type Config struct {
	Source        string        // recorded on the session, usually the port path
	Note          string        // free text recorded on the session
	BatchSize     int           // samples per database transaction
	FlushInterval time.Duration // upper bound on how long a sample waits in memory
}

// DefaultConfig batches about one second of samples at the nominal rate.
func DefaultConfig(source string) Config {
	return Config{
		Source:        source,
		BatchSize:     25,
		FlushInterval: time.Second,
	}
}

// Stats counts lines by kind.
type Stats struct {
	Lines       int64 `json:"lines"`
	Records     int64 `json:"records"`
	Headers     int64 `json:"headers"`
	Diagnostics int64 `json:"diagnostics"`
	Boot        int64 `json:"boot"`
	Skipped     int64 `json:"skipped"` // every line that is not a record
}

// Recorder stores one session per Run.
type Recorder struct {
	cfg    Config
	m      serialmux.SerialMuxInterface
	store  Store
	mirror telemetry.Emitter
	clock  timeutil.Clock

	mu      sync.Mutex
	stats   Stats
	session db.Session
	pending []telemetry.Record
	nextSeq int64
}

// New returns a recorder reading from m into store. mirror may be nil.
func New(cfg Config, m serialmux.SerialMuxInterface, store Store, mirror telemetry.Emitter, clock timeutil.Clock) (*Recorder, error) {
	if m == nil || store == nil {
		return nil, errors.New("recorder needs a serial mux and a store")
	}
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", cfg.BatchSize)
	}
	if cfg.FlushInterval <= 0 {
		return nil, fmt.Errorf("flush interval must be positive, got %v", cfg.FlushInterval)
	}
	if mirror == nil {
		mirror = telemetry.Discard
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Recorder{cfg: cfg, m: m, store: store, mirror: mirror, clock: clock}, nil
}

// Run creates a session and records into it until ctx is done or the mux
// closes the subscription. The session is always ended, and pending samples
// flushed, before Run returns.
func (r *Recorder) Run(ctx context.Context) (err error) {
	sess, err := r.store.CreateSession(r.cfg.Source, r.cfg.Note, r.clock.Now())
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.session = sess
	r.mu.Unlock()
	monitoring.Logf("recording session %s from %s", sess.ID, r.cfg.Source)

	defer func() {
		if ferr := r.finish(); ferr != nil && err == nil {
			err = ferr
		}
	}()

	if err := r.mirror.WriteHeader(); err != nil {
		return fmt.Errorf("mirror header: %w", err)
	}

	id, lines := r.m.Subscribe()
	defer r.m.Unsubscribe(id)

	ticker := r.clock.NewTicker(r.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := r.handle(line); err != nil {
				return err
			}
		case <-ticker.C():
			if err := r.flush(); err != nil {
				return err
			}
		}
	}
}

func (r *Recorder) handle(line string) error {
	monitoring.Debugf("raw: %s", line)
	kind, rec := serialmux.Classify(line)

	r.mu.Lock()
	r.stats.Lines++
	switch kind {
	case serialmux.LineRecord:
		r.stats.Records++
		r.pending = append(r.pending, rec)
	case serialmux.LineHeader:
		r.stats.Headers++
		r.stats.Skipped++
	case serialmux.LineDiagnostic:
		r.stats.Diagnostics++
		r.stats.Skipped++
	case serialmux.LineBoot:
		r.stats.Boot++
		r.stats.Skipped++
	default:
		r.stats.Skipped++
	}
	full := len(r.pending) >= r.cfg.BatchSize
	r.mu.Unlock()

	if kind == serialmux.LineRecord {
		if err := r.mirror.WriteRecord(rec); err != nil {
			return fmt.Errorf("mirror record: %w", err)
		}
	}
	if full {
		return r.flush()
	}
	return nil
}

func (r *Recorder) flush() error {
	r.mu.Lock()
	batch := r.pending
	r.pending = nil
	first := r.nextSeq
	id := r.session.ID
	r.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	if err := r.store.InsertSamples(id, first, batch, r.clock.Now()); err != nil {
		return fmt.Errorf("store %d samples: %w", len(batch), err)
	}

	r.mu.Lock()
	r.nextSeq += int64(len(batch))
	r.mu.Unlock()
	monitoring.Debugf("stored samples %d..%d", first, first+int64(len(batch))-1)
	return nil
}

func (r *Recorder) finish() error {
	flushErr := r.flush()

	r.mu.Lock()
	id := r.session.ID
	st := r.stats
	r.mu.Unlock()

	endErr := r.store.EndSession(id, r.clock.Now(), st.Lines, st.Skipped)
	monitoring.Logf("session %s ended: %d lines, %d records, %d skipped", id, st.Lines, st.Records, st.Skipped)
	return errors.Join(flushErr, endErr)
}

// Stats returns a snapshot of the line counters.
func (r *Recorder) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// SessionID returns the current session's ID, or "" before Run.
func (r *Recorder) SessionID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session.ID
}

// AttachAdminRoutes adds the recorder counters to the debug index.
func (r *Recorder) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.KVFunc("recording session", func() any { return r.SessionID() })
	debug.KVFunc("recorded samples", func() any { return r.Stats().Records })
	debug.KVFunc("skipped lines", func() any { return r.Stats().Skipped })
}
