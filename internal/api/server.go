// Package api serves recorded sessions over HTTP.
package api

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/speckle/internal/analysis"
	"github.com/banshee-data/speckle/internal/db"
	"github.com/banshee-data/speckle/internal/httputil"
	"github.com/banshee-data/speckle/internal/serialmux"
)

// ANSI escape codes for request logging
const (
	colorCyan      = "\033[36m"
	colorReset     = "\033[0m"
	colorYellow    = "\033[33m"
	colorBoldGreen = "\033[1;32m"
	colorBoldRed   = "\033[1;31m"
)

// Store is the read side of the session database.
type Store interface {
	Sessions() ([]db.Session, error)
	Session(id string) (db.Session, error)
	Samples(id string, limit int) ([]db.Sample, error)
	DeleteSession(id string) error
}

// Server exposes sessions, their samples and derived summaries.
type Server struct {
	m     serialmux.SerialMuxInterface
	store Store
}

// NewServer returns a server over store. m may be nil when no serial port
// is attached, for example when serving an existing database.
func NewServer(m serialmux.SerialMuxInterface, store Store) *Server {
	return &Server{m: m, store: store}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// ServeMux returns a mux with every API route mounted.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.showStatus)
	mux.HandleFunc("/api/sessions", s.listSessions)
	mux.HandleFunc("/api/sessions/{id}", s.showSession)
	mux.HandleFunc("/api/sessions/{id}/samples", s.listSamples)
	mux.HandleFunc("/api/sessions/{id}/summary", s.showSummary)
	mux.HandleFunc("/api/sessions/{id}/chart", s.showChart)
	return mux
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.m == nil {
		httputil.WriteJSONOK(w, map[string]any{"serial": nil})
		return
	}
	httputil.WriteJSONOK(w, map[string]any{"serial": s.m.Stats()})
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	sessions, err := s.store.Sessions()
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to list sessions: %v", err))
		return
	}
	httputil.WriteJSONOK(w, sessions)
}

// session loads the {id} session, writing the error response itself when
// it fails.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (db.Session, bool) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return db.Session{}, false
	}
	id := r.PathValue("id")
	sess, err := s.store.Session(id)
	if errors.Is(err, db.ErrNotFound) {
		httputil.NotFound(w, fmt.Sprintf("session %q not found", id))
		return db.Session{}, false
	}
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return db.Session{}, false
	}
	return sess, true
}

// showSession handles GET and DELETE on /api/sessions/{id}.
func (s *Server) showSession(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		sess, ok := s.session(w, r)
		if !ok {
			return
		}
		httputil.WriteJSONOK(w, sess)
	case http.MethodDelete:
		s.deleteSession(w, r)
	default:
		httputil.MethodNotAllowed(w)
	}
}

// deleteSession removes the session and every sample recorded into it.
func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	err := s.store.DeleteSession(id)
	if errors.Is(err, db.ErrNotFound) {
		httputil.NotFound(w, fmt.Sprintf("session %q not found", id))
		return
	}
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to delete session: %v", err))
		return
	}
	log.Printf("deleted session %s", id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listSamples(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	limit, err := httputil.QueryInt(r, "limit", 0)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	samples, err := s.store.Samples(sess.ID, limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to load samples: %v", err))
		return
	}
	httputil.WriteJSONOK(w, samples)
}

func (s *Server) series(id string) (analysis.Series, error) {
	samples, err := s.store.Samples(id, 0)
	if err != nil {
		return analysis.Series{}, err
	}
	return analysis.FromRecords(db.Records(samples)), nil
}

func (s *Server) showSummary(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	warmup, err := httputil.QueryDuration(r, "warmup", analysis.DefaultWarmup)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	series, err := s.series(sess.ID)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to load samples: %v", err))
		return
	}
	sum, err := analysis.Summarise(series, warmup)
	if errors.Is(err, analysis.ErrTooFewSamples) {
		httputil.WriteJSONError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, sum)
}

// showChart renders the session's K_filt series as an HTML line chart.
// Query params:
//   - limit (optional; default all) caps the number of points
func (s *Server) showChart(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	limit, err := httputil.QueryInt(r, "limit", 0)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	samples, err := s.store.Samples(sess.ID, limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to load samples: %v", err))
		return
	}

	x := make([]string, len(samples))
	y := make([]opts.LineData, len(samples))
	for i, smp := range samples {
		x[i] = strconv.FormatFloat(smp.T, 'f', 2, 64)
		y[i] = opts.LineData{Value: smp.KFilt}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "SPG Signal", Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Title: "SPG Signal (Time Domain)", Subtitle: fmt.Sprintf("session=%s points=%d", sess.ID, len(samples))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Time (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "K_filt"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
	)
	line.SetXAxis(x).AddSeries("K_filt", y)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
