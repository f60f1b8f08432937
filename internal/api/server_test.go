package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/speckle/internal/analysis"
	"github.com/banshee-data/speckle/internal/db"
	"github.com/banshee-data/speckle/internal/serialmux"
	"github.com/banshee-data/speckle/internal/telemetry"
	"github.com/banshee-data/speckle/internal/testutil"
)

// seed creates a database holding one session of n samples at 25 Hz.
func seed(t *testing.T, n int) (*db.DB, db.Session) {
	t.Helper()
	d, err := db.NewDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })

	sess, err := d.CreateSession("/dev/ttyACM0", "test", time.Unix(1_700_000_000, 0))
	require.NoError(t, err)

	recs := make([]telemetry.Record, n)
	for i := range recs {
		recs[i] = telemetry.Record{T: float64(i) * 0.04, KFilt: 0.001 * float64(i%7)}
	}
	require.NoError(t, d.InsertSamples(sess.ID, 0, recs, time.Unix(1_700_000_001, 0)))
	return d, sess
}

func serve(s *Server, method, path string) *httptest.ResponseRecorder {
	w := testutil.NewTestRecorder()
	s.ServeMux().ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestListSessions(t *testing.T) {
	d, sess := seed(t, 3)
	w := serve(NewServer(nil, d), http.MethodGet, "/api/sessions")
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)

	var got []db.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, sess.ID, got[0].ID)
	assert.Equal(t, int64(3), got[0].Samples)
}

func TestShowSession(t *testing.T) {
	d, sess := seed(t, 3)
	s := NewServer(nil, d)

	w := serve(s, http.MethodGet, "/api/sessions/"+sess.ID)
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	assert.Contains(t, w.Body.String(), `"source":"/dev/ttyACM0"`)

	w = serve(s, http.MethodGet, "/api/sessions/missing")
	testutil.AssertStatusCode(t, w.Code, http.StatusNotFound)
	assert.Contains(t, w.Body.String(), "not found")
}

func TestListSamples(t *testing.T) {
	d, sess := seed(t, 10)
	s := NewServer(nil, d)

	w := serve(s, http.MethodGet, "/api/sessions/"+sess.ID+"/samples?limit=4")
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	var got []db.Sample
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got, 4)
	assert.InDelta(t, 0.12, got[3].T, 1e-9)

	w = serve(s, http.MethodGet, "/api/sessions/"+sess.ID+"/samples")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Len(t, got, 10)

	w = serve(s, http.MethodGet, "/api/sessions/"+sess.ID+"/samples?limit=-1")
	testutil.AssertStatusCode(t, w.Code, http.StatusBadRequest)
}

func TestShowSummary(t *testing.T) {
	d, sess := seed(t, 250) // 10 s
	s := NewServer(nil, d)

	w := serve(s, http.MethodGet, "/api/sessions/"+sess.ID+"/summary")
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	var sum analysis.Summary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sum))
	assert.Equal(t, 125, sum.N)
	assert.InDelta(t, 25, sum.SampleRate, 1e-6)

	w = serve(s, http.MethodGet, "/api/sessions/"+sess.ID+"/summary?warmup=0s")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sum))
	assert.Equal(t, 250, sum.N)

	w = serve(s, http.MethodGet, "/api/sessions/"+sess.ID+"/summary?warmup=1h")
	testutil.AssertStatusCode(t, w.Code, http.StatusUnprocessableEntity)

	w = serve(s, http.MethodGet, "/api/sessions/"+sess.ID+"/summary?warmup=soon")
	testutil.AssertStatusCode(t, w.Code, http.StatusBadRequest)
}

func TestShowChart(t *testing.T) {
	d, sess := seed(t, 20)
	w := serve(NewServer(nil, d), http.MethodGet, "/api/sessions/"+sess.ID+"/chart?limit=5")
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
	body := w.Body.String()
	assert.Contains(t, body, "SPG Signal")
	assert.Contains(t, body, "points=5")
}

func TestDeleteSession(t *testing.T) {
	d, sess := seed(t, 10)
	s := NewServer(nil, d)

	w := serve(s, http.MethodDelete, "/api/sessions/"+sess.ID)
	testutil.AssertStatusCode(t, w.Code, http.StatusNoContent)

	_, err := d.Session(sess.ID)
	assert.ErrorIs(t, err, db.ErrNotFound)
	samples, err := d.Samples(sess.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, samples)

	w = serve(s, http.MethodDelete, "/api/sessions/"+sess.ID)
	testutil.AssertStatusCode(t, w.Code, http.StatusNotFound)

	w = serve(NewServer(nil, failingStore{}), http.MethodDelete, "/api/sessions/x")
	testutil.AssertStatusCode(t, w.Code, http.StatusInternalServerError)
	assert.Contains(t, w.Body.String(), "disk on fire")
}

func TestMethodNotAllowed(t *testing.T) {
	d, sess := seed(t, 1)
	s := NewServer(nil, d)
	for _, path := range []string{
		"/api/status",
		"/api/sessions",
		"/api/sessions/" + sess.ID,
		"/api/sessions/" + sess.ID + "/samples",
		"/api/sessions/" + sess.ID + "/summary",
		"/api/sessions/" + sess.ID + "/chart",
	} {
		w := serve(s, http.MethodPost, path)
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code, path)
	}
}

func TestShowStatus(t *testing.T) {
	d, _ := seed(t, 1)

	w := serve(NewServer(nil, d), http.MethodGet, "/api/status")
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	assert.JSONEq(t, `{"serial":null}`, w.Body.String())

	port := serialmux.NewTestableSerialPort()
	m := serialmux.NewSerialMux(port)
	w = serve(NewServer(m, d), http.MethodGet, "/api/status")
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	assert.JSONEq(t, `{"serial":{"lines":0,"dropped":0,"subscribers":0}}`, w.Body.String())
}

type failingStore struct{}

var errStore = errors.New("disk on fire")

func (failingStore) Sessions() ([]db.Session, error)          { return nil, errStore }
func (failingStore) Session(string) (db.Session, error)       { return db.Session{ID: "x"}, nil }
func (failingStore) Samples(string, int) ([]db.Sample, error) { return nil, errStore }
func (failingStore) DeleteSession(string) error               { return errStore }

func TestStoreErrors(t *testing.T) {
	s := NewServer(nil, failingStore{})
	for _, path := range []string{"/api/sessions", "/api/sessions/x/samples", "/api/sessions/x/summary", "/api/sessions/x/chart"} {
		w := serve(s, http.MethodGet, path)
		assert.Equal(t, http.StatusInternalServerError, w.Code, path)
		assert.Contains(t, w.Body.String(), "disk on fire", path)
	}
}

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	h := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/sessions?x=1", nil))

	assert.Equal(t, http.StatusTeapot, w.Code)
	out := buf.String()
	assert.Contains(t, out, colorBoldRed+"418"+colorReset)
	assert.Contains(t, out, "/api/sessions?x=1")
	assert.True(t, strings.Contains(out, "GET"))
}

func TestStatusCodeColor(t *testing.T) {
	assert.Equal(t, colorBoldGreen+"200"+colorReset, statusCodeColor(200))
	assert.Equal(t, colorYellow+"302"+colorReset, statusCodeColor(302))
	assert.Equal(t, colorBoldRed+"404"+colorReset, statusCodeColor(404))
	assert.Equal(t, colorBoldRed+"503"+colorReset, statusCodeColor(503))
	assert.Equal(t, "101", statusCodeColor(101))
}
